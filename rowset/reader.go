package rowset

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/schema"
)

const segmentHeaderLen = len(segmentMagic) + 4 + 1 + 4 + 4 + 4

// ReadSegment decodes one sealed segment file into schema-aligned rows.
// Used by the schema-change conversion path and by repair tooling; the
// query read path has its own columnar access.
func ReadSegment(fsys fs.FileSystem, path string, sch *schema.Schema) ([]schema.Row, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("rowset: read segment %s: %w", path, err)
	}
	if len(data) < segmentHeaderLen+4 {
		return nil, fmt.Errorf("%w: %s: truncated", ErrCorrupt, path)
	}

	stored := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.Checksum(data[:len(data)-4], castagnoli) != stored {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrCorrupt, path)
	}

	if string(data[:len(segmentMagic)]) != segmentMagic {
		return nil, fmt.Errorf("%w: %s: bad magic", ErrCorrupt, path)
	}
	off := len(segmentMagic)
	version := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if version != segmentVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, path, version)
	}
	codec := CompressionType(data[off])
	off++
	numCols := binary.LittleEndian.Uint32(data[off:])
	off += 4
	numRows := binary.LittleEndian.Uint32(data[off:])
	off += 4
	bodyLen := binary.LittleEndian.Uint32(data[off:])
	off += 4

	if int(numCols) != sch.NumColumns() {
		return nil, fmt.Errorf("%w: %s: segment has %d columns, schema has %d",
			ErrCorrupt, path, numCols, sch.NumColumns())
	}
	if off+int(bodyLen)+4 != len(data) {
		return nil, fmt.Errorf("%w: %s: body length mismatch", ErrCorrupt, path)
	}

	body, err := decompressBody(codec, data[off:off+int(bodyLen)])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return decodeColumns(sch, body, int(numRows))
}

// ReadRows decodes every segment of a rowset in segment order.
func ReadRows(fsys fs.FileSystem, r *Rowset, sch *schema.Schema) ([]schema.Row, error) {
	var rows []schema.Row
	for _, seg := range r.Segments() {
		segRows, err := ReadSegment(fsys, seg.Path, sch)
		if err != nil {
			return nil, err
		}
		rows = append(rows, segRows...)
	}
	return rows, nil
}
