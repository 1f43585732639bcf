package rowset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v4"
	"github.com/quarrydb/quarry/schema"
)

// Segment file layout:
//
//	magic    [8]byte  "QRYSEG1\x00"
//	version  uint32
//	codec    uint8
//	numCols  uint32
//	numRows  uint32
//	bodyLen  uint32   compressed body length
//	body     []byte   compressed column blocks
//	crc      uint32   CRC-32C over everything before it
//
// The body holds one block per column: a roaring bitmap of NULL row
// positions, then the values of non-NULL rows in row order.

const (
	segmentMagic   = "QRYSEG1\x00"
	segmentVersion = 1
)

// CompressionType selects the body codec of a segment file.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionS2
	CompressionLZ4
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("CompressionType(%d)", uint8(c))
	}
}

// ErrCorrupt is returned when a segment fails structural or checksum
// validation.
var ErrCorrupt = errors.New("rowset: corrupt segment")

func compressBody(codec CompressionType, body []byte) ([]byte, error) {
	switch codec {
	case CompressionNone:
		return body, nil
	case CompressionS2:
		return s2.Encode(nil, body), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("rowset: unknown compression %d", codec)
	}
}

func decompressBody(codec CompressionType, body []byte) ([]byte, error) {
	switch codec {
	case CompressionNone:
		return body, nil
	case CompressionS2:
		return s2.Decode(nil, body)
	case CompressionLZ4:
		zr := lz4.NewReader(bytes.NewReader(body))
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("rowset: unknown compression %d", codec)
	}
}

// encodeColumns encodes schema-aligned rows into the uncompressed body.
func encodeColumns(sch *schema.Schema, rows []schema.Row) ([]byte, error) {
	var body bytes.Buffer
	scratch := make([]byte, 8)

	for col := 0; col < sch.NumColumns(); col++ {
		nulls := roaring.New()
		for i, row := range rows {
			if row[col].IsNull() {
				nulls.Add(uint32(i))
			}
		}
		nullBytes, err := nulls.ToBytes()
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(scratch, uint32(len(nullBytes)))
		body.Write(scratch[:4])
		body.Write(nullBytes)

		typ := sch.Column(col).Type
		for _, row := range rows {
			d := row[col]
			if d.IsNull() {
				continue
			}
			switch typ {
			case schema.TypeInt64:
				binary.LittleEndian.PutUint64(scratch, uint64(d.I64))
				body.Write(scratch)
			case schema.TypeFloat64:
				binary.LittleEndian.PutUint64(scratch, math.Float64bits(d.F64))
				body.Write(scratch)
			case schema.TypeBool:
				if d.B {
					body.WriteByte(1)
				} else {
					body.WriteByte(0)
				}
			case schema.TypeString:
				binary.LittleEndian.PutUint32(scratch, uint32(len(d.S)))
				body.Write(scratch[:4])
				body.WriteString(d.S)
			default:
				return nil, fmt.Errorf("rowset: unsupported column type %s", typ)
			}
		}
	}
	return body.Bytes(), nil
}

// decodeColumns decodes an uncompressed body back into rows.
func decodeColumns(sch *schema.Schema, body []byte, numRows int) ([]schema.Row, error) {
	rows := make([]schema.Row, numRows)
	for i := range rows {
		rows[i] = make(schema.Row, sch.NumColumns())
	}

	r := bytes.NewReader(body)
	scratch := make([]byte, 8)

	for col := 0; col < sch.NumColumns(); col++ {
		if _, err := io.ReadFull(r, scratch[:4]); err != nil {
			return nil, fmt.Errorf("%w: column %d null bitmap length: %v", ErrCorrupt, col, err)
		}
		nullLen := binary.LittleEndian.Uint32(scratch[:4])
		nullBytes := make([]byte, nullLen)
		if _, err := io.ReadFull(r, nullBytes); err != nil {
			return nil, fmt.Errorf("%w: column %d null bitmap: %v", ErrCorrupt, col, err)
		}
		nulls := roaring.New()
		if err := nulls.UnmarshalBinary(nullBytes); err != nil {
			return nil, fmt.Errorf("%w: column %d null bitmap: %v", ErrCorrupt, col, err)
		}

		typ := sch.Column(col).Type
		for i := 0; i < numRows; i++ {
			if nulls.Contains(uint32(i)) {
				rows[i][col] = schema.Null()
				continue
			}
			switch typ {
			case schema.TypeInt64:
				if _, err := io.ReadFull(r, scratch); err != nil {
					return nil, fmt.Errorf("%w: column %d row %d: %v", ErrCorrupt, col, i, err)
				}
				rows[i][col] = schema.Int64(int64(binary.LittleEndian.Uint64(scratch)))
			case schema.TypeFloat64:
				if _, err := io.ReadFull(r, scratch); err != nil {
					return nil, fmt.Errorf("%w: column %d row %d: %v", ErrCorrupt, col, i, err)
				}
				rows[i][col] = schema.Float64(math.Float64frombits(binary.LittleEndian.Uint64(scratch)))
			case schema.TypeBool:
				b, err := r.ReadByte()
				if err != nil {
					return nil, fmt.Errorf("%w: column %d row %d: %v", ErrCorrupt, col, i, err)
				}
				rows[i][col] = schema.Bool(b != 0)
			case schema.TypeString:
				if _, err := io.ReadFull(r, scratch[:4]); err != nil {
					return nil, fmt.Errorf("%w: column %d row %d: %v", ErrCorrupt, col, i, err)
				}
				strLen := binary.LittleEndian.Uint32(scratch[:4])
				s := make([]byte, strLen)
				if _, err := io.ReadFull(r, s); err != nil {
					return nil, fmt.Errorf("%w: column %d row %d: %v", ErrCorrupt, col, i, err)
				}
				rows[i][col] = schema.String(string(s))
			default:
				return nil, fmt.Errorf("rowset: unsupported column type %s", typ)
			}
		}
	}
	return rows, nil
}
