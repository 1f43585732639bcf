// Package schemachange converts sealed rowsets between tablet schemas.
//
// While a tablet migrates to a new schema, loads that land on the old
// tablet are converted row by row and written to the new tablet as
// well, so the migration never misses in-flight data.
package schemachange

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quarrydb/quarry/internal/fs"
	"github.com/quarrydb/quarry/model"
	"github.com/quarrydb/quarry/resource"
	"github.com/quarrydb/quarry/rowset"
	"github.com/quarrydb/quarry/schema"
	"github.com/quarrydb/quarry/tablet"
)

// Handler converts rowsets onto a target tablet's schema. Columns are
// matched by name; target columns missing from the source schema are
// filled with NULL, source columns absent from the target are dropped.
type Handler struct {
	fsys   fs.FileSystem
	rc     *resource.Controller
	logger *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithFS overrides the filesystem used for reading and writing
// segments.
func WithFS(fsys fs.FileSystem) HandlerOption {
	return func(h *Handler) {
		if fsys != nil {
			h.fsys = fsys
		}
	}
}

// WithResourceController sets the controller throttling segment IO.
func WithResourceController(rc *resource.Controller) HandlerOption {
	return func(h *Handler) { h.rc = rc }
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a schema change handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		fsys:   fs.Default,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Convert rewrites source, which was written under srcSchema, into a
// new rowset carrying target's schema, placed under target's pending
// directory with id newID. The source rowset is left untouched.
func (h *Handler) Convert(ctx context.Context, source *rowset.Rowset, srcSchema *schema.Schema, target *tablet.Tablet, newID model.RowsetID) (*rowset.Rowset, error) {
	rows, err := rowset.ReadRows(h.fsys, source, srcSchema)
	if err != nil {
		return nil, fmt.Errorf("schemachange: read source rowset %d: %w", source.ID(), err)
	}

	shape := make(schema.RowShape, srcSchema.NumColumns())
	for i := range shape {
		shape[i] = schema.Field{Name: srcSchema.Column(i).Name}
	}
	proj := schema.BuildProjection(target.Schema(), shape)

	srcMeta := source.Meta()
	w := rowset.NewWriter(
		rowset.WithFS(h.fsys),
		rowset.WithResourceController(h.rc),
	)
	err = w.Init(rowset.WriterContext{
		RowsetID:    newID,
		TabletID:    target.ID(),
		PartitionID: srcMeta.PartitionID,
		SchemaHash:  target.SchemaHash(),
		TxnID:       srcMeta.TxnID,
		LoadID:      srcMeta.LoadID,
		Kind:        rowset.KindSchemaChange,
		PathPrefix:  target.PendingDir(),
		Schema:      target.Schema(),
	})
	if err != nil {
		return nil, fmt.Errorf("schemachange: init writer: %w", err)
	}

	converted := make([]schema.Row, len(rows))
	for i, row := range rows {
		converted[i] = proj.Apply(row)
	}
	if err := w.FlushBatch(ctx, converted); err != nil {
		return nil, fmt.Errorf("schemachange: write converted rows: %w", err)
	}

	rs, err := w.Build()
	if err != nil {
		return nil, fmt.Errorf("schemachange: build converted rowset: %w", err)
	}

	h.logger.Info("rowset converted",
		"source_rowset", int64(source.ID()),
		"target_rowset", int64(rs.ID()),
		"target_tablet", target.FullName(),
		"rows", rs.RowCount())
	return rs, nil
}
