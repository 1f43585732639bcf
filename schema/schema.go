// Package schema describes tablet schemas and the shape of incoming rows.
//
// A tablet schema is an ordered list of typed columns; key columns come
// first and determine sort order inside a segment. A RowShape describes
// the field layout of rows arriving from the load plan, which generally
// differs from the tablet schema. The two are bridged by a Projection
// (see projection.go).
package schema

import "github.com/quarrydb/quarry/model"

// FieldType is the storage type of a column.
type FieldType int

const (
	TypeInt64 FieldType = iota
	TypeFloat64
	TypeString
	TypeBool
)

func (t FieldType) String() string {
	switch t {
	case TypeInt64:
		return "INT64"
	case TypeFloat64:
		return "FLOAT64"
	case TypeString:
		return "STRING"
	case TypeBool:
		return "BOOL"
	default:
		return "UNKNOWN"
	}
}

// AggregationType determines how a value column folds rows with equal
// keys under the aggregate keys model.
type AggregationType int

const (
	AggNone AggregationType = iota
	AggReplace
	AggSum
	AggMax
	AggMin
)

// Column is one column of a tablet schema.
type Column struct {
	Name        string
	Type        FieldType
	IsKey       bool
	Nullable    bool
	Aggregation AggregationType
}

// Schema is an immutable snapshot of a tablet schema. Construct with
// New; the column slice must not be mutated afterwards.
type Schema struct {
	columns   []Column
	numKeys   int
	keysModel model.KeysModel
}

// New builds a schema snapshot. Key columns must form a prefix of cols.
func New(cols []Column, keysModel model.KeysModel) *Schema {
	numKeys := 0
	for _, c := range cols {
		if !c.IsKey {
			break
		}
		numKeys++
	}
	return &Schema{
		columns:   cols,
		numKeys:   numKeys,
		keysModel: keysModel,
	}
}

// Columns returns the schema columns in declaration order.
func (s *Schema) Columns() []Column { return s.columns }

// NumColumns returns the number of columns.
func (s *Schema) NumColumns() int { return len(s.columns) }

// NumKeyColumns returns the number of leading key columns.
func (s *Schema) NumKeyColumns() int { return s.numKeys }

// Column returns the i-th column.
func (s *Schema) Column(i int) Column { return s.columns[i] }

// KeysModel returns the key model the schema was declared with.
func (s *Schema) KeysModel() model.KeysModel { return s.keysModel }

// Field is one field of an incoming row.
type Field struct {
	Name string
}

// RowShape describes the field names and order of incoming rows. It is
// supplied by the caller at writer construction and owned for the
// writer's lifetime.
type RowShape []Field
