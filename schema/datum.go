package schema

import (
	"fmt"
	"strings"
)

// DatumKind discriminates the value stored in a Datum.
type DatumKind int

const (
	KindNull DatumKind = iota
	KindInt64
	KindFloat64
	KindString
	KindBool
)

// Datum is a single column value. The zero value is NULL.
type Datum struct {
	Kind DatumKind
	I64  int64
	F64  float64
	S    string
	B    bool
}

// Null returns the NULL datum.
func Null() Datum { return Datum{} }

// Int64 returns an int64 datum.
func Int64(v int64) Datum { return Datum{Kind: KindInt64, I64: v} }

// Float64 returns a float64 datum.
func Float64(v float64) Datum { return Datum{Kind: KindFloat64, F64: v} }

// String returns a string datum.
func String(v string) Datum { return Datum{Kind: KindString, S: v} }

// Bool returns a bool datum.
func Bool(v bool) Datum { return Datum{Kind: KindBool, B: v} }

// IsNull reports whether the datum is NULL.
func (d Datum) IsNull() bool { return d.Kind == KindNull }

func (d Datum) String() string {
	switch d.Kind {
	case KindNull:
		return "NULL"
	case KindInt64:
		return fmt.Sprintf("%d", d.I64)
	case KindFloat64:
		return fmt.Sprintf("%g", d.F64)
	case KindString:
		return d.S
	case KindBool:
		return fmt.Sprintf("%t", d.B)
	default:
		return fmt.Sprintf("Datum(kind=%d)", int(d.Kind))
	}
}

// Compare orders two datums of the same kind. NULL sorts before any
// non-NULL value; comparing datums of different non-NULL kinds is a
// schema violation and ordered by kind to stay deterministic.
func (d Datum) Compare(o Datum) int {
	if d.Kind != o.Kind {
		if d.Kind == KindNull {
			return -1
		}
		if o.Kind == KindNull {
			return 1
		}
		return int(d.Kind) - int(o.Kind)
	}
	switch d.Kind {
	case KindNull:
		return 0
	case KindInt64:
		switch {
		case d.I64 < o.I64:
			return -1
		case d.I64 > o.I64:
			return 1
		}
		return 0
	case KindFloat64:
		switch {
		case d.F64 < o.F64:
			return -1
		case d.F64 > o.F64:
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(d.S, o.S)
	case KindBool:
		switch {
		case !d.B && o.B:
			return -1
		case d.B && !o.B:
			return 1
		}
		return 0
	}
	return 0
}

// Row is one row of datums. Inside the write path rows are always
// aligned to a tablet schema: len(row) == schema.NumColumns().
type Row []Datum

// CompareKeys orders two schema-aligned rows by their leading numKeys
// columns.
func CompareKeys(a, b Row, numKeys int) int {
	for i := 0; i < numKeys; i++ {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// SizeOf estimates the in-memory footprint of a row in bytes. The
// estimate only needs to be stable and monotonic for buffer accounting.
func SizeOf(row Row) int64 {
	size := int64(len(row)) * 24
	for _, d := range row {
		if d.Kind == KindString {
			size += int64(len(d.S))
		}
	}
	return size
}
