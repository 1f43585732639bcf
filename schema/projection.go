package schema

// Projection maps tablet-schema columns to positions in the incoming
// row shape. It is a pure function of the two: for each schema column,
// in declaration order, the first incoming field with a matching name
// is recorded. Columns with no matching field stay unmapped and come
// out NULL after Apply; incoming fields with no matching column are
// dropped.
type Projection struct {
	// fieldOf[i] is the incoming-field position feeding schema column
	// i, or -1 if the column has no source.
	fieldOf []int
}

// BuildProjection computes the projection of shape onto sch. When
// several incoming fields share a column's name, the first one in
// field order wins.
func BuildProjection(sch *Schema, shape RowShape) Projection {
	fieldOf := make([]int, sch.NumColumns())
	for i := range fieldOf {
		fieldOf[i] = -1
		name := sch.Column(i).Name
		for j, f := range shape {
			if f.Name == name {
				fieldOf[i] = j
				break
			}
		}
	}
	return Projection{fieldOf: fieldOf}
}

// NumMapped returns the number of schema columns with a source field.
func (p Projection) NumMapped() int {
	n := 0
	for _, f := range p.fieldOf {
		if f >= 0 {
			n++
		}
	}
	return n
}

// FieldOf returns the incoming-field position for schema column i, or
// -1 if the column is unmapped.
func (p Projection) FieldOf(i int) int { return p.fieldOf[i] }

// Apply converts an incoming row (in shape order) into a schema-aligned
// row. Unmapped columns become NULL; surplus incoming fields are
// ignored. Fields beyond len(in) also become NULL so short rows stay
// usable.
func (p Projection) Apply(in Row) Row {
	out := make(Row, len(p.fieldOf))
	for i, f := range p.fieldOf {
		if f >= 0 && f < len(in) {
			out[i] = in[f]
		}
	}
	return out
}
