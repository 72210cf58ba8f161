package document

// FieldFilter is a filter value that knows how to constrain one field.
// Compile calls it for every filter attribute that implements it.
type FieldFilter interface {
	FieldClause(field string) Clause
}

// RangeFilter bounds a field inclusively. Either end may be omitted; with
// both omitted it places no constraint. Min greater than Max is accepted
// and simply matches nothing.
type RangeFilter[V any] struct {
	Min *V `json:"min,omitempty"`
	Max *V `json:"max,omitempty"`
}

// Between is shorthand for a closed range.
func Between[V any](min, max V) RangeFilter[V] {
	return RangeFilter[V]{Min: &min, Max: &max}
}

// AtLeast is shorthand for a range with only a lower bound.
func AtLeast[V any](min V) RangeFilter[V] {
	return RangeFilter[V]{Min: &min}
}

// AtMost is shorthand for a range with only an upper bound.
func AtMost[V any](max V) RangeFilter[V] {
	return RangeFilter[V]{Max: &max}
}

func (r RangeFilter[V]) FieldClause(field string) Clause {
	var parts []Clause
	if r.Min != nil {
		parts = append(parts, Gte(field, *r.Min))
	}
	if r.Max != nil {
		parts = append(parts, Lte(field, *r.Max))
	}
	return AllOf(parts...)
}

// OneOf matches when the field equals any of Values. An empty list places
// no constraint.
type OneOf[V any] struct {
	Values []V `json:"in,omitempty"`
}

func (o OneOf[V]) FieldClause(field string) Clause {
	if len(o.Values) == 0 {
		return MatchAll()
	}
	return In(field, o.Values)
}
