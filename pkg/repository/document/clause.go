package document

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Clause is a backend-neutral predicate over documents. It is one of
// Comparison, And or Or.
type Clause interface {
	isClause()
}

// Comparison constrains a single field.
type Comparison struct {
	Field string
	Op    Op
	Value any
}

// And matches documents satisfying every member. An empty And matches all.
type And []Clause

// Or matches documents satisfying at least one member. An empty Or matches none.
type Or []Clause

func (Comparison) isClause() {}
func (And) isClause()        {}
func (Or) isClause()         {}

func Eq(field string, v any) Comparison  { return Comparison{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v any) Comparison  { return Comparison{Field: field, Op: OpNe, Value: v} }
func Gt(field string, v any) Comparison  { return Comparison{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Comparison { return Comparison{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Comparison  { return Comparison{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Comparison { return Comparison{Field: field, Op: OpLte, Value: v} }

// In matches when the field equals any element of values (a slice).
func In(field string, values any) Comparison {
	return Comparison{Field: field, Op: OpIn, Value: values}
}

// MatchAll returns the clause that matches every document.
func MatchAll() Clause { return And{} }

// IsMatchAll reports whether c places no constraint at all.
func IsMatchAll(c Clause) bool {
	if c == nil {
		return true
	}
	a, ok := c.(And)
	if !ok {
		return false
	}
	for _, m := range a {
		if !IsMatchAll(m) {
			return false
		}
	}
	return true
}

// AllOf conjoins clauses. Nested conjunctions are flattened and
// unconstrained members dropped, so the result does not depend on how the
// members were grouped.
func AllOf(clauses ...Clause) Clause {
	out := And{}
	for _, c := range clauses {
		if IsMatchAll(c) {
			continue
		}
		if a, ok := c.(And); ok {
			inner := AllOf(a...)
			if flat, ok := inner.(And); ok {
				out = append(out, flat...)
			} else {
				out = append(out, inner)
			}
			continue
		}
		out = append(out, c)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// AnyOf disjoins clauses. If any member is unconstrained the result is
// MatchAll. With no members the result matches nothing.
func AnyOf(clauses ...Clause) Clause {
	out := Or{}
	for _, c := range clauses {
		if c == nil {
			continue
		}
		if IsMatchAll(c) {
			return MatchAll()
		}
		if o, ok := c.(Or); ok {
			inner := AnyOf(o...)
			if IsMatchAll(inner) {
				return MatchAll()
			}
			if flat, ok := inner.(Or); ok {
				out = append(out, flat...)
			} else {
				out = append(out, inner)
			}
			continue
		}
		out = append(out, c)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// EqualityFields returns the field values pinned by top-level equality
// comparisons, descending into conjunctions only.
func EqualityFields(c Clause) map[string]any {
	out := map[string]any{}
	var walk func(Clause)
	walk = func(c Clause) {
		switch v := c.(type) {
		case Comparison:
			if v.Op == OpEq {
				out[v.Field] = v.Value
			}
		case And:
			for _, m := range v {
				walk(m)
			}
		}
	}
	walk(c)
	return out
}

// ToBSON renders c as a MongoDB query filter.
func ToBSON(c Clause) bson.D {
	switch v := c.(type) {
	case nil:
		return bson.D{}
	case Comparison:
		return bson.D{{Key: v.Field, Value: bson.D{{Key: "$" + string(v.Op), Value: comparisonValue(v)}}}}
	case And:
		c := AllOf(v...)
		if a, ok := c.(And); ok {
			if len(a) == 0 {
				return bson.D{}
			}
			parts := make(bson.A, 0, len(a))
			for _, m := range a {
				parts = append(parts, ToBSON(m))
			}
			return bson.D{{Key: "$and", Value: parts}}
		}
		return ToBSON(c)
	case Or:
		if len(v) == 0 {
			return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{}}}}}
		}
		parts := make(bson.A, 0, len(v))
		for _, m := range v {
			parts = append(parts, ToBSON(m))
		}
		return bson.D{{Key: "$or", Value: parts}}
	default:
		return bson.D{}
	}
}

func comparisonValue(c Comparison) any {
	if c.Op != OpIn {
		return c.Value
	}
	return toSlice(c.Value)
}

// toSlice turns any slice or array value into a bson.A.
func toSlice(v any) bson.A {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return bson.A{}
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return bson.A{v}
	}
	out := make(bson.A, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}
