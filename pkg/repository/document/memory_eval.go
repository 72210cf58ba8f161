package document

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// matcher evaluates a compiled clause against one stored document.
type matcher func(doc bson.Raw) bool

func matchAll(bson.Raw) bool { return true }

// buildMatcher encodes clause values once and returns an evaluator that
// follows MongoDB query semantics for the supported operators.
func buildMatcher(c Clause) (matcher, error) {
	switch v := c.(type) {
	case nil:
		return matchAll, nil
	case And:
		parts := make([]matcher, 0, len(v))
		for _, m := range v {
			pm, err := buildMatcher(m)
			if err != nil {
				return nil, err
			}
			parts = append(parts, pm)
		}
		return func(doc bson.Raw) bool {
			for _, p := range parts {
				if !p(doc) {
					return false
				}
			}
			return true
		}, nil
	case Or:
		parts := make([]matcher, 0, len(v))
		for _, m := range v {
			pm, err := buildMatcher(m)
			if err != nil {
				return nil, err
			}
			parts = append(parts, pm)
		}
		return func(doc bson.Raw) bool {
			for _, p := range parts {
				if p(doc) {
					return true
				}
			}
			return false
		}, nil
	case Comparison:
		return comparisonMatcher(v)
	default:
		return nil, fmt.Errorf("%w: unsupported clause %T", ErrInvariant, c)
	}
}

func comparisonMatcher(c Comparison) (matcher, error) {
	if c.Op == OpIn {
		var targets []bson.RawValue
		for _, item := range toSlice(c.Value) {
			rv, err := encodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("encode %s value: %w", c.Field, err)
			}
			targets = append(targets, rv)
		}
		return func(doc bson.Raw) bool {
			fv, found := lookupPath(doc, c.Field)
			for _, t := range targets {
				if equalMatch(fv, found, t) {
					return true
				}
			}
			return false
		}, nil
	}

	target, err := encodeValue(c.Value)
	if err != nil {
		return nil, fmt.Errorf("encode %s value: %w", c.Field, err)
	}
	switch c.Op {
	case OpEq:
		return func(doc bson.Raw) bool {
			fv, found := lookupPath(doc, c.Field)
			return equalMatch(fv, found, target)
		}, nil
	case OpNe:
		return func(doc bson.Raw) bool {
			fv, found := lookupPath(doc, c.Field)
			return !equalMatch(fv, found, target)
		}, nil
	case OpGt, OpGte, OpLt, OpLte:
		op := c.Op
		return func(doc bson.Raw) bool {
			fv, found := lookupPath(doc, c.Field)
			for _, cand := range candidates(fv, found) {
				if bracket(cand) != bracket(target) {
					continue
				}
				if satisfies(op, compareValues(cand, target)) {
					return true
				}
			}
			return false
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported operator %q", ErrInvariant, c.Op)
	}
}

func satisfies(op Op, cmp int) bool {
	switch op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// candidates is the value itself plus, for arrays, every element. A
// missing field is a null candidate.
func candidates(fv bson.RawValue, found bool) []bson.RawValue {
	if !found {
		return []bson.RawValue{{Type: bson.TypeNull}}
	}
	out := []bson.RawValue{fv}
	if fv.Type == bson.TypeArray {
		values, err := fv.Array().Values()
		if err == nil {
			out = append(out, values...)
		}
	}
	return out
}

// equalMatch follows $eq: null matches missing, arrays match on any element.
func equalMatch(fv bson.RawValue, found bool, target bson.RawValue) bool {
	for _, cand := range candidates(fv, found) {
		if compareValues(cand, target) == 0 {
			return true
		}
	}
	return false
}

func encodeValue(v any) (bson.RawValue, error) {
	if v == nil {
		return bson.RawValue{Type: bson.TypeNull}, nil
	}
	t, data, err := bson.MarshalValue(v)
	if err != nil {
		return bson.RawValue{}, err
	}
	return bson.RawValue{Type: t, Value: data}, nil
}

func lookupPath(doc bson.Raw, path string) (bson.RawValue, bool) {
	rv, err := doc.LookupErr(strings.Split(path, ".")...)
	if err != nil {
		return bson.RawValue{}, false
	}
	return rv, true
}

// bracket ranks BSON types in MongoDB's cross-type comparison order.
func bracket(v bson.RawValue) int {
	switch v.Type {
	case bson.TypeMinKey:
		return 1
	case 0, bson.TypeNull, bson.TypeUndefined:
		return 2
	case bson.TypeInt32, bson.TypeInt64, bson.TypeDouble, bson.TypeDecimal128:
		return 3
	case bson.TypeString, bson.TypeSymbol:
		return 4
	case bson.TypeEmbeddedDocument:
		return 5
	case bson.TypeArray:
		return 6
	case bson.TypeBinary:
		return 7
	case bson.TypeObjectID:
		return 8
	case bson.TypeBoolean:
		return 9
	case bson.TypeDateTime:
		return 10
	case bson.TypeTimestamp:
		return 11
	case bson.TypeRegex:
		return 12
	case bson.TypeMaxKey:
		return 14
	default:
		return 13
	}
}

// compareValues orders two values: first by type bracket, then by value.
func compareValues(a, b bson.RawValue) int {
	ba, bb := bracket(a), bracket(b)
	if ba != bb {
		return ba - bb
	}
	switch ba {
	case 2:
		return 0
	case 3:
		x, y := numeric(a), numeric(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 4:
		return strings.Compare(stringValue(a), stringValue(b))
	case 8:
		oa, ob := a.ObjectID(), b.ObjectID()
		return bytes.Compare(oa[:], ob[:])
	case 9:
		x, y := a.Boolean(), b.Boolean()
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case 10:
		x, y := a.DateTime(), b.DateTime()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	default:
		return bytes.Compare(a.Value, b.Value)
	}
}

func numeric(v bson.RawValue) float64 {
	switch v.Type {
	case bson.TypeInt32:
		return float64(v.Int32())
	case bson.TypeInt64:
		return float64(v.Int64())
	case bson.TypeDouble:
		return v.Double()
	case bson.TypeDecimal128:
		f, err := strconv.ParseFloat(v.Decimal128().String(), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func stringValue(v bson.RawValue) string {
	if v.Type == bson.TypeSymbol {
		return v.Symbol()
	}
	return v.StringValue()
}

// sortDocuments orders docs by keys. Missing fields sort as null, i.e.
// first when ascending. Equal documents keep their store order.
func sortDocuments(docs []bson.Raw, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			a, _ := lookupPath(docs[i], k.Field)
			b, _ := lookupPath(docs[j], k.Field)
			cmp := compareValues(a, b)
			if cmp == 0 {
				continue
			}
			if k.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

// indexKey renders the values of fields as a comparable string. Missing
// fields index as null, as in a non-sparse MongoDB index.
func indexKey(doc bson.Raw, fields []string) string {
	var b strings.Builder
	for _, f := range fields {
		fv, found := lookupPath(doc, f)
		if !found || fv.Type == bson.TypeUndefined {
			fv = bson.RawValue{Type: bson.TypeNull}
		}
		b.WriteByte(byte(fv.Type))
		b.Write(fv.Value)
		b.WriteByte(0)
	}
	return b.String()
}

// checkUnique verifies _id and every unique index across docs.
func checkUnique(docs []bson.Raw, uniques [][]string) error {
	indexes := append([][]string{{IDField}}, uniques...)
	for _, fields := range indexes {
		seen := make(map[string]struct{}, len(docs))
		for _, d := range docs {
			k := indexKey(d, fields)
			if _, dup := seen[k]; dup {
				return fmt.Errorf("%w: duplicate key on %s", ErrConflict, strings.Join(fields, ","))
			}
			seen[k] = struct{}{}
		}
	}
	return nil
}

// applySet returns doc with set assigned.
func applySet(doc bson.Raw, set bson.D) (bson.Raw, error) {
	var fields bson.D
	if err := bson.Unmarshal(doc, &fields); err != nil {
		return nil, err
	}
	return bson.Marshal(setFields(fields, set))
}

// project keeps _id and the listed top-level fields.
func project(doc bson.Raw, fields []string) (bson.Raw, error) {
	if len(fields) == 0 {
		return doc, nil
	}
	keep := map[string]bool{IDField: true}
	for _, f := range fields {
		keep[f] = true
	}
	elems, err := doc.Elements()
	if err != nil {
		return nil, err
	}
	out := bson.D{}
	for _, e := range elems {
		if keep[e.Key()] {
			out = append(out, bson.E{Key: e.Key(), Value: e.Value()})
		}
	}
	return bson.Marshal(out)
}
