package document

import (
	"fmt"
	"strings"
)

// SortKey orders by one field.
type SortKey struct {
	Field     string
	Ascending bool
}

// Sort is an ordered, validated list of sort keys. The zero value means
// natural store order. Build one with Shape.Sort or Shape.SortFromOrder.
type Sort struct {
	keys []SortKey
}

func (s Sort) Keys() []SortKey { return append([]SortKey(nil), s.keys...) }
func (s Sort) IsZero() bool    { return len(s.keys) == 0 }

func (s Sort) String() string {
	parts := make([]string, len(s.keys))
	for i, k := range s.keys {
		dir := "asc"
		if !k.Ascending {
			dir = "desc"
		}
		parts[i] = k.Field + ":" + dir
	}
	return strings.Join(parts, ",")
}

// withTieBreaker appends _id so that equal keys order deterministically.
func (s Sort) withTieBreaker() []SortKey {
	if len(s.keys) == 0 {
		return nil
	}
	keys := s.Keys()
	for _, k := range keys {
		if k.Field == IDField {
			return keys
		}
	}
	return append(keys, SortKey{Field: IDField, Ascending: true})
}

// OrderItem is the wire form of one sort key.
type OrderItem struct {
	Column    string `json:"column"`
	Ascending *bool  `json:"ascending,omitempty"`
}

// Sort validates fields against the shape and pairs them with directions.
// ascending may be empty (all ascending), hold one flag applied to every
// key, or hold exactly one flag per key.
func (s *Shape) Sort(fields []string, ascending ...bool) (Sort, error) {
	if len(ascending) > 1 && len(ascending) != len(fields) {
		return Sort{}, fmt.Errorf("%w: %d directions for %d keys", ErrInvalidSort, len(ascending), len(fields))
	}
	keys := make([]SortKey, 0, len(fields))
	for i, f := range fields {
		if !s.HasField(f) {
			return Sort{}, fmt.Errorf("%w: unknown key %q on %s", ErrInvalidSort, f, s.collection)
		}
		asc := true
		switch len(ascending) {
		case 0:
		case 1:
			asc = ascending[0]
		default:
			asc = ascending[i]
		}
		keys = append(keys, SortKey{Field: f, Ascending: asc})
	}
	return Sort{keys: keys}, nil
}

// SortFromOrder builds a Sort from wire order items. A missing direction
// means ascending.
func (s *Shape) SortFromOrder(items []OrderItem) (Sort, error) {
	fields := make([]string, len(items))
	asc := make([]bool, len(items))
	for i, it := range items {
		fields[i] = it.Column
		asc[i] = it.Ascending == nil || *it.Ascending
	}
	return s.Sort(fields, asc...)
}

// ParseOrder parses "field:asc,other:desc" into order items. A key without
// a direction is ascending.
func ParseOrder(raw string) ([]OrderItem, error) {
	var items []OrderItem
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, _ := strings.Cut(part, ":")
		var asc bool
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
			asc = true
		case "desc":
			asc = false
		default:
			return nil, fmt.Errorf("%w: direction %q", ErrInvalidSort, dir)
		}
		items = append(items, OrderItem{Column: strings.TrimSpace(field), Ascending: &asc})
	}
	return items, nil
}
