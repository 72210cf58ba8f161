package document

import (
	"reflect"
	"sort"
	"strings"
)

var fieldFilterType = reflect.TypeOf((*FieldFilter)(nil)).Elem()

// Compile translates a filter object into a Clause for documents of shape.
//
// filter is a struct (or pointer to one) or a map[string]any. Attribute
// names come from the `filter` struct tag, falling back to the `json` tag.
// Attributes that name no field of shape are ignored, as are nil values and
// empty slices. Map values are otherwise always compiled, so 0, false and ""
// are equality constraints. Struct attributes of non-pointer type are
// absent when they hold their zero value; use a pointer field to filter on
// a zero value. FieldFilter values contribute their own clause, slices
// contribute an In and every other value an equality. The result is the conjunction of all
// contributions, or MatchAll when there are none. Compile never fails.
func Compile(filter any, shape *Shape) Clause {
	if filter == nil || shape == nil {
		return MatchAll()
	}
	if m, ok := filter.(map[string]any); ok {
		return compileMap(m, shape)
	}

	v := reflect.ValueOf(filter)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return MatchAll()
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return MatchAll()
	}

	var parts []Clause
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := filterName(sf)
		if name == "" || !shape.HasField(name) {
			continue
		}
		fv := v.Field(i)
		if absentStructField(fv) {
			continue
		}
		if c := valueClause(name, fv); c != nil {
			parts = append(parts, c)
		}
	}
	return AllOf(parts...)
}

func compileMap(m map[string]any, shape *Shape) Clause {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []Clause
	for _, k := range keys {
		if !shape.HasField(k) || m[k] == nil {
			continue
		}
		if c := valueClause(k, reflect.ValueOf(m[k])); c != nil {
			parts = append(parts, c)
		}
	}
	return AllOf(parts...)
}

// absentStructField reports a non-pointer struct attribute left at its zero
// value.
func absentStructField(fv reflect.Value) bool {
	switch fv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return false
	default:
		return fv.IsZero()
	}
}

// valueClause skips only nil references and empty slices.
func valueClause(field string, fv reflect.Value) Clause {
	if !fv.IsValid() || (fv.Kind() == reflect.Map && fv.IsNil()) {
		return nil
	}
	if fv.Type().Implements(fieldFilterType) {
		if fv.Kind() == reflect.Pointer && fv.IsNil() {
			return nil
		}
		return fv.Interface().(FieldFilter).FieldClause(field)
	}
	for fv.Kind() == reflect.Pointer || fv.Kind() == reflect.Interface {
		if fv.IsNil() {
			return nil
		}
		fv = fv.Elem()
		if fv.Type().Implements(fieldFilterType) {
			return fv.Interface().(FieldFilter).FieldClause(field)
		}
	}
	if fv.Kind() == reflect.Slice {
		if fv.IsNil() {
			return nil
		}
		if fv.Type().Elem().Kind() != reflect.Uint8 {
			if fv.Len() == 0 {
				return nil
			}
			return In(field, fv.Interface())
		}
	}
	return Eq(field, fv.Interface())
}

func filterName(sf reflect.StructField) string {
	for _, key := range []string{"filter", "json"} {
		tag, ok := sf.Tag.Lookup(key)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return strings.ToLower(sf.Name)
}
