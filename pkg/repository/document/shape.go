package document

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDField is the storage name of the document identity.
const IDField = "_id"

// Document is implemented by every stored type, usually by embedding Model.
type Document interface {
	GetID() primitive.ObjectID
	SetID(id primitive.ObjectID)
}

// Model carries the document identity. Embed it with `bson:",inline"`.
type Model struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id"`
}

func (m *Model) GetID() primitive.ObjectID   { return m.ID }
func (m *Model) SetID(id primitive.ObjectID) { m.ID = id }

// LinkSpec declares that Field holds a reference into Collection.
type LinkSpec struct {
	Field      string
	Collection string
}

// Shape describes a document type to the engine: where it lives, which
// fields it has and what optional capabilities it declares. It is built
// once per type and read-only afterwards.
type Shape struct {
	collection string
	fields     map[string]struct{}
	order      []string
	softDelete string
	links      []LinkSpec
	uniques    [][]string
}

// ShapeOption declares a capability on a Shape.
type ShapeOption func(*Shape)

// WithSoftDelete names the timestamp field stamped by soft deletes.
func WithSoftDelete(field string) ShapeOption {
	return func(s *Shape) {
		s.mustHave(field)
		s.softDelete = field
	}
}

// WithLink declares field as a reference resolvable against collection.
func WithLink(field, collection string) ShapeOption {
	return func(s *Shape) {
		s.mustHave(field)
		s.links = append(s.links, LinkSpec{Field: field, Collection: collection})
	}
}

// WithUniqueIndex declares a unique (compound) index.
func WithUniqueIndex(fields ...string) ShapeOption {
	return func(s *Shape) {
		for _, f := range fields {
			s.mustHave(f)
		}
		s.uniques = append(s.uniques, append([]string(nil), fields...))
	}
}

// NewShape reflects the bson field names of T. It panics on declarations
// naming fields T does not have, since those are programming errors.
func NewShape[T any](collection string, opts ...ShapeOption) *Shape {
	if collection == "" {
		panic("document: shape needs a collection name")
	}
	s := &Shape{collection: collection, fields: map[string]struct{}{}}
	collectFields(reflect.TypeOf((*T)(nil)).Elem(), s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func collectFields(t reflect.Type, s *Shape) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("document: %s is not a struct", t))
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("bson")
		if tag == "-" {
			continue
		}
		name, flags, _ := strings.Cut(tag, ",")
		if strings.Contains(flags, "inline") {
			collectFields(sf.Type, s)
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		if _, dup := s.fields[name]; dup {
			continue
		}
		s.fields[name] = struct{}{}
		s.order = append(s.order, name)
	}
}

func (s *Shape) mustHave(field string) {
	if !s.HasField(field) {
		panic(fmt.Sprintf("document: collection %q has no field %q", s.collection, field))
	}
}

func (s *Shape) Collection() string { return s.collection }

// HasField reports whether name is a top-level stored field.
func (s *Shape) HasField(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Fields returns the stored field names in declaration order.
func (s *Shape) Fields() []string { return append([]string(nil), s.order...) }

// SoftDeleteField returns the deleted-at field, if declared.
func (s *Shape) SoftDeleteField() (string, bool) {
	return s.softDelete, s.softDelete != ""
}

func (s *Shape) Links() []LinkSpec { return append([]LinkSpec(nil), s.links...) }

func (s *Shape) UniqueIndexes() [][]string {
	out := make([][]string, len(s.uniques))
	for i, u := range s.uniques {
		out[i] = append([]string(nil), u...)
	}
	return out
}

// ExcludeDeleted conjoins where with "not soft-deleted". Shapes without a
// soft-delete field return where unchanged.
func (s *Shape) ExcludeDeleted(where Clause) Clause {
	field, ok := s.SoftDeleteField()
	if !ok {
		return where
	}
	return AllOf(where, Eq(field, nil))
}
