package document

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Link is a reference to a document of type T stored as its ObjectID.
// When read with link resolution the referenced document is decoded into
// Doc; otherwise Doc is nil.
type Link[T any] struct {
	ID  primitive.ObjectID
	Doc *T
}

// LinkTo references an existing document.
func LinkTo[T any](id primitive.ObjectID) Link[T] {
	return Link[T]{ID: id}
}

// Resolved reports whether Doc was populated.
func (l Link[T]) Resolved() bool { return l.Doc != nil }

// MarshalBSONValue stores only the reference.
func (l Link[T]) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if l.ID.IsZero() {
		return bson.TypeNull, nil, nil
	}
	return bson.MarshalValue(l.ID)
}

// UnmarshalBSONValue accepts either a bare ObjectID or the joined document.
func (l *Link[T]) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeNull, bson.TypeUndefined:
		*l = Link[T]{}
	case bson.TypeObjectID:
		*l = Link[T]{ID: raw.ObjectID()}
	case bson.TypeEmbeddedDocument:
		doc := raw.Document()
		id, ok := doc.Lookup(IDField).ObjectIDOK()
		if !ok {
			return fmt.Errorf("document: linked document has no ObjectID")
		}
		var target T
		if err := bson.Unmarshal(doc, &target); err != nil {
			return fmt.Errorf("document: decode linked document: %w", err)
		}
		*l = Link[T]{ID: id, Doc: &target}
	default:
		return fmt.Errorf("document: cannot decode link from bson %s", t)
	}
	return nil
}

// MarshalJSON renders the resolved document, or the hex id when unresolved.
func (l Link[T]) MarshalJSON() ([]byte, error) {
	if l.Doc != nil {
		return json.Marshal(l.Doc)
	}
	if l.ID.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(l.ID.Hex())
}
