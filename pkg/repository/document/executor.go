package document

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Query is a read request as seen by an Executor.
type Query struct {
	Collection string
	Where      Clause
	Sort       []SortKey
	Skip       int64
	// Limit of zero means no cap.
	Limit int64
	// Projection lists the fields to return besides _id; empty returns all.
	Projection []string
	// Links are joined in place before projection.
	Links []LinkSpec
}

// Executor is the storage boundary of the engine. Implementations translate
// clauses for a backend and move raw BSON documents in and out. Uniqueness
// violations are reported wrapping ErrConflict.
type Executor interface {
	Count(ctx context.Context, collection string, where Clause) (int64, error)
	Find(ctx context.Context, q Query) ([]bson.Raw, error)
	InsertOne(ctx context.Context, collection string, doc any) error
	InsertMany(ctx context.Context, collection string, docs []any) error
	// UpdateMany sets fields on every match and returns how many changed.
	UpdateMany(ctx context.Context, collection string, where Clause, set bson.D) (int64, error)
	// ReplaceOne overwrites the document with id and returns how many matched.
	ReplaceOne(ctx context.Context, collection string, id primitive.ObjectID, doc any) (int64, error)
	DeleteMany(ctx context.Context, collection string, where Clause) (int64, error)
	// FindOneAndUpdate sets fields on the first match and returns it after
	// the update, or nil when nothing matched.
	FindOneAndUpdate(ctx context.Context, collection string, where Clause, set bson.D) (bson.Raw, error)
	// InsertIfAbsent inserts doc unless a document matches where, as one
	// atomic step. It returns the first match, or nil when doc was inserted.
	InsertIfAbsent(ctx context.Context, collection string, where Clause, doc bson.D) (bson.Raw, error)
	EnsureIndexes(ctx context.Context, collection string, unique [][]string) error
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
