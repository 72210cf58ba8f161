package document

import (
	"context"
	"fmt"

	mongostore "github.com/nimburion/eventsvc/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBExecutor runs engine requests through the store/mongodb adapter.
type MongoDBExecutor struct {
	adapter *mongostore.Adapter
}

// NewMongoDBExecutor creates a new MongoDBExecutor instance.
func NewMongoDBExecutor(adapter *mongostore.Adapter) (*MongoDBExecutor, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	return &MongoDBExecutor{adapter: adapter}, nil
}

func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (e *MongoDBExecutor) Count(ctx context.Context, collection string, where Clause) (int64, error) {
	n, err := e.adapter.CountDocuments(ctx, collection, ToBSON(where))
	return n, mapMongoError(err)
}

func (e *MongoDBExecutor) Find(ctx context.Context, q Query) ([]bson.Raw, error) {
	var out []bson.Raw
	if len(q.Links) == 0 {
		opts := options.Find()
		if len(q.Sort) > 0 {
			opts.SetSort(sortDocument(q.Sort))
		}
		if q.Skip > 0 {
			opts.SetSkip(q.Skip)
		}
		if q.Limit > 0 {
			opts.SetLimit(q.Limit)
		}
		if len(q.Projection) > 0 {
			opts.SetProjection(projectionDocument(q.Projection))
		}
		if err := e.adapter.FindAll(ctx, q.Collection, ToBSON(q.Where), &out, opts); err != nil {
			return nil, mapMongoError(err)
		}
		return out, nil
	}

	if err := e.adapter.AggregateAll(ctx, q.Collection, findPipeline(q), &out); err != nil {
		return nil, mapMongoError(err)
	}
	return out, nil
}

// findPipeline mirrors Find options as an aggregation so links can be
// joined with $lookup. A dangling reference keeps its stored id.
func findPipeline(q Query) mongo.Pipeline {
	p := mongo.Pipeline{{{Key: "$match", Value: ToBSON(q.Where)}}}
	if len(q.Sort) > 0 {
		p = append(p, bson.D{{Key: "$sort", Value: sortDocument(q.Sort)}})
	}
	if q.Skip > 0 {
		p = append(p, bson.D{{Key: "$skip", Value: q.Skip}})
	}
	if q.Limit > 0 {
		p = append(p, bson.D{{Key: "$limit", Value: q.Limit}})
	}
	for _, l := range q.Links {
		tmp := "__link_" + l.Field
		p = append(p,
			bson.D{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: l.Collection},
				{Key: "localField", Value: l.Field},
				{Key: "foreignField", Value: IDField},
				{Key: "as", Value: tmp},
			}}},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: l.Field, Value: bson.D{{Key: "$ifNull", Value: bson.A{
					bson.D{{Key: "$arrayElemAt", Value: bson.A{"$" + tmp, 0}}},
					"$" + l.Field,
				}}}},
			}}},
			bson.D{{Key: "$unset", Value: tmp}},
		)
	}
	if len(q.Projection) > 0 {
		p = append(p, bson.D{{Key: "$project", Value: projectionDocument(q.Projection)}})
	}
	return p
}

func sortDocument(keys []SortKey) bson.D {
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if !k.Ascending {
			dir = -1
		}
		out = append(out, bson.E{Key: k.Field, Value: dir})
	}
	return out
}

func projectionDocument(fields []string) bson.D {
	out := make(bson.D, 0, len(fields))
	for _, f := range fields {
		out = append(out, bson.E{Key: f, Value: 1})
	}
	return out
}

func (e *MongoDBExecutor) InsertOne(ctx context.Context, collection string, doc any) error {
	_, err := e.adapter.InsertOne(ctx, collection, doc)
	return mapMongoError(err)
}

func (e *MongoDBExecutor) InsertMany(ctx context.Context, collection string, docs []any) error {
	_, err := e.adapter.InsertMany(ctx, collection, docs)
	return mapMongoError(err)
}

func (e *MongoDBExecutor) UpdateMany(ctx context.Context, collection string, where Clause, set bson.D) (int64, error) {
	res, err := e.adapter.UpdateMany(ctx, collection, ToBSON(where), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return 0, mapMongoError(err)
	}
	return res.ModifiedCount, nil
}

func (e *MongoDBExecutor) ReplaceOne(ctx context.Context, collection string, id primitive.ObjectID, doc any) (int64, error) {
	res, err := e.adapter.ReplaceOne(ctx, collection, bson.D{{Key: IDField, Value: id}}, doc)
	if err != nil {
		return 0, mapMongoError(err)
	}
	return res.MatchedCount, nil
}

func (e *MongoDBExecutor) DeleteMany(ctx context.Context, collection string, where Clause) (int64, error) {
	res, err := e.adapter.DeleteMany(ctx, collection, ToBSON(where))
	if err != nil {
		return 0, mapMongoError(err)
	}
	return res.DeletedCount, nil
}

func (e *MongoDBExecutor) FindOneAndUpdate(ctx context.Context, collection string, where Clause, set bson.D) (bson.Raw, error) {
	raw, err := e.adapter.FindOneAndUpdate(ctx, collection, ToBSON(where), bson.D{{Key: "$set", Value: set}})
	return raw, mapMongoError(err)
}

func (e *MongoDBExecutor) InsertIfAbsent(ctx context.Context, collection string, where Clause, doc bson.D) (bson.Raw, error) {
	if _, pinned := EqualityFields(where)[IDField]; pinned {
		// The filter already fixes _id for the inserted document.
		doc = withoutField(doc, IDField)
	}
	raw, err := e.adapter.InsertIfAbsent(ctx, collection, ToBSON(where), doc)
	return raw, mapMongoError(err)
}

func withoutField(doc bson.D, field string) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if e.Key != field {
			out = append(out, e)
		}
	}
	return out
}

func (e *MongoDBExecutor) EnsureIndexes(ctx context.Context, collection string, unique [][]string) error {
	return mapMongoError(e.adapter.EnsureUniqueIndexes(ctx, collection, unique))
}

func (e *MongoDBExecutor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.adapter.WithTransaction(ctx, fn)
}
