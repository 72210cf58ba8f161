// Package mongodb wraps the MongoDB driver with lifecycle management,
// per-operation timeouts and the handful of collection calls the document
// repository engine needs.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Adapter provides MongoDB connectivity.
type Adapter struct {
	client   *mongo.Client
	database string
	logger   logger.Logger
	timeout  time.Duration
	mu       sync.RWMutex
	closed   bool
}

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	MaxPoolSize      uint64
}

// NewAdapter connects and pings the primary. It does not create
// collections or indexes.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mongodb URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(cfg.URL)
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	return &Adapter{
		client:   client,
		database: cfg.Database,
		logger:   log,
		timeout:  cfg.OperationTimeout,
	}, nil
}

func (a *Adapter) Client() *mongo.Client {
	return a.client
}

func (a *Adapter) Database() *mongo.Database {
	return a.client.Database(a.database)
}

func (a *Adapter) Collection(name string) *mongo.Collection {
	return a.Database().Collection(name)
}

func (a *Adapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return fmt.Errorf("mongodb adapter is closed")
	}
	return a.client.Ping(ctx, readpref.Primary())
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

func (a *Adapter) InsertOne(ctx context.Context, collection string, doc any) (*mongo.InsertOneResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).InsertOne(opCtx, doc)
}

func (a *Adapter) InsertMany(ctx context.Context, collection string, docs []any) (*mongo.InsertManyResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).InsertMany(opCtx, docs)
}

// FindAll decodes every document matched by filter into results, which
// must be a pointer to a slice.
func (a *Adapter) FindAll(ctx context.Context, collection string, filter any, results any, opts ...*options.FindOptions) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	cur, err := a.Collection(collection).Find(opCtx, filter, opts...)
	if err != nil {
		return err
	}
	return cur.All(opCtx, results)
}

// AggregateAll runs pipeline and decodes every output document into results.
func (a *Adapter) AggregateAll(ctx context.Context, collection string, pipeline mongo.Pipeline, results any) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	cur, err := a.Collection(collection).Aggregate(opCtx, pipeline)
	if err != nil {
		return err
	}
	return cur.All(opCtx, results)
}

func (a *Adapter) CountDocuments(ctx context.Context, collection string, filter any) (int64, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).CountDocuments(opCtx, filter)
}

func (a *Adapter) UpdateMany(ctx context.Context, collection string, filter, update any) (*mongo.UpdateResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).UpdateMany(opCtx, filter, update)
}

func (a *Adapter) ReplaceOne(ctx context.Context, collection string, filter, replacement any) (*mongo.UpdateResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).ReplaceOne(opCtx, filter, replacement)
}

func (a *Adapter) DeleteMany(ctx context.Context, collection string, filter any) (*mongo.DeleteResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).DeleteMany(opCtx, filter)
}

// FindOneAndUpdate returns the document after the update, or nil when
// nothing matched.
func (a *Adapter) FindOneAndUpdate(ctx context.Context, collection string, filter, update any) (bson.Raw, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	res := a.Collection(collection).FindOneAndUpdate(opCtx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	raw, err := res.Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// InsertIfAbsent upserts doc through $setOnInsert so the match-or-insert
// decision is a single atomic write. It returns the matching document, or
// nil when doc was inserted.
func (a *Adapter) InsertIfAbsent(ctx context.Context, collection string, filter, doc any) (bson.Raw, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	res := a.Collection(collection).FindOneAndUpdate(opCtx, filter,
		bson.D{{Key: "$setOnInsert", Value: doc}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before))
	raw, err := res.Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// EnsureUniqueIndexes creates one unique index per field list. Index names
// are derived from the fields so repeated calls are idempotent.
func (a *Adapter) EnsureUniqueIndexes(ctx context.Context, collection string, indexes [][]string) error {
	if len(indexes) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, fields := range indexes {
		keys := bson.D{}
		for _, f := range fields {
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
		models = append(models, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetUnique(true).SetName("uniq_" + strings.Join(fields, "_")),
		})
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	if _, err := a.Collection(collection).Indexes().CreateMany(opCtx, models); err != nil {
		return err
	}
	a.logger.Debug("MongoDB unique indexes ensured", "collection", collection, "count", len(models))
	return nil
}

// WithTransaction runs fn inside a session transaction. The context passed
// to fn carries the session, so adapter calls made with it join the
// transaction. Requires a replica set or sharded cluster.
func (a *Adapter) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := a.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start mongodb session: %w", err)
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return err
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
