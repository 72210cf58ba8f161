// Package document implements a generic repository engine for document
// stores: filter compilation into backend-neutral clauses, validated
// multi-key sorting, pagination, link resolution, soft and hard deletes
// and upserts, executed through a pluggable Executor.
package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/observability/metrics"
	"github.com/nimburion/eventsvc/pkg/observability/tracing"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Config carries the collaborators shared by all repositories.
type Config struct {
	Executor Executor
	// Clock defaults to time.Now in UTC.
	Clock   func() time.Time
	Logger  logger.Logger
	Metrics *metrics.StoreMetrics
	// System is reported on spans, e.g. "mongodb".
	System string
}

// Set lists field assignments by stored field name.
type Set map[string]any

// FindOptions describes a read. The zero value reads everything in
// natural order.
type FindOptions struct {
	// Where nil means "no constraint".
	Where        Clause
	Sort         Sort
	Skip         int64
	Limit        int64
	ResolveLinks bool
	Projection   []string
}

// Target selects the documents a mutation applies to. When Where is set it
// takes precedence and the mutation runs in bulk in the store; otherwise
// each of Docs is mutated in memory and saved.
type Target[P any] struct {
	Where Clause
	Docs  []P
}

// DeleteOption tunes Delete.
type DeleteOption func(*deleteOptions)

type deleteOptions struct {
	hard bool
}

// HardDelete removes documents instead of stamping the deleted-at field.
func HardDelete() DeleteOption {
	return func(o *deleteOptions) { o.hard = true }
}

// Repository is the engine bound to one document type. It holds no
// per-request state and is safe for concurrent use.
type Repository[T any, P interface {
	*T
	Document
}] struct {
	shape *Shape
	cfg   Config
	log   logger.Logger
}

// New binds a repository to shape.
func New[T any, P interface {
	*T
	Document
}](shape *Shape, cfg Config) (*Repository[T, P], error) {
	if shape == nil {
		return nil, fmt.Errorf("document shape is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("document executor is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Repository[T, P]{
		shape: shape,
		cfg:   cfg,
		log:   cfg.Logger.With("collection", shape.Collection()),
	}, nil
}

func (r *Repository[T, P]) Shape() *Shape { return r.shape }

func (r *Repository[T, P]) observe(ctx context.Context, name string, op tracing.SpanOperation) (context.Context, func(error)) {
	start := time.Now()
	opts := []tracing.SpanOption{tracing.WithDBCollection(r.shape.Collection())}
	if r.cfg.System != "" {
		opts = append(opts, tracing.WithDBSystem(r.cfg.System))
	}
	ctx, span := tracing.StartDatabaseSpan(ctx, op, opts...)
	return ctx, func(err error) {
		tracing.End(span, err)
		r.cfg.Metrics.Observe(r.shape.Collection(), name, time.Since(start), err)
		if err != nil {
			r.log.WithContext(ctx).Debug("document operation failed", "operation", name, "error", err)
		}
	}
}

// EnsureIndexes creates the unique indexes declared on the shape.
func (r *Repository[T, P]) EnsureIndexes(ctx context.Context) error {
	if err := r.cfg.Executor.EnsureIndexes(ctx, r.shape.Collection(), r.shape.UniqueIndexes()); err != nil {
		return fmt.Errorf("ensure indexes on %s: %w", r.shape.Collection(), err)
	}
	return nil
}

// WithTransaction runs fn in one store session when the backend supports it.
func (r *Repository[T, P]) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, done := r.observe(ctx, "transaction", tracing.SpanOperationDBTx)
	err := r.cfg.Executor.WithTransaction(ctx, fn)
	done(err)
	return err
}

// Count returns the number of documents matching where.
func (r *Repository[T, P]) Count(ctx context.Context, where Clause) (n int64, err error) {
	ctx, done := r.observe(ctx, "count", tracing.SpanOperationDBCount)
	defer func() { done(err) }()

	n, err = r.cfg.Executor.Count(ctx, r.shape.Collection(), where)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.shape.Collection(), err)
	}
	return n, nil
}

// Create inserts doc, assigning an identity when it has none.
func (r *Repository[T, P]) Create(ctx context.Context, doc P) (_ P, err error) {
	ctx, done := r.observe(ctx, "create", tracing.SpanOperationDBInsert)
	defer func() { done(err) }()

	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvariant)
	}
	if doc.GetID().IsZero() {
		doc.SetID(primitive.NewObjectID())
	}
	if err := r.cfg.Executor.InsertOne(ctx, r.shape.Collection(), doc); err != nil {
		return nil, fmt.Errorf("create %s: %w", r.shape.Collection(), err)
	}
	return doc, nil
}

// AddMany inserts docs in one round trip, assigning missing identities.
func (r *Repository[T, P]) AddMany(ctx context.Context, docs []P) (_ []P, err error) {
	ctx, done := r.observe(ctx, "add_many", tracing.SpanOperationDBInsert)
	defer func() { done(err) }()

	if len(docs) == 0 {
		return docs, nil
	}
	batch := make([]any, len(docs))
	for i, d := range docs {
		if d == nil {
			return nil, fmt.Errorf("%w: nil document at %d", ErrInvariant, i)
		}
		if d.GetID().IsZero() {
			d.SetID(primitive.NewObjectID())
		}
		batch[i] = d
	}
	if err := r.cfg.Executor.InsertMany(ctx, r.shape.Collection(), batch); err != nil {
		return nil, fmt.Errorf("add many %s: %w", r.shape.Collection(), err)
	}
	return docs, nil
}

// GetMany applies where, then sort, then skip, then limit.
func (r *Repository[T, P]) GetMany(ctx context.Context, opts FindOptions) (_ []P, err error) {
	ctx, done := r.observe(ctx, "get_many", tracing.SpanOperationDBQuery)
	defer func() { done(err) }()
	return r.find(ctx, opts)
}

// GetOne returns the first document GetMany would return, or nil.
func (r *Repository[T, P]) GetOne(ctx context.Context, opts FindOptions) (_ P, err error) {
	ctx, done := r.observe(ctx, "get_one", tracing.SpanOperationDBQuery)
	defer func() { done(err) }()

	opts.Limit = 1
	docs, err := r.find(ctx, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// GetUnique returns the single document matching where, nil when there is
// none, and ErrDataIntegrity when there are several.
func (r *Repository[T, P]) GetUnique(ctx context.Context, where Clause, resolveLinks bool) (_ P, err error) {
	ctx, done := r.observe(ctx, "get_unique", tracing.SpanOperationDBQuery)
	defer func() { done(err) }()

	docs, err := r.find(ctx, FindOptions{Where: where, Limit: 2, ResolveLinks: resolveLinks})
	if err != nil {
		return nil, err
	}
	switch len(docs) {
	case 0:
		return nil, nil
	case 1:
		return docs[0], nil
	default:
		return nil, fmt.Errorf("%w: more than one %s document matched a unique lookup", ErrDataIntegrity, r.shape.Collection())
	}
}

func (r *Repository[T, P]) find(ctx context.Context, opts FindOptions) ([]P, error) {
	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, fmt.Errorf("%w: negative skip or limit", ErrInvariant)
	}
	for _, f := range opts.Projection {
		if !r.shape.HasField(f) {
			return nil, fmt.Errorf("%w: unknown projection field %q", ErrInvariant, f)
		}
	}
	q := Query{
		Collection: r.shape.Collection(),
		Where:      opts.Where,
		Sort:       opts.Sort.withTieBreaker(),
		Skip:       opts.Skip,
		Limit:      opts.Limit,
		Projection: opts.Projection,
	}
	if opts.ResolveLinks {
		q.Links = r.linksFor(opts.Projection)
	}

	raws, err := r.cfg.Executor.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", r.shape.Collection(), err)
	}
	out := make([]P, 0, len(raws))
	for _, raw := range raws {
		doc := P(new(T))
		if err := bson.Unmarshal(raw, doc); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", r.shape.Collection(), err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// linksFor returns the declared links that survive projection.
func (r *Repository[T, P]) linksFor(projection []string) []LinkSpec {
	links := r.shape.Links()
	if len(projection) == 0 {
		return links
	}
	keep := make(map[string]bool, len(projection))
	for _, f := range projection {
		keep[f] = true
	}
	out := links[:0]
	for _, l := range links {
		if keep[l.Field] {
			out = append(out, l)
		}
	}
	return out
}

// Update assigns set on the target documents and returns how many were
// modified (clause target) or saved (document target). An empty set is a
// no-op returning 0. A target with neither clause nor documents is an
// ErrInvariant.
func (r *Repository[T, P]) Update(ctx context.Context, target Target[P], set Set) (n int64, err error) {
	ctx, done := r.observe(ctx, "update", tracing.SpanOperationDBUpdate)
	defer func() { done(err) }()

	if len(set) == 0 {
		return 0, nil
	}
	assignments, err := r.assignments(set)
	if err != nil {
		return 0, err
	}
	return r.apply(ctx, target, assignments)
}

// Delete removes the target documents. By default it soft-deletes: the
// shape's deleted-at field is stamped with the clock. A clause target is
// stamped with one instant shared by every match; a document target reads
// the clock once per document. Types without a deleted-at field fail with
// ErrCapability before anything is touched. HardDelete removes instead.
func (r *Repository[T, P]) Delete(ctx context.Context, target Target[P], opts ...DeleteOption) (n int64, err error) {
	ctx, done := r.observe(ctx, "delete", tracing.SpanOperationDBDelete)
	defer func() { done(err) }()

	var o deleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.hard {
		return r.hardDelete(ctx, target)
	}

	field, ok := r.shape.SoftDeleteField()
	if !ok {
		return 0, fmt.Errorf("%w: %s has no deleted-at field for soft delete", ErrCapability, r.shape.Collection())
	}
	if target.Where != nil {
		return r.apply(ctx, target, bson.D{{Key: field, Value: r.cfg.Clock()}})
	}
	if len(target.Docs) == 0 {
		return 0, fmt.Errorf("%w: delete needs a clause or documents", ErrInvariant)
	}
	var saved int64
	for _, doc := range target.Docs {
		c, err := r.saveWith(ctx, doc, bson.D{{Key: field, Value: r.cfg.Clock()}})
		saved += c
		if err != nil {
			return saved, err
		}
	}
	return saved, nil
}

func (r *Repository[T, P]) hardDelete(ctx context.Context, target Target[P]) (int64, error) {
	if target.Where != nil {
		n, err := r.cfg.Executor.DeleteMany(ctx, r.shape.Collection(), target.Where)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", r.shape.Collection(), err)
		}
		return n, nil
	}
	if len(target.Docs) == 0 {
		return 0, fmt.Errorf("%w: delete needs a clause or documents", ErrInvariant)
	}
	var deleted int64
	for _, doc := range target.Docs {
		if doc == nil || doc.GetID().IsZero() {
			return deleted, fmt.Errorf("%w: cannot delete a document without identity", ErrInvariant)
		}
		n, err := r.cfg.Executor.DeleteMany(ctx, r.shape.Collection(), Eq(IDField, doc.GetID()))
		if err != nil {
			return deleted, fmt.Errorf("delete %s %s: %w", r.shape.Collection(), doc.GetID().Hex(), err)
		}
		deleted += n
	}
	return deleted, nil
}

func (r *Repository[T, P]) apply(ctx context.Context, target Target[P], set bson.D) (int64, error) {
	if target.Where != nil {
		n, err := r.cfg.Executor.UpdateMany(ctx, r.shape.Collection(), target.Where, set)
		if err != nil {
			return 0, fmt.Errorf("update %s: %w", r.shape.Collection(), err)
		}
		return n, nil
	}
	if len(target.Docs) == 0 {
		return 0, fmt.Errorf("%w: update needs a clause or documents", ErrInvariant)
	}
	var saved int64
	for _, doc := range target.Docs {
		n, err := r.saveWith(ctx, doc, set)
		saved += n
		if err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// saveWith assigns set onto doc in memory and replaces the stored copy.
func (r *Repository[T, P]) saveWith(ctx context.Context, doc P, set bson.D) (int64, error) {
	if doc == nil || doc.GetID().IsZero() {
		return 0, fmt.Errorf("%w: cannot save a document without identity", ErrInvariant)
	}
	if err := assign[T, P](doc, set); err != nil {
		return 0, fmt.Errorf("assign %s fields: %w", r.shape.Collection(), err)
	}
	n, err := r.cfg.Executor.ReplaceOne(ctx, r.shape.Collection(), doc.GetID(), doc)
	if err != nil {
		return 0, fmt.Errorf("save %s %s: %w", r.shape.Collection(), doc.GetID().Hex(), err)
	}
	return n, nil
}

// UpsertOne applies set to the first document matching where. When none
// matches it inserts a document made of the equality constraints of where
// merged with setOnInsert; set is not applied to an inserted document.
//
// The match-or-insert decision is one atomic store write. Concurrent calls
// with the same clause insert once when the clause fields carry a unique
// index (MongoDB) or always (memory executor). Applying set to a match is a
// second write keyed by the matched identity. A unique-index conflict
// raised by a concurrent insert is absorbed by deciding once more.
func (r *Repository[T, P]) UpsertOne(ctx context.Context, where Clause, set, setOnInsert Set) (_ P, err error) {
	ctx, done := r.observe(ctx, "upsert_one", tracing.SpanOperationDBUpsert)
	defer func() { done(err) }()

	if where == nil {
		return nil, fmt.Errorf("%w: upsert needs a clause", ErrInvariant)
	}
	update, err := r.assignments(set)
	if err != nil {
		return nil, err
	}
	if _, err := r.assignments(setOnInsert); err != nil {
		return nil, err
	}
	doc, fields, err := r.insertDocument(where, setOnInsert)
	if err != nil {
		return nil, err
	}

	existing, err := r.cfg.Executor.InsertIfAbsent(ctx, r.shape.Collection(), where, fields)
	if errors.Is(err, ErrConflict) {
		r.log.WithContext(ctx).Debug("upsert raced with a concurrent insert, deciding again")
		existing, err = r.cfg.Executor.InsertIfAbsent(ctx, r.shape.Collection(), where, fields)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", r.shape.Collection(), err)
	}
	if existing == nil {
		return doc, nil
	}

	matched := P(new(T))
	if err := bson.Unmarshal(existing, matched); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", r.shape.Collection(), err)
	}
	if len(update) == 0 {
		return matched, nil
	}
	raw, err := r.cfg.Executor.FindOneAndUpdate(ctx, r.shape.Collection(), Eq(IDField, matched.GetID()), update)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", r.shape.Collection(), err)
	}
	if raw == nil {
		// Deleted between the two writes.
		return nil, nil
	}
	updated := P(new(T))
	if err := bson.Unmarshal(raw, updated); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", r.shape.Collection(), err)
	}
	return updated, nil
}

// insertDocument builds the document an upsert inserts, both typed and in
// its stored field order.
func (r *Repository[T, P]) insertDocument(where Clause, setOnInsert Set) (P, bson.D, error) {
	values := bson.M{}
	for k, v := range EqualityFields(where) {
		if r.shape.HasField(k) {
			values[k] = v
		}
	}
	for k, v := range setOnInsert {
		values[k] = v
	}
	raw, err := bson.Marshal(values)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encode upsert document: %v", ErrInvariant, err)
	}
	doc := P(new(T))
	if err := bson.Unmarshal(raw, doc); err != nil {
		return nil, nil, fmt.Errorf("%w: upsert values do not fit %s: %v", ErrInvariant, r.shape.Collection(), err)
	}
	if doc.GetID().IsZero() {
		doc.SetID(primitive.NewObjectID())
	}
	encoded, err := bson.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s document: %w", r.shape.Collection(), err)
	}
	var fields bson.D
	if err := bson.Unmarshal(encoded, &fields); err != nil {
		return nil, nil, fmt.Errorf("encode %s document: %w", r.shape.Collection(), err)
	}
	return doc, fields, nil
}

// assignments validates set against the shape and orders it by key.
func (r *Repository[T, P]) assignments(set Set) (bson.D, error) {
	keys := make([]string, 0, len(set))
	for k := range set {
		if k == IDField {
			return nil, fmt.Errorf("%w: the identity field cannot be assigned", ErrInvariant)
		}
		if !r.shape.HasField(k) {
			return nil, fmt.Errorf("%w: %s has no field %q", ErrInvariant, r.shape.Collection(), k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: set[k]})
	}
	return out, nil
}

// assign writes set onto doc by round-tripping it through BSON, so field
// names follow the stored representation.
func assign[T any, P interface {
	*T
	Document
}](doc P, set bson.D) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	var fields bson.D
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return err
	}
	fields = setFields(fields, set)
	merged, err := bson.Marshal(fields)
	if err != nil {
		return err
	}
	var fresh T
	if err := bson.Unmarshal(merged, &fresh); err != nil {
		return err
	}
	*doc = fresh
	return nil
}

// setFields replaces or appends each assignment, keeping field order.
func setFields(fields bson.D, set bson.D) bson.D {
	out := append(bson.D(nil), fields...)
	for _, e := range set {
		replaced := false
		for i := range out {
			if out[i].Key == e.Key {
				out[i].Value = e.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return out
}
