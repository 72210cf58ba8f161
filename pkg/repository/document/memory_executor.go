package document

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memCollection struct {
	docs    []bson.Raw
	uniques [][]string
}

type memTxKey struct{}

// MemoryExecutor keeps collections in process and evaluates clauses with
// MongoDB semantics. Writes are atomic per call. WithTransaction restores
// the pre-transaction state when fn fails; it serializes transactions but
// does not isolate them from concurrent non-transactional writers.
type MemoryExecutor struct {
	mu          sync.RWMutex
	txMu        sync.Mutex
	collections map[string]*memCollection
}

func NewMemoryExecutor() *MemoryExecutor {
	return &MemoryExecutor{collections: map[string]*memCollection{}}
}

// collection returns the named collection, creating it. Callers hold mu.
func (e *MemoryExecutor) collection(name string) *memCollection {
	c, ok := e.collections[name]
	if !ok {
		c = &memCollection{}
		e.collections[name] = c
	}
	return c
}

func (e *MemoryExecutor) Count(ctx context.Context, collection string, where Clause) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	match, err := buildMatcher(where)
	if err != nil {
		return 0, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var n int64
	for _, d := range e.collection0(collection) {
		if match(d) {
			n++
		}
	}
	return n, nil
}

// collection0 reads a collection without creating it. Callers hold mu.
func (e *MemoryExecutor) collection0(name string) []bson.Raw {
	if c, ok := e.collections[name]; ok {
		return c.docs
	}
	return nil
}

func (e *MemoryExecutor) Find(ctx context.Context, q Query) ([]bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	match, err := buildMatcher(q.Where)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []bson.Raw
	for _, d := range e.collection0(q.Collection) {
		if match(d) {
			out = append(out, d)
		}
	}
	sortDocuments(out, q.Sort)

	if q.Skip > 0 {
		if q.Skip >= int64(len(out)) {
			return []bson.Raw{}, nil
		}
		out = out[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < int64(len(out)) {
		out = out[:q.Limit]
	}

	result := make([]bson.Raw, 0, len(out))
	for _, d := range out {
		if len(q.Links) > 0 {
			if d, err = e.resolveLinks(d, q.Links); err != nil {
				return nil, err
			}
		}
		if d, err = project(d, q.Projection); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// resolveLinks replaces each reference with the referenced document.
// Dangling references are left as they are. Callers hold mu.
func (e *MemoryExecutor) resolveLinks(doc bson.Raw, links []LinkSpec) (bson.Raw, error) {
	var fields bson.D
	if err := bson.Unmarshal(doc, &fields); err != nil {
		return nil, err
	}
	for _, l := range links {
		ref, ok := doc.Lookup(l.Field).ObjectIDOK()
		if !ok {
			continue
		}
		target := e.byID(l.Collection, ref)
		if target == nil {
			continue
		}
		fields = setFields(fields, bson.D{{Key: l.Field, Value: target}})
	}
	return bson.Marshal(fields)
}

func (e *MemoryExecutor) byID(collection string, id primitive.ObjectID) bson.Raw {
	for _, d := range e.collection0(collection) {
		if got, ok := d.Lookup(IDField).ObjectIDOK(); ok && got == id {
			return d
		}
	}
	return nil
}

func (e *MemoryExecutor) InsertOne(ctx context.Context, collection string, doc any) error {
	return e.InsertMany(ctx, collection, []any{doc})
}

// InsertMany is all or nothing.
func (e *MemoryExecutor) InsertMany(ctx context.Context, collection string, docs []any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raws := make([]bson.Raw, 0, len(docs))
	for _, d := range docs {
		raw, err := encodeDocument(d)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.collection(collection)
	next := append(append(make([]bson.Raw, 0, len(c.docs)+len(raws)), c.docs...), raws...)
	if err := checkUnique(next, c.uniques); err != nil {
		return err
	}
	c.docs = next
	return nil
}

func encodeDocument(doc any) (bson.Raw, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if _, ok := bson.Raw(raw).Lookup(IDField).ObjectIDOK(); !ok {
		return nil, fmt.Errorf("%w: document has no ObjectID identity", ErrInvariant)
	}
	return raw, nil
}

func (e *MemoryExecutor) UpdateMany(ctx context.Context, collection string, where Clause, set bson.D) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	match, err := buildMatcher(where)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.collection(collection)
	next := make([]bson.Raw, len(c.docs))
	var modified int64
	for i, d := range c.docs {
		next[i] = d
		if !match(d) {
			continue
		}
		updated, err := applySet(d, set)
		if err != nil {
			return 0, fmt.Errorf("apply update: %w", err)
		}
		if !bytes.Equal(updated, d) {
			next[i] = updated
			modified++
		}
	}
	if err := checkUnique(next, c.uniques); err != nil {
		return 0, err
	}
	c.docs = next
	return modified, nil
}

func (e *MemoryExecutor) ReplaceOne(ctx context.Context, collection string, id primitive.ObjectID, doc any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := encodeDocument(doc)
	if err != nil {
		return 0, err
	}
	if got := raw.Lookup(IDField).ObjectID(); got != id {
		return 0, fmt.Errorf("%w: replacement changes the document identity", ErrInvariant)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.collection(collection)
	for i, d := range c.docs {
		if got, ok := d.Lookup(IDField).ObjectIDOK(); !ok || got != id {
			continue
		}
		next := append([]bson.Raw(nil), c.docs...)
		next[i] = raw
		if err := checkUnique(next, c.uniques); err != nil {
			return 0, err
		}
		c.docs = next
		return 1, nil
	}
	return 0, nil
}

func (e *MemoryExecutor) DeleteMany(ctx context.Context, collection string, where Clause) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	match, err := buildMatcher(where)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.collection(collection)
	next := make([]bson.Raw, 0, len(c.docs))
	for _, d := range c.docs {
		if !match(d) {
			next = append(next, d)
		}
	}
	deleted := int64(len(c.docs) - len(next))
	c.docs = next
	return deleted, nil
}

func (e *MemoryExecutor) FindOneAndUpdate(ctx context.Context, collection string, where Clause, set bson.D) (bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	match, err := buildMatcher(where)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.collection(collection)
	for i, d := range c.docs {
		if !match(d) {
			continue
		}
		updated, err := applySet(d, set)
		if err != nil {
			return nil, fmt.Errorf("apply update: %w", err)
		}
		next := append([]bson.Raw(nil), c.docs...)
		next[i] = updated
		if err := checkUnique(next, c.uniques); err != nil {
			return nil, err
		}
		c.docs = next
		return updated, nil
	}
	return nil, nil
}

func (e *MemoryExecutor) InsertIfAbsent(ctx context.Context, collection string, where Clause, doc bson.D) (bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	match, err := buildMatcher(where)
	if err != nil {
		return nil, err
	}
	raw, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.collection(collection)
	for _, d := range c.docs {
		if match(d) {
			return d, nil
		}
	}
	next := append(append(make([]bson.Raw, 0, len(c.docs)+1), c.docs...), raw)
	if err := checkUnique(next, c.uniques); err != nil {
		return nil, err
	}
	c.docs = next
	return nil, nil
}

// EnsureIndexes registers unique indexes, failing like an index build when
// existing documents already violate one.
func (e *MemoryExecutor) EnsureIndexes(ctx context.Context, collection string, unique [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.collection(collection)
	next := append([][]string(nil), c.uniques...)
	for _, idx := range unique {
		if !hasIndex(next, idx) {
			next = append(next, append([]string(nil), idx...))
		}
	}
	if err := checkUnique(c.docs, next); err != nil {
		return err
	}
	c.uniques = next
	return nil
}

func hasIndex(indexes [][]string, idx []string) bool {
	for _, existing := range indexes {
		if len(existing) != len(idx) {
			continue
		}
		same := true
		for i := range idx {
			if existing[i] != idx[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// WithTransaction runs fn and rolls every collection back if it fails.
// Nested calls join the outer transaction.
func (e *MemoryExecutor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()

	snapshot := e.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		e.restore(snapshot)
		return err
	}
	return nil
}

// snapshot copies slice headers only; stored documents are never mutated
// in place.
func (e *MemoryExecutor) snapshot() map[string]memCollection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]memCollection, len(e.collections))
	for name, c := range e.collections {
		out[name] = *c
	}
	return out
}

func (e *MemoryExecutor) restore(snapshot map[string]memCollection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections = make(map[string]*memCollection, len(snapshot))
	for name, c := range snapshot {
		c := c
		e.collections[name] = &c
	}
}

// Reset drops every collection.
func (e *MemoryExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections = map[string]*memCollection{}
}
