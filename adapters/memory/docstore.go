// Package memory provides an in-memory document database for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
)

// DB is an in-memory implementation of storage.Database.
type DB struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{collections: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it on first use.
func (db *DB) Collection(ctx context.Context, name string) (storage.Collection, error) {
	db.mu.RLock()
	c, ok := db.collections[name]
	db.mu.RUnlock()
	if ok {
		return c, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.collections[name]; ok {
		return c, nil
	}
	c = &Collection{name: name}
	db.collections[name] = c
	return c, nil
}

// Names returns the collections created so far.
func (db *DB) Names() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	return names
}

// Close is a no-op.
func (db *DB) Close() error {
	return nil
}

// Collection stores documents in insertion order.
type Collection struct {
	name string

	mu   sync.RWMutex
	docs []schema.Document
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Find returns copies of every matching document.
func (c *Collection) Find(ctx context.Context, filter storage.Filter) ([]schema.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []schema.Document
	for _, doc := range c.docs {
		if matches(doc, filter) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

// FindOne returns a copy of the first matching document, or nil.
func (c *Collection) FindOne(ctx context.Context, filter storage.Filter) (schema.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, doc := range c.docs {
		if matches(doc, filter) {
			return clone(doc), nil
		}
	}
	return nil, nil
}

// Insert stores a copy of doc.
func (c *Collection) Insert(ctx context.Context, doc schema.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = append(c.docs, clone(doc))
	return nil
}

// Aggregate evaluates pipeline over a snapshot of the collection.
func (c *Collection) Aggregate(ctx context.Context, pipeline storage.Pipeline) ([]schema.Document, error) {
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	docs := make([]schema.Document, len(c.docs))
	for i, doc := range c.docs {
		docs[i] = clone(doc)
	}
	c.mu.RUnlock()

	for _, stage := range pipeline {
		docs = apply(stage, docs)
	}
	return docs, nil
}

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// clone deep-copies doc so stored and returned documents share nothing.
func clone(doc schema.Document) schema.Document {
	out := make(schema.Document, len(doc))
	for k, v := range doc {
		out[k] = schema.DeepCopy(v)
	}
	return out
}

func matches(doc schema.Document, filter storage.Filter) bool {
	for field, want := range filter {
		got := doc[field]
		if want == nil {
			if got != nil {
				return false
			}
			continue
		}
		if !schema.Equal(got, want) {
			return false
		}
	}
	return true
}

var (
	_ storage.Database   = (*DB)(nil)
	_ storage.Collection = (*Collection)(nil)
)
