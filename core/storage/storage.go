// Package storage defines the document database capability models are
// written against. Backends live in adapters/memory and adapters/sqlite.
package storage

import (
	"context"

	"github.com/artpar/docmodel/core/schema"
)

// Filter selects documents whose top-level fields equal the given values.
// A nil value matches documents where the field is absent or nil.
// An empty filter matches every document.
type Filter map[string]any

// Collection is a named bucket of documents.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Find returns every document matching filter, in insertion order.
	Find(ctx context.Context, filter Filter) ([]schema.Document, error)

	// FindOne returns the first matching document, or nil when none match.
	FindOne(ctx context.Context, filter Filter) (schema.Document, error)

	// Insert stores a copy of doc.
	Insert(ctx context.Context, doc schema.Document) error

	// Aggregate runs pipeline over the collection.
	Aggregate(ctx context.Context, pipeline Pipeline) ([]schema.Document, error)
}

// Database hands out collections by name.
type Database interface {
	// Collection returns the named collection, creating it on first use.
	Collection(ctx context.Context, name string) (Collection, error)

	// Close releases the underlying connection.
	Close() error
}
