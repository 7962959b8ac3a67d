package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Resolve after Close.
var ErrClosed = errors.New("storage handle closed")

// Resolver yields the Database models operate on.
type Resolver interface {
	Resolve(ctx context.Context) (Database, error)
}

// OpenFunc connects to a database.
type OpenFunc func(ctx context.Context) (Database, error)

// Deferred is a lazily opened Database handle. The first Resolve opens it;
// every later or concurrent Resolve returns the same handle, or the same
// error if opening failed. The composition root owns it and passes it to
// each model.
type Deferred struct {
	open OpenFunc

	mu       sync.Mutex
	resolved bool
	closed   bool
	db       Database
	err      error
}

// Defer returns a handle that calls open on first use.
func Defer(open OpenFunc) *Deferred {
	return &Deferred{open: open}
}

// Ready wraps an already open database.
func Ready(db Database) *Deferred {
	return &Deferred{resolved: true, db: db}
}

// Resolve opens the database on first call and returns the shared handle.
func (d *Deferred) Resolve(ctx context.Context) (Database, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if !d.resolved {
		d.db, d.err = d.open(ctx)
		d.resolved = true
	}
	return d.db, d.err
}

// Close closes the database if it was opened. Later Resolve calls fail
// with ErrClosed.
func (d *Deferred) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}
