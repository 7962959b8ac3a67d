// Package model binds a schema engine to a named collection. A Model
// shapes documents on the way in and out and refuses to write anything
// that fails validation.
package model

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/docmodel/core/convention"
	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
	"github.com/rs/zerolog"
)

// Operation names reported to observers.
const (
	OpFind      = "find"
	OpFindOne   = "find_one"
	OpInsert    = "insert"
	OpAggregate = "aggregate"
)

// Outcomes reported to observers.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Observer receives one call per model operation.
type Observer interface {
	ObserveOperation(model, op, outcome string, d time.Duration)
	ObserveValidation(model string, failures []schema.Failure)
}

// Model is the facade for one document type.
type Model struct {
	name       string
	collection string
	engine     *schema.Engine
	db         storage.Resolver

	logger   zerolog.Logger
	observer Observer
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// WithObserver sets the operation observer.
func WithObserver(o Observer) Option {
	return func(m *Model) { m.observer = o }
}

// New creates a model named name. The collection name is derived from it.
func New(name string, engine *schema.Engine, db storage.Resolver, opts ...Option) *Model {
	m := &Model{
		name:       name,
		collection: convention.CollectionName(name),
		engine:     engine,
		db:         db,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("model", name).Logger()
	return m
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// CollectionName returns the backing collection name.
func (m *Model) CollectionName() string {
	return m.collection
}

// Engine returns the schema engine.
func (m *Model) Engine() *schema.Engine {
	return m.engine
}

// New shapes input into an entity: declared fields only, defaults applied.
func (m *Model) New(input schema.Document) schema.Document {
	return m.engine.New(input)
}

// Validate checks doc without storing it.
func (m *Model) Validate(ctx context.Context, doc schema.Document) (schema.Document, error) {
	out, err := m.engine.Validate(ctx, doc)
	if verr, ok := schema.AsValidationError(err); ok && m.observer != nil {
		m.observer.ObserveValidation(m.name, verr.Failures)
	}
	return out, err
}

// Collection resolves the storage handle and returns this model's
// collection.
func (m *Model) Collection(ctx context.Context) (storage.Collection, error) {
	db, err := m.db.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(ctx, m.collection)
}

// Find returns every matching document shaped as an entity.
func (m *Model) Find(ctx context.Context, filter storage.Filter) (docs []schema.Document, err error) {
	start := time.Now()
	defer func() { m.report(OpFind, start, outcome(err)) }()

	c, err := m.Collection(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	docs = make([]schema.Document, len(raw))
	for i, r := range raw {
		docs[i] = m.engine.New(r)
	}
	m.logger.Debug().Int("count", len(docs)).Msg("find")
	return docs, nil
}

// FindOne returns the first matching document shaped as an entity.
// found is false, with a nil error, when nothing matches.
func (m *Model) FindOne(ctx context.Context, filter storage.Filter) (doc schema.Document, found bool, err error) {
	start := time.Now()
	defer func() {
		o := outcome(err)
		if err == nil && !found {
			o = OutcomeNotFound
		}
		m.report(OpFindOne, start, o)
	}()

	c, err := m.Collection(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.FindOne(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		m.logger.Debug().Msg("find one: not found")
		return nil, false, nil
	}
	return m.engine.New(raw), true, nil
}

// Insert validates doc and stores it. A document that fails validation is
// returned as a *schema.ValidationError before storage is touched.
func (m *Model) Insert(ctx context.Context, doc schema.Document) (_ schema.Document, err error) {
	start := time.Now()
	defer func() { m.report(OpInsert, start, outcome(err)) }()

	if _, err = m.Validate(ctx, doc); err != nil {
		m.logger.Debug().Err(err).Msg("insert rejected")
		return nil, err
	}

	c, err := m.Collection(ctx)
	if err != nil {
		return nil, err
	}
	if err = c.Insert(ctx, doc); err != nil {
		return nil, err
	}
	m.logger.Debug().Msg("insert")
	return doc, nil
}

// Aggregate runs pipeline and returns the backend's documents as is.
func (m *Model) Aggregate(ctx context.Context, pipeline storage.Pipeline) (docs []schema.Document, err error) {
	start := time.Now()
	defer func() { m.report(OpAggregate, start, outcome(err)) }()

	c, err := m.Collection(ctx)
	if err != nil {
		return nil, err
	}
	docs, err = c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	m.logger.Debug().Str("pipeline", pipeline.String()).Int("count", len(docs)).Msg("aggregate")
	return docs, nil
}

func (m *Model) report(op string, start time.Time, o string) {
	if m.observer != nil {
		m.observer.ObserveOperation(m.name, op, o, time.Since(start))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, schema.ErrValidation):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
