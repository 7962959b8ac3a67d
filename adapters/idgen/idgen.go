// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/docmodel/ports"
	"github.com/google/uuid"
)

// UUID generates random v4 UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

var _ ports.IDGenerator = UUID{}

// Sequential generates prefix1, prefix2, ... for deterministic tests.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Reset restarts the sequence.
func (s *Sequential) Reset() {
	s.counter.Store(0)
}

var _ ports.IDGenerator = (*Sequential)(nil)

// Generator adapts g to a default-value generator. Each call yields a new ID.
func Generator(g ports.IDGenerator) func() any {
	return func() any { return g.New() }
}
