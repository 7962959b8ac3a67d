// Package clock provides Clock implementations and the timestamp generator
// used for "now" defaults.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/docmodel/ports"
)

// Real returns the actual current time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a clock that only moves when told to.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Fake)(nil)
)

// Timestamp adapts c to a default-value generator producing RFC 3339 UTC
// strings, which survive a JSON round trip unchanged in every backend.
func Timestamp(c ports.Clock) func() any {
	return func() any {
		return c.Now().UTC().Format(time.RFC3339Nano)
	}
}
