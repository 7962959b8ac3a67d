// Package formatter renders documents for the command line.
// Formatters are looked up by name (table, json, yaml).
package formatter

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/artpar/docmodel/core/schema"
)

// Formatter converts structured data to a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// FormatList formats the documents returned for model.
	FormatList(w io.Writer, model string, records []schema.Document, opts FormatOptions) error

	// FormatRecord formats a single document. A nil record means not found.
	FormatRecord(w io.Writer, model string, record schema.Document, opts FormatOptions) error

	// FormatError formats an error.
	FormatError(w io.Writer, err error) error
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Columns specifies which fields to include (nil = all).
	Columns []string

	// NoHeader disables header row for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (for json/yaml).
	Compact bool

	// MaxWidth truncates long values (0 = no limit).
	MaxWidth int
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "table",
	}
}

// Register adds a formatter to the registry.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}

	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[name]
	return f, ok
}

// Default returns the default formatter.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[r.defaultFmt]
	if !ok {
		// Fall back to the first name in sorted order
		if names := r.names(); len(names) > 0 {
			return r.formatters[names[0]]
		}
		return nil
	}
	return f
}

// List returns all registered formatter names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(f Formatter) error {
	return DefaultRegistry.Register(f)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, bool) {
	return DefaultRegistry.Get(name)
}

// Default returns the default formatter from the default registry.
func Default() Formatter {
	return DefaultRegistry.Default()
}

// List returns all formatter names from the default registry.
func List() []string {
	return DefaultRegistry.List()
}

// project keeps only columns of record. With no columns it returns record.
func project(record schema.Document, columns []string) schema.Document {
	if len(columns) == 0 || record == nil {
		return record
	}
	out := make(schema.Document, len(columns))
	for _, col := range columns {
		if val, ok := record[col]; ok {
			out[col] = val
		}
	}
	return out
}

func projectAll(records []schema.Document, columns []string) []schema.Document {
	out := make([]schema.Document, len(records))
	for i, record := range records {
		out[i] = project(record, columns)
	}
	return out
}
