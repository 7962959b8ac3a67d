// Package registry manages model registration and conflict detection.
// It ensures no two models share a name or a collection and provides
// lookup for the HTTP and CLI surfaces.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/docmodel/core/model"
	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
)

// Conflict is a name or collection claimed by more than one model.
type Conflict struct {
	Kind   string // "model" or "collection"
	Key    string
	Models []string
}

func (c Conflict) Error() string {
	return fmt.Sprintf("%s %q claimed by %s", c.Kind, c.Key, strings.Join(c.Models, ", "))
}

// ConflictError represents one or more conflicts.
type ConflictError struct {
	Conflicts []Conflict
}

// Error returns the conflict error message.
func (e *ConflictError) Error() string {
	msgs := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("model conflicts detected:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Registry holds the active set of models.
type Registry struct {
	mu sync.RWMutex

	// models by name
	models map[string]*model.Model

	// collections to model names
	collections map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		models:      make(map[string]*model.Model),
		collections: make(map[string]string),
	}
}

// Register adds m. It fails if the name or the collection is taken.
func (r *Registry) Register(m *model.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.Name()]; exists {
		return fmt.Errorf("model %q already registered", m.Name())
	}
	if existing, exists := r.collections[m.CollectionName()]; exists {
		return fmt.Errorf("collection %q already claimed by model %q", m.CollectionName(), existing)
	}

	r.models[m.Name()] = m
	r.collections[m.CollectionName()] = m.Name()
	return nil
}

// Get returns a registered model by name.
func (r *Registry) Get(name string) (*model.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	return m, ok
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the registered models sorted by name.
func (r *Registry) Models() []*model.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]*model.Model, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].Name() < models[j].Name()
	})
	return models
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Replace swaps the whole model set. On conflict the current set is kept
// and a *ConflictError lists every problem.
func (r *Registry) Replace(models []*model.Model) error {
	byName, byCollection, err := index(models)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = byName
	r.collections = byCollection
	return nil
}

// Build constructs a model for each module, all sharing db. Definition
// errors and conflicts are reported together.
func Build(mods []schema.Module, gens schema.Generators, db storage.Resolver, opts ...model.Option) ([]*model.Model, error) {
	var errs []string
	models := make([]*model.Model, 0, len(mods))

	for _, mod := range mods {
		engine, err := mod.Engine(gens)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		models = append(models, model.New(mod.Name, engine, db, opts...))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("build models:\n%s", strings.Join(errs, "\n"))
	}

	if _, _, err := index(models); err != nil {
		return nil, err
	}
	return models, nil
}

// index maps models by name and collection, collecting every conflict.
func index(models []*model.Model) (map[string]*model.Model, map[string]string, error) {
	names := make(map[string][]string)
	claims := make(map[string][]string)
	for _, m := range models {
		names[m.Name()] = append(names[m.Name()], m.Name())
		claims[m.CollectionName()] = append(claims[m.CollectionName()], m.Name())
	}

	var conflicts []Conflict
	for name, owners := range names {
		if len(owners) > 1 {
			conflicts = append(conflicts, Conflict{Kind: "model", Key: name, Models: owners})
		}
	}
	for coll, owners := range claims {
		if len(owners) > 1 {
			sort.Strings(owners)
			conflicts = append(conflicts, Conflict{Kind: "collection", Key: coll, Models: owners})
		}
	}
	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool {
			if conflicts[i].Kind != conflicts[j].Kind {
				return conflicts[i].Kind < conflicts[j].Kind
			}
			return conflicts[i].Key < conflicts[j].Key
		})
		return nil, nil, &ConflictError{Conflicts: conflicts}
	}

	byName := make(map[string]*model.Model, len(models))
	byCollection := make(map[string]string, len(models))
	for _, m := range models {
		byName[m.Name()] = m
		byCollection[m.CollectionName()] = m.Name()
	}
	return byName, byCollection, nil
}
