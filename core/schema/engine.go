package schema

import (
	"context"
	"sort"
	"sync"
)

// Engine shapes and validates documents against a Definition.
// Rules are derived once in New; an Engine is safe for concurrent use.
type Engine struct {
	def    Definition
	fields []string
	rules  []rule
}

// New derives the validation rules for def. The definition is copied,
// so the caller may reuse or modify its map afterwards.
func New(def Definition) *Engine {
	e := &Engine{def: def.clone()}

	for name := range e.def {
		e.fields = append(e.fields, name)
	}
	sort.Strings(e.fields)

	for _, name := range e.fields {
		fr := e.def[name]
		if fr.Required {
			e.rules = append(e.rules, rule{field: name, kind: ruleRequired})
		}
		if fr.Enum != nil {
			e.rules = append(e.rules, rule{field: name, kind: ruleEnum, allowed: fr.Enum})
		}
	}

	return e
}

// Fields returns the declared field names in sorted order.
func (e *Engine) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Rule returns the declared rule for a field.
func (e *Engine) Rule(field string) (FieldRule, bool) {
	fr, ok := e.def[field]
	return fr, ok
}

// Assign copies the declared fields of input onto target, injecting
// defaults for declared fields the input lacks. Undeclared input keys are
// dropped. A key present in input with a nil value counts as present.
func (e *Engine) Assign(target, input Document) {
	for _, name := range e.fields {
		if v, ok := input[name]; ok {
			target[name] = v
			continue
		}
		if d := e.def[name].Default; d != nil {
			target[name] = d.Resolve()
		}
	}
}

// New shapes input onto a fresh document. It is the entity constructor
// used by models when mapping stored documents.
func (e *Engine) New(input Document) Document {
	doc := make(Document, len(e.fields))
	e.Assign(doc, input)
	return doc
}

// Validate evaluates every derived rule against doc and returns doc when
// all of them pass. Otherwise it returns a *ValidationError listing every
// failure in rule order. Rules run concurrently and only read doc.
func (e *Engine) Validate(ctx context.Context, doc Document) (Document, error) {
	failures := make([]*Failure, len(e.rules))

	var wg sync.WaitGroup
	for i, r := range e.rules {
		wg.Add(1)
		go func(i int, r rule) {
			defer wg.Done()
			failures[i] = r.check(ctx, doc)
		}(i, r)
	}
	wg.Wait()

	var verr *ValidationError
	for _, f := range failures {
		if f == nil {
			continue
		}
		if verr == nil {
			verr = &ValidationError{}
		}
		verr.Failures = append(verr.Failures, *f)
	}
	if verr != nil {
		return nil, verr
	}
	return doc, nil
}
