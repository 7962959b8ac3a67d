package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StageKind names an aggregation stage.
type StageKind string

const (
	StageMatch   StageKind = "$match"   // keep documents matching Filter
	StageSort    StageKind = "$sort"    // order by Field, Desc for descending
	StageSkip    StageKind = "$skip"    // drop the first N documents
	StageLimit   StageKind = "$limit"   // keep the first N documents
	StageProject StageKind = "$project" // keep only Fields
	StageCount   StageKind = "$count"   // replace everything with {Field: count}
)

// Stage is one step of a Pipeline. Which fields are meaningful depends on
// Kind; use the constructors below.
type Stage struct {
	Kind   StageKind
	Filter Filter
	Field  string
	Desc   bool
	N      int
	Fields []string
}

// Pipeline is an ordered list of stages applied to a collection.
type Pipeline []Stage

// Match keeps documents matching f.
func Match(f Filter) Stage { return Stage{Kind: StageMatch, Filter: f} }

// SortBy orders documents by field. Documents with equal keys keep their
// previous relative order.
func SortBy(field string, desc bool) Stage { return Stage{Kind: StageSort, Field: field, Desc: desc} }

// Skip drops the first n documents.
func Skip(n int) Stage { return Stage{Kind: StageSkip, N: n} }

// Limit keeps the first n documents.
func Limit(n int) Stage { return Stage{Kind: StageLimit, N: n} }

// Project keeps only the named top-level fields.
func Project(fields ...string) Stage { return Stage{Kind: StageProject, Fields: fields} }

// Count emits a single document {field: number of input documents}.
func Count(field string) Stage { return Stage{Kind: StageCount, Field: field} }

// Validate checks every stage for missing or out-of-range arguments.
func (p Pipeline) Validate() error {
	for i, s := range p {
		if err := s.validate(); err != nil {
			return fmt.Errorf("stage %d (%s): %w", i, s.Kind, err)
		}
	}
	return nil
}

func (s Stage) validate() error {
	switch s.Kind {
	case StageMatch:
		return nil
	case StageSort:
		if s.Field == "" {
			return fmt.Errorf("field is required")
		}
	case StageSkip:
		if s.N < 0 {
			return fmt.Errorf("must not be negative, got %d", s.N)
		}
	case StageLimit:
		if s.N <= 0 {
			return fmt.Errorf("must be positive, got %d", s.N)
		}
	case StageProject:
		if len(s.Fields) == 0 {
			return fmt.Errorf("at least one field is required")
		}
	case StageCount:
		if s.Field == "" {
			return fmt.Errorf("output field is required")
		}
	default:
		return fmt.Errorf("unknown stage")
	}
	return nil
}

// ParsePipeline decodes the JSON form of a pipeline:
//
//	[{"$match": {"roles": "ADMIN"}}, {"$sort": {"name": 1}}, {"$limit": 10}]
func ParsePipeline(data []byte) (Pipeline, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}

	p := make(Pipeline, 0, len(raw))
	for i, obj := range raw {
		if len(obj) != 1 {
			return nil, fmt.Errorf("stage %d: want exactly one operator, got %d", i, len(obj))
		}
		for op, arg := range obj {
			s, err := parseStage(StageKind(op), arg)
			if err != nil {
				return nil, fmt.Errorf("stage %d (%s): %w", i, op, err)
			}
			p = append(p, s)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseStage(kind StageKind, arg json.RawMessage) (Stage, error) {
	switch kind {
	case StageMatch:
		var f Filter
		if err := json.Unmarshal(arg, &f); err != nil {
			return Stage{}, err
		}
		return Match(f), nil

	case StageSort:
		var keys map[string]int
		if err := json.Unmarshal(arg, &keys); err != nil {
			return Stage{}, err
		}
		if len(keys) != 1 {
			return Stage{}, fmt.Errorf("want exactly one sort key, got %d", len(keys))
		}
		for field, dir := range keys {
			switch dir {
			case 1:
				return SortBy(field, false), nil
			case -1:
				return SortBy(field, true), nil
			default:
				return Stage{}, fmt.Errorf("direction for %q must be 1 or -1, got %d", field, dir)
			}
		}

	case StageSkip, StageLimit:
		var n int
		if err := json.Unmarshal(arg, &n); err != nil {
			return Stage{}, err
		}
		return Stage{Kind: kind, N: n}, nil

	case StageProject:
		var spec map[string]any
		if err := json.Unmarshal(arg, &spec); err != nil {
			return Stage{}, err
		}
		var fields []string
		for field, v := range spec {
			if !included(v) {
				return Stage{}, fmt.Errorf("only inclusion is supported, %q has %v", field, v)
			}
			fields = append(fields, field)
		}
		sort.Strings(fields)
		return Project(fields...), nil

	case StageCount:
		var field string
		if err := json.Unmarshal(arg, &field); err != nil {
			return Stage{}, err
		}
		return Count(field), nil
	}

	return Stage{}, fmt.Errorf("unsupported operator %q", kind)
}

func included(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x == 1
	default:
		return false
	}
}

// String renders the pipeline for logs.
func (p Pipeline) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = string(s.Kind)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
