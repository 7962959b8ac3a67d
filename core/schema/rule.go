package schema

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// ruleKind tags a derived validation rule.
type ruleKind int

const (
	ruleRequired ruleKind = iota
	ruleEnum
)

func (k ruleKind) String() string {
	switch k {
	case ruleRequired:
		return string(FailureRequired)
	case ruleEnum:
		return string(FailureEnum)
	default:
		return "unknown"
	}
}

// rule is one (field, kind) pair derived from a FieldRule attribute.
type rule struct {
	field   string
	kind    ruleKind
	allowed []any // ruleEnum only
}

// check evaluates the rule against doc. It only reads doc.
// ctx is unused by the current rule kinds.
func (r rule) check(_ context.Context, doc Document) *Failure {
	value := doc[r.field]

	switch r.kind {
	case ruleRequired:
		if value == nil {
			return &Failure{Field: r.field, Kind: FailureRequired, Message: "field is required"}
		}
	case ruleEnum:
		if value == nil {
			return nil
		}
		for _, allowed := range r.allowed {
			if Equal(value, allowed) {
				return nil
			}
		}
		return &Failure{
			Field:   r.field,
			Kind:    FailureEnum,
			Value:   value,
			Message: "must be one of: " + joinValues(r.allowed),
		}
	}
	return nil
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, ", ")
}

// Equal compares two document values. Numbers of any Go numeric type
// compare by value. Lists and string-keyed maps compare element by
// element regardless of their Go type, so []string{"a"} equals
// []any{"a"}. Everything else uses deep equality.
func Equal(a, b any) bool {
	if af, ok := ToFloat64(a); ok {
		if bf, ok := ToFloat64(b); ok {
			return af == bf
		}
		return false
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case isList(av) && isList(bv):
		if av.Len() != bv.Len() {
			return false
		}
		for i := 0; i < av.Len(); i++ {
			if !Equal(av.Index(i).Interface(), bv.Index(i).Interface()) {
				return false
			}
		}
		return true
	case isObject(av) && isObject(bv):
		if av.Len() != bv.Len() {
			return false
		}
		keyType := bv.Type().Key()
		iter := av.MapRange()
		for iter.Next() {
			bval := bv.MapIndex(reflect.ValueOf(iter.Key().String()).Convert(keyType))
			if !bval.IsValid() || !Equal(iter.Value().Interface(), bval.Interface()) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isList(v reflect.Value) bool {
	return v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array)
}

func isObject(v reflect.Value) bool {
	return v.IsValid() && v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String
}

// ToFloat64 converts the Go numeric types to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

