package schema

// Document is a plain key/value document as stored in a collection.
// Entities produced by Assign are Documents too.
type Document map[string]any

// FieldRule declares the shaping and validation rules for one field.
// Attributes combine freely: a field may be required, enumerated and
// defaulted at the same time.
type FieldRule struct {
	// Required fails validation when the value is absent or nil.
	Required bool

	// Enum lists the allowed values in declaration order.
	// A nil slice means the field is not enumerated.
	Enum []any

	// Default is injected by Assign when the input lacks the field.
	Default *Default
}

// Definition maps field names to their rules.
type Definition map[string]FieldRule

// defaultKind tags the variant held by a Default.
type defaultKind int

const (
	defaultLiteral defaultKind = iota
	defaultGenerator
)

// Default is either a literal value or a zero-argument generator.
// Build one with Literal or Generator.
type Default struct {
	kind  defaultKind
	value any
	gen   func() any
}

// Literal returns a default that copies v as-is.
func Literal(v any) *Default {
	return &Default{kind: defaultLiteral, value: v}
}

// Generator returns a default that calls fn on every Assign.
func Generator(fn func() any) *Default {
	return &Default{kind: defaultGenerator, gen: fn}
}

// IsGenerator reports whether the default is produced by a generator.
func (d *Default) IsGenerator() bool {
	return d.kind == defaultGenerator
}

// Resolve returns the value to inject. Literal maps and slices are
// copied so entities never share them.
func (d *Default) Resolve() any {
	switch d.kind {
	case defaultGenerator:
		return d.gen()
	default:
		return DeepCopy(d.value)
	}
}

// clone copies the definition so later changes to the caller's map
// (or its Enum slices) never reach a constructed Engine.
func (def Definition) clone() Definition {
	out := make(Definition, len(def))
	for name, rule := range def {
		if rule.Enum != nil {
			rule.Enum = append([]any(nil), rule.Enum...)
		}
		out[name] = rule
	}
	return out
}
