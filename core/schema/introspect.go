package schema

// FieldSchema describes one declared field for introspection.
type FieldSchema struct {
	Name      string `json:"name" yaml:"name"`
	Required  bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Enum      []any  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Default   any    `json:"default,omitempty" yaml:"default,omitempty"`
	Generated bool   `json:"generated,omitempty" yaml:"generated,omitempty"` // default produced per call
}

// Describe lists the declared fields in sorted order. Generated defaults
// are reported by flag only; their generators are not invoked.
func (e *Engine) Describe() []FieldSchema {
	out := make([]FieldSchema, 0, len(e.fields))
	for _, name := range e.fields {
		fr := e.def[name]
		fs := FieldSchema{Name: name, Required: fr.Required, Enum: fr.Enum}
		if d := fr.Default; d != nil {
			if d.IsGenerator() {
				fs.Generated = true
			} else {
				fs.Default = d.Resolve()
			}
		}
		out = append(out, fs)
	}
	return out
}
