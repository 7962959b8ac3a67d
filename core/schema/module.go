package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Module is a model definition as written in YAML.
//
//	model: User
//	fields:
//	  id:    { required: true }
//	  roles: { enum: [ADMIN, MODERATOR] }
//	  color: { default: blue }
//	  token: { generate: uuid }
type Module struct {
	// Name is the display name of the model (e.g., "User").
	// The collection name is derived by convention.
	Name string `yaml:"model"`

	// Fields maps field names to their declarations.
	Fields map[string]Field `yaml:"fields"`

	// Description for documentation.
	Description string `yaml:"description,omitempty"`
}

// Field is the YAML form of a FieldRule.
type Field struct {
	Required bool  `yaml:"required,omitempty"`
	Enum     []any `yaml:"enum,omitempty"`

	// Default is a literal default value.
	Default any `yaml:"default,omitempty"`

	// Generate names a generator from Generators used as the default.
	Generate string `yaml:"generate,omitempty"`
}

// Generators maps generator names to zero-argument value functions.
type Generators map[string]func() any

// Names returns the registered generator names, sorted.
func (g Generators) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition converts the module's fields into a Definition, resolving
// generator names against gens.
func (m Module) Definition(gens Generators) (Definition, error) {
	def := make(Definition, len(m.Fields))
	var errs []string

	for name, f := range m.Fields {
		fr := FieldRule{Required: f.Required, Enum: f.Enum}

		switch {
		case f.Generate != "":
			gen, ok := gens[f.Generate]
			if !ok {
				errs = append(errs, fmt.Sprintf("field %q: unknown generator %q", name, f.Generate))
				continue
			}
			fr.Default = Generator(gen)
		case f.Default != nil:
			fr.Default = Literal(f.Default)
		}

		def[name] = fr
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("model %q:\n  - %s", m.Name, strings.Join(errs, "\n  - "))
	}
	return def, nil
}

// Engine builds the schema engine for the module.
func (m Module) Engine(gens Generators) (*Engine, error) {
	def, err := m.Definition(gens)
	if err != nil {
		return nil, err
	}
	return New(def), nil
}
