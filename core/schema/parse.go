package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a model definition from a YAML file.
func ParseFile(path string) (Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Module{}, fmt.Errorf("read file %s: %w", path, err)
	}

	mod, err := Parse(data)
	if err != nil {
		return Module{}, fmt.Errorf("%s: %w", path, err)
	}
	return mod, nil
}

// Parse parses a model definition from YAML bytes.
func Parse(data []byte) (Module, error) {
	var mod Module
	if err := yaml.Unmarshal(data, &mod); err != nil {
		return Module{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Validate(mod); err != nil {
		return Module{}, fmt.Errorf("validate model %q: %w", mod.Name, err)
	}

	return mod, nil
}

// ParseDir parses all model definitions from a directory, including
// subdirectories. Files are read in lexical order.
func ParseDir(dir string) ([]Module, error) {
	var modules []Module

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			subModules, err := ParseDir(path)
			if err != nil {
				return nil, err
			}
			modules = append(modules, subModules...)
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		mod, err := ParseFile(path)
		if err != nil {
			return nil, err
		}

		modules = append(modules, mod)
	}

	return modules, nil
}

// Validate checks a model definition for structural problems.
// Generator names are checked later, when the Definition is built.
func Validate(mod Module) error {
	var errs []string

	if mod.Name == "" {
		errs = append(errs, "model name is required")
	} else if !IsIdentifier(mod.Name) {
		errs = append(errs, fmt.Sprintf("model name %q is not a valid identifier", mod.Name))
	}

	if len(mod.Fields) == 0 {
		errs = append(errs, "model must declare at least one field")
	}

	for name, field := range mod.Fields {
		if !IsIdentifier(name) {
			errs = append(errs, fmt.Sprintf("field name %q is not a valid identifier", name))
		}
		if err := validateField(name, field); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// validateField validates a single field declaration.
func validateField(name string, field Field) error {
	if field.Default != nil && field.Generate != "" {
		return fmt.Errorf("field %q: default and generate are mutually exclusive", name)
	}

	// yaml "enum: []" decodes to an empty, non-nil slice
	if field.Enum != nil && len(field.Enum) == 0 {
		return fmt.Errorf("field %q: enum requires at least one value", name)
	}

	if field.Default != nil && len(field.Enum) > 0 {
		found := false
		for _, v := range field.Enum {
			if Equal(v, field.Default) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("field %q: default %v is not an allowed enum value", name, field.Default)
		}
	}

	return nil
}

// IsIdentifier reports whether s is a letter or underscore followed by
// letters, digits or underscores.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
