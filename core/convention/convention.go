// Package convention derives storage names from model display names.
package convention

import "strings"

// CollectionName returns the collection a model named name is stored in:
// the lower-cased, pluralized display name ("User" -> "users").
func CollectionName(name string) string {
	return Pluralize(strings.ToLower(strings.TrimSpace(name)))
}
