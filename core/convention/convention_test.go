package convention

import "testing"

func TestCollectionName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"User", "users"},
		{"Asset", "assets"},
		{"Action", "actions"},
		{"Person", "people"},
		{"Category", "categories"},
		{"Address", "addresses"},
		{"Status", "statuses"},
		{"  Invoice ", "invoices"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CollectionName(tt.name); got != tt.want {
				t.Errorf("CollectionName(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestPluralize(t *testing.T) {
	tests := []struct {
		singular string
		plural   string
	}{
		// regular
		{"user", "users"},
		{"order", "orders"},
		{"key", "keys"},
		{"day", "days"},
		// sibilants
		{"bus", "buses"},
		{"class", "classes"},
		{"box", "boxes"},
		{"match", "matches"},
		{"dish", "dishes"},
		// consonant + y
		{"city", "cities"},
		{"policy", "policies"},
		// f / fe
		{"leaf", "leaves"},
		{"knife", "knives"},
		{"roof", "roofs"},
		// irregular and uncountable
		{"child", "children"},
		{"mouse", "mice"},
		{"schema", "schemas"},
		{"sheep", "sheep"},
		{"metadata", "metadata"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.singular, func(t *testing.T) {
			if got := Pluralize(tt.singular); got != tt.plural {
				t.Errorf("Pluralize(%q) = %q, want %q", tt.singular, got, tt.plural)
			}
		})
	}
}
