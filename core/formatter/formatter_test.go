package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/artpar/docmodel/core/schema"
	"gopkg.in/yaml.v3"
)

func createTestRecords() []schema.Document {
	return []schema.Document{
		{"id": "1", "name": "Ada", "roles": "ADMIN", "age": int64(36)},
		{"id": "2", "name": "Bob", "age": 25.0},
	}
}

// ===========================================
// Registry Tests
// ===========================================

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(NewJSONFormatter()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(NewJSONFormatter()); err == nil {
		t.Error("Register() duplicate should fail")
	}

	if _, ok := r.Get("json"); !ok {
		t.Error("Get(json) should find registered formatter")
	}
	if _, ok := r.Get("csv"); ok {
		t.Error("Get(csv) should not find unregistered formatter")
	}
}

func TestRegistry_Default(t *testing.T) {
	r := NewRegistry()
	if r.Default() != nil {
		t.Error("Default() on empty registry should be nil")
	}

	r.Register(NewYAMLFormatter())
	if got := r.Default().Name(); got != "yaml" {
		t.Errorf("Default() fallback = %s, want yaml", got)
	}

	r.Register(NewTableFormatter())
	if got := r.Default().Name(); got != "table" {
		t.Errorf("Default() = %s, want table", got)
	}
}

func TestGlobalRegistry(t *testing.T) {
	got := strings.Join(List(), ",")
	if got != "json,table,yaml" {
		t.Errorf("List() = %s, want json,table,yaml", got)
	}
	if Default().Name() != "table" {
		t.Errorf("Default() = %s, want table", Default().Name())
	}
}

// ===========================================
// Table Formatter Tests
// ===========================================

func TestTableFormatter_FormatList(t *testing.T) {
	f := NewTableFormatter()

	tests := []struct {
		name    string
		records []schema.Document
		opts    FormatOptions
		want    []string
		notWant []string
	}{
		{
			name:    "empty",
			records: nil,
			want:    []string{"No User documents found."},
		},
		{
			name:    "all columns sorted",
			records: createTestRecords(),
			want:    []string{"AGE", "ID", "NAME", "ROLES", "Ada", "36", "25", "-"},
		},
		{
			name:    "selected columns",
			records: createTestRecords(),
			opts:    FormatOptions{Columns: []string{"name"}},
			want:    []string{"NAME", "Ada", "Bob"},
			notWant: []string{"ROLES", "ADMIN"},
		},
		{
			name:    "no header",
			records: createTestRecords(),
			opts:    FormatOptions{NoHeader: true},
			notWant: []string{"NAME"},
		},
		{
			name:    "truncation",
			records: []schema.Document{{"note": "abcdefghijklmnop"}},
			opts:    FormatOptions{MaxWidth: 8},
			want:    []string{"abcde..."},
			notWant: []string{"abcdefghijklmnop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := f.FormatList(&buf, "User", tt.records, tt.opts); err != nil {
				t.Fatalf("FormatList() error = %v", err)
			}
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output should not contain %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestTableFormatter_FormatRecord(t *testing.T) {
	f := NewTableFormatter()

	var buf bytes.Buffer
	f.FormatRecord(&buf, "User", nil, FormatOptions{})
	if !strings.Contains(buf.String(), "No User found.") {
		t.Errorf("nil record output = %q", buf.String())
	}

	buf.Reset()
	f.FormatRecord(&buf, "User", schema.Document{"first_name": "Ada", "active": true}, FormatOptions{})
	out := buf.String()
	for _, w := range []string{"First Name:", "Ada", "Active:", "yes"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestTableFormatter_FormatError(t *testing.T) {
	f := NewTableFormatter()

	var buf bytes.Buffer
	f.FormatError(&buf, errors.New("boom"))
	if buf.String() != "Error: boom\n" {
		t.Errorf("FormatError() = %q", buf.String())
	}

	buf.Reset()
	verr := &schema.ValidationError{Failures: []schema.Failure{
		{Field: "id", Kind: schema.FailureRequired, Message: "field is required"},
	}}
	f.FormatError(&buf, verr)
	if !strings.Contains(buf.String(), "  - id: field is required") {
		t.Errorf("FormatError(validation) = %q", buf.String())
	}
}

func TestTableFormatter_FormatValue(t *testing.T) {
	f := NewTableFormatter()

	tests := []struct {
		val  any
		want string
	}{
		{nil, "-"},
		{"text", "text"},
		{true, "yes"},
		{false, "no"},
		{int64(42), "42"},
		{3.0, "3"},
		{3.14159, "3.14"},
		{[]any{"a", "b"}, `["a","b"]`},
	}
	for _, tt := range tests {
		if got := f.formatValue(tt.val, 0); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.val, got, tt.want)
		}
	}
}

// ===========================================
// JSON / YAML Formatter Tests
// ===========================================

func TestJSONFormatter_FormatList(t *testing.T) {
	f := NewJSONFormatter()

	var buf bytes.Buffer
	if err := f.FormatList(&buf, "User", createTestRecords(), FormatOptions{Columns: []string{"id"}, Compact: true}); err != nil {
		t.Fatalf("FormatList() error = %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("compact output spans lines: %q", buf.String())
	}

	var out struct {
		Model string           `json:"model"`
		Count int              `json:"count"`
		Data  []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Model != "User" || out.Count != 2 {
		t.Errorf("model/count = %s/%d, want User/2", out.Model, out.Count)
	}
	if len(out.Data[0]) != 1 || out.Data[0]["id"] != "1" {
		t.Errorf("data[0] = %v, want only id", out.Data[0])
	}
}

func TestJSONFormatter_FormatError(t *testing.T) {
	f := NewJSONFormatter()

	var buf bytes.Buffer
	verr := &schema.ValidationError{Failures: []schema.Failure{
		{Field: "roles", Kind: schema.FailureEnum, Value: "CAPTAIN", Message: "must be one of: ADMIN, MODERATOR"},
	}}
	f.FormatError(&buf, verr)

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	failures, ok := out["failures"].([]any)
	if !ok || len(failures) != 1 {
		t.Fatalf("failures = %v", out["failures"])
	}
	if failures[0].(map[string]any)["kind"] != "enum" {
		t.Errorf("failure kind = %v, want enum", failures[0])
	}
}

func TestYAMLFormatter_FormatRecord(t *testing.T) {
	f := NewYAMLFormatter()

	var buf bytes.Buffer
	if err := f.FormatRecord(&buf, "User", schema.Document{"id": "1", "name": "Ada"}, FormatOptions{}); err != nil {
		t.Fatalf("FormatRecord() error = %v", err)
	}

	var out struct {
		Model string         `yaml:"model"`
		Data  map[string]any `yaml:"data"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Model != "User" || out.Data["name"] != "Ada" {
		t.Errorf("decoded = %+v", out)
	}

	buf.Reset()
	f.FormatRecord(&buf, "User", nil, FormatOptions{})
	if !strings.Contains(buf.String(), "data: null") {
		t.Errorf("nil record output = %q", buf.String())
	}
}

func TestYAMLFormatter_FormatList(t *testing.T) {
	f := NewYAMLFormatter()

	var buf bytes.Buffer
	if err := f.FormatList(&buf, "User", createTestRecords(), FormatOptions{}); err != nil {
		t.Fatalf("FormatList() error = %v", err)
	}
	if !strings.Contains(buf.String(), "count: 2") || !strings.Contains(buf.String(), "name: Ada") {
		t.Errorf("output = %s", buf.String())
	}
}
