package formatter

import (
	"fmt"
	"io"

	"github.com/artpar/docmodel/core/schema"
	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// Description returns the formatter description.
func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

// FormatList formats a list of records as YAML.
func (f *YAMLFormatter) FormatList(w io.Writer, model string, records []schema.Document, opts FormatOptions) error {
	filtered := projectAll(records, opts.Columns)

	output := map[string]any{
		"model": model,
		"count": len(filtered),
		"data":  toMaps(filtered),
	}
	return f.encode(w, output)
}

// FormatRecord formats a single record as YAML.
func (f *YAMLFormatter) FormatRecord(w io.Writer, model string, record schema.Document, opts FormatOptions) error {
	var data any
	if record != nil {
		data = map[string]any(project(record, opts.Columns))
	}
	output := map[string]any{
		"model": model,
		"data":  data,
	}
	return f.encode(w, output)
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	if verr, ok := schema.AsValidationError(err); ok {
		failures := make([]map[string]any, len(verr.Failures))
		for i, fl := range verr.Failures {
			failures[i] = map[string]any{
				"field":   fl.Field,
				"kind":    string(fl.Kind),
				"message": fl.Message,
			}
		}
		output["failures"] = failures
	}
	return f.encode(w, output)
}

// encode writes YAML to the writer.
func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(data)
}

// toMaps drops the named type so the encoder emits plain mappings.
func toMaps(records []schema.Document) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

func init() {
	if err := Register(NewYAMLFormatter()); err != nil {
		fmt.Printf("failed to register yaml formatter: %v\n", err)
	}
}
