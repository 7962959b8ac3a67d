package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/artpar/docmodel/core/schema"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatList formats a list of records as a table.
func (f *TableFormatter) FormatList(w io.Writer, model string, records []schema.Document, opts FormatOptions) error {
	if len(records) == 0 {
		fmt.Fprintf(w, "No %s documents found.\n", model)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	// Determine columns
	columns := f.resolveColumns(records, opts.Columns)

	// Print header
	if !opts.NoHeader {
		var headers []string
		for _, col := range columns {
			headers = append(headers, strings.ToUpper(col))
		}
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}

	// Print rows
	for _, record := range records {
		var values []string
		for _, col := range columns {
			val := f.formatValue(record[col], opts.MaxWidth)
			values = append(values, val)
		}
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}

	return tw.Flush()
}

// FormatRecord formats a single record as key-value pairs.
func (f *TableFormatter) FormatRecord(w io.Writer, model string, record schema.Document, opts FormatOptions) error {
	if record == nil {
		fmt.Fprintf(w, "No %s found.\n", model)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	// Determine columns
	columns := f.resolveColumns([]schema.Document{record}, opts.Columns)

	for _, col := range columns {
		label := f.formatLabel(col)
		val := f.formatValue(record[col], 0) // No truncation for detail view
		fmt.Fprintf(tw, "%s:\t%s\n", label, val)
	}

	return tw.Flush()
}

// FormatError formats an error message, one line per validation failure.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	if verr, ok := schema.AsValidationError(err); ok {
		fmt.Fprintln(w, "Error: validation failed")
		for _, fl := range verr.Failures {
			fmt.Fprintf(w, "  - %s\n", fl.Error())
		}
		return nil
	}
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

// resolveColumns determines which columns to display.
func (f *TableFormatter) resolveColumns(records []schema.Document, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}

	// Default: every key present in any record, sorted
	seen := make(map[string]bool)
	var columns []string
	for _, record := range records {
		for k := range record {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

// formatLabel formats a field name as a label.
func (f *TableFormatter) formatLabel(name string) string {
	// Convert snake_case to Title Case
	words := strings.Split(name, "_")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
	case bool:
		if v {
			str = "yes"
		} else {
			str = "no"
		}
	case int, int64:
		str = fmt.Sprintf("%d", v)
	case float64:
		// Check if it's a whole number
		if v == float64(int64(v)) {
			str = fmt.Sprintf("%d", int64(v))
		} else {
			str = fmt.Sprintf("%.2f", v)
		}
	default:
		b, _ := json.Marshal(v)
		str = string(b)
	}

	// Truncate if needed
	if maxWidth > 0 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}

	return str
}

func init() {
	Register(NewTableFormatter())
}
