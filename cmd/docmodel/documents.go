package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/artpar/docmodel/core/formatter"
	"github.com/artpar/docmodel/core/model"
	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
	"github.com/spf13/cobra"
)

// filterFlags are shared by find and find-one.
type filterFlags struct {
	where  []string
	filter string
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&ff.where, "where", "w", nil, "field=value equality (repeatable; value parsed as JSON when possible)")
	cmd.Flags().StringVar(&ff.filter, "filter", "", `filter as a JSON object, e.g. '{"roles":"ADMIN"}'`)
}

func (ff *filterFlags) build() (storage.Filter, error) {
	filter := storage.Filter{}
	if ff.filter != "" {
		if err := json.Unmarshal([]byte(ff.filter), &filter); err != nil {
			return nil, fmt.Errorf("invalid --filter: %w", err)
		}
	}
	for _, w := range ff.where {
		field, value, err := parseWhere(w)
		if err != nil {
			return nil, err
		}
		filter[field] = value
	}
	return filter, nil
}

// parseWhere splits field=value. Values that parse as JSON (numbers,
// booleans, null, quoted strings) are used as such; anything else is a
// plain string.
func parseWhere(expr string) (string, any, error) {
	field, raw, ok := strings.Cut(expr, "=")
	if !ok || field == "" {
		return "", nil, fmt.Errorf("invalid --where %q: want field=value", expr)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return field, raw, nil
	}
	switch v.(type) {
	case map[string]any, []any:
		return field, raw, nil
	}
	return field, v, nil
}

// readInput returns args[i] or, when it is absent or "-", standard input.
func readInput(cmd *cobra.Command, args []string, i int) ([]byte, error) {
	if len(args) > i && args[i] != "-" {
		return []byte(args[i]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

func readDocument(cmd *cobra.Command, args []string, i int) (schema.Document, error) {
	data, err := readInput(cmd, args, i)
	if err != nil {
		return nil, err
	}
	var doc schema.Document
	if err := json.Unmarshal(bytes.TrimSpace(data), &doc); err != nil {
		return nil, fmt.Errorf("invalid document JSON: %w", err)
	}
	if doc == nil {
		doc = schema.Document{}
	}
	return doc, nil
}

// withModel opens the app, looks up the named model and runs fn.
func withModel(cmd *cobra.Command, opts *rootOptions, name string, fn func(ctx context.Context, m *model.Model) error) error {
	app, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	m, err := app.Model(name)
	if err != nil {
		return err
	}
	return fn(cmd.Context(), m)
}

func newFindCmd(opts *rootOptions) *cobra.Command {
	ff := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "find <model>",
		Short: "List documents matching a filter",
		Example: `  docmodel find User
  docmodel find User --where roles=ADMIN --where age=25
  docmodel find User --filter '{"roles":null}' -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			filter, err := ff.build()
			if err != nil {
				return err
			}
			return withModel(cmd, opts, args[0], func(ctx context.Context, m *model.Model) error {
				docs, err := m.Find(ctx, filter)
				if err != nil {
					return err
				}
				return f.FormatList(cmd.OutOrStdout(), m.Name(), docs, opts.formatOptions())
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newFindOneCmd(opts *rootOptions) *cobra.Command {
	ff := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "find-one <model>",
		Short: "Show the first document matching a filter",
		Example: `  docmodel find-one User --where id=u1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			filter, err := ff.build()
			if err != nil {
				return err
			}
			return withModel(cmd, opts, args[0], func(ctx context.Context, m *model.Model) error {
				doc, found, err := m.FindOne(ctx, filter)
				if err != nil {
					return err
				}
				if err := f.FormatRecord(cmd.OutOrStdout(), m.Name(), doc, opts.formatOptions()); err != nil {
					return err
				}
				if !found {
					return errReported
				}
				return nil
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newInsertCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "insert <model> [json|-]",
		Short: "Shape, validate and store a document",
		Long: `Insert a document into the model's collection.

The document is first shaped: declared fields are copied and defaults
filled in. Pass --raw to validate and store it exactly as given.
Without a JSON argument (or with "-") the document is read from stdin.`,
		Example: `  docmodel insert User '{"id":"u1","roles":"ADMIN"}'
  echo '{"id":"u2"}' | docmodel insert User`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, args, 1)
			if err != nil {
				return err
			}
			return withModel(cmd, opts, args[0], func(ctx context.Context, m *model.Model) error {
				if !raw {
					doc = m.New(doc)
				}
				stored, err := m.Insert(ctx, doc)
				if err != nil {
					return report(cmd, f, err)
				}
				return f.FormatRecord(cmd.OutOrStdout(), m.Name(), stored, opts.formatOptions())
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "skip shaping; store the document as given")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "validate <model> [json|-]",
		Short: "Check a document against a model without storing it",
		Example: `  docmodel validate User '{"id":"u1","roles":"GUEST"}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd, args, 1)
			if err != nil {
				return err
			}
			return withModel(cmd, opts, args[0], func(ctx context.Context, m *model.Model) error {
				if !raw {
					doc = m.New(doc)
				}
				valid, err := m.Validate(ctx, doc)
				if err != nil {
					return report(cmd, f, err)
				}
				return f.FormatRecord(cmd.OutOrStdout(), m.Name(), valid, opts.formatOptions())
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "skip shaping; validate the document as given")
	return cmd
}

func newAggregateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <model> [pipeline|-]",
		Short: "Run an aggregation pipeline",
		Long: `Run an aggregation pipeline over the model's collection.

Stages: $match, $sort, $skip, $limit, $project, $count.
Without a pipeline argument (or with "-") it is read from stdin.`,
		Example: `  docmodel aggregate User '[{"$match":{"roles":"ADMIN"}},{"$count":"admins"}]'
  docmodel aggregate User '[{"$sort":{"age":-1}},{"$limit":3},{"$project":{"name":1}}]'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args, 1)
			if err != nil {
				return err
			}
			pipeline, err := storage.ParsePipeline(data)
			if err != nil {
				return err
			}
			return withModel(cmd, opts, args[0], func(ctx context.Context, m *model.Model) error {
				docs, err := m.Aggregate(ctx, pipeline)
				if err != nil {
					return err
				}
				return f.FormatList(cmd.OutOrStdout(), m.Name(), docs, opts.formatOptions())
			})
		},
	}
}

// report renders validation failures through the formatter. Other errors
// are returned for the caller to print.
func report(cmd *cobra.Command, f formatter.Formatter, err error) error {
	if _, ok := schema.AsValidationError(err); !ok {
		return err
	}
	if ferr := f.FormatError(cmd.OutOrStdout(), err); ferr != nil {
		return ferr
	}
	return fmt.Errorf("%w: %v", errReported, err)
}
