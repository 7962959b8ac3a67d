package main

import (
	"fmt"
	"strings"

	"github.com/artpar/docmodel/core/schema"
	"github.com/spf13/cobra"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models [model]",
		Short: "List models, or describe one model's fields",
		Example: `  docmodel models
  docmodel models User -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			out := cmd.OutOrStdout()

			if len(args) == 0 {
				var records []schema.Document
				for _, m := range app.Registry.Models() {
					records = append(records, schema.Document{
						"name":       m.Name(),
						"collection": m.CollectionName(),
						"fields":     strings.Join(m.Engine().Fields(), ", "),
					})
				}
				return f.FormatList(out, "model", records, opts.formatOptions())
			}

			m, err := app.Model(args[0])
			if err != nil {
				return err
			}

			var records []schema.Document
			for _, fs := range m.Engine().Describe() {
				rec := schema.Document{"field": fs.Name, "required": fs.Required}
				if len(fs.Enum) > 0 {
					rec["enum"] = fs.Enum
				}
				switch {
				case fs.Generated:
					rec["default"] = "(generated)"
				case fs.Default != nil:
					rec["default"] = fs.Default
				}
				records = append(records, rec)
			}
			if f.Name() == "table" {
				fmt.Fprintf(out, "%s (collection %s)\n\n", m.Name(), m.CollectionName())
			}
			return f.FormatList(out, "field", records, opts.formatOptions())
		},
	}
}
