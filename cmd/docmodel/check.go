package main

import (
	"fmt"
	"os"

	"github.com/artpar/docmodel/bootstrap"
	"github.com/artpar/docmodel/config"
	"github.com/artpar/docmodel/core/registry"
	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
	"github.com/spf13/cobra"
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check configuration and model definitions before deployment",
		Long: `Check the docmodel configuration and every model definition.

Checks:
  - Config file is present, or DOCMODEL_* variables are set
  - Config values are valid
  - Every model definition parses
  - Generator names resolve and no two models share a collection

Storage is not opened.

Examples:
  docmodel check
  docmodel check --config /etc/docmodel/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			path, err := configSource(opts.configPath)
			if err != nil {
				fmt.Fprintf(out, "  %s Configuration found\n", crossMark)
				return err
			}
			if path == "" {
				fmt.Fprintf(out, "  %s Configuration found (environment)\n", checkMark)
			} else {
				fmt.Fprintf(out, "  %s Configuration found (%s)\n", checkMark, path)
			}

			var cfg *config.Config
			if path == "" {
				cfg, err = config.LoadFromEnv()
			} else {
				cfg, err = config.Load(path)
			}
			if err != nil {
				fmt.Fprintf(out, "  %s Config valid\n", crossMark)
				return fmt.Errorf("config error: %w", err)
			}
			fmt.Fprintf(out, "  %s Config valid\n", checkMark)
			fmt.Fprintf(out, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)

			if _, err := os.Stat(cfg.Models.Dir); err != nil {
				fmt.Fprintf(out, "  %s Models directory %s\n", crossMark, cfg.Models.Dir)
				return err
			}

			mods, err := schema.ParseDir(cfg.Models.Dir)
			if err != nil {
				fmt.Fprintf(out, "  %s Model definitions parse\n", crossMark)
				return err
			}
			fmt.Fprintf(out, "  %s Model definitions parse (%d)\n", checkMark, len(mods))

			never := storage.Defer(nil)
			models, err := registry.Build(mods, bootstrap.Generators(nil, nil), never)
			if err != nil {
				fmt.Fprintf(out, "  %s Models build\n", crossMark)
				return err
			}
			for _, m := range models {
				fmt.Fprintf(out, "  %s %s -> %s\n", checkMark, m.Name(), m.CollectionName())
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configuration is valid.")
			return nil
		},
	}
}
