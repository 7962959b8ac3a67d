package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/artpar/docmodel/bootstrap"
	"github.com/artpar/docmodel/config"
	"github.com/artpar/docmodel/core/formatter"
	"github.com/spf13/cobra"
)

// errReported marks an error already written to the output by a formatter.
var errReported = errors.New("reported")

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	output     string
	columns    []string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "docmodel",
		Short: "Schema-validated document models over SQLite or memory",
		Long: `docmodel maps YAML model definitions onto document collections.

Each model declares its fields (required, enum, default, generated).
Documents are shaped and validated before they are written.

Quick start:
  docmodel models                       # List models
  docmodel insert User '{"id":"u1"}'    # Insert a document
  docmodel find User --where roles=ADMIN
  docmodel serve                        # Start the HTTP API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "docmodel.yaml", "config file path")
	flags.StringVarP(&opts.output, "output", "o", "", "output format ("+strings.Join(formatter.List(), ", ")+"; default "+formatter.Default().Name()+")")
	flags.StringSliceVar(&opts.columns, "columns", nil, "fields to show (default: all)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "write logs to stderr")

	cmd.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newModelsCmd(opts),
		newFindCmd(opts),
		newFindOneCmd(opts),
		newInsertCmd(opts),
		newValidateCmd(opts),
		newAggregateCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// configSource returns the config file to load, or "" to load from the
// environment when the file is absent.
func configSource(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if config.HasEnvConfig() {
		return "", nil
	}
	return "", fmt.Errorf("no configuration: %s not found and DOCMODEL_MODELS_DIR not set", path)
}

// openApp builds the application for a one-shot command. Logs are
// discarded unless --verbose is set.
func openApp(cmd *cobra.Command, opts *rootOptions) (*bootstrap.App, error) {
	path, err := configSource(opts.configPath)
	if err != nil {
		return nil, err
	}

	var logOut io.Writer = io.Discard
	if opts.verbose {
		logOut = cmd.ErrOrStderr()
	}
	return bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: logOut})
}

func (o *rootOptions) formatter() (formatter.Formatter, error) {
	if o.output == "" {
		return formatter.Default(), nil
	}
	f, ok := formatter.Get(o.output)
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %s)", o.output, strings.Join(formatter.List(), ", "))
	}
	return f, nil
}

func (o *rootOptions) formatOptions() formatter.FormatOptions {
	return formatter.FormatOptions{Columns: o.columns}
}
