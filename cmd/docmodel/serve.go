package main

import (
	"fmt"

	"github.com/artpar/docmodel/bootstrap"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the docmodel HTTP API.

The server will:
  - Load configuration from docmodel.yaml (or --config)
  - Or load configuration from DOCMODEL_* environment variables
  - Load every model definition under models.dir
  - Reload models on SIGHUP, on config changes and, with models.watch,
    when a definition file changes

Environment variables:
  DOCMODEL_MODELS_DIR       - Model definitions directory (required)
  DOCMODEL_DATABASE_DRIVER  - sqlite or memory (default: sqlite)
  DOCMODEL_DATABASE_DSN     - Database path (default: docmodel.db)
  DOCMODEL_SERVER_PORT      - Server port (default: 8080)
  DOCMODEL_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  docmodel serve
  docmodel serve --config /etc/docmodel/config.yaml
  DOCMODEL_MODELS_DIR=./models docmodel serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configSource(opts.configPath)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "Running with environment variables (no config file)")
			}

			app, err := bootstrap.New(bootstrap.Options{ConfigPath: path})
			if err != nil {
				return fmt.Errorf("error initializing: %w", err)
			}

			// Run (blocks until shutdown)
			return app.Run()
		},
	}
}
