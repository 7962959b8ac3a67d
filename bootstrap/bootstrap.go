// Package bootstrap wires all dependencies and starts the application.
// It owns the storage handle: one storage.Deferred is created here and
// shared by every model the registry builds.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/docmodel/adapters/clock"
	apihttp "github.com/artpar/docmodel/adapters/http"
	"github.com/artpar/docmodel/adapters/idgen"
	"github.com/artpar/docmodel/adapters/memory"
	"github.com/artpar/docmodel/adapters/metrics"
	"github.com/artpar/docmodel/adapters/sqlite"
	"github.com/artpar/docmodel/config"
	"github.com/artpar/docmodel/core/model"
	"github.com/artpar/docmodel/core/registry"
	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
	"github.com/artpar/docmodel/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	DB         *storage.Deferred
	Registry   *registry.Registry
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	generators schema.Generators
	modelOpts  []model.Option
	promReg    *prometheus.Registry
}

// Options provides optional configuration for application initialization.
type Options struct {
	// ConfigPath is the YAML config file. Empty loads DOCMODEL_* variables.
	ConfigPath string

	// LogOutput receives log lines (default os.Stdout).
	LogOutput io.Writer

	// Clock and IDs back the "now" and "uuid" generators.
	// Defaults are the wall clock and random UUIDs.
	Clock ports.Clock
	IDs   ports.IDGenerator
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	holder, err := config.NewHolder(opts.ConfigPath, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	cfg := holder.Get()

	logger := setupLogger(cfg.Logging, opts.LogOutput)
	holder.SetLogger(logger)

	logger.Info().Msg("initializing docmodel")

	a := &App{
		Logger:     logger,
		Config:     holder,
		Registry:   registry.New(),
		generators: Generators(opts.Clock, opts.IDs),
	}

	a.DB = storage.Defer(opener(cfg.Database, logger))

	a.modelOpts = []model.Option{model.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		a.promReg = prometheus.NewRegistry()
		a.promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.promReg)
		a.modelOpts = append(a.modelOpts, model.WithObserver(a.Metrics))
		logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.LoadModels(cfg.Models.Dir); err != nil {
		a.DB.Close()
		return nil, fmt.Errorf("load models: %w", err)
	}

	holder.OnChange(a.applyConfig)

	a.initHTTPServer(cfg)

	return a, nil
}

// Generators returns the named default generators model definitions may
// reference. Nil arguments select the production sources.
func Generators(c ports.Clock, ids ports.IDGenerator) schema.Generators {
	if c == nil {
		c = clock.Real{}
	}
	if ids == nil {
		ids = idgen.UUID{}
	}
	return schema.Generators{
		"uuid": idgen.Generator(ids),
		"now":  clock.Timestamp(c),
	}
}

// LoadModels parses every definition under dir and swaps the registry's
// model set. On any error the current set stays in place.
func (a *App) LoadModels(dir string) error {
	mods, err := schema.ParseDir(dir)
	if err != nil {
		return err
	}

	models, err := registry.Build(mods, a.generators, a.DB, a.modelOpts...)
	if err != nil {
		return err
	}

	if err := a.Registry.Replace(models); err != nil {
		return err
	}

	a.Logger.Info().
		Str("dir", dir).
		Strs("models", a.Registry.Names()).
		Msg("models loaded")
	return nil
}

// Model returns a registered model by name.
func (a *App) Model(name string) (*model.Model, error) {
	m, ok := a.Registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown model %q (have %v)", name, a.Registry.Names())
	}
	return m, nil
}

// applyConfig reacts to a reloaded configuration.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	err := a.LoadModels(cfg.Models.Dir)
	if err != nil {
		a.Logger.Error().Err(err).Msg("model reload failed, keeping current models")
	}
	if a.Metrics != nil {
		a.Metrics.ObserveReload(err)
	}
}

func (a *App) initHTTPServer(cfg *config.Config) {
	routerCfg := apihttp.RouterConfig{
		Timeout: cfg.Server.RequestTimeout,
	}
	if a.promReg != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{})
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	router := apihttp.NewRouter(
		apihttp.NewModelHandler(a.Registry, a.Logger),
		apihttp.NewHealthHandler(storageHealth{db: a.DB}),
		a.Logger,
		routerCfg,
	)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	cfg := a.Config.Get()

	if a.Config.Path() != "" || cfg.Models.Watch {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("file watching disabled")
		}
	}
	a.Config.WatchSignals()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.Config.Stop()

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Close database
	if err := a.DB.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("database close error")
		return err
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// opener returns the function the Deferred handle calls on first use.
func opener(cfg config.DatabaseConfig, logger zerolog.Logger) storage.OpenFunc {
	return func(ctx context.Context) (storage.Database, error) {
		switch cfg.Driver {
		case "memory":
			logger.Info().Msg("using in-memory database")
			return memory.New(), nil
		default:
			db, err := sqlite.Open(cfg.DSN)
			if err != nil {
				return nil, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
			}
			logger.Info().Str("dsn", cfg.DSN).Msg("opened sqlite database")
			return db, nil
		}
	}
}

// storageHealth resolves the shared handle, pinging it when the backend
// supports that.
type storageHealth struct {
	db storage.Resolver
}

func (h storageHealth) HealthCheck(ctx context.Context) error {
	db, err := h.db.Resolve(ctx)
	if err != nil {
		return err
	}
	if p, ok := db.(interface{ PingContext(context.Context) error }); ok {
		return p.PingContext(ctx)
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
