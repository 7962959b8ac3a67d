package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload
// support. Besides the config file it can watch the models directory, so
// editing a model definition triggers the same reload path.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	watched  string // models directory currently watched, "" for none
	onChange []func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new config holder and loads the initial
// configuration. An empty path loads from the environment.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		path = abs
	}

	h := &Holder{
		path:   path,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	cfg, err := h.load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	h.config = cfg

	return h, nil
}

func (h *Holder) load() (*Config, error) {
	if h.path == "" {
		return LoadFromEnv()
	}
	return Load(h.path)
}

// SetLogger replaces the logger. The composition root loads config before
// it can build the configured logger.
func (h *Holder) SetLogger(logger zerolog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
}

// Path returns the watched config file, or "" for environment config.
func (h *Holder) Path() string {
	return h.path
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Reload reloads the configuration and notifies listeners.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	newCfg, err := h.load()
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	listeners := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)
	h.rewatchModels(newCfg)

	for _, fn := range listeners {
		fn(newCfg)
	}

	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile starts watching the config file and, when models.watch is
// set, the models directory. Changes trigger automatic reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch directories (more reliable for editors that do atomic saves)
	var dirs []string
	if h.path != "" {
		dirs = append(dirs, filepath.Dir(h.path))
	}
	modelsDir, err := watchedModelsDir(h.Get())
	if err != nil {
		watcher.Close()
		return err
	}
	if modelsDir != "" {
		dirs = append(dirs, modelsDir)
	}

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch directory %s: %w", dir, err)
		}
	}

	h.mu.Lock()
	h.watcher = watcher
	h.watched = modelsDir
	h.mu.Unlock()

	go h.watchLoop(watcher)

	h.logger.Info().Strs("dirs", dirs).Msg("watching for configuration changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload config")
}

// Stop stops watching for file changes and signals.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.mu.RLock()
		watcher := h.watcher
		h.mu.RUnlock()
		if watcher != nil {
			watcher.Close()
		}
	})
}

// watchedModelsDir returns the absolute models directory when cfg asks
// for it to be watched, and "" otherwise.
func watchedModelsDir(cfg *Config) (string, error) {
	if !cfg.Models.Watch {
		return "", nil
	}
	dir, err := filepath.Abs(cfg.Models.Dir)
	if err != nil {
		return "", fmt.Errorf("models directory: %w", err)
	}
	return dir, nil
}

// rewatchModels moves the models directory watch after a reload changed
// models.dir or models.watch. The config directory watch is never removed.
func (h *Holder) rewatchModels(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watcher == nil {
		return
	}

	dir, err := watchedModelsDir(cfg)
	if err != nil {
		h.logger.Error().Err(err).Msg("cannot watch models directory")
		return
	}
	if dir == h.watched {
		return
	}

	configDir := ""
	if h.path != "" {
		configDir = filepath.Dir(h.path)
	}
	if h.watched != "" && h.watched != configDir {
		if err := h.watcher.Remove(h.watched); err != nil {
			h.logger.Debug().Err(err).Str("dir", h.watched).Msg("unwatch models directory")
		}
	}
	h.watched = ""
	if dir != "" {
		if err := h.watcher.Add(dir); err != nil {
			h.logger.Error().Err(err).Str("dir", dir).Msg("cannot watch models directory")
			return
		}
		h.watched = dir
	}
	h.logger.Info().Str("dir", dir).Msg("models directory watch updated")
}

// relevant reports whether a file event should trigger a reload.
func (h *Holder) relevant(name string) bool {
	if h.path != "" && filepath.Base(name) == filepath.Base(h.path) && filepath.Dir(name) == filepath.Dir(h.path) {
		return true
	}
	if !h.Get().Models.Watch {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func (h *Holder) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if !h.relevant(event.Name) {
				continue
			}

			// React to write, create (atomic save) and remove (deleted model)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("watched file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}

	if old.Models.Dir != new.Models.Dir {
		h.logger.Info().
			Str("old", old.Models.Dir).
			Str("new", new.Models.Dir).
			Msg("models directory changed")
	}

	for _, field := range NonReloadableFields() {
		if changed(old, new, field) {
			h.logger.Warn().Str("field", field).Msg("change requires restart")
		}
	}
}

func changed(old, new *Config, field string) bool {
	switch field {
	case "server.host":
		return old.Server.Host != new.Server.Host
	case "server.port":
		return old.Server.Port != new.Server.Port
	case "database.driver":
		return old.Database.Driver != new.Database.Driver
	case "database.dsn":
		return old.Database.DSN != new.Database.DSN
	case "metrics.enabled":
		return old.Metrics.Enabled != new.Metrics.Enabled
	}
	return false
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"models.dir",
		"logging.level",
	}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"database.driver",
		"database.dsn",
		"metrics.enabled",
	}
}
