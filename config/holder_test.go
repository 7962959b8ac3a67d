package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/docmodel/config"
	"github.com/rs/zerolog"
)

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	if got := h.Get().Models.Dir; got != "./models" {
		t.Errorf("Models.Dir = %s, want ./models", got)
	}
	if !filepath.IsAbs(h.Path()) {
		t.Errorf("Path() = %s, want absolute", h.Path())
	}
}

func TestHolder_FromEnv(t *testing.T) {
	t.Setenv("DOCMODEL_MODELS_DIR", "/env/models")

	h, err := config.NewHolder("", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	t.Setenv("DOCMODEL_LOG_LEVEL", "warn")
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	if got := h.Get().Logging.Level; got != "warn" {
		t.Errorf("Logging.Level = %s, want warn", got)
	}
}

func TestHolder_ReloadNotifies(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var received *config.Config
	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		received = cfg
		mu.Unlock()
	})

	if err := os.WriteFile(path, []byte("models:\n  dir: ./other\nlogging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("OnChange callback was not called")
	}
	if received.Models.Dir != "./other" || received.Logging.Level != "debug" {
		t.Errorf("callback received %+v", received)
	}
	if h.Get() != received {
		t.Error("Get() should return the reloaded config")
	}
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	called := false
	h.OnChange(func(*config.Config) { called = true })

	// Missing required models.dir
	if err := os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid config")
	}
	if called {
		t.Error("OnChange should not run for a failed reload")
	}
	if got := h.Get().Models.Dir; got != "./models" {
		t.Errorf("should keep old config, got Models.Dir = %s", got)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan *config.Config, 10)
	h.OnChange(func(cfg *config.Config) { changed <- cfg })

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	if err := os.WriteFile(path, []byte("models:\n  dir: ./watched\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Models.Dir != "./watched" {
			t.Errorf("after file watch, Models.Dir = %s, want ./watched", cfg.Models.Dir)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("file watcher did not trigger reload")
	}
}

func TestHolder_WatchModelsDir(t *testing.T) {
	modelsDir := t.TempDir()
	path := writeConfig(t, "models:\n  dir: "+modelsDir+"\n  watch: true\n")

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan struct{}, 10)
	h.OnChange(func(*config.Config) { changed <- struct{}{} })

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	// Non-model files are ignored.
	os.WriteFile(filepath.Join(modelsDir, "README.md"), []byte("notes"), 0644)
	if err := os.WriteFile(filepath.Join(modelsDir, "user.yaml"), []byte("model: User\n"), 0644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("models directory change did not trigger reload")
	}
}

func TestHolder_WatchFollowsModelsDir(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	path := writeConfig(t, "models:\n  dir: "+first+"\n  watch: true\n")

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan struct{}, 100)
	h.OnChange(func(*config.Config) { changed <- struct{}{} })

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	if err := os.WriteFile(path, []byte("models:\n  dir: "+second+"\n  watch: true\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	if got := h.Get().Models.Dir; got != second {
		t.Fatalf("Models.Dir = %s, want %s", got, second)
	}
	drainUntilQuiet(changed, 300*time.Millisecond)

	if err := os.WriteFile(filepath.Join(second, "user.yaml"), []byte("model: User\n"), 0644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("change in the new models directory did not trigger reload")
	}
}

// drainUntilQuiet discards notifications until none arrive for quiet.
func drainUntilQuiet(ch <-chan struct{}, quiet time.Duration) {
	for {
		select {
		case <-ch:
		case <-time.After(quiet):
			return
		}
	}
}

func TestHolder_StopIsIdempotent(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	h.WatchSignals()
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	reloadable := map[string]bool{}
	for _, f := range config.ReloadableFields() {
		reloadable[f] = true
	}
	for _, f := range []string{"models.dir", "logging.level"} {
		if !reloadable[f] {
			t.Errorf("%s not in ReloadableFields", f)
		}
	}
	for _, f := range config.NonReloadableFields() {
		if reloadable[f] {
			t.Errorf("%s is both reloadable and non-reloadable", f)
		}
	}
}

func validConfig() string {
	return `
models:
  dir: ./models
`
}
