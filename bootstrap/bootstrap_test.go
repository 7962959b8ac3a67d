package bootstrap_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/docmodel/adapters/clock"
	"github.com/artpar/docmodel/adapters/idgen"
	"github.com/artpar/docmodel/bootstrap"
	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const userModel = `
model: User
fields:
  id:    { required: true }
  roles: { enum: [ADMIN, MODERATOR] }
  color: { default: blue }
  token: { generate: uuid }
  created_at: { generate: now }
`

const assetModel = `
model: Asset
fields:
  id: { required: true }
`

// setup writes a config and a models directory and returns the config path.
func setup(t *testing.T, extra string) (configPath, modelsDir string) {
	t.Helper()
	dir := t.TempDir()
	modelsDir = filepath.Join(dir, "models")
	if err := os.Mkdir(modelsDir, 0755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	writeFile(t, filepath.Join(modelsDir, "user.yaml"), userModel)

	configPath = filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, "models:\n  dir: "+modelsDir+"\n"+extra)
	return configPath, modelsDir
}

func newApp(t *testing.T, configPath string) *bootstrap.App {
	t.Helper()
	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: configPath,
		LogOutput:  io.Discard,
		Clock:      clock.NewFake(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)),
		IDs:        idgen.NewSequential("tok_"),
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { app.Shutdown() })
	return app
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestBootstrap_Integration(t *testing.T) {
	path, _ := setup(t, "database:\n  driver: memory\n")
	app := newApp(t, path)

	if app.HTTPServer == nil {
		t.Error("HTTPServer should not be nil")
	}
	if app.Metrics != nil {
		t.Error("Metrics should be nil when disabled")
	}
	if got := app.Registry.Names(); len(got) != 1 || got[0] != "User" {
		t.Errorf("Registry.Names() = %v, want [User]", got)
	}
	if app.HTTPServer.Addr != "0.0.0.0:8080" {
		t.Errorf("HTTPServer.Addr = %s, want 0.0.0.0:8080", app.HTTPServer.Addr)
	}
}

func TestBootstrap_GeneratedDefaults(t *testing.T) {
	path, _ := setup(t, "database:\n  driver: memory\n")
	app := newApp(t, path)
	ctx := context.Background()

	user, err := app.Model("User")
	if err != nil {
		t.Fatalf("Model(User): %v", err)
	}

	doc := user.New(schema.Document{"id": "u1", "roles": "ADMIN"})
	if doc["token"] != "tok_1" {
		t.Errorf("token = %v, want tok_1", doc["token"])
	}
	if doc["created_at"] != "2024-06-15T12:00:00Z" {
		t.Errorf("created_at = %v, want 2024-06-15T12:00:00Z", doc["created_at"])
	}
	if doc["color"] != "blue" {
		t.Errorf("color = %v, want blue", doc["color"])
	}

	if _, err := user.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, found, err := user.FindOne(ctx, storage.Filter{"id": "u1"})
	if err != nil || !found {
		t.Fatalf("FindOne = %v, %v, %v", got, found, err)
	}
	if got["token"] != "tok_1" {
		t.Errorf("stored token = %v, want tok_1", got["token"])
	}
}

func TestBootstrap_UnknownModel(t *testing.T) {
	path, _ := setup(t, "database:\n  driver: memory\n")
	app := newApp(t, path)

	_, err := app.Model("Ghost")
	if err == nil || !strings.Contains(err.Error(), "Ghost") {
		t.Errorf("Model(Ghost) error = %v, want unknown model", err)
	}
}

func TestBootstrap_InvalidModels(t *testing.T) {
	path, modelsDir := setup(t, "database:\n  driver: memory\n")
	writeFile(t, filepath.Join(modelsDir, "bad.yaml"), "model: Bad\nfields:\n  token: { generate: nope }\n")

	_, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	if err == nil {
		t.Fatal("expected error for unknown generator")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error = %v, want mention of generator name", err)
	}
}

func TestBootstrap_StorageIsLazy(t *testing.T) {
	// Only a bad DSN, never touched until a model needs storage.
	path, _ := setup(t, "database:\n  dsn: "+filepath.Join(t.TempDir(), "missing", "dir", "x.db")+"\n")
	app := newApp(t, path)

	user, _ := app.Model("User")
	_, err := user.Find(context.Background(), nil)
	if err == nil {
		t.Fatal("expected storage error on first use")
	}

	// The failed open is shared by later calls.
	_, again := user.Find(context.Background(), nil)
	if again == nil || again.Error() != err.Error() {
		t.Errorf("second error = %v, want %v", again, err)
	}
}

func TestBootstrap_SQLitePersists(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "docs.db")
	path, _ := setup(t, "database:\n  driver: sqlite\n  dsn: "+dsn+"\n")
	ctx := context.Background()

	first, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	user, _ := first.Model("User")
	if _, err := user.Insert(ctx, user.New(schema.Document{"id": "u1"})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := first.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	second := newApp(t, path)
	user, _ = second.Model("User")
	docs, err := user.Find(ctx, storage.Filter{"id": "u1"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(docs) != 1 || docs[0]["color"] != "blue" {
		t.Errorf("Find after reopen = %v", docs)
	}
}

func TestBootstrap_GracefulShutdown(t *testing.T) {
	path, _ := setup(t, "database:\n  driver: memory\n")
	app, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}

	if err := app.Shutdown(); err != nil {
		t.Errorf("shutdown error: %v", err)
	}

	if _, err := app.DB.Resolve(context.Background()); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Resolve after shutdown = %v, want ErrClosed", err)
	}
}

func TestBootstrap_HTTP(t *testing.T) {
	path, _ := setup(t, "database:\n  driver: memory\nmetrics:\n  enabled: true\n")
	app := newApp(t, path)

	srv := httptest.NewServer(app.HTTPServer.Handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/models/User/documents", "application/json",
		strings.NewReader(`{"id": "u1", "roles": "ADMIN"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("POST status = %d, want 201", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/models/User/documents", "application/json",
		strings.NewReader(`{"roles": "GUEST"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("invalid POST status = %d, want 422", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `docmodel_operations_total{model="User",op="insert",outcome="ok"} 1`) {
		t.Errorf("metrics missing insert counter:\n%s", body)
	}
	if !strings.Contains(string(body), `docmodel_validation_failures_total{field="id",kind="required",model="User"} 1`) {
		t.Errorf("metrics missing validation failure:\n%s", body)
	}
}

func TestBootstrap_ReloadModels(t *testing.T) {
	path, modelsDir := setup(t, "database:\n  driver: memory\nmetrics:\n  enabled: true\n")
	app := newApp(t, path)

	writeFile(t, filepath.Join(modelsDir, "asset.yaml"), assetModel)
	if err := app.Config.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	got := app.Registry.Names()
	if len(got) != 2 || got[0] != "Asset" || got[1] != "User" {
		t.Errorf("Registry.Names() after reload = %v, want [Asset User]", got)
	}
	if n := testutil.ToFloat64(app.Metrics.Reloads); n != 1 {
		t.Errorf("reloads = %v, want 1", n)
	}
}

func TestBootstrap_ReloadFailureKeepsModels(t *testing.T) {
	path, modelsDir := setup(t, "database:\n  driver: memory\nmetrics:\n  enabled: true\n")
	app := newApp(t, path)

	// Same collection as User.
	writeFile(t, filepath.Join(modelsDir, "users.yaml"), "model: user\nfields:\n  id: { required: true }\n")
	if err := app.Config.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	got := app.Registry.Names()
	if len(got) != 1 || got[0] != "User" {
		t.Errorf("Registry.Names() = %v, want previous [User]", got)
	}
	if n := testutil.ToFloat64(app.Metrics.ReloadErrors); n != 1 {
		t.Errorf("reload errors = %v, want 1", n)
	}
}

func TestGenerators_Defaults(t *testing.T) {
	gens := bootstrap.Generators(nil, nil)

	if names := gens.Names(); len(names) != 2 || names[0] != "now" || names[1] != "uuid" {
		t.Fatalf("Names() = %v, want [now uuid]", names)
	}

	a, b := gens["uuid"](), gens["uuid"]()
	if a == b {
		t.Errorf("uuid generator repeated %v", a)
	}
	if _, err := time.Parse(time.RFC3339Nano, gens["now"]().(string)); err != nil {
		t.Errorf("now generator: %v", err)
	}
}
