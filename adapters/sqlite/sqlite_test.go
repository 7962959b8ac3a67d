package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/docmodel/adapters/idgen"
	"github.com/artpar/docmodel/adapters/sqlite"
	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
	"github.com/artpar/docmodel/core/storage/storagetest"
)

func setupTestDB(t *testing.T, opts ...sqlite.Option) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Database {
		db, err := sqlite.Open(":memory:")
		if err != nil {
			t.Fatalf("open database: %v", err)
		}
		return db
	})
}

func TestMigration_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("third migrate: %v", err)
	}
}

func TestDB_Names(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"users", "assets", "users"} {
		if _, err := db.Collection(ctx, name); err != nil {
			t.Fatalf("Collection(%q) error = %v", name, err)
		}
	}

	names, err := db.Names(ctx)
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	if strings.Join(names, ",") != "assets,users" {
		t.Errorf("Names() = %v, want [assets users]", names)
	}
}

func TestDB_InvalidCollectionName(t *testing.T) {
	db := setupTestDB(t)

	for _, name := range []string{"", "users; DROP TABLE collections", "1users", "a-b"} {
		if _, err := db.Collection(context.Background(), name); err == nil {
			t.Errorf("Collection(%q) error = nil, want invalid identifier", name)
		}
	}
}

func TestCollection_InvalidFilterField(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c, err := db.Collection(ctx, "users")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}

	if _, err := c.Find(ctx, storage.Filter{"name') OR 1=1 --": "x"}); err == nil {
		t.Error("Find() with injected field error = nil, want invalid identifier")
	}
	if _, err := c.Aggregate(ctx, storage.Pipeline{storage.SortBy("a b", false)}); err == nil {
		t.Error("Aggregate() with bad sort field error = nil, want invalid identifier")
	}
}

func TestCollection_RowKeys(t *testing.T) {
	db := setupTestDB(t, sqlite.WithIDGenerator(idgen.NewSequential("doc_")))
	ctx := context.Background()

	c, err := db.Collection(ctx, "notes")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Insert(ctx, schema.Document{"n": i}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	rows, err := db.QueryContext(ctx, "SELECT row_key FROM docs_notes ORDER BY seq")
	if err != nil {
		t.Fatalf("query row keys: %v", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			t.Fatalf("scan: %v", err)
		}
		keys = append(keys, k)
	}
	if strings.Join(keys, ",") != "doc_1,doc_2,doc_3" {
		t.Errorf("row keys = %v, want [doc_1 doc_2 doc_3]", keys)
	}
}

func TestCollection_NestedValues(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c, err := db.Collection(ctx, "profiles")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	doc := schema.Document{
		"id":     "p1",
		"active": true,
		"tags":   []any{"a", "b"},
		"meta":   map[string]any{"score": 1.5},
	}
	if err := c.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := c.FindOne(ctx, storage.Filter{"tags": []any{"a", "b"}})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if got == nil {
		t.Fatal("FindOne(tags) = nil, want document")
	}
	if got["active"] != true {
		t.Errorf("active = %v, want true", got["active"])
	}

	projected, err := c.Aggregate(ctx, storage.Pipeline{storage.Project("active", "meta")})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(projected) != 1 || projected[0]["active"] != true {
		t.Errorf("projected = %v, want active=true", projected)
	}
	meta, ok := projected[0]["meta"].(map[string]any)
	if !ok || meta["score"] != 1.5 {
		t.Errorf("projected meta = %v, want score 1.5", projected[0]["meta"])
	}
}

func TestDB_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")
	ctx := context.Background()

	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	c, _ := db.Collection(ctx, "users")
	if err := c.Insert(ctx, schema.Document{"id": "1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file: %v", err)
	}

	db, err = sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer db.Close()

	c, _ = db.Collection(ctx, "users")
	docs, err := c.Find(ctx, nil)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("len(docs) = %d, want 1", len(docs))
	}
}
