// Package storagetest holds a conformance suite every storage.Database
// implementation runs from its own tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
	"github.com/google/go-cmp/cmp"
)

// Factory returns a fresh, empty database. The suite closes it.
type Factory func(t *testing.T) storage.Database

// Users are inserted in this order by seed.
var Users = []schema.Document{
	{"id": "1", "name": "Ada", "roles": "ADMIN", "age": 36},
	{"id": "2", "name": "Bob", "roles": "MODERATOR", "age": 25},
	{"id": "3", "name": "Cy", "age": 41},
	{"id": "4", "name": "Dee", "roles": "ADMIN", "age": 25},
}

// Run executes the conformance suite.
func Run(t *testing.T, newDB Factory) {
	t.Run("CollectionIsStable", func(t *testing.T) { testCollectionIsStable(t, newDB) })
	t.Run("Find", func(t *testing.T) { testFind(t, newDB) })
	t.Run("FindMatchesValueTypes", func(t *testing.T) { testFindValueTypes(t, newDB) })
	t.Run("FindOne", func(t *testing.T) { testFindOne(t, newDB) })
	t.Run("InsertCopies", func(t *testing.T) { testInsertCopies(t, newDB) })
	t.Run("CollectionsAreIsolated", func(t *testing.T) { testIsolation(t, newDB) })
	t.Run("Aggregate", func(t *testing.T) { testAggregate(t, newDB) })
}

func open(t *testing.T, newDB Factory) storage.Database {
	t.Helper()
	db := newDB(t)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db storage.Database) storage.Collection {
	t.Helper()
	ctx := context.Background()

	c, err := db.Collection(ctx, "users")
	if err != nil {
		t.Fatalf("Collection(users) error = %v", err)
	}
	for _, u := range Users {
		if err := c.Insert(ctx, u); err != nil {
			t.Fatalf("Insert(%v) error = %v", u["id"], err)
		}
	}
	return c
}

func ids(docs []schema.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d["id"].(string)
	}
	return out
}

func testCollectionIsStable(t *testing.T, newDB Factory) {
	db := open(t, newDB)
	ctx := context.Background()

	a, err := db.Collection(ctx, "users")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	if a.Name() != "users" {
		t.Errorf("Name() = %q, want users", a.Name())
	}
	if err := a.Insert(ctx, schema.Document{"id": "1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	b, err := db.Collection(ctx, "users")
	if err != nil {
		t.Fatalf("second Collection() error = %v", err)
	}
	docs, err := b.Find(ctx, nil)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("len(docs) = %d, want 1", len(docs))
	}
}

func testFind(t *testing.T, newDB Factory) {
	db := open(t, newDB)
	c := seed(t, db)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter storage.Filter
		want   []string
	}{
		{"nil filter returns all in insertion order", nil, []string{"1", "2", "3", "4"}},
		{"empty filter", storage.Filter{}, []string{"1", "2", "3", "4"}},
		{"string equality", storage.Filter{"roles": "ADMIN"}, []string{"1", "4"}},
		{"numeric equality", storage.Filter{"age": 25}, []string{"2", "4"}},
		{"float matches integer", storage.Filter{"age": 25.0}, []string{"2", "4"}},
		{"conjunction", storage.Filter{"roles": "ADMIN", "age": 25}, []string{"4"}},
		{"nil matches absent", storage.Filter{"roles": nil}, []string{"3"}},
		{"no match", storage.Filter{"name": "Zed"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := c.Find(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(docs)); diff != "" {
				t.Errorf("Find() ids mismatch (-want +got):\n%s", diff)
			}
		})
	}

	docs, err := c.Find(ctx, storage.Filter{"id": "1"})
	if err != nil || len(docs) != 1 {
		t.Fatalf("Find(id=1) = %v, %v", docs, err)
	}
	want := schema.Document{"id": "1", "name": "Ada", "roles": "ADMIN", "age": int64(36)}
	if diff := cmp.Diff(want, normalize(docs[0])); diff != "" {
		t.Errorf("document round trip mismatch (-want +got):\n%s", diff)
	}
}

func testFindValueTypes(t *testing.T, newDB Factory) {
	db := open(t, newDB)
	ctx := context.Background()

	c, err := db.Collection(ctx, "values")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	docs := []schema.Document{
		{"id": "a", "v": true, "tags": []any{"x"}},
		{"id": "b", "v": 1, "meta": map[string]any{"k": 1}},
		{"id": "c", "v": "1", "tags": `["x"]`},
		{"id": "d", "v": false, "meta": `{"k":1}`},
	}
	for _, d := range docs {
		if err := c.Insert(ctx, d); err != nil {
			t.Fatalf("Insert(%v) error = %v", d["id"], err)
		}
	}

	tests := []struct {
		name   string
		filter storage.Filter
		want   []string
	}{
		{"bool does not match number", storage.Filter{"v": true}, []string{"a"}},
		{"false does not match zero", storage.Filter{"v": false}, []string{"d"}},
		{"number does not match bool or string", storage.Filter{"v": 1}, []string{"b"}},
		{"string does not match number", storage.Filter{"v": "1"}, []string{"c"}},
		{"generic slice", storage.Filter{"tags": []any{"x"}}, []string{"a"}},
		{"typed slice", storage.Filter{"tags": []string{"x"}}, []string{"a"}},
		{"serialized array is a string", storage.Filter{"tags": `["x"]`}, []string{"c"}},
		{"typed map", storage.Filter{"meta": map[string]int{"k": 1}}, []string{"b"}},
		{"serialized object is a string", storage.Filter{"meta": `{"k":1}`}, []string{"d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Find(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("Find() ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func testFindOne(t *testing.T, newDB Factory) {
	db := open(t, newDB)
	c := seed(t, db)
	ctx := context.Background()

	doc, err := c.FindOne(ctx, storage.Filter{"roles": "ADMIN"})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if doc == nil || doc["id"] != "1" {
		t.Errorf("FindOne(roles=ADMIN) = %v, want first admin", doc)
	}

	doc, err = c.FindOne(ctx, storage.Filter{"name": "Zed"})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if doc != nil {
		t.Errorf("FindOne(no match) = %v, want nil", doc)
	}
}

func testInsertCopies(t *testing.T, newDB Factory) {
	db := open(t, newDB)
	ctx := context.Background()

	c, err := db.Collection(ctx, "notes")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}

	doc := schema.Document{"id": "n1", "body": "first"}
	if err := c.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	doc["body"] = "changed"
	if len(doc) != 2 {
		t.Errorf("Insert added fields to caller document: %v", doc)
	}

	got, err := c.FindOne(ctx, storage.Filter{"id": "n1"})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if got["body"] != "first" {
		t.Errorf("stored body = %v, want first", got["body"])
	}

	got["body"] = "mutated"
	again, _ := c.FindOne(ctx, storage.Filter{"id": "n1"})
	if again["body"] != "first" {
		t.Errorf("stored body after mutating result = %v, want first", again["body"])
	}

	nested := schema.Document{
		"id":   "n2",
		"meta": map[string]any{"k": "v"},
		"tags": []any{"a"},
	}
	if err := c.Insert(ctx, nested); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	nested["meta"].(map[string]any)["k"] = "changed"
	nested["tags"].([]any)[0] = "changed"

	want := schema.Document{"id": "n2", "meta": map[string]any{"k": "v"}, "tags": []any{"a"}}
	got, err = c.FindOne(ctx, storage.Filter{"id": "n2"})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("caller's nested mutation reached the store (-want +got):\n%s", diff)
	}

	got["meta"].(map[string]any)["k"] = "mutated"
	got["tags"].([]any)[0] = "mutated"
	again, _ = c.FindOne(ctx, storage.Filter{"id": "n2"})
	if diff := cmp.Diff(want, again); diff != "" {
		t.Errorf("result's nested mutation reached the store (-want +got):\n%s", diff)
	}
}

func testIsolation(t *testing.T, newDB Factory) {
	db := open(t, newDB)
	seed(t, db)
	ctx := context.Background()

	other, err := db.Collection(ctx, "assets")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	docs, err := other.Find(ctx, nil)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("assets has %d documents, want 0", len(docs))
	}
}

func testAggregate(t *testing.T, newDB Factory) {
	db := open(t, newDB)
	c := seed(t, db)
	ctx := context.Background()

	tests := []struct {
		name     string
		pipeline storage.Pipeline
		want     []schema.Document
	}{
		{
			name:     "empty pipeline returns everything",
			pipeline: nil,
			want: []schema.Document{
				{"id": "1", "name": "Ada", "roles": "ADMIN", "age": int64(36)},
				{"id": "2", "name": "Bob", "roles": "MODERATOR", "age": int64(25)},
				{"id": "3", "name": "Cy", "age": int64(41)},
				{"id": "4", "name": "Dee", "roles": "ADMIN", "age": int64(25)},
			},
		},
		{
			name: "match then project",
			pipeline: storage.Pipeline{
				storage.Match(storage.Filter{"roles": "ADMIN"}),
				storage.Project("name"),
			},
			want: []schema.Document{{"name": "Ada"}, {"name": "Dee"}},
		},
		{
			name: "sort ascending is stable",
			pipeline: storage.Pipeline{
				storage.SortBy("age", false),
				storage.Project("id"),
			},
			want: []schema.Document{{"id": "2"}, {"id": "4"}, {"id": "1"}, {"id": "3"}},
		},
		{
			name: "sort descending",
			pipeline: storage.Pipeline{
				storage.SortBy("name", true),
				storage.Project("name"),
			},
			want: []schema.Document{{"name": "Dee"}, {"name": "Cy"}, {"name": "Bob"}, {"name": "Ada"}},
		},
		{
			name: "missing values sort first",
			pipeline: storage.Pipeline{
				storage.SortBy("roles", false),
				storage.Limit(1),
				storage.Project("id"),
			},
			want: []schema.Document{{"id": "3"}},
		},
		{
			name: "skip and limit",
			pipeline: storage.Pipeline{
				storage.Skip(1),
				storage.Limit(2),
				storage.Project("id"),
			},
			want: []schema.Document{{"id": "2"}, {"id": "3"}},
		},
		{
			name: "skip past the end",
			pipeline: storage.Pipeline{
				storage.Skip(10),
			},
			want: []schema.Document{},
		},
		{
			name: "project omits absent fields",
			pipeline: storage.Pipeline{
				storage.Match(storage.Filter{"id": "3"}),
				storage.Project("id", "roles"),
			},
			want: []schema.Document{{"id": "3"}},
		},
		{
			name: "count",
			pipeline: storage.Pipeline{
				storage.Match(storage.Filter{"age": 25}),
				storage.Count("n"),
			},
			want: []schema.Document{{"n": int64(2)}},
		},
		{
			name: "count of nothing",
			pipeline: storage.Pipeline{
				storage.Match(storage.Filter{"name": "Zed"}),
				storage.Count("n"),
			},
			want: []schema.Document{{"n": int64(0)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := c.Aggregate(ctx, tt.pipeline)
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}
			got := make([]schema.Document, len(docs))
			for i, d := range docs {
				got[i] = normalize(d)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := c.Aggregate(ctx, storage.Pipeline{storage.Limit(0)}); err == nil {
		t.Error("Aggregate(limit 0) error = nil, want invalid stage")
	}
}

// normalize converts integral numbers to int64 so backends that decode
// JSON and backends that keep Go values compare equal.
func normalize(doc schema.Document) schema.Document {
	out := make(schema.Document, len(doc))
	for k, v := range doc {
		if f, ok := schema.ToFloat64(v); ok && f == float64(int64(f)) {
			v = int64(f)
		}
		out[k] = v
	}
	return out
}
