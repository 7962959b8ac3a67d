package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/artpar/docmodel/core/schema"
	"github.com/artpar/docmodel/core/storage"
)

// Collection returns the named collection, creating its table on first use.
// Names must be identifiers.
func (db *DB) Collection(ctx context.Context, name string) (storage.Collection, error) {
	if !schema.IsIdentifier(name) {
		return nil, fmt.Errorf("collection name %q is not a valid identifier", name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.created[name]; ok {
		return c, nil
	}

	c := &Collection{db: db, name: name, table: "docs_" + name}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  row_key TEXT NOT NULL UNIQUE,
  doc TEXT NOT NULL
)`, c.table)
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("create table %s: %w", c.table, err)
	}

	if _, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, table_name) VALUES (?, ?)",
		name, c.table,
	); err != nil {
		return nil, fmt.Errorf("register collection %s: %w", name, err)
	}

	db.created[name] = c
	return c, nil
}

// Names lists every collection ever created in this database.
func (db *DB) Names(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Collection is a table of JSON documents.
type Collection struct {
	db    *DB
	name  string
	table string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Find returns every matching document in insertion order.
func (c *Collection) Find(ctx context.Context, filter storage.Filter) ([]schema.Document, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT doc FROM %s%s ORDER BY seq", c.table, where)
	return c.query(ctx, query, args)
}

// FindOne returns the first matching document, or nil.
func (c *Collection) FindOne(ctx context.Context, filter storage.Filter) (schema.Document, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT doc FROM %s%s ORDER BY seq LIMIT 1", c.table, where)

	var raw string
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find one in %s: %w", c.name, err)
	}
	return decode(raw)
}

// Insert stores doc as JSON under a generated row key.
func (c *Collection) Insert(ctx context.Context, doc schema.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (row_key, doc) VALUES (?, ?)", c.table)
	if _, err := c.db.ExecContext(ctx, insertSQL, c.db.ids.New(), string(data)); err != nil {
		return fmt.Errorf("insert into %s: %w", c.name, err)
	}
	return nil
}

// Aggregate compiles pipeline to SQL and runs it.
func (c *Collection) Aggregate(ctx context.Context, pipeline storage.Pipeline) ([]schema.Document, error) {
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}

	query, args, err := compile(c.table, pipeline)
	if err != nil {
		return nil, err
	}
	return c.query(ctx, query, args)
}

func (c *Collection) query(ctx context.Context, query string, args []any) ([]schema.Document, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}
	defer rows.Close()

	var docs []schema.Document
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.name, err)
		}
		if !raw.Valid {
			docs = append(docs, schema.Document{})
			continue
		}
		doc, err := decode(raw.String)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// extract returns the json_extract expression for a top-level field.
func extract(field string) (string, error) {
	if !schema.IsIdentifier(field) {
		return "", fmt.Errorf("field name %q is not a valid identifier", field)
	}
	return fmt.Sprintf("json_extract(doc, '$.%s')", field), nil
}

// whereClause builds an equality conjunction. Fields are visited in sorted
// order so identical filters produce identical SQL.
func whereClause(filter storage.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var conditions []string
	var args []any
	for _, f := range fields {
		expr, err := extract(f)
		if err != nil {
			return "", nil, err
		}

		cond, arg, err := matchCondition(f, expr, filter[f])
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, cond)
		if arg != nil {
			args = append(args, arg)
		}
	}

	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// matchCondition builds the equality test for one field. Each test is
// guarded by json_type so a bool never equals 1 and a string never
// equals a number or a serialized object.
func matchCondition(field, expr string, v any) (string, any, error) {
	if v == nil {
		return expr + " IS NULL", nil, nil
	}
	jsonType := fmt.Sprintf("json_type(doc, '$.%s')", field)

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return fmt.Sprintf("(%s = ? AND %s IN ('true', 'false'))", expr, jsonType), rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return numberCondition(expr, jsonType), rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if n := rv.Uint(); n <= math.MaxInt64 {
			return numberCondition(expr, jsonType), int64(n), nil
		}
		return numberCondition(expr, jsonType), float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return numberCondition(expr, jsonType), rv.Float(), nil
	case reflect.String:
		return fmt.Sprintf("(%s = ? AND %s = 'text')", expr, jsonType), rv.String(), nil
	case reflect.Slice, reflect.Array, reflect.Map:
		// json_extract yields minified JSON text for objects and arrays.
		data, err := json.Marshal(v)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter %s: %w", field, err)
		}
		want := "array"
		if rv.Kind() == reflect.Map {
			want = "object"
		}
		return fmt.Sprintf("(%s = json(?) AND %s = '%s')", expr, jsonType, want), string(data), nil
	default:
		return expr + " = ?", v, nil
	}
}

func numberCondition(expr, jsonType string) string {
	return fmt.Sprintf("(%s = ? AND %s IN ('integer', 'real'))", expr, jsonType)
}

// decode parses a stored document. Integral numbers become int64, the rest
// float64.
func decode(raw string) (schema.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	for k, v := range doc {
		doc[k] = numbers(v)
	}
	return schema.Document(doc), nil
}

func numbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = numbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = numbers(e)
		}
		return x
	default:
		return v
	}
}

var _ storage.Database = (*DB)(nil)
var _ storage.Collection = (*Collection)(nil)
