// Package sqlstore implements storage.Driver over database/sql. The sqlite and
// postgres drivers share it and differ only in connection setup and
// placeholder syntax.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/storage"
)

// Dialect selects the placeholder syntax used in queries.
type Dialect int

const (
	// DialectSQLite uses "?" placeholders.
	DialectSQLite Dialect = iota

	// DialectPostgres uses "$n" placeholders.
	DialectPostgres
)

const schema = `CREATE TABLE IF NOT EXISTS functions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	updated_at BIGINT NOT NULL,
	document TEXT NOT NULL
)`

const nameIndex = `CREATE INDEX IF NOT EXISTS functions_name_idx ON functions (name)`

// Driver stores each function as a JSON document keyed by its id, with a few
// columns lifted out for ordering.
type Driver struct {
	DB      *sql.DB
	Dialect Dialect
}

// New wraps db and creates the schema if absent.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	d := &Driver{DB: db, Dialect: dialect}
	for _, stmt := range []string{schema, nameIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return d, nil
}

// Put inserts or replaces a function.
func (d *Driver) Put(ctx context.Context, f *function.Function) error {
	if f == nil || f.ID == "" {
		return errors.New("cannot store function without an id")
	}

	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding function %s: %w", f.ID, err)
	}

	_, err = d.DB.ExecContext(ctx, d.rebind(`
		INSERT INTO functions (id, name, category, updated_at, document)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			updated_at = excluded.updated_at,
			document = excluded.document`),
		f.ID, f.Name, f.Category, f.LastUpdated.UnixNano(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("storing function %s: %w", f.ID, err)
	}
	return nil
}

// Get retrieves a function by its ID.
func (d *Driver) Get(ctx context.Context, id string) (*function.Function, error) {
	var doc string
	err := d.DB.QueryRowContext(ctx, d.rebind(`SELECT document FROM functions WHERE id = ?`), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading function %s: %w", id, err)
	}

	return decode(doc)
}

// Delete removes a function by its ID.
func (d *Driver) Delete(ctx context.Context, id string) error {
	res, err := d.DB.ExecContext(ctx, d.rebind(`DELETE FROM functions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting function %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting function %s: %w", id, err)
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

// List returns all functions ordered by name, then ID.
func (d *Driver) List(ctx context.Context) ([]*function.Function, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT document FROM functions ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing functions: %w", err)
	}
	defer rows.Close()

	var out []*function.Function
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("listing functions: %w", err)
		}
		f, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}

	return out, rows.Err()
}

// Count returns the number of stored functions.
func (d *Driver) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM functions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting functions: %w", err)
	}
	return n, nil
}

// Clear removes every function.
func (d *Driver) Clear(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, `DELETE FROM functions`); err != nil {
		return fmt.Errorf("clearing functions: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

// rebind rewrites "?" placeholders for dialects that number them.
func (d *Driver) rebind(query string) string {
	if d.Dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func decode(doc string) (*function.Function, error) {
	f := &function.Function{}
	if err := json.Unmarshal([]byte(doc), f); err != nil {
		return nil, fmt.Errorf("decoding function document: %w", err)
	}
	return f, nil
}

var _ storage.Driver = (*Driver)(nil)
