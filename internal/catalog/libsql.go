package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowcheck/pkg/schema"
)

// LibSQLStore is a Catalog backed by a libSQL (embedded SQLite fork) database.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/catalog.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "open libsql").WithCause(err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// OpenLibSQLStore opens and migrates a store in one step.
func OpenLibSQLStore(ctx context.Context, dbPath string) (*LibSQLStore, error) {
	s, err := NewLibSQLStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, schema.NewError(schema.ErrCodeStore, "migrate catalog").WithCause(err)
	}
	return s, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Upsert inserts or replaces a descriptor.
func (s *LibSQLStore) Upsert(ctx context.Context, d *schema.Descriptor) error {
	if d == nil || d.Type == "" {
		return schema.NewError(schema.ErrCodeValidation, "descriptor type is required")
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO node_types (type, package, display_name, current_version, is_ai_tool, is_trigger, descriptor, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(type) DO UPDATE SET package=excluded.package, display_name=excluded.display_name,
		   current_version=excluded.current_version, is_ai_tool=excluded.is_ai_tool,
		   is_trigger=excluded.is_trigger, descriptor=excluded.descriptor, updated_at=CURRENT_TIMESTAMP`,
		d.Type, d.Package, d.DisplayName, d.CurrentVersion, boolInt(d.IsAITool), boolInt(d.IsTrigger), string(raw),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "upsert %s", d.Type).WithCause(err)
	}
	return nil
}

// Import upserts all descriptors in a single transaction and returns the
// number written.
func (s *LibSQLStore) Import(ctx context.Context, descs []*schema.Descriptor) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "begin import").WithCause(err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO node_types (type, package, display_name, current_version, is_ai_tool, is_trigger, descriptor, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(type) DO UPDATE SET package=excluded.package, display_name=excluded.display_name,
		   current_version=excluded.current_version, is_ai_tool=excluded.is_ai_tool,
		   is_trigger=excluded.is_trigger, descriptor=excluded.descriptor, updated_at=CURRENT_TIMESTAMP`)
	if err != nil {
		_ = tx.Rollback()
		return 0, schema.NewError(schema.ErrCodeStore, "prepare import").WithCause(err)
	}
	defer stmt.Close()

	n := 0
	for _, d := range descs {
		if d == nil || d.Type == "" {
			continue
		}
		raw, err := json.Marshal(d)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("marshal descriptor %s: %w", d.Type, err)
		}
		if _, err := stmt.ExecContext(ctx, d.Type, d.Package, d.DisplayName, d.CurrentVersion,
			boolInt(d.IsAITool), boolInt(d.IsTrigger), string(raw)); err != nil {
			_ = tx.Rollback()
			return 0, schema.NewErrorf(schema.ErrCodeStore, "import %s", d.Type).WithCause(err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "commit import").WithCause(err)
	}
	return n, nil
}

// Resolve implements Catalog.
func (s *LibSQLStore) Resolve(ctx context.Context, nodeType string) (*schema.Descriptor, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT descriptor FROM node_types WHERE type = ?`, nodeType).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound(nodeType)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "resolve %s", nodeType).WithCause(err)
	}
	d := &schema.Descriptor{}
	if err := json.Unmarshal([]byte(raw), d); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "decode descriptor %s", nodeType).WithCause(err)
	}
	return d, nil
}

// Types implements Lister.
func (s *LibSQLStore) Types(ctx context.Context) ([]string, error) {
	return s.queryTypes(ctx, `SELECT type FROM node_types ORDER BY type`)
}

// TypesByPackage lists the types of one package.
func (s *LibSQLStore) TypesByPackage(ctx context.Context, pkg string) ([]string, error) {
	return s.queryTypes(ctx, `SELECT type FROM node_types WHERE package = ? ORDER BY type`, pkg)
}

func (s *LibSQLStore) queryTypes(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list types").WithCause(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count returns the number of stored descriptors.
func (s *LibSQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM node_types`).Scan(&n); err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "count types").WithCause(err)
	}
	return n, nil
}

// Delete removes a descriptor.
func (s *LibSQLStore) Delete(ctx context.Context, nodeType string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM node_types WHERE type = ?`, nodeType)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete %s", nodeType).WithCause(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return NotFound(nodeType)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ Catalog = (*LibSQLStore)(nil)
	_ Lister  = (*LibSQLStore)(nil)
)
