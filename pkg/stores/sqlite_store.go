package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/entstack/entstack/pkg/model"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is how time-typed property values are stored.
const timeFormat = time.RFC3339Nano

// Engine is the SQLite-backed persistence engine. The store is either
// disk-persisted at a file path or memory-only; its schema is derived
// from the model description at Init.
type Engine struct {
	db    *sql.DB
	path  string // empty for a memory-only store
	model *model.Model
	cfg   Config
}

// Config holds engine configuration.
type Config struct {
	// Path is the database file location. Empty means a memory-only
	// store that vanishes when the engine closes.
	Path string

	// Model describes the entity types the store manages.
	Model *model.Model

	MaxOpenConns int
	MaxIdleConns int

	// ConnMaxLifetime bounds how long a pooled connection is reused;
	// 0 keeps connections forever. Ignored for memory-only stores,
	// whose single connection holds the database itself.
	ConnMaxLifetime time.Duration
}

// Open creates a new engine instance. The database is not touched until
// Init is called.
func Open(cfg Config) (*Engine, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("model is required")
	}

	// SQLite has a single writer and every operation reaching the engine
	// is already serialized on a context queue, so one connection is the
	// default.
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 1
	}

	return &Engine{
		path:  cfg.Path,
		model: cfg.Model,
		cfg:   cfg,
	}, nil
}

// Persisted reports whether the store is backed by a disk file.
func (e *Engine) Persisted() bool {
	return e.path != ""
}

// Path returns the backing file location, or "" for a memory-only store.
func (e *Engine) Path() string {
	return e.path
}

// Model returns the model description the store was opened with.
func (e *Engine) Model() *model.Model {
	return e.model
}

// dsnPragmas carries the session settings as DSN parameters so the driver
// applies them to every connection the pool opens, not just the first.
const dsnPragmas = "?_pragma=journal_mode(WAL)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)"

// Init opens the database, enables WAL mode, runs the catalog migrations,
// and creates the entity tables derived from the model. It must complete
// before any other engine method is used.
func (e *Engine) Init(ctx context.Context) error {
	dsn := "file:" + e.path + dsnPragmas
	maxOpen := e.cfg.MaxOpenConns
	lifetime := e.cfg.ConnMaxLifetime
	if e.path == "" {
		// Each connection to ":memory:" gets its own private database, so
		// a memory-only store is pinned to one connection that is never
		// recycled; retiring it would discard the store.
		dsn = "file::memory:" + dsnPragmas
		maxOpen = 1
		lifetime = 0
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(e.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(lifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	e.db = db

	if err := e.migrate(); err != nil {
		_ = db.Close()
		e.db = nil
		return err
	}
	if err := e.createEntityTables(ctx); err != nil {
		_ = db.Close()
		e.db = nil
		return err
	}
	if err := e.recordCatalog(ctx); err != nil {
		_ = db.Close()
		e.db = nil
		return err
	}

	return nil
}

// Close closes the database connection. The backing files are left in
// place; removing them is the stack's teardown concern.
func (e *Engine) Close() error {
	if e.db != nil {
		err := e.db.Close()
		e.db = nil
		return err
	}
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if e.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return e.db.PingContext(ctx)
}

// migrate runs the embedded catalog migrations.
func (e *Engine) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(e.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// createEntityTables derives the entity schema from the model. Identifiers
// were validated at model load, so quoting them directly is safe.
func (e *Engine) createEntityTables(ctx context.Context) error {
	for _, ent := range e.model.Entities {
		cols := make([]string, 0, len(ent.Properties)+1)
		cols = append(cols, `"id" TEXT PRIMARY KEY`)
		for _, p := range ent.Properties {
			cols = append(cols, fmt.Sprintf("%q %s", p.Name, columnType(p.Type)))
		}

		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", ent.Name, strings.Join(cols, ", "))
		if _, err := e.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table for entity %s: %w", ent.Name, err)
		}

		for _, p := range ent.Properties {
			if !p.Indexed {
				continue
			}
			idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (%q)",
				"idx_"+ent.Name+"_"+p.Name, ent.Name, p.Name)
			if _, err := e.db.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("failed to create index on %s.%s: %w", ent.Name, p.Name, err)
			}
		}
	}
	return nil
}

// recordCatalog registers the model in the store catalog.
func (e *Engine) recordCatalog(ctx context.Context) error {
	query := `
		INSERT INTO store_catalog (model_name, model_version, entity_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model_name) DO UPDATE SET
			model_version = excluded.model_version,
			entity_count = excluded.entity_count,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(timeFormat)
	_, err := e.db.ExecContext(ctx, query, e.model.Name, e.model.Version, len(e.model.Entities), now, now)
	if err != nil {
		return fmt.Errorf("failed to record model in catalog: %w", err)
	}
	return nil
}

// Count returns the number of stored records of the entity satisfying the
// predicate. It issues a COUNT query and never materializes property
// columns.
func (e *Engine) Count(ctx context.Context, entity string, pred *Predicate) (int64, error) {
	ent := e.model.Entity(entity)
	if ent == nil {
		return 0, fmt.Errorf("unknown entity: %s", entity)
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %q", ent.Name)
	var args []any
	if pred != nil {
		query += " WHERE " + pred.Expr
		args = pred.Args
	}

	var n int64
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", entity, err)
	}
	return n, nil
}

// Select returns the rows of the entity matching the query, sorted and
// limited as requested. No matches yields an empty slice, not an error.
func (e *Engine) Select(ctx context.Context, entity string, q Query) ([]Row, error) {
	ent := e.model.Entity(entity)
	if ent == nil {
		return nil, fmt.Errorf("unknown entity: %s", entity)
	}

	cols := make([]string, 0, len(ent.Properties)+1)
	cols = append(cols, `"id"`)
	for _, p := range ent.Properties {
		cols = append(cols, fmt.Sprintf("%q", p.Name))
	}

	query := fmt.Sprintf("SELECT %s FROM %q", strings.Join(cols, ", "), ent.Name)
	var args []any
	if q.Predicate != nil {
		query += " WHERE " + q.Predicate.Expr
		args = q.Predicate.Args
	}
	if q.Sort != nil {
		query += " ORDER BY " + q.Sort.Expr
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", entity, err)
	}
	defer rows.Close()

	hint := q.BatchSize
	if hint <= 0 {
		hint = 16
	}
	out := make([]Row, 0, hint)
	for rows.Next() {
		row, err := scanRow(ent, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", entity, err)
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", entity, err)
	}

	return out, nil
}

// Apply writes a change set to the store in one transaction.
func (e *Engine) Apply(ctx context.Context, cs ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range cs.Inserts {
		if err := e.insertTx(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, rec := range cs.Updates {
		if err := e.updateTx(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, ref := range cs.Deletes {
		ent := e.model.Entity(ref.Entity)
		if ent == nil {
			return fmt.Errorf("unknown entity: %s", ref.Entity)
		}
		query := fmt.Sprintf("DELETE FROM %q WHERE id = ?", ent.Name)
		if _, err := tx.ExecContext(ctx, query, ref.ID); err != nil {
			return fmt.Errorf("failed to delete %s %s: %w", ref.Entity, ref.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit change set: %w", err)
	}
	return nil
}

// DeleteWhere issues one engine-level bulk delete and returns the IDs of
// the removed records so callers can merge the change back into their
// working set.
func (e *Engine) DeleteWhere(ctx context.Context, entity string, pred *Predicate) ([]string, error) {
	ent := e.model.Entity(entity)
	if ent == nil {
		return nil, fmt.Errorf("unknown entity: %s", entity)
	}

	query := fmt.Sprintf("DELETE FROM %q", ent.Name)
	var args []any
	if pred != nil {
		query += " WHERE " + pred.Expr
		args = pred.Args
	}
	query += " RETURNING id"

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk delete %s: %w", entity, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deleted id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deleted ids: %w", err)
	}

	return ids, nil
}

func (e *Engine) insertTx(ctx context.Context, tx *sql.Tx, rec Record) error {
	ent := e.model.Entity(rec.Entity)
	if ent == nil {
		return fmt.Errorf("unknown entity: %s", rec.Entity)
	}

	cols := make([]string, 0, len(ent.Properties)+1)
	marks := make([]string, 0, len(ent.Properties)+1)
	args := make([]any, 0, len(ent.Properties)+1)

	cols = append(cols, `"id"`)
	marks = append(marks, "?")
	args = append(args, rec.ID)
	for _, p := range ent.Properties {
		cols = append(cols, fmt.Sprintf("%q", p.Name))
		marks = append(marks, "?")
		args = append(args, bindValue(rec.Values[p.Name]))
	}

	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		ent.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", rec.Entity, rec.ID, err)
	}
	return nil
}

func (e *Engine) updateTx(ctx context.Context, tx *sql.Tx, rec Record) error {
	ent := e.model.Entity(rec.Entity)
	if ent == nil {
		return fmt.Errorf("unknown entity: %s", rec.Entity)
	}

	sets := make([]string, 0, len(ent.Properties))
	args := make([]any, 0, len(ent.Properties)+1)
	for _, p := range ent.Properties {
		sets = append(sets, fmt.Sprintf("%q = ?", p.Name))
		args = append(args, bindValue(rec.Values[p.Name]))
	}
	args = append(args, rec.ID)

	query := fmt.Sprintf("UPDATE %q SET %s WHERE id = ?", ent.Name, strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s %s: %w", rec.Entity, rec.ID, err)
	}
	return nil
}

// bindValue converts a property value into a driver-friendly form.
func bindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(timeFormat)
	}
	return v
}

// columnType maps a model property type onto its SQLite column type.
func columnType(t model.PropertyType) string {
	switch t {
	case model.TypeInt, model.TypeBool:
		return "INTEGER"
	case model.TypeFloat:
		return "REAL"
	case model.TypeBytes:
		return "BLOB"
	default: // string, time
		return "TEXT"
	}
}

// scanRow reads one result row into a Row, decoding each column per the
// declared property type. Null columns are omitted from Values.
func scanRow(ent *model.Entity, rows *sql.Rows) (Row, error) {
	var id string

	type holder struct {
		prop model.Property
		s    sql.NullString
		i    sql.NullInt64
		f    sql.NullFloat64
		b    sql.NullBool
		blob []byte
	}

	holders := make([]*holder, len(ent.Properties))
	dest := make([]any, 0, len(ent.Properties)+1)
	dest = append(dest, &id)
	for i, p := range ent.Properties {
		h := &holder{prop: p}
		holders[i] = h
		switch p.Type {
		case model.TypeInt:
			dest = append(dest, &h.i)
		case model.TypeFloat:
			dest = append(dest, &h.f)
		case model.TypeBool:
			dest = append(dest, &h.b)
		case model.TypeBytes:
			dest = append(dest, &h.blob)
		default: // string, time
			dest = append(dest, &h.s)
		}
	}

	if err := rows.Scan(dest...); err != nil {
		return Row{}, err
	}

	values := make(map[string]any, len(ent.Properties))
	for _, h := range holders {
		switch h.prop.Type {
		case model.TypeInt:
			if h.i.Valid {
				values[h.prop.Name] = h.i.Int64
			}
		case model.TypeFloat:
			if h.f.Valid {
				values[h.prop.Name] = h.f.Float64
			}
		case model.TypeBool:
			if h.b.Valid {
				values[h.prop.Name] = h.b.Bool
			}
		case model.TypeBytes:
			if h.blob != nil {
				values[h.prop.Name] = h.blob
			}
		case model.TypeTime:
			if h.s.Valid {
				t, err := time.Parse(timeFormat, h.s.String)
				if err != nil {
					return Row{}, fmt.Errorf("invalid time value for %s: %w", h.prop.Name, err)
				}
				values[h.prop.Name] = t
			}
		default:
			if h.s.Valid {
				values[h.prop.Name] = h.s.String
			}
		}
	}

	return Row{ID: id, Values: values}, nil
}
