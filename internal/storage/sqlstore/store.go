package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/ground/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Secondary indexes for every indexed catalog field
const currentSchemaVersion = 1

// Store is a storage.Adapter over SQLite.
type Store struct {
	db      *sql.DB
	catalog storage.Catalog
	sq      squirrel.StatementBuilderType
}

var _ storage.Adapter = (*Store)(nil)

// Open creates or opens a SQLite database at path (":memory:" for a
// private in-memory database). Applies pragmas and migrations.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - BEGIN IMMEDIATE for every transaction, so writers serialize at
//     Begin instead of failing at their first write
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection
	// also keeps ":memory:" databases alive for the life of the Store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:      db,
		catalog: storage.Schema,
		sq:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}

// Close closes the database connection. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer the storage.Tx methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Begin implements storage.Adapter.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin", err)
	}
	return &Tx{tx: tx, store: s}, nil
}

// Lease implements storage.Adapter. The counter row is bumped in its own
// transaction so leases survive aborted operations.
func (s *Store) Lease(ctx context.Context, space string, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("lease size must be positive, got %d", n)
	}
	query, args, err := s.sq.Insert("id_sequence").
		Columns("space", "next").
		Values(space, n).
		Suffix("ON CONFLICT(space) DO UPDATE SET next = next + excluded.next RETURNING next").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("lease %s: %w", space, err)
	}

	var next int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&next); err != nil {
		return 0, classify("lease "+space, err)
	}
	return next - n, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds an index for every field the catalog marks as indexed.
// Unique columns are already indexed by their constraint.
func migrateToV1(db *sql.DB) error {
	for _, name := range storage.Schema.Names() {
		coll := storage.Schema[name]
		for _, field := range coll.Indexed {
			stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", name, field, name, field)
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migrate to v1: %w", err)
			}
		}
	}
	return nil
}

// classify maps a driver error onto the storage sentinels, keeping the
// original error in the chain.
func classify(op string, err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s: %w", storage.ErrConstraint, op, err)
	}
	return fmt.Errorf("%w: %s: %w", storage.ErrIO, op, err)
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
