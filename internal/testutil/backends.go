// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/ground/internal/storage"
	"github.com/roach88/ground/internal/storage/kvstore"
	"github.com/roach88/ground/internal/storage/sqlstore"
)

// Backend names a storage adapter and opens a fresh instance of it.
type Backend struct {
	Name string
	Open func(t *testing.T) storage.Adapter
}

// Backends returns every storage adapter. Each Open call returns an empty
// store that is closed when the test ends.
func Backends() []Backend {
	return []Backend{
		{Name: "sqlite", Open: func(t *testing.T) storage.Adapter { return NewSQLite(t) }},
		{Name: "badger", Open: func(t *testing.T) storage.Adapter { return NewBadger(t) }},
	}
}

// NewSQLite opens a SQLite store in a temp directory.
func NewSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(filepath.Join(t.TempDir(), "ground.db"))
	if err != nil {
		t.Fatalf("sqlstore.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewBadger opens a badger store in a temp directory.
func NewBadger(t *testing.T) *kvstore.Store {
	t.Helper()
	s, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kvstore.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
