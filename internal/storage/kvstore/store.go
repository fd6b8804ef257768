// Package kvstore is the key-value storage adapter, backed by badger.
//
// Key layout, all under one keyspace:
//
//	r/<collection>/<row>                         canonical JSON record
//	i/<collection>/<field>/<value>/<row>         secondary index entry
//	u/<collection>/<f1,f2>/<v1>/<v2>             unique claim, value is the row key
//	c/<space>                                    id counter (big-endian int64)
//
// Row ids are UUIDv7, so a prefix scan returns rows in insertion order.
// Values inside keys are canonical JSON, which keeps every component
// self-delimiting. Transactions are badger's serializable optimistic
// transactions; a commit that loses a conflict reports storage.ErrIO.
package kvstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/ground/internal/storage"
)

// leaseRetries bounds how often Lease retries a conflicting counter bump.
const leaseRetries = 16

// Store is a storage.Adapter over badger.
type Store struct {
	db      *badger.DB
	catalog storage.Catalog
}

var _ storage.Adapter = (*Store)(nil)

// Open opens a badger database in dir. An empty dir opens a private
// in-memory database.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}
	return &Store{db: db, catalog: storage.Schema}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Begin implements storage.Adapter.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: begin: %w", storage.ErrIO, err)
	}
	return &Tx{txn: s.db.NewTransaction(true), store: s}, nil
}

// Lease implements storage.Adapter.
func (s *Store) Lease(ctx context.Context, space string, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("lease size must be positive, got %d", n)
	}
	key := []byte("c/" + space)

	var first int64
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("%w: lease %s: %w", storage.ErrIO, space, err)
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			first = 0
			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				raw, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				first = int64(binary.BigEndian.Uint64(raw))
			}
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(first+n))
			return txn.Set(key, buf)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < leaseRetries {
			continue
		}
		if err != nil {
			return 0, classify("lease "+space, err)
		}
		return first, nil
	}
}

// classify maps a badger error onto the storage sentinels.
func classify(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", storage.ErrIO, op, err)
}
