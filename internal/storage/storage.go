// Package storage defines the persistence contract the versioning engine
// runs on.
//
// An Adapter hands out transactions over a fixed set of collections (see
// Catalog). Every engine operation runs in exactly one Tx:
//
//	tx, err := adapter.Begin(ctx)
//	if err != nil { ... }
//	defer tx.Abort()
//	... Insert / Select / Update ...
//	return tx.Commit()
//
// Abort is safe after Commit and after a failed call, so the deferred
// Abort releases the transaction on every path.
//
// Adapters live in the sqlstore and kvstore subpackages. The engine
// depends only on this package.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrIO covers connectivity loss, timeouts, cancellation and
	// serialization conflicts. Callers may retry the whole operation.
	ErrIO = errors.New("storage: i/o failure")

	// ErrConstraint reports a uniqueness violation.
	ErrConstraint = errors.New("storage: constraint violation")

	// ErrUnknownCollection reports a collection missing from the Catalog.
	ErrUnknownCollection = errors.New("storage: unknown collection")

	// ErrInvalidRecord reports a record or predicate that does not match
	// its collection's fields.
	ErrInvalidRecord = errors.New("storage: invalid record")

	// ErrTxDone reports use of a committed or aborted transaction.
	ErrTxDone = errors.New("storage: transaction already finished")
)

// Adapter is a transactional backend.
type Adapter interface {
	// Begin opens a read-write transaction.
	Begin(ctx context.Context) (Tx, error)

	// Lease reserves n id counters in space and returns the first.
	// Leases are committed immediately and independently of any Tx.
	Lease(ctx context.Context, space string, n int64) (int64, error)

	Close() error
}

// Tx is one unit of work. A Tx is not safe for concurrent use.
type Tx interface {
	// Insert writes one record.
	Insert(ctx context.Context, collection string, r Record) error

	// Select returns every record matching all predicates. No match
	// yields an empty slice and no error.
	Select(ctx context.Context, collection string, preds ...Predicate) ([]Record, error)

	// Update sets fields on every record matching all predicates and
	// returns the number of records changed.
	Update(ctx context.Context, collection string, set Record, preds ...Predicate) (int64, error)

	Commit() error

	// Abort rolls back. It is a no-op once the Tx has finished.
	Abort() error
}
