// Package sqlstore is the relational storage adapter, backed by SQLite.
//
// Each collection in storage.Schema is one table (schema.sql). Optional
// fields are nullable columns and NULL reads back as an absent field.
// Statements are built with squirrel; the only hand-written SQL is the
// schema and its migrations.
//
// # Transactions
//
//   - Every transaction starts with BEGIN IMMEDIATE (_txlock=immediate),
//     so concurrent writers queue on the database lock up front.
//   - The pool holds a single connection. Callers must not lease ids
//     while holding an open Tx from the same Store.
//   - UNIQUE violations surface as storage.ErrConstraint; every other
//     driver failure, cancellation included, as storage.ErrIO.
//
// # Id leases
//
// Counters live in id_sequence(space, next). A lease is one upsert with
// RETURNING, committed on its own.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package sqlstore
