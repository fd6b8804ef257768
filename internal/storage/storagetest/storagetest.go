// Package storagetest checks that an adapter honours the storage contract.
package storagetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/storage"
)

// Opener returns a fresh, empty adapter. The suite closes it.
type Opener func(t *testing.T) storage.Adapter

// Run exercises every part of the contract against adapters from open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, a storage.Adapter)
	}{
		{"InsertSelect", testInsertSelect},
		{"SelectEmpty", testSelectEmpty},
		{"SelectPredicates", testSelectPredicates},
		{"OptionalFieldsOmitted", testOptionalFieldsOmitted},
		{"UniqueViolation", testUniqueViolation},
		{"CompositeUnique", testCompositeUnique},
		{"UnknownCollection", testUnknownCollection},
		{"InvalidRecord", testInvalidRecord},
		{"AbortRollsBack", testAbortRollsBack},
		{"AbortIdempotent", testAbortIdempotent},
		{"UseAfterCommit", testUseAfterCommit},
		{"Update", testUpdate},
		{"UpdateUniqueViolation", testUpdateUniqueViolation},
		{"ReadYourWrites", testReadYourWrites},
		{"LeaseDisjoint", testLeaseDisjoint},
		{"LeaseConcurrent", testLeaseConcurrent},
		{"CancelledContext", testCancelledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := open(t)
			t.Cleanup(func() { a.Close() })
			tt.fn(t, a)
		})
	}
}

func node(itemID int64, key string) storage.Record {
	return storage.Record{
		"item_id":    ir.IRInt(itemID),
		"name":       ir.IRString("n" + key),
		"source_key": ir.IRString(key),
	}
}

// commitRecords inserts records into collection in one transaction.
func commitRecords(t *testing.T, a storage.Adapter, collection string, records ...storage.Record) {
	t.Helper()
	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()
	for _, r := range records {
		require.NoError(t, tx.Insert(ctx, collection, r))
	}
	require.NoError(t, tx.Commit())
}

func selectAll(t *testing.T, a storage.Adapter, collection string, preds ...storage.Predicate) []storage.Record {
	t.Helper()
	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()
	rows, err := tx.Select(ctx, collection, preds...)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return rows
}

func testInsertSelect(t *testing.T, a storage.Adapter) {
	commitRecords(t, a, storage.Nodes, node(1, "x"))

	rows := selectAll(t, a, storage.Nodes, storage.EqString("source_key", "x"))
	require.Len(t, rows, 1)
	assert.Equal(t, node(1, "x"), rows[0])
}

func testSelectEmpty(t *testing.T, a storage.Adapter) {
	rows := selectAll(t, a, storage.Nodes, storage.EqString("source_key", "missing"))
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func testSelectPredicates(t *testing.T, a storage.Adapter) {
	succ := func(id, item, from, to int64) storage.Record {
		return storage.Record{
			"id":              ir.IRInt(id),
			"item_id":         ir.IRInt(item),
			"from_version_id": ir.IRInt(from),
			"to_version_id":   ir.IRInt(to),
		}
	}
	commitRecords(t, a, storage.VersionSuccessors,
		succ(3, 1, 0, 2),
		succ(6, 1, 2, 5),
		succ(9, 1, 2, 8),
		succ(12, 4, 0, 11),
	)

	assert.Len(t, selectAll(t, a, storage.VersionSuccessors, storage.EqInt("item_id", 1)), 3)
	assert.Len(t, selectAll(t, a, storage.VersionSuccessors), 4)

	rows := selectAll(t, a, storage.VersionSuccessors,
		storage.EqInt("item_id", 1), storage.EqInt("from_version_id", 2))
	var tos []int64
	for _, r := range rows {
		tos = append(tos, r.MustInt("to_version_id"))
	}
	assert.ElementsMatch(t, []int64{5, 8}, tos)

	rows = selectAll(t, a, storage.VersionSuccessors, storage.EqInt("to_version_id", 11))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(12), rows[0].MustInt("id"))
}

func testOptionalFieldsOmitted(t *testing.T, a storage.Adapter) {
	commitRecords(t, a, storage.RichVersions,
		storage.Record{"id": ir.IRInt(2), "item_id": ir.IRInt(1)},
		storage.Record{
			"id": ir.IRInt(5), "item_id": ir.IRInt(1),
			"structure_version_id": ir.IRInt(8), "reference": ir.IRString("http://x"),
		},
	)

	rows := selectAll(t, a, storage.RichVersions, storage.EqInt("id", 2))
	require.Len(t, rows, 1)
	_, ok := rows[0]["structure_version_id"]
	assert.False(t, ok)
	_, ok = rows[0]["reference"]
	assert.False(t, ok)

	rows = selectAll(t, a, storage.RichVersions, storage.EqInt("id", 5))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(8), rows[0].MustInt("structure_version_id"))
	assert.Equal(t, "http://x", rows[0].MustString("reference"))
}

func testUniqueViolation(t *testing.T, a storage.Adapter) {
	commitRecords(t, a, storage.Nodes, node(1, "x"))

	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()
	err = tx.Insert(ctx, storage.Nodes, node(4, "x"))
	assert.ErrorIs(t, err, storage.ErrConstraint)
}

func testCompositeUnique(t *testing.T, a storage.Adapter) {
	tag := func(item int64, key string) storage.Record {
		return storage.Record{"item_id": ir.IRInt(item), "key": ir.IRString(key)}
	}
	commitRecords(t, a, storage.ItemTags, tag(1, "k"), tag(4, "k"), tag(1, "j"))

	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()
	assert.ErrorIs(t, tx.Insert(ctx, storage.ItemTags, tag(4, "k")), storage.ErrConstraint)
}

func testUnknownCollection(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()

	_, err = tx.Select(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
	err = tx.Insert(ctx, "nope", storage.Record{})
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
}

func testInvalidRecord(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()

	err = tx.Insert(ctx, storage.Items, storage.Record{"id": ir.IRString("1"), "type": ir.IRString("node")})
	assert.ErrorIs(t, err, storage.ErrInvalidRecord)

	err = tx.Insert(ctx, storage.Items, storage.Record{"id": ir.IRInt(1)})
	assert.ErrorIs(t, err, storage.ErrInvalidRecord)

	_, err = tx.Select(ctx, storage.Items, storage.EqString("bogus", "x"))
	assert.ErrorIs(t, err, storage.ErrInvalidRecord)
}

func testAbortRollsBack(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, storage.Nodes, node(1, "x")))
	require.NoError(t, tx.Abort())

	assert.Empty(t, selectAll(t, a, storage.Nodes))
}

func testAbortIdempotent(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Abort())
	assert.NoError(t, tx.Abort())

	tx, err = a.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, storage.Nodes, node(1, "x")))
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Abort())

	assert.Len(t, selectAll(t, a, storage.Nodes), 1)
}

func testUseAfterCommit(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, tx.Insert(ctx, storage.Nodes, node(1, "x")), storage.ErrTxDone)
	_, err = tx.Select(ctx, storage.Nodes)
	assert.ErrorIs(t, err, storage.ErrTxDone)
	assert.ErrorIs(t, tx.Commit(), storage.ErrTxDone)
}

func testUpdate(t *testing.T, a storage.Adapter) {
	ev := func(id int64) storage.Record {
		return storage.Record{
			"id": ir.IRInt(id), "edge_id": ir.IRInt(1),
			"from_node_version_start_id": ir.IRInt(2),
			"to_node_version_start_id":   ir.IRInt(5),
		}
	}
	commitRecords(t, a, storage.EdgeVersions, ev(8), ev(11))

	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()
	n, err := tx.Update(ctx, storage.EdgeVersions,
		storage.Record{"from_node_version_end_id": ir.IRInt(14)},
		storage.EqInt("id", 8))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = tx.Update(ctx, storage.EdgeVersions,
		storage.Record{"to_node_version_end_id": ir.IRInt(17)},
		storage.EqInt("id", 99))
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, tx.Commit())

	rows := selectAll(t, a, storage.EdgeVersions, storage.EqInt("id", 8))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(14), rows[0].MustInt("from_node_version_end_id"))
	_, ok := rows[0]["to_node_version_end_id"]
	assert.False(t, ok)

	rows = selectAll(t, a, storage.EdgeVersions, storage.EqInt("from_node_version_end_id", 14))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(8), rows[0].MustInt("id"))
}

func testUpdateUniqueViolation(t *testing.T, a storage.Adapter) {
	commitRecords(t, a, storage.Nodes, node(1, "x"), node(4, "y"))

	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()
	_, err = tx.Update(ctx, storage.Nodes,
		storage.Record{"source_key": ir.IRString("x")},
		storage.EqInt("item_id", 4))
	assert.ErrorIs(t, err, storage.ErrConstraint)
}

func testReadYourWrites(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()

	require.NoError(t, tx.Insert(ctx, storage.Nodes, node(1, "x")))
	rows, err := tx.Select(ctx, storage.Nodes, storage.EqString("source_key", "x"))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func testLeaseDisjoint(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	first, err := a.Lease(ctx, "item", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first)

	second, err := a.Lease(ctx, "item", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), second)

	other, err := a.Lease(ctx, "version", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), other)
}

func testLeaseConcurrent(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	const workers, perWorker = 4, 10

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				first, err := a.Lease(ctx, "successor", 2)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if seen[first] {
					t.Errorf("block %d leased twice", first)
				}
				seen[first] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func testCancelledContext(t *testing.T, a storage.Adapter) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Begin(ctx)
	assert.ErrorIs(t, err, storage.ErrIO)

	_, err = a.Lease(ctx, "item", 1)
	assert.ErrorIs(t, err, storage.ErrIO)
}
