package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/storage"
	"github.com/roach88/ground/internal/storage/storagetest"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return createTestStore(t)
	})
}

func TestContractInMemory(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		s, err := Open("")
		require.NoError(t, err)
		return s
	})
}

func TestReopenKeepsRowsAndCounters(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, storage.Items, storage.Record{"id": ir.IRInt(1), "type": ir.IRString("node")}))
	require.NoError(t, tx.Commit())
	first, err := s.Lease(ctx, "item", 8)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()
	rows, err := tx.Select(ctx, storage.Items, storage.EqInt("id", 1))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	second, err := s.Lease(ctx, "item", 8)
	require.NoError(t, err)
	assert.Equal(t, first+8, second)
}

// Two transactions that read and write the same keys cannot both commit.
func TestConflictingCommitIsIOError(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	succ := func(id int64) storage.Record {
		return storage.Record{
			"id": ir.IRInt(id), "item_id": ir.IRInt(1),
			"from_version_id": ir.IRInt(0), "to_version_id": ir.IRInt(2),
		}
	}

	a, err := s.Begin(ctx)
	require.NoError(t, err)
	defer a.Abort()
	b, err := s.Begin(ctx)
	require.NoError(t, err)
	defer b.Abort()

	_, err = a.Select(ctx, storage.VersionSuccessors, storage.EqInt("item_id", 1))
	require.NoError(t, err)
	_, err = b.Select(ctx, storage.VersionSuccessors, storage.EqInt("item_id", 1))
	require.NoError(t, err)

	require.NoError(t, a.Insert(ctx, storage.VersionSuccessors, succ(3)))
	require.NoError(t, b.Insert(ctx, storage.VersionSuccessors, succ(6)))

	require.NoError(t, a.Commit())
	err = b.Commit()
	assert.ErrorIs(t, err, storage.ErrIO)
}

func TestUpdateMovesIndexEntries(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()
	require.NoError(t, tx.Insert(ctx, storage.Nodes, storage.Record{
		"item_id": ir.IRInt(1), "name": ir.IRString("x"), "source_key": ir.IRString("old"),
	}))
	n, err := tx.Update(ctx, storage.Nodes,
		storage.Record{"source_key": ir.IRString("new")},
		storage.EqInt("item_id", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := tx.Select(ctx, storage.Nodes, storage.EqString("source_key", "old"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = tx.Select(ctx, storage.Nodes, storage.EqString("source_key", "new"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "x", rows[0].MustString("name"))

	// The freed key can be claimed again.
	require.NoError(t, tx.Insert(ctx, storage.Nodes, storage.Record{
		"item_id": ir.IRInt(4), "name": ir.IRString("y"), "source_key": ir.IRString("old"),
	}))
}

func TestUniqueKeyComponentsDoNotCollide(t *testing.T) {
	a, _, err := uniqueKey("c", []string{"f"}, storage.Record{"f": ir.IRString("a/b")})
	require.NoError(t, err)
	b, _, err := uniqueKey("c", []string{"f"}, storage.Record{"f": ir.IRString("a")})
	require.NoError(t, err)
	assert.NotEqual(t, string(a), string(b))

	_, ok, err := uniqueKey("c", []string{"f", "g"}, storage.Record{"f": ir.IRInt(1)})
	require.NoError(t, err)
	assert.False(t, ok)
}
