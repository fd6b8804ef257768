package ground

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/dag"
	"github.com/roach88/ground/internal/ids"
	"github.com/roach88/ground/internal/model"
)

func TestRetrieveDAG(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n := mustNode(t, s, "n")
		v1 := mustNodeVersion(t, s, n.ID)
		v2 := mustNodeVersion(t, s, n.ID, v1.ID)

		d, err := s.RetrieveDAG(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, n.ID, d.ItemID())
		assert.ElementsMatch(t, []dag.Edge{
			{From: model.RootID, To: v1.ID},
			{From: v1.ID, To: v2.ID},
		}, d.Edges())
		assert.Equal(t, []model.ID{v2.ID}, d.Leaves())

		parents, err := s.ParentsOf(ctx, n.ID, v2.ID)
		require.NoError(t, err)
		assert.Equal(t, []model.ID{v1.ID}, parents)

		parents, err = s.ParentsOf(ctx, n.ID, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, []model.ID{model.RootID}, parents)

		_, err = s.RetrieveDAG(ctx, 10_000_000)
		assert.True(t, IsItemNotFound(err), "got %v", err)
	})
}

func TestRetrieveDAGEmpty(t *testing.T) {
	s := createTestStore(t)
	n := mustNode(t, s, "n")

	d, err := s.RetrieveDAG(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Zero(t, d.Len())
	assert.Empty(t, d.Leaves())
}

func TestAddSuccessor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n := mustNode(t, s, "n")
		v1 := mustNodeVersion(t, s, n.ID)
		v2 := mustNodeVersion(t, s, n.ID, v1.ID)
		v3 := mustNodeVersion(t, s, n.ID, v1.ID)

		t.Run("exact duplicate returns the stored successor", func(t *testing.T) {
			first, err := s.AddSuccessor(ctx, n.ID, v1.ID, v2.ID)
			require.NoError(t, err)
			again, err := s.AddSuccessor(ctx, n.ID, v1.ID, v2.ID)
			require.NoError(t, err)
			assert.Equal(t, first, again)

			got, err := s.RetrieveSuccessor(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, first, got)
			space, _ := ids.SpaceOf(got.ID)
			assert.Equal(t, ids.SpaceSuccessor, space)
		})

		t.Run("different parent is a conflict", func(t *testing.T) {
			_, err := s.AddSuccessor(ctx, n.ID, v3.ID, v2.ID)
			require.Error(t, err)
			assert.True(t, IsConflict(err))
			assert.ErrorIs(t, err, dag.ErrReparent)
		})

		t.Run("back edge is a conflict", func(t *testing.T) {
			_, err := s.AddSuccessor(ctx, n.ID, v2.ID, v1.ID)
			assert.True(t, IsConflict(err), "got %v", err)
		})

		t.Run("missing versions", func(t *testing.T) {
			_, err := s.AddSuccessor(ctx, n.ID, v1.ID, 5_000_000_002)
			assert.True(t, IsVersionNotFound(err), "got %v", err)
			_, err = s.AddSuccessor(ctx, n.ID, 5_000_000_002, v2.ID)
			assert.True(t, IsVersionNotFound(err), "got %v", err)
		})

		t.Run("unknown successor", func(t *testing.T) {
			_, err := s.RetrieveSuccessor(ctx, 5_000_000_003)
			require.Error(t, err)
			assert.True(t, IsNotFound(err))
			assert.Contains(t, err.Error(), "no successor found with id 5000000003")
		})
	})
}

func TestDAGAcyclicAndLeavesMatchEdges(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n := mustNode(t, s, "n")

		// A small diamond with a tail and a second root.
		a := mustNodeVersion(t, s, n.ID)
		b := mustNodeVersion(t, s, n.ID, a.ID)
		c := mustNodeVersion(t, s, n.ID, a.ID)
		d := mustNodeVersion(t, s, n.ID, b.ID, c.ID)
		mustNodeVersion(t, s, n.ID, d.ID)
		mustNodeVersion(t, s, n.ID)

		h, err := s.RetrieveDAG(ctx, n.ID)
		require.NoError(t, err)

		from := map[model.ID]bool{}
		to := map[model.ID]bool{}
		for _, e := range h.Edges() {
			from[e.From] = true
			to[e.To] = true
		}
		var want []model.ID
		for v := range to {
			if !from[v] {
				want = append(want, v)
			}
		}
		assert.ElementsMatch(t, want, h.Leaves())

		// Walking from the root never revisits a version on one path.
		var walk func(v model.ID, path map[model.ID]bool)
		walk = func(v model.ID, path map[model.ID]bool) {
			require.False(t, path[v], "cycle through %d", v)
			path[v] = true
			for _, c := range h.ChildrenOf(v) {
				walk(c, path)
			}
			delete(path, v)
		}
		walk(model.RootID, map[model.ID]bool{})

		assert.Equal(t, []model.ID{b.ID, c.ID}, h.ParentsOf(d.ID))
	})
}
