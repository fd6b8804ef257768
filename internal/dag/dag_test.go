package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/model"
)

func chain(ids ...model.ID) []Edge {
	edges := []Edge{{From: model.RootID, To: ids[0]}}
	for i := 1; i < len(ids); i++ {
		edges = append(edges, Edge{From: ids[i-1], To: ids[i]})
	}
	return edges
}

func TestLeavesOfChain(t *testing.T) {
	d := New(1, chain(2, 5, 8))
	assert.Equal(t, []model.ID{8}, d.Leaves())
	assert.Equal(t, []model.ID{5}, d.ParentsOf(8))
	assert.Equal(t, []model.ID{model.RootID}, d.ParentsOf(2))
	assert.Equal(t, []model.ID{5}, d.ChildrenOf(2))
}

func TestLeavesEmpty(t *testing.T) {
	d := New(1, nil)
	assert.Empty(t, d.Leaves())
	assert.NotNil(t, d.Leaves())
	assert.False(t, d.Contains(model.RootID))
}

func TestLeavesBranchAndMerge(t *testing.T) {
	d := New(1, chain(2, 5))
	d.Add(2, 8)
	assert.Equal(t, []model.ID{5, 8}, d.Leaves())

	placed, err := d.CheckPlacement(11, []model.ID{5, 8})
	require.NoError(t, err)
	assert.False(t, placed)
	d.Add(5, 11)
	d.Add(8, 11)
	assert.Equal(t, []model.ID{11}, d.Leaves())
	assert.Equal(t, []model.ID{5, 8}, d.ParentsOf(11))
}

func TestLeavesMatchEdgeDefinition(t *testing.T) {
	d := New(1, chain(2, 5, 8))
	d.Add(2, 11)
	d.Add(11, 14)

	tos := map[model.ID]bool{}
	froms := map[model.ID]bool{}
	for _, e := range d.Edges() {
		tos[e.To] = true
		froms[e.From] = true
	}
	var want []model.ID
	for to := range tos {
		if !froms[to] {
			want = append(want, to)
		}
	}
	assert.ElementsMatch(t, want, d.Leaves())
}

func TestAppendToEveryLeaf(t *testing.T) {
	d := New(1, chain(2))
	d.Add(2, 5)
	d.Add(2, 8)
	old := d.Leaves()

	for _, leaf := range old {
		require.NoError(t, d.CheckEdge(leaf, leaf+100))
		d.Add(leaf, leaf+100)
	}
	for _, leaf := range old {
		assert.NotContains(t, d.Leaves(), leaf)
		assert.Contains(t, d.Leaves(), leaf+100)
	}
}

func TestCheckEdge(t *testing.T) {
	d := New(1, chain(2, 5, 8))

	tests := []struct {
		name     string
		from, to model.ID
		want     error
	}{
		{"new child", 8, 11, nil},
		{"branch", 2, 11, nil},
		{"duplicate", 2, 5, ErrDuplicateEdge},
		{"reparent", 2, 8, ErrReparent},
		{"self loop", 11, 11, ErrCycle},
		{"back edge to root", 8, model.RootID, ErrCycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.CheckEdge(tt.from, tt.to)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckEdgeDetectsCycleThroughUnplacedVersion(t *testing.T) {
	// 20 has children but no parent yet; placing it under one of its
	// descendants closes a loop.
	d := New(1, chain(2))
	d.Add(20, 23)
	d.Add(23, 26)
	assert.ErrorIs(t, d.CheckEdge(26, 20), ErrCycle)
	assert.NoError(t, d.CheckEdge(2, 20))
}

func TestCheckPlacementIdempotent(t *testing.T) {
	d := New(1, chain(2, 5))

	placed, err := d.CheckPlacement(5, []model.ID{2})
	require.NoError(t, err)
	assert.True(t, placed)

	_, err = d.CheckPlacement(5, []model.ID{2, 8})
	assert.ErrorIs(t, err, ErrReparent)
}

func TestParentsOfReturnsSnapshot(t *testing.T) {
	d := New(1, chain(2, 5))
	ps := d.ParentsOf(5)
	ps[0] = 99
	assert.Equal(t, []model.ID{2}, d.ParentsOf(5))

	edges := d.Edges()
	edges[0].To = 99
	assert.Equal(t, model.ID(2), d.Edges()[0].To)
}

func TestAddIgnoresDuplicate(t *testing.T) {
	d := New(1, chain(2))
	d.Add(model.RootID, 2)
	assert.Equal(t, 1, d.Len())
}

func TestReaches(t *testing.T) {
	d := New(1, chain(2, 5, 8))
	assert.True(t, d.Reaches(model.RootID, 8))
	assert.True(t, d.Reaches(5, 5))
	assert.False(t, d.Reaches(8, 2))
}
