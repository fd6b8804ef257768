package ground

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/metrics"
	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/testutil"
)

func TestEdgeLeavesBySourceKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		x := mustNode(t, s, "X")
		y := mustNode(t, s, "Y")
		x1 := mustNodeVersion(t, s, x.ID)
		y1 := mustNodeVersion(t, s, y.ID)

		e, err := s.CreateEdge(ctx, "XY", "xy1", x.ID, y.ID, nil)
		require.NoError(t, err)
		v1 := mustEdgeVersion(t, s, e.ID, x1.ID, y1.ID)

		leaves, err := s.GetEdgeLeaves(ctx, "xy1")
		require.NoError(t, err)
		assert.Equal(t, []model.ID{v1.ID}, leaves)

		got, err := s.RetrieveEdgeVersion(ctx, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, x1.ID, got.FromNodeVersionStartID)
		assert.Equal(t, y1.ID, got.ToNodeVersionStartID)
		assert.False(t, got.FromNodeVersionEndID.Valid)
		assert.False(t, got.ToNodeVersionEndID.Valid)
	})
}

func TestEndpointClosing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		x := mustNode(t, s, "x")
		y := mustNode(t, s, "y")
		n1 := mustNodeVersion(t, s, x.ID)
		n2 := mustNodeVersion(t, s, x.ID, n1.ID)
		n3 := mustNodeVersion(t, s, x.ID, n2.ID)
		y1 := mustNodeVersion(t, s, y.ID)
		y2 := mustNodeVersion(t, s, y.ID, y1.ID)
		e, err := s.CreateEdge(ctx, "xy", "xy", x.ID, y.ID, nil)
		require.NoError(t, err)

		e1 := mustEdgeVersion(t, s, e.ID, n1.ID, y1.ID)

		// The from-endpoint moves to n2: e1's from side closes at n2's
		// parent, its to side stays open.
		e2 := mustEdgeVersion(t, s, e.ID, n2.ID, y1.ID, e1.ID)
		got1, err := s.RetrieveEdgeVersion(ctx, e1.ID)
		require.NoError(t, err)
		assert.Equal(t, model.Some(n1.ID), got1.FromNodeVersionEndID)
		assert.False(t, got1.ToNodeVersionEndID.Valid)

		// Only the to-endpoint moves now.
		mustEdgeVersion(t, s, e.ID, n2.ID, y2.ID, e2.ID)
		got2, err := s.RetrieveEdgeVersion(ctx, e2.ID)
		require.NoError(t, err)
		assert.False(t, got2.FromNodeVersionEndID.Valid)
		assert.Equal(t, model.Some(y1.ID), got2.ToNodeVersionEndID)

		// A closed end id never changes.
		mustEdgeVersion(t, s, e.ID, n3.ID, y1.ID, e1.ID)
		again, err := s.RetrieveEdgeVersion(ctx, e1.ID)
		require.NoError(t, err)
		assert.Equal(t, model.Some(n1.ID), again.FromNodeVersionEndID)
		assert.False(t, again.ToNodeVersionEndID.Valid)
	})
}

func TestEndpointClosingFanIn(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	x := mustNode(t, s, "x")
	y := mustNode(t, s, "y")
	n1 := mustNodeVersion(t, s, x.ID)
	n2 := mustNodeVersion(t, s, x.ID, n1.ID)
	y1 := mustNodeVersion(t, s, y.ID)
	e, err := s.CreateEdge(ctx, "xy", "xy", x.ID, y.ID, nil)
	require.NoError(t, err)

	a := mustEdgeVersion(t, s, e.ID, n1.ID, y1.ID)
	b := mustEdgeVersion(t, s, e.ID, n1.ID, y1.ID)
	merge := mustEdgeVersion(t, s, e.ID, n2.ID, y1.ID, a.ID, b.ID)

	for _, id := range []model.ID{a.ID, b.ID} {
		got, err := s.RetrieveEdgeVersion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.Some(n1.ID), got.FromNodeVersionEndID, "edge version %d", id)
	}
	leaves, err := s.GetLeaves(ctx, ByID(e.ID))
	require.NoError(t, err)
	assert.Equal(t, []model.ID{merge.ID}, leaves)
}

func TestEndpointWithoutAncestorIsConsistencyError(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		x := mustNode(t, s, "x")
		y := mustNode(t, s, "y")
		n1 := mustNodeVersion(t, s, x.ID)
		other := mustNodeVersion(t, s, x.ID) // a second root version of x
		y1 := mustNodeVersion(t, s, y.ID)
		e, err := s.CreateEdge(ctx, "xy", "xy", x.ID, y.ID, nil)
		require.NoError(t, err)
		e1 := mustEdgeVersion(t, s, e.ID, n1.ID, y1.ID)

		_, err = s.CreateEdgeVersion(ctx, e.ID, model.EdgeVersionSpec{
			FromNodeVersionStartID: other.ID,
			ToNodeVersionStartID:   y1.ID,
		}, []model.ID{e1.ID})
		require.Error(t, err)
		assert.True(t, IsConsistency(err))
		assert.False(t, IsRetryable(err))

		// The whole operation rolled back.
		leaves, err := s.GetEdgeLeaves(ctx, "xy")
		require.NoError(t, err)
		assert.Equal(t, []model.ID{e1.ID}, leaves)
		got, err := s.RetrieveEdgeVersion(ctx, e1.ID)
		require.NoError(t, err)
		assert.False(t, got.FromNodeVersionEndID.Valid)
	})
}

func TestEdgeVersionValidatesNodeVersions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	x := mustNode(t, s, "x")
	y := mustNode(t, s, "y")
	x1 := mustNodeVersion(t, s, x.ID)
	y1 := mustNodeVersion(t, s, y.ID)
	e, err := s.CreateEdge(ctx, "xy", "xy", x.ID, y.ID, nil)
	require.NoError(t, err)

	_, err = s.CreateEdgeVersion(ctx, e.ID, model.EdgeVersionSpec{
		FromNodeVersionStartID: x1.ID,
		ToNodeVersionStartID:   3_000_000_002,
	}, nil)
	assert.True(t, IsVersionNotFound(err), "got %v", err)

	// Endpoints are swapped: y1 is not a version of the from-node.
	_, err = s.CreateEdgeVersion(ctx, e.ID, model.EdgeVersionSpec{
		FromNodeVersionStartID: y1.ID,
		ToNodeVersionStartID:   x1.ID,
	}, nil)
	assert.True(t, IsConflict(err), "got %v", err)
}

func TestEndpointClosedMetric(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := New(testutil.NewSQLite(t), nil, WithMetrics(m))
	ctx := context.Background()
	x := mustNode(t, s, "x")
	y := mustNode(t, s, "y")
	n1 := mustNodeVersion(t, s, x.ID)
	n2 := mustNodeVersion(t, s, x.ID, n1.ID)
	y1 := mustNodeVersion(t, s, y.ID)
	y2 := mustNodeVersion(t, s, y.ID, y1.ID)
	e, err := s.CreateEdge(ctx, "xy", "xy", x.ID, y.ID, nil)
	require.NoError(t, err)

	e1 := mustEdgeVersion(t, s, e.ID, n1.ID, y1.ID)
	mustEdgeVersion(t, s, e.ID, n2.ID, y2.ID, e1.ID)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.EndpointsClosed))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.OperationsTotal.WithLabelValues("create_edge_version", metrics.StatusOK)))
}
