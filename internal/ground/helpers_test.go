package ground

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/testutil"
)

// forEachBackend runs fn against a fresh Store on every storage adapter.
func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Helper()
	for _, b := range testutil.Backends() {
		t.Run(b.Name, func(t *testing.T) {
			fn(t, New(b.Open(t), nil))
		})
	}
}

// createTestStore opens a Store over SQLite.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return New(testutil.NewSQLite(t), nil, opts...)
}

func mustNode(t *testing.T, s *Store, key string) model.Node {
	t.Helper()
	n, err := s.CreateNode(context.Background(), key, key, nil)
	require.NoError(t, err)
	return n
}

func mustNodeVersion(t *testing.T, s *Store, nodeID model.ID, parents ...model.ID) model.NodeVersion {
	t.Helper()
	v, err := s.CreateNodeVersion(context.Background(), nodeID, model.RichVersionSpec{}, parents)
	require.NoError(t, err)
	return v
}

func mustEdgeVersion(t *testing.T, s *Store, edgeID, from, to model.ID, parents ...model.ID) model.EdgeVersion {
	t.Helper()
	v, err := s.CreateEdgeVersion(context.Background(), edgeID, model.EdgeVersionSpec{
		FromNodeVersionStartID: from,
		ToNodeVersionStartID:   to,
	}, parents)
	require.NoError(t, err)
	return v
}
