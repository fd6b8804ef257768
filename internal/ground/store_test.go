package ground

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/ids"
	"github.com/roach88/ground/internal/logger"
	"github.com/roach88/ground/internal/metrics"
	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
	"github.com/roach88/ground/internal/testutil"
)

func TestFirstIDsOnFreshStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		n := mustNode(t, s, "n")
		v := mustNodeVersion(t, s, n.ID)
		succ, err := s.ParentsOf(context.Background(), n.ID, v.ID)
		require.NoError(t, err)

		assert.Equal(t, model.ID(1), n.ID)
		assert.Equal(t, model.ID(2), v.ID)
		assert.Equal(t, []model.ID{model.RootID}, succ)

		d, err := s.RetrieveDAG(context.Background(), n.ID)
		require.NoError(t, err)
		require.Equal(t, 1, d.Len())
	})
}

func TestConcurrentVersionsAreUnique(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		nodes := []model.Node{mustNode(t, s, "a"), mustNode(t, s, "b")}
		root := map[model.ID]model.ID{}
		for _, n := range nodes {
			root[n.ID] = mustNodeVersion(t, s, n.ID).ID
		}

		const perNode = 10
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			got []model.ID
		)
		for _, n := range nodes {
			for range perNode {
				wg.Add(1)
				go func() {
					defer wg.Done()
					v, err := s.CreateNodeVersion(ctx, n.ID, model.RichVersionSpec{}, []model.ID{root[n.ID]})
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					got = append(got, v.ID)
					mu.Unlock()
				}()
			}
		}
		wg.Wait()

		seen := map[model.ID]bool{}
		for _, id := range got {
			require.False(t, seen[id], "version id %d issued twice", id)
			seen[id] = true
		}
		assert.Len(t, seen, 2*perNode)

		for _, n := range nodes {
			leaves, err := s.GetLeaves(ctx, ByID(n.ID))
			require.NoError(t, err)
			assert.Len(t, leaves, perNode)
			assert.NotContains(t, leaves, root[n.ID])
		}
		assert.Zero(t, s.locks.held())
	})
}

func TestConcurrentUpdateItemSameChild(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	n := mustNode(t, s, "n")
	v1 := mustNodeVersion(t, s, n.ID)
	v2 := mustNodeVersion(t, s, n.ID, v1.ID)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateItem(ctx, n.ID, v2.ID, []model.ID{v1.ID})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	d, err := s.RetrieveDAG(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
}

func TestLeaseFailureIsStorageIO(t *testing.T) {
	s := New(testutil.NewSQLite(t), ids.NewGenerator(testutil.FailingSource{}, 1))

	_, err := s.CreateNode(context.Background(), "n", "n", nil)
	require.Error(t, err)
	assert.True(t, IsStorageIO(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, testutil.ErrLease)
}

func TestIDsAreLeasedFromSharedSource(t *testing.T) {
	src := testutil.NewRecordingSource(ids.NewMemorySource())
	s := New(testutil.NewSQLite(t), ids.NewGenerator(src, 4))

	n := mustNode(t, s, "n")
	mustNodeVersion(t, s, n.ID)

	spaces := map[string]int{}
	for _, l := range src.Leases() {
		spaces[l.Space]++
	}
	assert.Equal(t, map[string]int{"item": 1, "version": 1, "successor": 1}, spaces)
}

func TestCancelledContext(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		n := mustNode(t, s, "n")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.RetrieveDAG(ctx, n.ID)
		require.Error(t, err)
		assert.True(t, IsStorageIO(err), "got %v", err)
		assert.ErrorIs(t, err, storage.ErrIO)
	})
}

func TestOperationsAreLoggedAndCounted(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := logger.New(logger.Config{Level: "debug", Output: &buf})
	s := createTestStore(t, WithLogger(log), WithMetrics(m))
	ctx := context.Background()

	n := mustNode(t, s, "n")
	_, err := s.CreateNode(ctx, "dup", "n", nil)
	require.Error(t, err)
	_, err = s.GetLeaves(ctx, ByID(n.ID))
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.OperationsTotal.WithLabelValues("create_node", metrics.StatusOK)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.OperationsTotal.WithLabelValues("create_node", metrics.StatusError)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.OperationsTotal.WithLabelValues("get_leaves", metrics.StatusOK)))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.IDsIssuedTotal.WithLabelValues("item")))

	var (
		created bool
		failed  bool
	)
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "ground", entry["service"])
		assert.Equal(t, "ground", entry["component"])
		switch entry["message"] {
		case "item created":
			created = true
			assert.Equal(t, "n", entry["source_key"])
		case "operation failed":
			failed = true
			assert.Equal(t, "warn", entry["level"])
			assert.Equal(t, "create_node", entry["op"])
			assert.NotEmpty(t, entry["op_id"])
		}
	}
	assert.True(t, created, "missing item created log")
	assert.True(t, failed, "missing operation failed log")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"constraint", storage.ErrConstraint, CodeConflict},
		{"invalid record", storage.ErrInvalidRecord, CodeConsistency},
		{"unknown collection", storage.ErrUnknownCollection, CodeConsistency},
		{"io", storage.ErrIO, CodeStorageIO},
		{"other", errors.New("boom"), CodeStorageIO},
		{"classified", ItemNotFound(4), CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			var ge *Error
			require.True(t, errors.As(err, &ge))
			assert.Equal(t, tt.code, ge.Code)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, classify("op", nil))
}

func TestErrorFormatting(t *testing.T) {
	err := Conflict(1, 2, errors.New("cause"), "cannot place version %d", 2)
	assert.Equal(t, "CONFLICT: cannot place version 2 (item=1, version=2): cause", err.Error())
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.True(t, IsItemNotFound(ItemKeyNotFound(model.ItemEdge, "xy1")))
	assert.False(t, IsVersionNotFound(ItemNotFound(1)))
	assert.False(t, IsItemNotFound(SuccessorNotFound(3)))
}

func TestItemLocksSerializeAndRelease(t *testing.T) {
	l := newItemLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.execute(func() error {
				mu.Lock()
				active++
				maxSeen = max(maxSeen, active)
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			}, 7, 3, 7)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, l.held())
}

func TestSourceKeyLocksPerType(t *testing.T) {
	assert.NotEqual(t, sourceKeyLock(model.ItemNode, "x"), sourceKeyLock(model.ItemGraph, "x"))

	l := newSourceKeyLocks()
	inner := make(chan error, 1)
	err := l.execute(func() error {
		// A different key is free while node/x is held.
		done := make(chan struct{})
		go func() {
			inner <- l.execute(func() error { return nil }, sourceKeyLock(model.ItemGraph, "x"))
			close(done)
		}()
		<-done
		return nil
	}, sourceKeyLock(model.ItemNode, "x"))
	require.NoError(t, err)
	require.NoError(t, <-inner)
	assert.Zero(t, l.held())
}
