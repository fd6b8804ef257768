package ids

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/model"
)

func TestFirstIDsPerSpace(t *testing.T) {
	ctx := context.Background()
	g := NewGenerator(NewMemorySource(), 4)

	item, err := g.NextItemID(ctx)
	require.NoError(t, err)
	version, err := g.NextVersionID(ctx)
	require.NoError(t, err)
	succ, err := g.NextSuccessorID(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.ID(1), item)
	assert.Equal(t, model.ID(2), version)
	assert.Equal(t, model.ID(3), succ)

	next, err := g.NextItemID(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ID(4), next)
}

func TestSpaceOf(t *testing.T) {
	tests := []struct {
		id    model.ID
		space Space
		ok    bool
	}{
		{1, SpaceItem, true},
		{2, SpaceVersion, true},
		{3, SpaceSuccessor, true},
		{301, SpaceItem, true},
		{302, SpaceVersion, true},
		{model.RootID, 0, false},
		{-4, 0, false},
	}
	for _, tt := range tests {
		space, ok := SpaceOf(tt.id)
		assert.Equal(t, tt.ok, ok, "id %d", tt.id)
		assert.Equal(t, tt.space, space, "id %d", tt.id)
	}
}

func TestMakeRoundTrip(t *testing.T) {
	for _, s := range Spaces {
		for c := int64(0); c < 50; c++ {
			got, ok := SpaceOf(Make(s, c))
			require.True(t, ok)
			assert.Equal(t, s, got)
		}
	}
}

func TestConcurrentIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	g := NewGenerator(NewMemorySource(), 3)

	const workers, perWorker = 8, 200
	results := make(chan model.ID, workers*perWorker*len(Spaces))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				for _, s := range Spaces {
					id, err := g.Next(ctx, s)
					if err != nil {
						t.Error(err)
						return
					}
					results <- id
				}
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[model.ID]bool)
	for id := range results {
		require.False(t, seen[id], "duplicate id %d", id)
		require.NotEqual(t, model.RootID, id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker*len(Spaces))
}

func TestGeneratorsSharingSourceDoNotCollide(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource()
	a := NewGenerator(src, 2)
	b := NewGenerator(src, 2)

	seen := make(map[model.ID]bool)
	for i := 0; i < 20; i++ {
		for _, g := range []*Generator{a, b} {
			id, err := g.NextVersionID(ctx)
			require.NoError(t, err)
			require.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
	}
}

type failingSource struct{}

var errLease = errors.New("backend unavailable")

func (failingSource) Lease(context.Context, string, int64) (int64, error) {
	return 0, errLease
}

func TestLeaseErrorIsWrapped(t *testing.T) {
	g := NewGenerator(failingSource{}, 0)
	_, err := g.NextItemID(context.Background())
	assert.ErrorIs(t, err, errLease)
}

func TestMemorySourceHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemorySource().Lease(ctx, "item", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSourcePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ids.json")

	first, err := NewFileSource(path).Lease(ctx, "item", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first)

	second, err := NewFileSource(path).Lease(ctx, "item", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), second)

	other, err := NewFileSource(path).Lease(ctx, "version", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), other)
}

func TestFileSourceConcurrentLeases(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ids.json")

	const workers = 6
	starts := make(chan int64, workers*10)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate instances contend on the flock like separate processes.
			src := NewFileSource(path)
			for i := 0; i < 10; i++ {
				first, err := src.Lease(ctx, "successor", 4)
				if err != nil {
					t.Error(err)
					return
				}
				starts <- first
			}
		}()
	}
	wg.Wait()
	close(starts)

	seen := make(map[int64]bool)
	for s := range starts {
		require.False(t, seen[s], "block %d leased twice", s)
		require.Zero(t, s%4)
		seen[s] = true
	}
	assert.Len(t, seen, workers*10)
}

func TestLeaseRejectsNonPositiveSize(t *testing.T) {
	_, err := NewMemorySource().Lease(context.Background(), "item", 0)
	assert.Error(t, err)
	_, err = NewFileSource(filepath.Join(t.TempDir(), "ids.json")).Lease(context.Background(), "item", -1)
	assert.Error(t, err)
}
