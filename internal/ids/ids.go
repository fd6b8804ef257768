// Package ids issues item, version and successor ids.
//
// The three spaces are disjoint: an id is counter*3 + offset, with offset
// 1 for items, 2 for versions and 3 for successors. Zero is never issued
// and stays reserved for the root sentinel. Counters are leased from a
// Source in blocks, so a Generator only touches its Source once per
// block and ids from an abandoned block are skipped, never reused.
package ids

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/ground/internal/model"
)

// Space is one of the disjoint id spaces.
type Space int

const (
	SpaceItem Space = iota + 1
	SpaceVersion
	SpaceSuccessor
)

// Spaces lists every id space.
var Spaces = []Space{SpaceItem, SpaceVersion, SpaceSuccessor}

func (s Space) String() string {
	switch s {
	case SpaceItem:
		return "item"
	case SpaceVersion:
		return "version"
	case SpaceSuccessor:
		return "successor"
	default:
		return fmt.Sprintf("space(%d)", int(s))
	}
}

const spaceCount = 3

// Make returns the id for counter in space.
func Make(space Space, counter int64) model.ID {
	return model.ID(counter*spaceCount + int64(space))
}

// SpaceOf returns the space an id was issued from. The root sentinel and
// negative ids belong to no space.
func SpaceOf(id model.ID) (Space, bool) {
	if id <= 0 {
		return 0, false
	}
	return Space((int64(id)-1)%spaceCount + 1), true
}

// Source hands out blocks of counter values. Lease reserves n values in
// space and returns the first; the block is [first, first+n). A Source
// must never hand out the same value twice, even across processes that
// share its backing store.
type Source interface {
	Lease(ctx context.Context, space string, n int64) (int64, error)
}

// DefaultBlockSize is the number of counters leased at a time.
const DefaultBlockSize = 64

type block struct {
	next, end int64
}

// Generator issues ids from a Source. Safe for concurrent use.
type Generator struct {
	src       Source
	blockSize int64

	mu     sync.Mutex
	blocks map[Space]*block
}

// NewGenerator returns a generator leasing blockSize counters at a time.
// A non-positive blockSize selects DefaultBlockSize.
func NewGenerator(src Source, blockSize int64) *Generator {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Generator{
		src:       src,
		blockSize: blockSize,
		blocks:    make(map[Space]*block, spaceCount),
	}
}

// Next returns a fresh id in space.
func (g *Generator) Next(ctx context.Context, space Space) (model.ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.blocks[space]
	if b == nil || b.next >= b.end {
		first, err := g.src.Lease(ctx, space.String(), g.blockSize)
		if err != nil {
			return 0, fmt.Errorf("lease %s ids: %w", space, err)
		}
		b = &block{next: first, end: first + g.blockSize}
		g.blocks[space] = b
	}
	c := b.next
	b.next++
	return Make(space, c), nil
}

// NextItemID returns a fresh item id.
func (g *Generator) NextItemID(ctx context.Context) (model.ID, error) {
	return g.Next(ctx, SpaceItem)
}

// NextVersionID returns a fresh version id.
func (g *Generator) NextVersionID(ctx context.Context) (model.ID, error) {
	return g.Next(ctx, SpaceVersion)
}

// NextSuccessorID returns a fresh successor id.
func (g *Generator) NextSuccessorID(ctx context.Context) (model.ID, error) {
	return g.Next(ctx, SpaceSuccessor)
}
