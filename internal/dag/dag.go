// Package dag holds the in-memory view of one item's version history.
//
// A DAG is built from the successor edges of a single item and is never
// shared between goroutines while being mutated. Every query returns a
// copy, so callers may hold results across later writes.
package dag

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/ground/internal/model"
)

var (
	ErrDuplicateEdge = errors.New("dag: duplicate edge")
	ErrReparent      = errors.New("dag: version already has a different parent")
	ErrCycle         = errors.New("dag: edge would create a cycle")
)

// Edge is one successor relation: To is a direct child of From.
type Edge struct {
	From model.ID
	To   model.ID
}

func (e Edge) String() string { return fmt.Sprintf("%d->%d", e.From, e.To) }

// DAG is the version history of one item.
type DAG struct {
	itemID   model.ID
	edges    []Edge
	parents  map[model.ID][]model.ID
	children map[model.ID][]model.ID
}

// New builds a DAG from edges. Edges are taken as given; callers that
// need validation use CheckEdge before Add.
func New(itemID model.ID, edges []Edge) *DAG {
	d := &DAG{
		itemID:   itemID,
		parents:  make(map[model.ID][]model.ID),
		children: make(map[model.ID][]model.ID),
	}
	for _, e := range edges {
		d.add(e)
	}
	return d
}

// ItemID returns the item owning this history.
func (d *DAG) ItemID() model.ID { return d.itemID }

// Edges returns a copy of all edges in insertion order.
func (d *DAG) Edges() []Edge { return slices.Clone(d.edges) }

// Len returns the number of edges.
func (d *DAG) Len() int { return len(d.edges) }

// Contains reports whether v is a version in this history. The root
// sentinel is contained once any edge exists.
func (d *DAG) Contains(v model.ID) bool {
	if _, ok := d.parents[v]; ok {
		return true
	}
	if v.IsRoot() {
		return len(d.edges) > 0
	}
	return false
}

// Leaves returns every version with no recorded child, sorted ascending.
// Leaves are derived from the edges on each call.
func (d *DAG) Leaves() []model.ID {
	leaves := make([]model.ID, 0)
	for to := range d.parents {
		if len(d.children[to]) == 0 {
			leaves = append(leaves, to)
		}
	}
	slices.Sort(leaves)
	return leaves
}

// ParentsOf returns the direct parents of v, sorted ascending. The root
// sentinel is included when v is a first version.
func (d *DAG) ParentsOf(v model.ID) []model.ID {
	ps := slices.Clone(d.parents[v])
	slices.Sort(ps)
	return ps
}

// ChildrenOf returns the direct children of v, sorted ascending.
func (d *DAG) ChildrenOf(v model.ID) []model.ID {
	cs := slices.Clone(d.children[v])
	slices.Sort(cs)
	return cs
}

// HasEdge reports whether from->to is already recorded.
func (d *DAG) HasEdge(from, to model.ID) bool {
	return slices.Contains(d.parents[to], from)
}

// Reaches reports whether to is reachable from from by following edges.
// Every version reaches itself.
func (d *DAG) Reaches(from, to model.ID) bool {
	if from == to {
		return true
	}
	seen := map[model.ID]bool{from: true}
	stack := []model.ID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range d.children[cur] {
			if c == to {
				return true
			}
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return false
}

// CheckEdge validates that from->to may be added.
func (d *DAG) CheckEdge(from, to model.ID) error {
	if d.HasEdge(from, to) {
		return fmt.Errorf("%w: %d->%d", ErrDuplicateEdge, from, to)
	}
	if len(d.parents[to]) > 0 {
		return fmt.Errorf("%w: %d already under %v", ErrReparent, to, d.ParentsOf(to))
	}
	return d.checkCycle(from, to)
}

// CheckPlacement validates placing to under every id in parents at once.
// A version that is not yet placed may take several parents (fan-in).
// A version that is already placed under exactly these parents is
// reported with placed=true and no error.
func (d *DAG) CheckPlacement(to model.ID, parents []model.ID) (placed bool, err error) {
	if existing := d.parents[to]; len(existing) > 0 {
		for _, p := range parents {
			if !slices.Contains(existing, p) {
				return false, fmt.Errorf("%w: %d already under %v", ErrReparent, to, d.ParentsOf(to))
			}
		}
		return true, nil
	}
	for _, p := range parents {
		if err := d.checkCycle(p, to); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (d *DAG) checkCycle(from, to model.ID) error {
	if to.IsRoot() || d.Reaches(to, from) {
		return fmt.Errorf("%w: %d->%d", ErrCycle, from, to)
	}
	return nil
}

// Add records from->to. It does not validate; see CheckEdge.
func (d *DAG) Add(from, to model.ID) {
	d.add(Edge{From: from, To: to})
}

func (d *DAG) add(e Edge) {
	if d.HasEdge(e.From, e.To) {
		return
	}
	d.edges = append(d.edges, e)
	d.parents[e.To] = append(d.parents[e.To], e.From)
	d.children[e.From] = append(d.children[e.From], e.To)
}
