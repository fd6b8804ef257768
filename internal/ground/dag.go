package ground

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/roach88/ground/internal/dag"
	"github.com/roach88/ground/internal/ids"
	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
)

// RetrieveDAG returns the version history of an item as of one
// transaction.
func (s *Store) RetrieveDAG(ctx context.Context, itemID model.ID) (*dag.DAG, error) {
	var out *dag.DAG
	err := s.read(ctx, "retrieve_dag", func(tx storage.Tx) error {
		if _, err := itemType(ctx, tx, itemID); err != nil {
			return err
		}
		d, err := loadDAG(ctx, tx, itemID)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParentsOf returns the direct parents of a version within its item's
// history. A first version has the root sentinel as its only parent.
func (s *Store) ParentsOf(ctx context.Context, itemID, versionID model.ID) ([]model.ID, error) {
	var out []model.ID
	err := s.read(ctx, "parents_of", func(tx storage.Tx) error {
		if err := checkVersionOf(ctx, tx, itemID, versionID); err != nil {
			return err
		}
		d, err := loadDAG(ctx, tx, itemID)
		if err != nil {
			return err
		}
		out = d.ParentsOf(versionID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddSuccessor checks that to is a direct child of from in an item's
// history. Versions are placed when they are created, so the edge either
// already exists (the stored successor is returned) or the call fails with
// CONFLICT because to already has other parents.
func (s *Store) AddSuccessor(ctx context.Context, itemID, from, to model.ID) (model.VersionSuccessor, error) {
	id, err := s.nextID(ctx, ids.SpaceSuccessor)
	if err != nil {
		return model.VersionSuccessor{}, err
	}

	var out model.VersionSuccessor
	err = s.write(ctx, "add_successor", []model.ID{itemID}, func(tx storage.Tx) error {
		if _, err := itemType(ctx, tx, itemID); err != nil {
			return err
		}
		if err := checkVersionOf(ctx, tx, itemID, to); err != nil {
			return err
		}
		if !from.IsRoot() {
			if err := checkVersionOf(ctx, tx, itemID, from); err != nil {
				return err
			}
		}

		d, err := loadDAG(ctx, tx, itemID)
		if err != nil {
			return err
		}
		switch err := d.CheckEdge(from, to); {
		case errors.Is(err, dag.ErrDuplicateEdge):
			r, ok, err := selectOne(ctx, tx, storage.VersionSuccessors,
				byID("item_id", itemID), byID("from_version_id", from), byID("to_version_id", to))
			if err != nil {
				return err
			}
			if !ok {
				return Consistency(itemID, "successor %d->%d is in the history but not stored", from, to)
			}
			out = successorFromRecord(r)
			return nil
		case err != nil:
			return Conflict(itemID, to, err, "cannot add successor %d->%d", from, to)
		}

		out = model.VersionSuccessor{ID: id, ItemID: itemID, From: from, To: to}
		return tx.Insert(ctx, storage.VersionSuccessors, successorRecord(out))
	})
	if err != nil {
		return model.VersionSuccessor{}, err
	}
	return out, nil
}

// RetrieveSuccessor returns a stored successor by id.
func (s *Store) RetrieveSuccessor(ctx context.Context, id model.ID) (model.VersionSuccessor, error) {
	var out model.VersionSuccessor
	err := s.read(ctx, "retrieve_successor", func(tx storage.Tx) error {
		r, ok, err := selectOne(ctx, tx, storage.VersionSuccessors, byID("id", id))
		if err != nil {
			return err
		}
		if !ok {
			return SuccessorNotFound(id)
		}
		out = successorFromRecord(r)
		return nil
	})
	if err != nil {
		return model.VersionSuccessor{}, err
	}
	return out, nil
}

// placeVersion puts child under parents in itemID's history. parents must
// already be normalized; succIDs holds one successor id per parent.
//
// Placing a version again under the same parents is a no-op that returns
// the stored successors.
func placeVersion(ctx context.Context, tx storage.Tx, itemID, child model.ID, parents, succIDs []model.ID) ([]model.VersionSuccessor, error) {
	if err := checkVersionOf(ctx, tx, itemID, child); err != nil {
		return nil, err
	}
	for _, p := range parents {
		if p.IsRoot() {
			continue
		}
		if err := checkVersionOf(ctx, tx, itemID, p); err != nil {
			return nil, err
		}
	}

	d, err := loadDAG(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	placed, err := d.CheckPlacement(child, parents)
	if err != nil {
		return nil, Conflict(itemID, child, err, "cannot place version %d under %v", child, parents)
	}
	if placed {
		rows, err := tx.Select(ctx, storage.VersionSuccessors,
			byID("item_id", itemID), byID("to_version_id", child))
		if err != nil {
			return nil, err
		}
		out := make([]model.VersionSuccessor, 0, len(rows))
		for _, r := range rows {
			out = append(out, successorFromRecord(r))
		}
		slices.SortFunc(out, func(a, b model.VersionSuccessor) int { return cmp.Compare(a.From, b.From) })
		return out, nil
	}

	out := make([]model.VersionSuccessor, len(parents))
	for i, p := range parents {
		out[i] = model.VersionSuccessor{ID: succIDs[i], ItemID: itemID, From: p, To: child}
		if err := tx.Insert(ctx, storage.VersionSuccessors, successorRecord(out[i])); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// normalizeParents drops the root sentinel and duplicates. No parents
// means the version starts the history.
func normalizeParents(parents []model.ID) []model.ID {
	out := make([]model.ID, 0, len(parents))
	for _, p := range parents {
		if !p.IsRoot() {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return []model.ID{model.RootID}
	}
	return out
}

func loadDAG(ctx context.Context, tx storage.Tx, itemID model.ID) (*dag.DAG, error) {
	rows, err := tx.Select(ctx, storage.VersionSuccessors, byID("item_id", itemID))
	if err != nil {
		return nil, err
	}
	edges := make([]dag.Edge, len(rows))
	for i, r := range rows {
		edges[i] = dag.Edge{
			From: recordID(r, "from_version_id"),
			To:   recordID(r, "to_version_id"),
		}
	}
	return dag.New(itemID, edges), nil
}

// checkVersionOf verifies that versionID is stored and belongs to itemID.
func checkVersionOf(ctx context.Context, tx storage.Tx, itemID, versionID model.ID) error {
	r, ok, err := selectOne(ctx, tx, storage.Versions, byID("id", versionID))
	if err != nil {
		return err
	}
	if !ok {
		return VersionNotFound(versionID)
	}
	if owner := recordID(r, "item_id"); owner != itemID {
		return Conflict(itemID, versionID, nil, "version %d belongs to item %d", versionID, owner)
	}
	return nil
}

func successorRecord(vs model.VersionSuccessor) storage.Record {
	return storage.Record{
		"id":              idValue(vs.ID),
		"item_id":         idValue(vs.ItemID),
		"from_version_id": idValue(vs.From),
		"to_version_id":   idValue(vs.To),
	}
}

func successorFromRecord(r storage.Record) model.VersionSuccessor {
	return model.VersionSuccessor{
		ID:     recordID(r, "id"),
		ItemID: recordID(r, "item_id"),
		From:   recordID(r, "from_version_id"),
		To:     recordID(r, "to_version_id"),
	}
}
