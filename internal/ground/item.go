package ground

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ground/internal/ids"
	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
)

// itemCollections maps each item type to the collection holding its
// name, source key and type-specific fields.
var itemCollections = map[model.ItemType]string{
	model.ItemNode:         storage.Nodes,
	model.ItemEdge:         storage.Edges,
	model.ItemGraph:        storage.Graphs,
	model.ItemStructure:    storage.Structures,
	model.ItemLineageEdge:  storage.LineageEdges,
	model.ItemLineageGraph: storage.LineageGraphs,
}

// ItemSpec describes a new item. FromNodeID and ToNodeID are used by
// edges only.
type ItemSpec struct {
	Type       model.ItemType
	Name       string
	SourceKey  string
	Tags       map[string]model.Tag
	FromNodeID model.ID
	ToNodeID   model.ID
}

// ItemRef identifies an item by id, or by type and source key.
type ItemRef struct {
	ID        model.OptionalID
	Type      model.ItemType
	SourceKey string
}

// ByID refers to an item by id.
func ByID(id model.ID) ItemRef { return ItemRef{ID: model.Some(id)} }

// BySourceKey refers to an item by its type and source key.
func BySourceKey(t model.ItemType, sourceKey string) ItemRef {
	return ItemRef{Type: t, SourceKey: sourceKey}
}

func (r ItemRef) String() string {
	if r.ID.Valid {
		return r.ID.ID.String()
	}
	return fmt.Sprintf("%s:%s", r.Type, r.SourceKey)
}

// CreateItem creates an item and its item-level tags. The source key must
// be unique among items of the same type. Creators of the same source key
// are serialized, so a losing racer sees DUPLICATE_KEY on every backend.
func (s *Store) CreateItem(ctx context.Context, spec ItemSpec) (model.Item, error) {
	coll, ok := itemCollections[spec.Type]
	if !ok {
		return model.Item{}, SchemaViolation(model.None(), fmt.Errorf("unknown item type %q", spec.Type))
	}
	if err := validateTags(spec.Tags); err != nil {
		return model.Item{}, SchemaViolation(model.None(), err)
	}

	id, err := s.nextID(ctx, ids.SpaceItem)
	if err != nil {
		return model.Item{}, err
	}

	op := "create_" + string(spec.Type)
	err = s.keys.execute(func() error {
		return s.run(ctx, op, func(tx storage.Tx) error {
			_, exists, err := selectOne(ctx, tx, coll, storage.EqString("source_key", spec.SourceKey))
			if err != nil {
				return err
			}
			if exists {
				return DuplicateKey(spec.Type, spec.SourceKey, nil)
			}

			row := storage.Record{
				"item_id":    idValue(id),
				"name":       ir.IRString(spec.Name),
				"source_key": ir.IRString(spec.SourceKey),
			}
			if spec.Type == model.ItemEdge {
				for _, n := range []model.ID{spec.FromNodeID, spec.ToNodeID} {
					t, err := itemType(ctx, tx, n)
					if err != nil {
						return err
					}
					if t != model.ItemNode {
						return ItemNotFound(n)
					}
				}
				row["from_node_id"] = idValue(spec.FromNodeID)
				row["to_node_id"] = idValue(spec.ToNodeID)
			}

			if err := tx.Insert(ctx, storage.Items, storage.Record{
				"id":   idValue(id),
				"type": ir.IRString(spec.Type),
			}); err != nil {
				return err
			}
			if err := tx.Insert(ctx, coll, row); err != nil {
				if errors.Is(err, storage.ErrConstraint) {
					return DuplicateKey(spec.Type, spec.SourceKey, err)
				}
				return err
			}
			return insertTags(ctx, tx, storage.ItemTags, "item_id", id, spec.Tags)
		})
	}, sourceKeyLock(spec.Type, spec.SourceKey))
	if err != nil {
		return model.Item{}, err
	}

	s.log.Info().
		Int64("item_id", int64(id)).
		Str("type", string(spec.Type)).
		Str("source_key", spec.SourceKey).
		Msg("item created")

	return model.Item{
		ID:        id,
		Type:      spec.Type,
		Name:      spec.Name,
		SourceKey: spec.SourceKey,
		Tags:      cloneTags(spec.Tags),
	}, nil
}

// UpdateItem confirms or rejects the placement of an existing version of
// an item under the given parent versions. Every Create*Version call
// already places its version, so through this API the call either matches
// that placement (a no-op returning the stored successors) or fails with
// CONFLICT. No parents (or only the root sentinel) means the start of the
// history; several parents mean a fan-in.
func (s *Store) UpdateItem(ctx context.Context, itemID, childID model.ID, parentIDs []model.ID) ([]model.VersionSuccessor, error) {
	parents := normalizeParents(parentIDs)
	succIDs, err := s.nextIDs(ctx, ids.SpaceSuccessor, len(parents))
	if err != nil {
		return nil, err
	}

	var out []model.VersionSuccessor
	err = s.write(ctx, "update_item", []model.ID{itemID}, func(tx storage.Tx) error {
		if _, err := itemType(ctx, tx, itemID); err != nil {
			return err
		}
		succ, err := placeVersion(ctx, tx, itemID, childID, parents, succIDs)
		out = succ
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetLeaves returns the current frontier of an item's history, sorted
// ascending. An item with no versions has no leaves.
func (s *Store) GetLeaves(ctx context.Context, ref ItemRef) ([]model.ID, error) {
	var out []model.ID
	err := s.read(ctx, "get_leaves", func(tx storage.Tx) error {
		item, _, err := resolveItem(ctx, tx, ref)
		if err != nil {
			return err
		}
		d, err := loadDAG(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		out = d.Leaves()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RetrieveItem returns an item with its tags.
func (s *Store) RetrieveItem(ctx context.Context, ref ItemRef) (model.Item, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_item", ref)
	return item, err
}

// RetrieveItemTags returns the tags of an item or of a rich version. Ids
// are looked up in the space they were issued from.
func (s *Store) RetrieveItemTags(ctx context.Context, id model.ID) (map[string]model.Tag, error) {
	var out map[string]model.Tag
	err := s.read(ctx, "retrieve_tags", func(tx storage.Tx) error {
		space, _ := ids.SpaceOf(id)
		switch space {
		case ids.SpaceItem:
			if _, err := itemType(ctx, tx, id); err != nil {
				return err
			}
			tags, err := loadTags(ctx, tx, storage.ItemTags, "item_id", id)
			out = tags
			return err
		case ids.SpaceVersion:
			rv, err := loadRichVersion(ctx, tx, id)
			out = rv.Tags
			return err
		}
		return ItemNotFound(id)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) retrieveItem(ctx context.Context, op string, ref ItemRef) (model.Item, storage.Record, error) {
	var (
		item model.Item
		row  storage.Record
	)
	err := s.read(ctx, op, func(tx storage.Tx) error {
		var err error
		item, row, err = resolveItem(ctx, tx, ref)
		if err != nil {
			return err
		}
		item.Tags, err = loadTags(ctx, tx, storage.ItemTags, "item_id", item.ID)
		return err
	})
	if err != nil {
		return model.Item{}, nil, err
	}
	return item, row, nil
}

// resolveItem finds an item by ref and returns it with its kind row. When
// ref names both an id and a type, an item of another type is not found.
func resolveItem(ctx context.Context, tx storage.Tx, ref ItemRef) (model.Item, storage.Record, error) {
	if id, ok := ref.ID.Get(); ok {
		t, err := itemType(ctx, tx, id)
		if err != nil {
			return model.Item{}, nil, err
		}
		if ref.Type != "" && ref.Type != t {
			return model.Item{}, nil, ItemNotFound(id)
		}
		row, ok, err := selectOne(ctx, tx, itemCollections[t], byID("item_id", id))
		if err != nil {
			return model.Item{}, nil, err
		}
		if !ok {
			return model.Item{}, nil, Consistency(id, "%s item has no %s row", t, itemCollections[t])
		}
		return itemFromRecord(t, row), row, nil
	}

	coll, ok := itemCollections[ref.Type]
	if !ok {
		return model.Item{}, nil, ItemKeyNotFound(ref.Type, ref.SourceKey)
	}
	row, ok, err := selectOne(ctx, tx, coll, storage.EqString("source_key", ref.SourceKey))
	if err != nil {
		return model.Item{}, nil, err
	}
	if !ok {
		return model.Item{}, nil, ItemKeyNotFound(ref.Type, ref.SourceKey)
	}
	return itemFromRecord(ref.Type, row), row, nil
}

// itemType returns the type of a stored item.
func itemType(ctx context.Context, tx storage.Tx, id model.ID) (model.ItemType, error) {
	r, ok, err := selectOne(ctx, tx, storage.Items, byID("id", id))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ItemNotFound(id)
	}
	t, err := model.ParseItemType(r.MustString("type"))
	if err != nil {
		return "", Consistency(id, "stored item: %v", err)
	}
	return t, nil
}

// checkItemType verifies that id is a stored item of type want.
func checkItemType(ctx context.Context, tx storage.Tx, id model.ID, want model.ItemType) error {
	t, err := itemType(ctx, tx, id)
	if err != nil {
		return err
	}
	if t != want {
		return ItemNotFound(id)
	}
	return nil
}

func itemFromRecord(t model.ItemType, r storage.Record) model.Item {
	return model.Item{
		ID:        recordID(r, "item_id"),
		Type:      t,
		Name:      r.MustString("name"),
		SourceKey: r.MustString("source_key"),
	}
}

func cloneTags(tags map[string]model.Tag) map[string]model.Tag {
	out := make(map[string]model.Tag, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
