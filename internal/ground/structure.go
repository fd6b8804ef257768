package ground

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
)

// CreateStructure creates a structure item.
func (s *Store) CreateStructure(ctx context.Context, name, sourceKey string, tags map[string]model.Tag) (model.Structure, error) {
	item, err := s.CreateItem(ctx, ItemSpec{Type: model.ItemStructure, Name: name, SourceKey: sourceKey, Tags: tags})
	if err != nil {
		return model.Structure{}, err
	}
	return model.Structure{Item: item}, nil
}

// RetrieveStructure returns a structure by source key.
func (s *Store) RetrieveStructure(ctx context.Context, sourceKey string) (model.Structure, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_structure", BySourceKey(model.ItemStructure, sourceKey))
	return model.Structure{Item: item}, err
}

// RetrieveStructureByID returns a structure by item id.
func (s *Store) RetrieveStructureByID(ctx context.Context, id model.ID) (model.Structure, error) {
	item, _, err := s.retrieveItem(ctx, "retrieve_structure", ItemRef{ID: model.Some(id), Type: model.ItemStructure})
	return model.Structure{Item: item}, err
}

// GetStructureLeaves returns the leaf versions of a structure.
func (s *Store) GetStructureLeaves(ctx context.Context, sourceKey string) ([]model.ID, error) {
	return s.GetLeaves(ctx, BySourceKey(model.ItemStructure, sourceKey))
}

// CreateStructureVersion creates a version of a structure declaring the
// type of each attribute key.
func (s *Store) CreateStructureVersion(ctx context.Context, structureID model.ID, attrs map[string]model.ValueType, parentIDs []model.ID) (model.StructureVersion, error) {
	for _, key := range slices.Sorted(maps.Keys(attrs)) {
		if _, err := model.ParseValueType(string(attrs[key])); err != nil {
			return model.StructureVersion{}, SchemaViolation(model.None(), fmt.Errorf("attribute %q: %w", key, err))
		}
	}

	id, err := s.createVersion(ctx, versionWrite{
		op:       "create_structure_version",
		itemID:   structureID,
		itemType: model.ItemStructure,
		parents:  parentIDs,
		persist: func(tx storage.Tx, id model.ID) error {
			if err := tx.Insert(ctx, storage.Versions, storage.Record{
				"id":      idValue(id),
				"item_id": idValue(structureID),
			}); err != nil {
				return err
			}
			if err := tx.Insert(ctx, storage.StructureVersions, storage.Record{
				"id":           idValue(id),
				"structure_id": idValue(structureID),
			}); err != nil {
				return err
			}
			for _, key := range slices.Sorted(maps.Keys(attrs)) {
				if err := tx.Insert(ctx, storage.StructureAttributes, storage.Record{
					"structure_version_id": idValue(id),
					"key":                  ir.IRString(key),
					"type":                 ir.IRString(attrs[key]),
				}); err != nil {
					return err
				}
			}
			return nil
		},
	})
	if err != nil {
		return model.StructureVersion{}, err
	}

	out := model.StructureVersion{ID: id, StructureID: structureID, Attributes: make(map[string]model.ValueType, len(attrs))}
	maps.Copy(out.Attributes, attrs)
	return out, nil
}

// RetrieveStructureVersion returns a structure version with its
// attributes.
func (s *Store) RetrieveStructureVersion(ctx context.Context, id model.ID) (model.StructureVersion, error) {
	var out model.StructureVersion
	err := s.read(ctx, "retrieve_structure_version", func(tx storage.Tx) error {
		r, ok, err := selectOne(ctx, tx, storage.StructureVersions, byID("id", id))
		if err != nil {
			return err
		}
		if !ok {
			return VersionNotFound(id)
		}
		attrs, err := loadAttributes(ctx, tx, id)
		if err != nil {
			return err
		}
		out = model.StructureVersion{ID: id, StructureID: recordID(r, "structure_id"), Attributes: attrs}
		return nil
	})
	if err != nil {
		return model.StructureVersion{}, err
	}
	return out, nil
}

// loadAttributes returns the declared attributes of a structure version.
func loadAttributes(ctx context.Context, tx storage.Tx, svID model.ID) (map[string]model.ValueType, error) {
	r, ok, err := selectOne(ctx, tx, storage.StructureVersions, byID("id", svID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, VersionNotFound(svID)
	}

	rows, err := tx.Select(ctx, storage.StructureAttributes, byID("structure_version_id", svID))
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]model.ValueType, len(rows))
	for _, a := range rows {
		t, err := model.ParseValueType(a.MustString("type"))
		if err != nil {
			return nil, Consistency(recordID(r, "structure_id"), "structure version %d: %v", svID, err)
		}
		attrs[a.MustString("key")] = t
	}
	return attrs, nil
}
