package ground

import (
	"context"
	"maps"
	"slices"

	"github.com/roach88/ground/internal/ids"
	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage"
)

// versionWrite describes how one kind of version is persisted.
type versionWrite struct {
	op       string
	itemID   model.ID
	itemType model.ItemType
	parents  []model.ID

	// persist validates the new version and writes its rows.
	persist func(tx storage.Tx, id model.ID) error

	// placed runs once the version is placed under its parents. Optional.
	placed func(tx storage.Tx, id model.ID, parents []model.ID) error
}

// createVersion issues a version id, persists the version, and places it
// in the owning item's history, all in one transaction under the item's
// lock.
func (s *Store) createVersion(ctx context.Context, w versionWrite) (model.ID, error) {
	parents := normalizeParents(w.parents)
	id, err := s.nextID(ctx, ids.SpaceVersion)
	if err != nil {
		return 0, err
	}
	succIDs, err := s.nextIDs(ctx, ids.SpaceSuccessor, len(parents))
	if err != nil {
		return 0, err
	}

	err = s.write(ctx, w.op, []model.ID{w.itemID}, func(tx storage.Tx) error {
		if err := checkItemType(ctx, tx, w.itemID, w.itemType); err != nil {
			return err
		}
		if err := w.persist(tx, id); err != nil {
			return err
		}
		if _, err := placeVersion(ctx, tx, w.itemID, id, parents, succIDs); err != nil {
			return err
		}
		if w.placed != nil {
			return w.placed(tx, id, parents)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Int64("item_id", int64(w.itemID)).
		Int64("version_id", int64(id)).
		Str("type", string(w.itemType)).
		Int("parents", len(parents)).
		Msg("version created")
	return id, nil
}

// checkRichVersion validates a rich version's tags, against their own
// declared types and against the structure version when one is named.
func (s *Store) checkRichVersion(ctx context.Context, tx storage.Tx, spec model.RichVersionSpec) error {
	if err := validateTags(spec.Tags); err != nil {
		return SchemaViolation(spec.StructureVersionID, err)
	}
	svID, ok := spec.StructureVersionID.Get()
	if !ok {
		return nil
	}
	attrs, err := loadAttributes(ctx, tx, svID)
	if err != nil {
		return err
	}
	if err := s.validator.Validate(svID, attrs, spec.Tags); err != nil {
		return SchemaViolation(spec.StructureVersionID, err)
	}
	return nil
}

// insertRichVersion validates spec and writes the envelope rows shared by
// every rich version kind.
func (s *Store) insertRichVersion(ctx context.Context, tx storage.Tx, itemID, id model.ID, spec model.RichVersionSpec) (model.RichVersion, error) {
	if err := s.checkRichVersion(ctx, tx, spec); err != nil {
		return model.RichVersion{}, err
	}

	if err := tx.Insert(ctx, storage.Versions, storage.Record{
		"id":      idValue(id),
		"item_id": idValue(itemID),
	}); err != nil {
		return model.RichVersion{}, err
	}

	rv := storage.Record{
		"id":      idValue(id),
		"item_id": idValue(itemID),
	}
	setOptionalID(rv, "structure_version_id", spec.StructureVersionID)
	if spec.Reference != nil {
		rv["reference"] = ir.IRString(*spec.Reference)
	}
	if err := tx.Insert(ctx, storage.RichVersions, rv); err != nil {
		return model.RichVersion{}, err
	}
	if err := insertTags(ctx, tx, storage.RichVersionTags, "rich_version_id", id, spec.Tags); err != nil {
		return model.RichVersion{}, err
	}
	for _, key := range slices.Sorted(maps.Keys(spec.ReferenceParameters)) {
		if err := tx.Insert(ctx, storage.RichVersionParameters, storage.Record{
			"rich_version_id": idValue(id),
			"key":             ir.IRString(key),
			"value":           ir.IRString(spec.ReferenceParameters[key]),
		}); err != nil {
			return model.RichVersion{}, err
		}
	}

	return model.RichVersion{
		ID:                  id,
		ItemID:              itemID,
		Tags:                cloneTags(spec.Tags),
		StructureVersionID:  spec.StructureVersionID,
		Reference:           cloneRef(spec.Reference),
		ReferenceParameters: cloneParams(spec.ReferenceParameters),
	}, nil
}

// RetrieveVersion returns the envelope of any rich version.
func (s *Store) RetrieveVersion(ctx context.Context, id model.ID) (model.RichVersion, error) {
	var out model.RichVersion
	err := s.read(ctx, "retrieve_version", func(tx storage.Tx) error {
		rv, err := loadRichVersion(ctx, tx, id)
		out = rv
		return err
	})
	if err != nil {
		return model.RichVersion{}, err
	}
	return out, nil
}

// retrieveKindVersion loads the kind row of a rich version together with
// its envelope. more, if set, runs in the same transaction.
func (s *Store) retrieveKindVersion(ctx context.Context, op, collection string, id model.ID, more func(tx storage.Tx) error) (model.RichVersion, storage.Record, error) {
	var (
		rv  model.RichVersion
		row storage.Record
	)
	err := s.read(ctx, op, func(tx storage.Tx) error {
		r, ok, err := selectOne(ctx, tx, collection, byID("id", id))
		if err != nil {
			return err
		}
		if !ok {
			return VersionNotFound(id)
		}
		row = r
		if rv, err = loadRichVersion(ctx, tx, id); err != nil {
			return err
		}
		if more != nil {
			return more(tx)
		}
		return nil
	})
	if err != nil {
		return model.RichVersion{}, nil, err
	}
	return rv, row, nil
}

func loadRichVersion(ctx context.Context, tx storage.Tx, id model.ID) (model.RichVersion, error) {
	r, ok, err := selectOne(ctx, tx, storage.RichVersions, byID("id", id))
	if err != nil {
		return model.RichVersion{}, err
	}
	if !ok {
		return model.RichVersion{}, VersionNotFound(id)
	}

	rv := model.RichVersion{
		ID:                 id,
		ItemID:             recordID(r, "item_id"),
		StructureVersionID: recordOptionalID(r, "structure_version_id"),
	}
	if ref, ok := r.String("reference"); ok {
		rv.Reference = &ref
	}
	if rv.Tags, err = loadTags(ctx, tx, storage.RichVersionTags, "rich_version_id", id); err != nil {
		return model.RichVersion{}, err
	}

	params, err := tx.Select(ctx, storage.RichVersionParameters, byID("rich_version_id", id))
	if err != nil {
		return model.RichVersion{}, err
	}
	rv.ReferenceParameters = make(map[string]string, len(params))
	for _, p := range params {
		rv.ReferenceParameters[p.MustString("key")] = p.MustString("value")
	}
	return rv, nil
}

// checkRichVersionExists verifies that id is a stored rich version.
func checkRichVersionExists(ctx context.Context, tx storage.Tx, id model.ID) error {
	_, ok, err := selectOne(ctx, tx, storage.RichVersions, byID("id", id))
	if err != nil {
		return err
	}
	if !ok {
		return VersionNotFound(id)
	}
	return nil
}

func cloneRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	return model.Ref(*ref)
}

func cloneParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	maps.Copy(out, params)
	return out
}
