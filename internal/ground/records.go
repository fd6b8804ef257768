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

func idValue(id model.ID) ir.IRValue { return ir.IRInt(id) }

func byID(field string, id model.ID) storage.Predicate {
	return storage.EqInt(field, int64(id))
}

func recordID(r storage.Record, field string) model.ID {
	return model.ID(r.MustInt(field))
}

func recordOptionalID(r storage.Record, field string) model.OptionalID {
	v, ok := r.Int(field)
	if !ok {
		return model.None()
	}
	return model.Some(model.ID(v))
}

func setOptionalID(r storage.Record, field string, id model.OptionalID) {
	if id.Valid {
		r[field] = idValue(id.ID)
	}
}

// selectOne returns the single record matching preds, or ok=false.
func selectOne(ctx context.Context, tx storage.Tx, collection string, preds ...storage.Predicate) (storage.Record, bool, error) {
	rows, err := tx.Select(ctx, collection, preds...)
	if err != nil {
		return nil, false, err
	}
	switch len(rows) {
	case 0:
		return nil, false, nil
	case 1:
		return rows[0], true, nil
	}
	return nil, false, fmt.Errorf("%w: %d %s records match %v", storage.ErrInvalidRecord, len(rows), collection, preds)
}

// tagRecord encodes one tag for the item_tag or rich_version_tag
// collections. The value is stored as canonical JSON.
func tagRecord(ownerField string, owner model.ID, tag model.Tag) (storage.Record, error) {
	r := storage.Record{
		ownerField: idValue(owner),
		"key":      ir.IRString(tag.Key),
	}
	if tag.Value != nil {
		enc, err := ir.MarshalCanonical(tag.Value)
		if err != nil {
			return nil, fmt.Errorf("encode tag %q: %w", tag.Key, err)
		}
		r["value"] = ir.IRString(enc)
		r["type"] = ir.IRString(tag.Type)
	}
	return r, nil
}

func tagFromRecord(r storage.Record) (model.Tag, error) {
	tag := model.Tag{Key: r.MustString("key")}
	enc, ok := r.String("value")
	if !ok {
		return tag, nil
	}
	v, err := ir.Decode([]byte(enc))
	if err != nil {
		return tag, fmt.Errorf("decode tag %q: %w", tag.Key, err)
	}
	t, err := model.ParseValueType(r.MustString("type"))
	if err != nil {
		return tag, fmt.Errorf("decode tag %q: %w", tag.Key, err)
	}
	tag.Value = v
	tag.Type = t
	return tag, nil
}

// validateTags checks that every tag is well formed and keyed by its own
// key.
func validateTags(tags map[string]model.Tag) error {
	for _, key := range slices.Sorted(maps.Keys(tags)) {
		tag := tags[key]
		if tag.Key != key {
			return fmt.Errorf("tag stored under %q has key %q", key, tag.Key)
		}
		if err := tag.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func insertTags(ctx context.Context, tx storage.Tx, collection, ownerField string, owner model.ID, tags map[string]model.Tag) error {
	for _, key := range slices.Sorted(maps.Keys(tags)) {
		r, err := tagRecord(ownerField, owner, tags[key])
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, collection, r); err != nil {
			return err
		}
	}
	return nil
}

func loadTags(ctx context.Context, tx storage.Tx, collection, ownerField string, owner model.ID) (map[string]model.Tag, error) {
	rows, err := tx.Select(ctx, collection, byID(ownerField, owner))
	if err != nil {
		return nil, err
	}
	tags := make(map[string]model.Tag, len(rows))
	for _, r := range rows {
		tag, err := tagFromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrInvalidRecord, err)
		}
		tags[tag.Key] = tag
	}
	return tags, nil
}

// idList reads one id column from every record, sorted ascending.
func idList(rows []storage.Record, field string) []model.ID {
	out := make([]model.ID, 0, len(rows))
	for _, r := range rows {
		out = append(out, recordID(r, field))
	}
	slices.Sort(out)
	return out
}
