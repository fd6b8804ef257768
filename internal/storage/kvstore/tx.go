package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/storage"
)

// Tx is a storage.Tx over one badger read-write transaction.
type Tx struct {
	txn   *badger.Txn
	store *Store
	done  bool
}

var _ storage.Tx = (*Tx)(nil)

type row struct {
	key    []byte
	record storage.Record
}

// Insert implements storage.Tx.
func (t *Tx) Insert(ctx context.Context, collection string, r storage.Record) error {
	coll, err := t.check(ctx, collection)
	if err != nil {
		return err
	}
	if err := coll.CheckRecord(r, true); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("insert %s: row id: %w", collection, err)
	}
	key := rowKey(collection, id.String())
	return t.put(coll, key, nil, r)
}

// Select implements storage.Tx.
func (t *Tx) Select(ctx context.Context, collection string, preds ...storage.Predicate) ([]storage.Record, error) {
	coll, err := t.check(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := coll.CheckPredicates(preds); err != nil {
		return nil, err
	}

	rows, err := t.find(coll, preds)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Record, len(rows))
	for i, r := range rows {
		out[i] = r.record
	}
	return out, nil
}

// Update implements storage.Tx.
func (t *Tx) Update(ctx context.Context, collection string, set storage.Record, preds ...storage.Predicate) (int64, error) {
	coll, err := t.check(ctx, collection)
	if err != nil {
		return 0, err
	}
	if err := coll.CheckRecord(set, false); err != nil {
		return 0, err
	}
	if err := coll.CheckPredicates(preds); err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, nil
	}

	rows, err := t.find(coll, preds)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		next := r.record.Clone()
		for f, v := range set {
			next[f] = v
		}
		if err := t.put(coll, r.key, r.record, next); err != nil {
			return 0, err
		}
	}
	return int64(len(rows)), nil
}

// Commit implements storage.Tx.
func (t *Tx) Commit() error {
	if t.done {
		return storage.ErrTxDone
	}
	t.done = true
	if err := t.txn.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// Abort implements storage.Tx.
func (t *Tx) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Discard()
	return nil
}

func (t *Tx) check(ctx context.Context, collection string) (storage.Collection, error) {
	if t.done {
		return storage.Collection{}, storage.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return storage.Collection{}, fmt.Errorf("%w: %s: %w", storage.ErrIO, collection, err)
	}
	return t.store.catalog.Lookup(collection)
}

// put writes next under key, replacing the index and unique entries of
// prev (nil for a new row).
func (t *Tx) put(coll storage.Collection, key []byte, prev, next storage.Record) error {
	for _, fields := range coll.Unique {
		ukey, ok, err := uniqueKey(coll.Name, fields, next)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		item, err := t.txn.Get(ukey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return classify("insert "+coll.Name, err)
		}
		owner, err := item.ValueCopy(nil)
		if err != nil {
			return classify("insert "+coll.Name, err)
		}
		if !bytes.Equal(owner, key) {
			return fmt.Errorf("%w: %s(%s) already exists", storage.ErrConstraint, coll.Name, strings.Join(fields, ","))
		}
	}

	if prev != nil {
		if err := t.unlink(coll, key, prev); err != nil {
			return err
		}
	}

	data, err := ir.MarshalCanonical(ir.IRObject(next))
	if err != nil {
		return fmt.Errorf("encode %s record: %w", coll.Name, err)
	}
	if err := t.txn.Set(key, data); err != nil {
		return classify("insert "+coll.Name, err)
	}
	return t.link(coll, key, next)
}

// link writes the index and unique entries for r.
func (t *Tx) link(coll storage.Collection, key []byte, r storage.Record) error {
	for _, fields := range coll.Unique {
		ukey, ok, err := uniqueKey(coll.Name, fields, r)
		if err != nil {
			return err
		}
		if ok {
			if err := t.txn.Set(ukey, key); err != nil {
				return classify("index "+coll.Name, err)
			}
		}
	}
	for _, field := range coll.Indexed {
		ikey, ok, err := indexKey(coll.Name, field, r[field], key)
		if err != nil {
			return err
		}
		if ok {
			if err := t.txn.Set(ikey, nil); err != nil {
				return classify("index "+coll.Name, err)
			}
		}
	}
	return nil
}

// unlink removes the index and unique entries for r.
func (t *Tx) unlink(coll storage.Collection, key []byte, r storage.Record) error {
	for _, fields := range coll.Unique {
		ukey, ok, err := uniqueKey(coll.Name, fields, r)
		if err != nil {
			return err
		}
		if ok {
			if err := t.txn.Delete(ukey); err != nil {
				return classify("index "+coll.Name, err)
			}
		}
	}
	for _, field := range coll.Indexed {
		ikey, ok, err := indexKey(coll.Name, field, r[field], key)
		if err != nil {
			return err
		}
		if ok {
			if err := t.txn.Delete(ikey); err != nil {
				return classify("index "+coll.Name, err)
			}
		}
	}
	return nil
}

// find returns the rows matching preds. An equality on an indexed or
// single-field unique column narrows the scan; otherwise the whole
// collection is read.
func (t *Tx) find(coll storage.Collection, preds []storage.Predicate) ([]row, error) {
	keys, err := t.candidates(coll, preds)
	if err != nil {
		return nil, err
	}

	rows := make([]row, 0, len(keys))
	for _, key := range keys {
		item, err := t.txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, classify("select "+coll.Name, err)
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return nil, classify("select "+coll.Name, err)
		}
		r, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", storage.ErrIO, coll.Name, err)
		}
		if r.Matches(preds) {
			rows = append(rows, row{key: key, record: r})
		}
	}
	return rows, nil
}

func (t *Tx) candidates(coll storage.Collection, preds []storage.Predicate) ([][]byte, error) {
	for _, p := range preds {
		if isSingleUnique(coll, p.Field) {
			ukey, _, err := uniqueKey(coll.Name, []string{p.Field}, storage.Record{p.Field: p.Value})
			if err != nil {
				return nil, err
			}
			item, err := t.txn.Get(ukey)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, classify("select "+coll.Name, err)
			}
			key, err := item.ValueCopy(nil)
			if err != nil {
				return nil, classify("select "+coll.Name, err)
			}
			return [][]byte{key}, nil
		}
	}
	for _, p := range preds {
		if coll.IsIndexed(p.Field) {
			prefix, err := indexPrefix(coll.Name, p.Field, p.Value)
			if err != nil {
				return nil, err
			}
			return t.scan(prefix, func(k []byte) []byte {
				return rowKey(coll.Name, string(k[len(prefix):]))
			}), nil
		}
	}
	return t.scan(rowPrefix(coll.Name), func(k []byte) []byte { return k }), nil
}

// scan collects the keys under prefix, mapped through toRow. The
// iterator is closed before any row is read.
func (t *Tx) scan(prefix []byte, toRow func([]byte) []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, toRow(it.Item().KeyCopy(nil)))
	}
	return keys
}

func isSingleUnique(coll storage.Collection, field string) bool {
	for _, u := range coll.Unique {
		if len(u) == 1 && u[0] == field {
			return true
		}
	}
	return false
}

func rowPrefix(collection string) []byte {
	return []byte("r/" + collection + "/")
}

func rowKey(collection, id string) []byte {
	return append(rowPrefix(collection), id...)
}

func indexPrefix(collection, field string, v ir.IRValue) ([]byte, error) {
	enc, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w", storage.ErrInvalidRecord, collection, field, err)
	}
	return []byte("i/" + collection + "/" + field + "/" + string(enc) + "/"), nil
}

// indexKey returns the index entry for a row; absent values are not indexed.
func indexKey(collection, field string, v ir.IRValue, rowKey []byte) ([]byte, bool, error) {
	if v == nil {
		return nil, false, nil
	}
	prefix, err := indexPrefix(collection, field, v)
	if err != nil {
		return nil, false, err
	}
	id := rowKey[len(rowPrefix(collection)):]
	return append(prefix, id...), true, nil
}

// uniqueKey returns the unique claim for fields of r. A record missing
// any of the fields claims nothing, like NULL in a SQL UNIQUE index.
func uniqueKey(collection string, fields []string, r storage.Record) ([]byte, bool, error) {
	var b strings.Builder
	b.WriteString("u/" + collection + "/" + strings.Join(fields, ","))
	for _, f := range fields {
		v, ok := r[f]
		if !ok {
			return nil, false, nil
		}
		enc, err := ir.MarshalCanonical(v)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s.%s: %w", storage.ErrInvalidRecord, collection, f, err)
		}
		b.WriteByte('/')
		b.Write(enc)
	}
	return []byte(b.String()), true, nil
}

func decodeRecord(raw []byte) (storage.Record, error) {
	v, err := ir.Decode(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("record is %s, not an object", ir.TypeName(v))
	}
	return storage.Record(obj), nil
}
