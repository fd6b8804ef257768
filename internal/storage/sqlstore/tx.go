package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/storage"
)

// Tx is a storage.Tx over one database/sql transaction.
type Tx struct {
	tx    *sql.Tx
	store *Store
	done  bool
}

var _ storage.Tx = (*Tx)(nil)

// Insert implements storage.Tx.
func (t *Tx) Insert(ctx context.Context, collection string, r storage.Record) error {
	coll, err := t.check(collection)
	if err != nil {
		return err
	}
	if err := coll.CheckRecord(r, true); err != nil {
		return err
	}

	fields := r.Fields()
	values := make([]any, len(fields))
	for i, f := range fields {
		values[i] = sqlValue(r[f])
	}
	query, args, err := t.store.sq.Insert(collection).Columns(fields...).Values(values...).ToSql()
	if err != nil {
		return fmt.Errorf("insert %s: %w", collection, err)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return classify("insert "+collection, err)
	}
	return nil
}

// Select implements storage.Tx. Rows come back in insertion order.
func (t *Tx) Select(ctx context.Context, collection string, preds ...storage.Predicate) ([]storage.Record, error) {
	coll, err := t.check(collection)
	if err != nil {
		return nil, err
	}
	if err := coll.CheckPredicates(preds); err != nil {
		return nil, err
	}

	columns := make([]string, len(coll.Fields))
	for i, f := range coll.Fields {
		columns[i] = f.Name
	}
	query, args, err := t.store.sq.Select(columns...).
		From(collection).
		Where(where(preds)).
		OrderBy("rowid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("select "+collection, err)
	}
	defer rows.Close()

	out := make([]storage.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows, columns)
		if err != nil {
			return nil, classify("select "+collection, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("select "+collection, err)
	}
	return out, nil
}

// Update implements storage.Tx.
func (t *Tx) Update(ctx context.Context, collection string, set storage.Record, preds ...storage.Predicate) (int64, error) {
	coll, err := t.check(collection)
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

	clauses := make(map[string]any, len(set))
	for f, v := range set {
		clauses[f] = sqlValue(v)
	}
	query, args, err := t.store.sq.Update(collection).SetMap(clauses).Where(where(preds)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify("update "+collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("update "+collection, err)
	}
	return n, nil
}

// Commit implements storage.Tx.
func (t *Tx) Commit() error {
	if t.done {
		return storage.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
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
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classify("rollback", err)
	}
	return nil
}

func (t *Tx) check(collection string) (storage.Collection, error) {
	if t.done {
		return storage.Collection{}, storage.ErrTxDone
	}
	return t.store.catalog.Lookup(collection)
}

func where(preds []storage.Predicate) squirrel.Eq {
	eq := squirrel.Eq{}
	for _, p := range preds {
		eq[p.Field] = sqlValue(p.Value)
	}
	return eq
}

func sqlValue(v ir.IRValue) any {
	switch x := v.(type) {
	case ir.IRInt:
		return int64(x)
	case ir.IRString:
		return string(x)
	}
	return nil
}

// scanRecord reads one row. NULL columns are left out of the record.
func scanRecord(rows *sql.Rows, columns []string) (storage.Record, error) {
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	r := make(storage.Record, len(columns))
	for i, col := range columns {
		switch v := values[i].(type) {
		case nil:
		case int64:
			r[col] = ir.IRInt(v)
		case string:
			r[col] = ir.IRString(v)
		case []byte:
			r[col] = ir.IRString(string(v))
		default:
			return nil, fmt.Errorf("column %s: unexpected type %T", col, v)
		}
	}
	return r, nil
}
