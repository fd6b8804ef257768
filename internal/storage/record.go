package storage

import (
	"fmt"
	"slices"

	"github.com/roach88/ground/internal/ir"
)

// Record is one row. Fields hold IRInt or IRString values; an absent
// field is an unset optional.
type Record map[string]ir.IRValue

// Int returns an integer field.
func (r Record) Int(field string) (int64, bool) {
	v, ok := r[field].(ir.IRInt)
	return int64(v), ok
}

// String returns a string field.
func (r Record) String(field string) (string, bool) {
	v, ok := r[field].(ir.IRString)
	return string(v), ok
}

// MustInt returns an integer field or 0.
func (r Record) MustInt(field string) int64 {
	v, _ := r.Int(field)
	return v
}

// MustString returns a string field or "".
func (r Record) MustString(field string) string {
	v, _ := r.String(field)
	return v
}

// Fields returns the record's field names in sorted order.
func (r Record) Fields() []string {
	fs := make([]string, 0, len(r))
	for f := range r {
		fs = append(fs, f)
	}
	slices.Sort(fs)
	return fs
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Matches reports whether r satisfies every predicate.
func (r Record) Matches(preds []Predicate) bool {
	for _, p := range preds {
		if !ir.Equal(r[p.Field], p.Value) {
			return false
		}
	}
	return true
}

// Predicate is an equality test on one field.
type Predicate struct {
	Field string
	Value ir.IRValue
}

// Eq builds an equality predicate.
func Eq(field string, v ir.IRValue) Predicate {
	return Predicate{Field: field, Value: v}
}

// EqInt builds an equality predicate on an integer field.
func EqInt(field string, v int64) Predicate {
	return Predicate{Field: field, Value: ir.IRInt(v)}
}

// EqString builds an equality predicate on a string field.
func EqString(field, v string) Predicate {
	return Predicate{Field: field, Value: ir.IRString(v)}
}

func (p Predicate) String() string { return fmt.Sprintf("%s = %v", p.Field, p.Value) }
