package model

import (
	"fmt"

	"github.com/roach88/ground/internal/ir"
)

// ValueType is the declared type of a tag value or structure attribute.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeInteger ValueType = "integer"
	TypeBoolean ValueType = "boolean"
)

// ParseValueType validates s as a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch ValueType(s) {
	case TypeString, TypeInteger, TypeBoolean:
		return ValueType(s), nil
	}
	return "", fmt.Errorf("unknown value type %q", s)
}

// Matches reports whether v is a value of type t.
func (t ValueType) Matches(v ir.IRValue) bool {
	switch v.(type) {
	case ir.IRString:
		return t == TypeString
	case ir.IRInt:
		return t == TypeInteger
	case ir.IRBool:
		return t == TypeBoolean
	}
	return false
}

// Tag is a key with an optional typed value. A tag without a value has
// neither Value nor Type.
type Tag struct {
	Key   string
	Value ir.IRValue
	Type  ValueType
}

// NewTag builds a tag whose type is inferred from value.
func NewTag(key string, value ir.IRValue) Tag {
	t := Tag{Key: key, Value: value}
	switch value.(type) {
	case ir.IRString:
		t.Type = TypeString
	case ir.IRInt:
		t.Type = TypeInteger
	case ir.IRBool:
		t.Type = TypeBoolean
	}
	return t
}

// Validate checks that a tag's value agrees with its declared type.
func (t Tag) Validate() error {
	if t.Key == "" {
		return fmt.Errorf("tag key is empty")
	}
	if t.Value == nil {
		if t.Type != "" {
			return fmt.Errorf("tag %q declares type %s but has no value", t.Key, t.Type)
		}
		return nil
	}
	if !t.Type.Matches(t.Value) {
		return fmt.Errorf("tag %q declares type %q but holds %s", t.Key, t.Type, ir.TypeName(t.Value))
	}
	return nil
}

// Equal reports whether two tags are identical.
func (t Tag) Equal(o Tag) bool {
	return t.Key == o.Key && t.Type == o.Type && ir.Equal(t.Value, o.Value)
}

// Tags builds a tag map keyed by tag key.
func Tags(tags ...Tag) map[string]Tag {
	m := make(map[string]Tag, len(tags))
	for _, t := range tags {
		m[t.Key] = t
	}
	return m
}
