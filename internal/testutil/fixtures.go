package testutil

import (
	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/model"
)

// StringTag returns a string-typed tag.
func StringTag(key, value string) model.Tag {
	return model.Tag{Key: key, Value: ir.IRString(value), Type: model.TypeString}
}

// IntTag returns an integer-typed tag.
func IntTag(key string, value int64) model.Tag {
	return model.Tag{Key: key, Value: ir.IRInt(value), Type: model.TypeInteger}
}

// BoolTag returns a boolean-typed tag.
func BoolTag(key string, value bool) model.Tag {
	return model.Tag{Key: key, Value: ir.IRBool(value), Type: model.TypeBoolean}
}

// KeyTag returns a tag with no value.
func KeyTag(key string) model.Tag {
	return model.Tag{Key: key}
}
