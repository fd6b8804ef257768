// Package schema checks tags against the attributes of a structure
// version.
//
// A structure version's attributes compile to an open CUE struct with one
// required field per attribute:
//
//	{
//		"owner": string
//		"rows":  int
//	}
//
// The tags are encoded as a CUE value, unified with the schema, and the
// result must be concrete. Tags the structure does not declare pass
// through unchecked.
package schema

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/model"
)

// Violation is one tag that does not satisfy its attribute.
type Violation struct {
	Key     string
	Message string
}

// Error lists every violation found in one validation.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("tag %q: %s", v.Key, v.Message)
	}
	return strings.Join(parts, "; ")
}

// Validator compiles and caches structure schemas. Safe for concurrent
// use; a cue.Context is not, so every CUE call runs under mu.
type Validator struct {
	mu    sync.Mutex
	ctx   *cue.Context
	cache map[model.ID]cue.Value
}

// New creates a Validator with an empty cache.
func New() *Validator {
	return &Validator{
		ctx:   cuecontext.New(),
		cache: make(map[model.ID]cue.Value),
	}
}

// Validate checks tags against the attributes of structure version id.
// Structure versions are immutable, so the compiled schema is cached by id.
func (v *Validator) Validate(id model.ID, attrs map[string]model.ValueType, tags map[string]model.Tag) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, ok := v.cache[id]
	if !ok {
		var err error
		s, err = v.compile(attrs)
		if err != nil {
			return err
		}
		v.cache[id] = s
	}
	return v.check(s, attrs, tags)
}

// Check validates tags against attrs without caching.
func (v *Validator) Check(attrs map[string]model.ValueType, tags map[string]model.Tag) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.compile(attrs)
	if err != nil {
		return err
	}
	return v.check(s, attrs, tags)
}

// Cached reports how many schemas are cached.
func (v *Validator) Cached() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cache)
}

func (v *Validator) compile(attrs map[string]model.ValueType) (cue.Value, error) {
	s := v.ctx.CompileString("{}")
	for _, key := range sortedKeys(attrs) {
		t, err := cueType(attrs[key])
		if err != nil {
			return cue.Value{}, fmt.Errorf("attribute %q: %w", key, err)
		}
		s = s.FillPath(cue.MakePath(cue.Str(key)), v.ctx.CompileString(t))
	}
	if err := s.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

func (v *Validator) check(s cue.Value, attrs map[string]model.ValueType, tags map[string]model.Tag) error {
	data := make(map[string]any, len(tags))
	for key, tag := range tags {
		if tag.Value != nil {
			data[key] = ir.ToAny(tag.Value)
		}
	}

	err := s.Unify(v.ctx.Encode(data)).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	return violations(err, attrs, tags)
}

// violations turns CUE errors into per-key messages. Keys are reported
// in sorted order.
func violations(err error, attrs map[string]model.ValueType, tags map[string]model.Tag) error {
	byKey := make(map[string]string)
	for _, e := range cueerrors.Errors(err) {
		path := e.Path()
		if len(path) == 0 {
			continue
		}
		key := strings.Trim(path[0], `"`)
		if _, seen := byKey[key]; seen {
			continue
		}
		byKey[key] = describe(key, attrs, tags, e)
	}
	if len(byKey) == 0 {
		return &Error{Violations: []Violation{{Message: err.Error()}}}
	}

	out := &Error{}
	for _, key := range sortedKeys(byKey) {
		out.Violations = append(out.Violations, Violation{Key: key, Message: byKey[key]})
	}
	return out
}

func describe(key string, attrs map[string]model.ValueType, tags map[string]model.Tag, e cueerrors.Error) string {
	want := attrs[key]
	tag, ok := tags[key]
	switch {
	case !ok:
		return fmt.Sprintf("missing required %s attribute", want)
	case tag.Value == nil:
		return fmt.Sprintf("has no value, want %s", want)
	case !want.Matches(tag.Value):
		return fmt.Sprintf("is %s, want %s", ir.TypeName(tag.Value), want)
	}
	format, args := e.Msg()
	return fmt.Sprintf(format, args...)
}

func cueType(t model.ValueType) (string, error) {
	switch t {
	case model.TypeString:
		return "string", nil
	case model.TypeInteger:
		return "int", nil
	case model.TypeBoolean:
		return "bool", nil
	}
	return "", fmt.Errorf("unknown value type %q", t)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
