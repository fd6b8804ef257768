package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/roach88/ground/internal/ground"
	"github.com/roach88/ground/internal/ids"
	"github.com/roach88/ground/internal/logger"
	"github.com/roach88/ground/internal/model"
	"github.com/roach88/ground/internal/storage/sqlstore"
)

// rootName labels the root sentinel in traces and references.
const rootName = "root"

// runner holds the state of one scenario execution.
type runner struct {
	store  *ground.Store
	log    zerolog.Logger
	names  map[string]model.ID
	labels map[model.ID]string
}

// Option configures a scenario run.
type Option func(*runner)

// WithLogger logs each executed step at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(r *runner) { r.log = logger.Component(l, "harness") }
}

// Run executes scenario against s and returns the result. Failed
// expectations are reported in the result; the error is non-nil only when
// the scenario itself is broken (an unbound name, a malformed argument).
func Run(ctx context.Context, s *ground.Store, scenario *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		store:  s,
		log:    logger.Nop(),
		names:  make(map[string]model.ID),
		labels: make(map[model.ID]string),
	}
	for _, opt := range opts {
		opt(r)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := r.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
	}

	for _, msg := range r.evaluateAssertions(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	for name, id := range r.names {
		result.Bindings[name] = int64(id)
	}
	return result, nil
}

// RunFresh executes scenario against a new in-memory SQLite store.
func RunFresh(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	adapter, err := sqlstore.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	s := ground.New(adapter, ids.NewGenerator(ids.NewMemorySource(), ids.DefaultBlockSize))
	defer s.Close()
	return Run(ctx, s, scenario, opts...)
}

// execute runs one step, records it in the trace and checks its expect
// clause.
func (r *runner) execute(ctx context.Context, i int, step Step, result *Result) error {
	fn, ok := ops[step.Op]
	if !ok {
		return fmt.Errorf("unknown op %q", step.Op)
	}

	out, err := fn(ctx, r, args(step.Args))
	ev := TraceEvent{Op: step.Op, As: step.As, Result: out.result}

	var code string
	if err != nil {
		var ae *argError
		if errors.As(err, &ae) {
			return err
		}
		var ge *ground.Error
		if !errors.As(err, &ge) {
			return err
		}
		code = string(ge.Code)
		ev.Result = nil
		ev.Error = code
	}
	result.addTrace(ev)

	r.log.Debug().
		Int("step", i).
		Str("op", step.Op).
		Str("error", code).
		Msg("step executed")

	if err == nil && step.As != "" {
		if out.id == model.RootID {
			return fmt.Errorf("op creates nothing to bind to %q", step.As)
		}
		r.names[step.As] = out.id
		r.labels[out.id] = step.As
	}

	switch {
	case step.Expect == nil:
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Op, err))
		}
	case step.Expect.Error != "":
		if err == nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got success", i, step.Op, step.Expect.Error))
		} else if code != step.Expect.Error {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got %v", i, step.Op, step.Expect.Error, err))
		}
	default:
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Op, err))
			return nil
		}
		want, rerr := r.resolveAll(step.Expect.IDs)
		if rerr != nil {
			return fmt.Errorf("expect: %w", rerr)
		}
		if !sameIDs(want, out.ids) {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected ids %s, got %s",
				i, step.Op, r.render(want), r.render(out.ids)))
		}
	}
	return nil
}

// resolve turns a reference into an id. A reference is "$name", "root",
// or a literal id.
func (r *runner) resolve(v any) (model.ID, error) {
	switch ref := v.(type) {
	case int:
		return model.ID(ref), nil
	case int64:
		return model.ID(ref), nil
	case string:
		if ref == rootName {
			return model.RootID, nil
		}
		name, ok := strings.CutPrefix(ref, "$")
		if !ok {
			return 0, fmt.Errorf("reference %q must start with $", ref)
		}
		id, ok := r.names[name]
		if !ok {
			return 0, fmt.Errorf("name %q is not bound", name)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("unsupported reference %v (%T)", v, v)
	}
}

func (r *runner) resolveAll(refs []string) ([]model.ID, error) {
	out := make([]model.ID, 0, len(refs))
	for _, ref := range refs {
		id, err := r.resolve(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// label names id the way traces show it.
func (r *runner) label(id model.ID) string {
	if id == model.RootID {
		return rootName
	}
	if name, ok := r.labels[id]; ok {
		return name
	}
	return id.String()
}

func (r *runner) render(list []model.ID) string {
	labels := make([]string, len(list))
	for i, id := range list {
		labels[i] = r.label(id)
	}
	return "[" + strings.Join(labels, " ") + "]"
}

func sameIDs(a, b []model.ID) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
