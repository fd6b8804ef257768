package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/ground/internal/ground"
	"github.com/roach88/ground/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Op)
		if event.As != "" {
			fmt.Fprintf(&buf, " as %s", event.As)
		}
		if event.Error != "" {
			fmt.Fprintf(&buf, " -> %s", event.Error)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// evaluateAssertions checks every assertion against the store and the
// trace, returning one message per failure.
func (r *runner) evaluateAssertions(ctx context.Context, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertLeaves:
			err = r.assertLeaves(ctx, result.Trace, a)
		case AssertParents:
			err = r.assertParents(ctx, result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (r *runner) assertLeaves(ctx context.Context, trace []TraceEvent, a Assertion) error {
	item, err := r.resolve(a.Item)
	if err != nil {
		return err
	}
	leaves, err := r.store.GetLeaves(ctx, ground.ByID(item))
	if err != nil {
		return err
	}
	return r.compareIDs(AssertLeaves, trace, a.IDs, leaves)
}

func (r *runner) assertParents(ctx context.Context, trace []TraceEvent, a Assertion) error {
	item, err := r.resolve(a.Item)
	if err != nil {
		return err
	}
	version, err := r.resolve(a.Version)
	if err != nil {
		return err
	}
	parents, err := r.store.ParentsOf(ctx, item, version)
	if err != nil {
		return err
	}
	return r.compareIDs(AssertParents, trace, a.IDs, parents)
}

func (r *runner) compareIDs(kind string, trace []TraceEvent, refs []string, got []model.ID) error {
	want, err := r.resolveAll(refs)
	if err != nil {
		return err
	}
	if sameIDs(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: r.render(want),
		Actual:   r.render(got),
		Trace:    trace,
	}
}

// assertTraceCount checks that op appears exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == a.Op {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s x%d", a.Op, a.Count),
		Actual:   fmt.Sprintf("%s x%d", a.Op, count),
		Trace:    trace,
	}
}
