package harness

import "github.com/roach88/ground/internal/ir"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq int64  `json:"seq"`
	Op  string `json:"op"`
	As  string `json:"as,omitempty"`

	// Result is the rendered output of a read step.
	Result ir.IRValue `json:"result,omitempty"`

	// Error is the error code the step failed with, if any.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Bindings maps each bound name to its id.
	Bindings map[string]int64 `json:"bindings,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Bindings: make(map[string]int64),
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
