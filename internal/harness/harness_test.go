package harness

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ground/internal/ground"
	"github.com/roach88/ground/internal/ir"
	"github.com/roach88/ground/internal/logger"
	"github.com/roach88/ground/internal/testutil"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRunOnEveryBackend(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "edge_endpoints.yaml"))
	require.NoError(t, err)

	var traces [][]TraceEvent
	for _, b := range testutil.Backends() {
		t.Run(b.Name, func(t *testing.T) {
			result, err := Run(context.Background(), ground.New(b.Open(t), nil), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Contains(t, result.Bindings, "e2")
			traces = append(traces, result.Trace)
		})
	}
	require.Len(t, traces, 2)
	assert.Equal(t, traces[0], traces[1])
}

func TestRunReportsFailedExpectations(t *testing.T) {
	scenario := mustParse(t, `
name: failing
description: "every expectation is wrong"
steps:
  - op: create_node
    as: n
    args: { name: N, source_key: n }
  - op: create_node
    args: { name: N, source_key: n }
  - op: create_node_version
    as: n1
    args: { item: $n }
    expect:
      error: CONFLICT
  - op: get_leaves
    args: { item: $n }
    expect:
      ids: [root]
  - op: retrieve_version
    args: { id: 999999998 }
    expect:
      error: CONFLICT
assertions:
  - type: leaves
    item: $n
    ids: []
  - type: trace_count
    op: create_node
    count: 1
`)
	result, err := RunFresh(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Contains(t, result.Errors[0], "DUPLICATE_KEY")
	assert.Contains(t, result.Errors[1], "expected CONFLICT, got success")
	assert.Contains(t, result.Errors[2], "expected ids [root], got [n1]")
	assert.Contains(t, result.Errors[3], "expected CONFLICT, got NOT_FOUND")
	assert.Contains(t, result.Errors[4], "Assertion failed: leaves")
	assert.Contains(t, result.Errors[5], "create_node x2")

	assert.Equal(t, "DUPLICATE_KEY", result.Trace[1].Error)
}

func TestRunBrokenScenario(t *testing.T) {
	tests := []struct {
		name    string
		step    string
		wantErr string
	}{
		{"unbound name", "  - op: create_node_version\n    args: { item: $ghost }\n", `name "ghost" is not bound`},
		{"bare reference", "  - op: get_leaves\n    args: { item: n }\n", "must start with $"},
		{"missing arg", "  - op: create_node\n    args: { name: N }\n", `arg "source_key": is required`},
		{"bad type", "  - op: get_leaves\n    args: { type: table, source_key: t }\n", `arg "type"`},
		{"float tag", "  - op: create_node\n    args: { name: N, source_key: f, tags: { ratio: 0.5 } }\n", "floats are forbidden"},
		{"bind a read", "  - op: create_node\n    as: n\n    args: { name: N, source_key: n }\n  - op: get_leaves\n    as: l\n    args: { item: $n }\n", "creates nothing to bind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := mustParse(t, "name: broken\ndescription: d\nsteps:\n"+tt.step)
			_, err := RunFresh(context.Background(), scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunHistoryAndLineageOps(t *testing.T) {
	scenario := mustParse(t, `
name: history
description: "merge, retry, lineage and graphs"
steps:
  - op: create_node
    as: n
    args: { name: N, source_key: n, tags: { pii: null, rows: 3 } }
  - op: create_node_version
    as: a
    args: { item: $n, reference: "s3://bucket/a", reference_parameters: { region: eu } }
  - op: create_node_version
    as: b
    args: { item: $n, parents: [$a] }
  - op: create_node_version
    as: c
    args: { item: $n, parents: [$a] }
  - op: create_node_version
    as: d
    args: { item: $n, parents: [$b, $c] }
  - op: update_item
    args: { item: $n, version: $d, parents: [$b, $c] }
    expect:
      ids: [$b, $c]
  - op: add_successor
    as: s
    args: { item: $n, from: $a, to: $b }
  - op: retrieve_successor
    args: { id: $s }
  - op: add_successor
    args: { item: $n, from: $d, to: $a }
    expect:
      error: CONFLICT
  - op: retrieve_item_tags
    args: { id: $n }
  - op: retrieve_item
    args: { type: node, source_key: n }
  - op: create_lineage_edge
    as: le
    args: { name: LE, source_key: le }
  - op: create_lineage_edge_version
    as: le1
    args: { item: $le, from: $a, to: $d }
  - op: create_lineage_graph
    as: lg
    args: { name: LG, source_key: lg }
  - op: create_lineage_graph_version
    as: lg1
    args: { item: $lg, lineage_edge_versions: [$le1] }
  - op: create_graph
    as: g
    args: { name: G, source_key: g }
  - op: create_graph_version
    args: { item: $g, edge_versions: [$a] }
    expect:
      error: NOT_FOUND
  - op: parents_of
    args: { item: $n, version: $d }
    expect:
      ids: [$b, $c]
assertions:
  - type: leaves
    item: $n
    ids: [$d]
  - type: leaves
    item: $lg
    ids: [$lg1]
`)
	result, err := RunFresh(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	byOp := map[string]TraceEvent{}
	for _, ev := range result.Trace {
		byOp[ev.Op] = ev
	}
	assert.Equal(t, ir.IRObject{"from": ir.IRString("a"), "item": ir.IRString("n"), "to": ir.IRString("b")},
		byOp["retrieve_successor"].Result)
	assert.Equal(t, ir.IRObject{
		"pii":  ir.IRObject{},
		"rows": ir.IRObject{"type": ir.IRString("integer"), "value": ir.IRInt(3)},
	}, byOp["retrieve_item_tags"].Result)
	item, ok := byOp["retrieve_item"].Result.(ir.IRObject)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("node"), item["type"])
}

func TestRunWithLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Output: &buf})
	scenario := mustParse(t, "name: l\ndescription: d\nsteps:\n  - op: create_node\n    args: { name: N, source_key: n }\n")

	_, err := RunFresh(context.Background(), scenario, WithLogger(log))
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `"component":"harness"`)
	assert.Equal(t, 1, strings.Count(out, "step executed"))
}
