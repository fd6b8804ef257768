// Package harness runs version-history scenarios against a ground store.
//
// # Scenario Format
//
// Scenarios are YAML files. Each step calls one store operation; a step
// that creates something may bind the new id to a name with "as", and
// later steps refer to it as "$name".
//
//	name: edge_leaves
//	description: "Leaves of an edge with one version"
//	steps:
//	  - op: create_node
//	    as: x
//	    args: { name: X, source_key: x }
//	  - op: create_node_version
//	    as: x1
//	    args: { item: $x, tags: { owner: data-eng, pii: null } }
//	  - op: get_leaves
//	    args: { item: $x }
//	    expect:
//	      ids: [$x1]
//	  - op: retrieve_version
//	    args: { id: 999 }
//	    expect:
//	      error: NOT_FOUND
//	assertions:
//	  - type: leaves
//	    item: $x
//	    ids: [$x1]
//
// A tag whose value is null carries no value. Every version op accepts
// "parents"; without it the version is placed under the root.
//
// # Assertion Types
//
//   - leaves: the item's current leaves, in any order
//   - parents: the direct parents of a version
//   - trace_count: how many times an op appears in the trace
//
// # Deterministic Testing
//
// Traces name ids by their bound names ("root" for the root sentinel),
// never by number, so the same scenario yields the same trace on every
// backend and block size. RunWithGolden compares that trace against
// testdata/golden/<name>.golden.
package harness
