package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of store operations with expected outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against one store.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the store after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step invokes one store operation.
type Step struct {
	// Op is the operation name, e.g. "create_node_version".
	Op string `yaml:"op"`

	// As binds the id the step creates to a name.
	As string `yaml:"as,omitempty"`

	// Args holds the operation arguments. String values of the form
	// "$name" refer to bound ids.
	Args map[string]any `yaml:"args"`

	// Expect validates the outcome. If nil the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a step.
type Expect struct {
	// Error is the expected error code, e.g. "NOT_FOUND".
	Error string `yaml:"error,omitempty"`

	// IDs is the expected id list of a list-valued read, in any order.
	IDs []string `yaml:"ids,omitempty"`
}

// Assertion validates the final store state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Item is the item reference (leaves, parents).
	Item string `yaml:"item,omitempty"`

	// Version is the version reference (parents).
	Version string `yaml:"version,omitempty"`

	// IDs are the expected ids, in any order (leaves, parents).
	IDs []string `yaml:"ids,omitempty"`

	// Op and Count are used by trace_count.
	Op    string `yaml:"op,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertLeaves     = "leaves"
	AssertParents    = "parents"
	AssertTraceCount = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface early.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	bound := make(map[string]bool)
	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
		if _, ok := ops[step.Op]; !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.As != "" {
			if step.As == rootName {
				return fmt.Errorf("steps[%d]: %q is reserved", i, rootName)
			}
			if bound[step.As] {
				return fmt.Errorf("steps[%d]: name %q is already bound", i, step.As)
			}
			bound[step.As] = true
		}
		if step.Expect != nil && step.Expect.Error == "" && step.Expect.IDs == nil {
			return fmt.Errorf("steps[%d].expect: error or ids is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertLeaves:
		if a.Item == "" {
			return fmt.Errorf("assertions[%d]: item is required for leaves", index)
		}
	case AssertParents:
		if a.Item == "" || a.Version == "" {
			return fmt.Errorf("assertions[%d]: item and version are required for parents", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
