package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/klikkflow/collab/internal/op"
)

// Scenario defines a convergence test scenario.
// Scenarios race concurrent operations against each other and assert that
// every delivery order reaches the same graph.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup contains operations finalized before the race, in order.
	// Every session observes all of setup before stamping race operations.
	Setup []Step `yaml:"setup,omitempty"`

	// Race contains the concurrent operations. Operations from different
	// sessions are stamped without sight of each other; operations from the
	// same session are stamped in listed order.
	Race []Step `yaml:"race"`

	// Deliveries lists the per-replica delivery orders of the race
	// operations, by index into Race. An index may repeat to exercise
	// redelivery. Every delivery must contain each race index at least
	// once.
	Deliveries [][]int `yaml:"deliveries"`
}

// Step describes one operation in scenario form.
type Step struct {
	// Session is the authoring session id.
	Session string `yaml:"session"`

	// Op is the operation kind: create, update, move, delete, connect,
	// disconnect.
	Op string `yaml:"op"`

	// Target is the node or edge id.
	Target string `yaml:"target"`

	// NodeType is the created node's type (create only).
	NodeType string `yaml:"node_type,omitempty"`

	// Position is the canvas position (create, move).
	Position *PositionSpec `yaml:"position,omitempty"`

	// Size is the node bounding box (create only).
	Size *SizeSpec `yaml:"size,omitempty"`

	// Fields carries field writes (create, update).
	Fields map[string]any `yaml:"fields,omitempty"`

	// From and To are edge endpoints (connect, disconnect).
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`
}

// PositionSpec mirrors op.Position in YAML.
type PositionSpec struct {
	X int64 `yaml:"x"`
	Y int64 `yaml:"y"`
}

// SizeSpec mirrors op.Size in YAML.
type SizeSpec struct {
	Width  int64 `yaml:"width"`
	Height int64 `yaml:"height"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject typoed fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Race) == 0 {
		return fmt.Errorf("race list is required and must be non-empty")
	}
	if len(s.Deliveries) < 2 {
		return fmt.Errorf("at least two delivery orders are required")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Race {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("race[%d]: %w", i, err)
		}
	}

	for i, order := range s.Deliveries {
		seen := make(map[int]bool, len(s.Race))
		for _, idx := range order {
			if idx < 0 || idx >= len(s.Race) {
				return fmt.Errorf("deliveries[%d]: index %d out of range", i, idx)
			}
			seen[idx] = true
		}
		if len(seen) != len(s.Race) {
			return fmt.Errorf("deliveries[%d]: must deliver every race operation", i)
		}
	}
	return nil
}

func validateStep(s Step) error {
	if s.Session == "" {
		return fmt.Errorf("session is required")
	}
	if s.Target == "" {
		return fmt.Errorf("target is required")
	}
	kind := op.Kind(s.Op)
	if !op.ValidKinds[kind] {
		return fmt.Errorf("unknown op %q", s.Op)
	}

	switch kind {
	case op.KindCreate:
		if s.NodeType == "" {
			return fmt.Errorf("create requires node_type")
		}
	case op.KindUpdate:
		if len(s.Fields) == 0 {
			return fmt.Errorf("update requires fields")
		}
	case op.KindMove:
		if s.Position == nil {
			return fmt.Errorf("move requires position")
		}
	case op.KindConnect, op.KindDisconnect:
		if s.From == "" || s.To == "" {
			return fmt.Errorf("%s requires from and to", s.Op)
		}
	}
	return nil
}
