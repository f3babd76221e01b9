// Package script runs YAML scenarios against a browser.Glue, recording a
// deterministic trace of the operations issued and the signals observed.
package script

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Step operations.
const (
	OpCreateView    = `create_view`
	OpCloseView     = `close_view`
	OpLoadURL       = `load_url`
	OpGoBack        = `go_back`
	OpGoForward     = `go_forward`
	OpReload        = `reload`
	OpFrameComplete = `frame_complete`
	OpTouch         = `touch`
)

type (
	// Scenario is a named sequence of steps.
	Scenario struct {
		// Name identifies the scenario, and names its golden trace.
		Name string `yaml:"name"`
		// Description explains what the scenario exercises.
		Description string `yaml:"description"`
		// Steps run in order, each to completion on the owner.
		Steps []Step `yaml:"steps"`
	}

	// Step is a single operation. Which fields apply depends on Op.
	Step struct {
		// Op is one of the Op constants.
		Op string `yaml:"op"`
		// View is the scenario-local name of the view, bound by
		// create_view, and required by every view operation.
		View string `yaml:"view,omitempty"`
		// URL is the target of load_url.
		URL string `yaml:"url,omitempty"`
		// Width and Height size create_view.
		Width  int `yaml:"width,omitempty"`
		Height int `yaml:"height,omitempty"`
		// Time, Phase, X and Y describe a touch sample.
		Time  int64   `yaml:"time,omitempty"`
		Phase int32   `yaml:"phase,omitempty"`
		X     float32 `yaml:"x,omitempty"`
		Y     float32 `yaml:"y,omitempty"`
	}
)

// Load parses a scenario, rejecting unknown fields.
func Load(r io.Reader) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("script: failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("script: invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadFile is Load for the file at path.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: failed to read scenario file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Validate checks required fields are present.
func (s *Scenario) Validate() error {
	if s.Name == `` {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (x Step) validate() error {
	switch x.Op {
	case OpCreateView, OpCloseView, OpGoBack, OpGoForward, OpReload:
		if x.View == `` {
			return fmt.Errorf("%s requires view", x.Op)
		}
	case OpLoadURL:
		if x.View == `` || x.URL == `` {
			return fmt.Errorf("%s requires view and url", x.Op)
		}
	case OpFrameComplete, OpTouch:
	case ``:
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", x.Op)
	}
	return nil
}

// ApplyViewport sizes every create_view step that sets neither width nor
// height.
func (s *Scenario) ApplyViewport(width, height int) {
	for i := range s.Steps {
		if s.Steps[i].Op == OpCreateView && s.Steps[i].Width == 0 && s.Steps[i].Height == 0 {
			s.Steps[i].Width, s.Steps[i].Height = width, height
		}
	}
}
