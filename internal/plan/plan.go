package plan

import (
	"fmt"
	"maps"
	"slices"
)

// An ordered list of build steps producing a single image.
type Plan struct {
	Name  string `yaml:"name" toml:"name" json:"name"`    // Image name, used in logs and container IDs.
	Steps []Step `yaml:"steps" toml:"steps" json:"steps"` // Steps in declaration order.
}

// Returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	c := Plan{Name: p.Name, Steps: make([]Step, len(p.Steps))}
	for i, s := range p.Steps {
		c.Steps[i] = s.Clone()
	}
	return c
}

// Validates every step's parameters.
//
// Ordering rules are not checked here; they depend on execution state and are
// enforced by the executor.
func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan %q has no steps", ErrInvalidStep, p.Name)
	}
	for i, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// Returns a copy of the plan with a set-env step holding overrides inserted
// directly after the base image selection.
//
// Overrides are build arguments: they are visible to every later step. The
// receiver is not modified. An empty override map returns an unmodified copy.
func (p Plan) WithEnv(overrides map[string]string) Plan {
	c := p.Clone()
	if len(overrides) == 0 {
		return c
	}

	at := 0
	if len(c.Steps) > 0 && c.Steps[0].Kind == SetBase {
		at = 1
	}

	step := Step{Kind: SetEnv, Env: maps.Clone(overrides)}
	c.Steps = slices.Insert(c.Steps, at, step)
	return c
}

// Returns the index of the first step with the given kind, or -1.
func (p Plan) Index(kind Kind) int {
	return slices.IndexFunc(p.Steps, func(s Step) bool { return s.Kind == kind })
}
