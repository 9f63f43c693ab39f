package build

import (
	"os"

	"github.com/cruciblehq/buildplan/internal/image"
	"github.com/cruciblehq/buildplan/internal/plan"
)

// Returns a copy of the step with variable references expanded.
//
// "$VAR" and "${VAR}" in string parameters are replaced with values from the
// state's environment: the base image config followed by earlier set-env
// steps. Unset variables expand to the empty string. Values within a single
// set-env step see only the state before that step, never each other. The
// base image reference and language package pins are not expanded. The input
// step is not modified.
func resolve(step plan.Step, state image.State) plan.Step {
	lookup := func(key string) string {
		v, _ := state.Getenv(key)
		return v
	}
	expand := func(s string) string {
		if s == "" {
			return s
		}
		return os.Expand(s, lookup)
	}

	r := step.Clone()
	r.Path = expand(r.Path)
	if r.Kind != plan.InstallPackage {
		r.Name = expand(r.Name)
	}
	r.User = expand(r.User)
	r.Group = expand(r.Group)
	r.Target = expand(r.Target)
	r.Link = expand(r.Link)
	r.Source = expand(r.Source)
	r.Dest = expand(r.Dest)
	r.Entrypoint = expand(r.Entrypoint)

	for i, p := range r.Packages {
		r.Packages[i] = expand(p)
	}

	if r.Env != nil {
		env := make(map[string]string, len(r.Env))
		for k, v := range r.Env {
			env[k] = expand(v)
		}
		r.Env = env
	}

	return r
}
