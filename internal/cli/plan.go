package cli

import (
	"fmt"
	"path/filepath"

	"github.com/cruciblehq/buildplan/internal/plan"
	"github.com/joho/godotenv"
)

// Flags shared by commands that execute a plan.
type PlanFlags struct {
	Plan    string `arg:"" optional:"" help:"Plan file (.yaml or .toml). Defaults to the embedded reference plan." type:"existingfile"`
	EnvFile string `help:"Read build arguments from a dotenv file." placeholder:"PATH" type:"existingfile"`
	Context string `short:"C" help:"Build context directory. Defaults to the plan's directory." placeholder:"DIR" type:"path"`
}

// Returns the plan with build arguments applied.
func (f *PlanFlags) load() (plan.Plan, error) {
	p, err := readPlan(f.Plan)
	if err != nil {
		return plan.Plan{}, err
	}

	if f.EnvFile != "" {
		env, err := godotenv.Read(f.EnvFile)
		if err != nil {
			return plan.Plan{}, fmt.Errorf("env file %s: %w", f.EnvFile, err)
		}
		p = p.WithEnv(env)
	}
	return p, nil
}

// Returns the build context directory.
func (f *PlanFlags) contextDir() (string, error) {
	dir := f.Context
	if dir == "" {
		dir = "."
		if f.Plan != "" {
			dir = filepath.Dir(f.Plan)
		}
	}
	return filepath.Abs(dir)
}

// Reads a plan file, or returns the reference plan for an empty path.
func readPlan(path string) (plan.Plan, error) {
	if path == "" {
		return plan.Airflow(), nil
	}
	return plan.Load(path)
}
