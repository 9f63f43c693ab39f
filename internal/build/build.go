package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/buildplan/internal/image"
	"github.com/cruciblehq/buildplan/internal/plan"
	"github.com/opencontainers/go-digest"
)

// Controls plan execution.
type Options struct {
	Plan    plan.Plan // Plan to execute.
	Backend Backend   // Collaborators performing step side effects.
	Context string    // Build context directory, for resolving copy sources.
}

// Returned after successful plan execution.
type Result struct {
	Contract    image.RuntimeContract // Runtime contract of the finished image.
	Digest      digest.Digest         // Digest of the runtime contract.
	StateDigest digest.Digest         // Digest of the terminal image state.
	Steps       int                   // Number of steps applied.
	Output      string                // Location reported by the backend on commit.
}

// Executes a plan against a backend.
//
// The plan is checked statically, then its steps are applied in declaration
// order starting from an empty state. The terminal state is finalized into a
// runtime contract and committed. The build is all-or-nothing: the first
// failure aborts it, nothing is committed, and the backend is always released.
func Run(ctx context.Context, opts Options) (*Result, error) {
	defer opts.Backend.Release(ctx)

	p := opts.Plan

	slog.Info("executing plan", "plan", p.Name, "steps", len(p.Steps), "context", opts.Context)

	if err := Check(p); err != nil {
		return nil, fmt.Errorf("%w: plan %s: %w", ErrBuild, p.Name, err)
	}

	exec := NewExecutor(opts.Backend, opts.Context)

	state, err := exec.ApplyAll(ctx, image.State{}, p.Steps)
	if err != nil {
		return nil, fmt.Errorf("%w: plan %s: %w", ErrBuild, p.Name, err)
	}

	contract, err := Finalize(state)
	if err != nil {
		return nil, fmt.Errorf("%w: plan %s: %w", ErrBuild, p.Name, err)
	}

	output, err := opts.Backend.Commit(ctx, p.Name, contract)
	if err != nil {
		return nil, fmt.Errorf("%w: plan %s: %w", ErrBuild, p.Name, err)
	}

	result := &Result{
		Contract:    contract,
		Digest:      contract.Digest(),
		StateDigest: state.Digest(),
		Steps:       state.Applied(),
		Output:      output,
	}

	slog.Info("plan complete", "plan", p.Name, "digest", result.Digest, "output", output)

	return result, nil
}

// Applies steps in order, stopping at the first failure.
//
// Returns the state after the last successful step alongside the error.
func (e *Executor) ApplyAll(ctx context.Context, state image.State, steps []plan.Step) (image.State, error) {
	for _, step := range steps {
		slog.Info(fmt.Sprintf("step %d/%d", state.Applied()+1, len(steps)), "step", step.String())

		next, err := e.Apply(ctx, state, step)
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}
