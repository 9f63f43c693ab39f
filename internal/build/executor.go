package build

import (
	"github.com/cruciblehq/buildplan/internal/image"
	"github.com/cruciblehq/buildplan/internal/plan"
)

// Checks the ordering rules of a plan without applying it.
//
// Every step's parameters are validated, the first step must select the base
// image, no later step may select another, and no privileged step may follow
// the privilege drop. Rules that depend on accumulated state (principals,
// transient packages) are enforced by [Executor.Apply] and [Finalize].
func Check(p plan.Plan) error {
	if len(p.Steps) == 0 {
		return &StepFailure{Index: 0, Err: ErrNoBase}
	}

	droppedTo := ""

	for i, step := range p.Steps {
		fail := func(err error) error {
			return &StepFailure{Index: i, Step: step, Err: err}
		}

		if err := step.Validate(); err != nil {
			return fail(err)
		}

		switch {
		case i == 0 && step.Kind != plan.SetBase:
			return fail(ErrNoBase)
		case i > 0 && step.Kind == plan.SetBase:
			return fail(ErrBaseRedeclared)
		}

		if droppedTo != "" && step.Kind.Privileged() {
			return fail(&PrivilegeOrderingError{
				Kind:   step.Kind,
				User:   droppedTo,
				Reason: "privileged step after privilege drop",
			})
		}

		if step.Kind == plan.SetUser && droppedTo == "" {
			droppedTo = step.Name
		}
	}

	return nil
}

// Extracts the runtime contract from a terminal state.
//
// Fails with [*UnremovedTransientDependencyError] if any transient dependency
// is still installed, and with [*IncompleteContractError] if the entrypoint or
// the effective user was never declared.
func Finalize(state image.State) (image.RuntimeContract, error) {
	if pkgs := state.Transient(); len(pkgs) > 0 {
		return image.RuntimeContract{}, &UnremovedTransientDependencyError{Packages: pkgs}
	}

	var missing []string
	if state.Entrypoint() == "" {
		missing = append(missing, "entrypoint")
	}
	if !state.UserDeclared() {
		missing = append(missing, "user")
	}
	if len(missing) > 0 {
		return image.RuntimeContract{}, &IncompleteContractError{Missing: missing}
	}

	return image.ContractOf(state), nil
}
