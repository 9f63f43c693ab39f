package build

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cruciblehq/buildplan/internal/plan"
)

var (
	ErrBuild               = errors.New("build failed")
	ErrFileSystemOperation = errors.New("file system operation failed")
	ErrCopy                = errors.New("copy failed")
	ErrNoBase              = errors.New("no base image selected")
	ErrBaseRedeclared      = errors.New("base image already selected")
	ErrPrincipalExists     = errors.New("principal already exists")
	ErrRootUser            = errors.New("privilege drop must target a non-root user")
	ErrNotTransient        = errors.New("package not installed as a transient dependency")
	ErrPackageConflict     = errors.New("package installed with a different lifetime")
	ErrCollaborator        = errors.New("collaborator failed")
)

// Failure to apply a single step.
//
// Wraps the underlying cause, which may be one of the typed errors in this
// package, a sentinel, or an error surfaced by a collaborator.
type StepFailure struct {
	Index int       // Zero-based position of the step in the plan.
	Step  plan.Step // Step that could not be applied.
	Err   error     // Underlying cause.
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Step, e.Err)
}

func (e *StepFailure) Unwrap() error {
	return e.Err
}

// Transient dependencies still installed at finalize time.
type UnremovedTransientDependencyError struct {
	Packages []string // Sorted names of the packages never released.
}

func (e *UnremovedTransientDependencyError) Error() string {
	return fmt.Sprintf("transient dependencies never removed: %s", strings.Join(e.Packages, ", "))
}

// Reference to a user or group that no earlier step created.
type UnknownPrincipalError struct {
	Kind string // "user" or "group".
	Name string // Name of the missing principal.
}

func (e *UnknownPrincipalError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}

// Privileged step scheduled after the privilege drop, or a drop that would
// leave the working directory owned by another principal.
type PrivilegeOrderingError struct {
	Kind   plan.Kind // Kind of the offending step.
	User   string    // Effective user at the time of the step.
	Reason string    // Describes the violated ordering rule.
}

func (e *PrivilegeOrderingError) Error() string {
	return fmt.Sprintf("%s as %q: %s", e.Kind, e.User, e.Reason)
}

// Runtime contract attributes that were never declared.
type IncompleteContractError struct {
	Missing []string // Names of the missing attributes.
}

func (e *IncompleteContractError) Error() string {
	return fmt.Sprintf("incomplete runtime contract: missing %s", strings.Join(e.Missing, ", "))
}
