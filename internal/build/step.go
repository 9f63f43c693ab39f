package build

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"

	"github.com/cruciblehq/buildplan/internal/image"
	"github.com/cruciblehq/buildplan/internal/plan"
)

// Applies build steps to image states through a backend.
type Executor struct {
	backend Backend // Collaborators that perform step side effects.
	context string  // Build context directory, root for resolving copy sources.
}

// Creates an [Executor] that resolves copy sources against buildCtx.
func NewExecutor(backend Backend, buildCtx string) *Executor {
	return &Executor{backend: backend, context: buildCtx}
}

// Applies a single step to a state and returns the resulting state.
//
// The step's position is taken from the number of steps already applied to
// the state. Parameters are validated and expanded, then every precondition is
// checked before the backend is invoked. On failure the returned state is the
// unmodified input and the error is a [*StepFailure]. When the backend itself
// fails, its effect may be partial; the build must then be abandoned.
func (e *Executor) Apply(ctx context.Context, state image.State, step plan.Step) (image.State, error) {
	index := state.Applied()

	fail := func(err error) (image.State, error) {
		return state, &StepFailure{Index: index, Step: step, Err: err}
	}

	if err := step.Validate(); err != nil {
		return fail(err)
	}

	resolved := resolve(step, state)

	op, err := e.prepare(state, resolved)
	if err != nil {
		return fail(err)
	}

	slog.Debug("apply", "index", index+1, "step", resolved.String())

	if op.effect != nil {
		if err := op.effect(ctx); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrCollaborator, err))
		}
	}

	next := op.next
	if op.then != nil {
		next = op.then(next)
	}
	return next.Advance(), nil
}

// A validated step, ready to run.
type operation struct {
	effect func(context.Context) error   // Backend call, nil for metadata-only steps.
	next   image.State                   // State after the effect succeeds.
	then   func(image.State) image.State // Folds effect results into next, if set.
}

// Checks the preconditions of a resolved step against the current state and
// returns the operation that applies it.
//
// No backend calls are made. Errors returned here are the invariant
// violations of the step; the state is never modified.
func (e *Executor) prepare(state image.State, step plan.Step) (operation, error) {
	if step.Kind == plan.SetBase {
		if state.HasBase() {
			return operation{}, ErrBaseRedeclared
		}
	} else if !state.HasBase() {
		return operation{}, ErrNoBase
	}

	if step.Kind.Privileged() && !state.Privileged() {
		return operation{}, &PrivilegeOrderingError{
			Kind:   step.Kind,
			User:   state.User(),
			Reason: "privileged step after privilege drop",
		}
	}

	b := e.backend

	switch step.Kind {
	case plan.SetBase:
		var base map[string]string
		return operation{
			effect: func(ctx context.Context) (err error) {
				base, err = b.Open(ctx, step.Image)
				return err
			},
			next: image.New(step.Image),
			then: func(s image.State) image.State { return s.WithEnv(base) },
		}, nil

	case plan.SetEnv:
		next := state.WithEnv(step.Env)
		return operation{
			effect: func(ctx context.Context) error { return b.Setenv(ctx, next.Env()) },
			next:   next,
		}, nil

	case plan.SetWorkdir:
		dir := absPath(step.Path, state.Workdir())
		return operation{
			effect: func(ctx context.Context) error {
				if err := b.MkdirAll(ctx, dir); err != nil {
					return err
				}
				return b.Chdir(ctx, dir)
			},
			next: state.WithWorkdir(dir),
		}, nil

	case plan.InstallTransientDeps:
		for _, p := range step.Packages {
			if slices.Contains(state.System(), p) {
				return operation{}, fmt.Errorf("%w: %q is a persistent dependency", ErrPackageConflict, p)
			}
		}
		return operation{
			effect: func(ctx context.Context) error { return b.Add(ctx, step.Packages) },
			next:   state.WithTransient(step.Packages),
		}, nil

	case plan.InstallPersistentDeps:
		for _, p := range step.Packages {
			if state.IsTransient(p) {
				return operation{}, fmt.Errorf("%w: %q is a transient dependency", ErrPackageConflict, p)
			}
		}
		return operation{
			effect: func(ctx context.Context) error { return b.Add(ctx, step.Packages) },
			next:   state.WithSystem(step.Packages),
		}, nil

	case plan.RemoveTransientDeps:
		for _, p := range step.Packages {
			if !state.IsTransient(p) {
				return operation{}, fmt.Errorf("%w: %q", ErrNotTransient, p)
			}
		}
		return operation{
			effect: func(ctx context.Context) error { return b.Del(ctx, step.Packages) },
			next:   state.WithoutTransient(step.Packages),
		}, nil

	case plan.Symlink:
		link := absPath(step.Link, state.Workdir())
		return operation{
			effect: func(ctx context.Context) error { return b.Symlink(ctx, step.Target, link) },
			next:   state.WithSymlink(step.Target, link),
		}, nil

	case plan.InstallPackage:
		return operation{
			effect: func(ctx context.Context) error { return b.Install(ctx, step.Name, step.Version) },
			next:   state.WithPackage(step.Name, step.Version),
		}, nil

	case plan.CreateGroup:
		if state.HasGroup(step.Name) {
			return operation{}, fmt.Errorf("%w: group %q", ErrPrincipalExists, step.Name)
		}
		return operation{
			effect: func(ctx context.Context) error { return b.AddGroup(ctx, step.Name) },
			next:   state.WithGroup(step.Name),
		}, nil

	case plan.CreateUser:
		if state.HasUser(step.Name) {
			return operation{}, fmt.Errorf("%w: user %q", ErrPrincipalExists, step.Name)
		}
		if !state.HasGroup(step.Group) {
			return operation{}, &UnknownPrincipalError{Kind: "group", Name: step.Group}
		}
		return operation{
			effect: func(ctx context.Context) error { return b.AddUser(ctx, step.Name, step.Group) },
			next:   state.WithUser(step.Name, step.Group),
		}, nil

	case plan.CopyFiles:
		src, dest, err := resolveCopy(step.Source, step.Dest, state.Workdir(), e.context)
		if err != nil {
			return operation{}, err
		}
		return operation{
			effect: func(ctx context.Context) error { return b.CopyIn(ctx, src, dest) },
			next:   state.WithFile(step.Source, dest),
		}, nil

	case plan.SetOwner:
		if !state.HasUser(step.User) {
			return operation{}, &UnknownPrincipalError{Kind: "user", Name: step.User}
		}
		if !state.HasGroup(step.Group) && step.Group != image.Root {
			return operation{}, &UnknownPrincipalError{Kind: "group", Name: step.Group}
		}
		target := state.Workdir()
		if step.Path != "" {
			target = absPath(step.Path, state.Workdir())
		}
		owner := image.Owner{User: step.User, Group: step.Group}
		return operation{
			effect: func(ctx context.Context) error { return b.Chown(ctx, target, owner) },
			next:   state.WithOwner(target, owner),
		}, nil

	case plan.SetUser:
		if step.Name == image.Root {
			return operation{}, ErrRootUser
		}
		if !state.HasUser(step.Name) {
			return operation{}, &UnknownPrincipalError{Kind: "user", Name: step.Name}
		}
		if owner := state.OwnerOf(state.Workdir()); owner.User != step.Name {
			return operation{}, &PrivilegeOrderingError{
				Kind:   step.Kind,
				User:   state.User(),
				Reason: fmt.Sprintf("working directory %s is owned by %s", state.Workdir(), owner),
			}
		}
		return operation{next: state.WithEffectiveUser(step.Name)}, nil

	case plan.DeclarePort:
		return operation{next: state.WithPort(image.Port{Number: step.Port, Protocol: step.PortProtocol()})}, nil

	case plan.SetEntrypoint:
		return operation{next: state.WithEntrypoint(absPath(step.Entrypoint, state.Workdir()))}, nil
	}

	return operation{}, fmt.Errorf("%w: %q", plan.ErrUnknownKind, step.Kind)
}

// Returns p as an absolute, clean image path, resolving relative paths
// against dir.
func absPath(p, dir string) string {
	if !path.IsAbs(p) {
		p = path.Join(dir, p)
	}
	return path.Clean(p)
}
