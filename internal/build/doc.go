// Package build applies build plans to image states.
//
// A plan is an ordered list of steps. The executor applies each step in
// declaration order to an [image.State], validating ordering and principal
// invariants before any collaborator is invoked, so a failed step leaves the
// previous state intact. Steps are never reordered or run in parallel: later
// steps depend on the filesystem and package state established by earlier
// ones.
//
// Side effects are delegated to a [Backend]: the base image collaborator, the
// system package manager, the language package installer, and filesystem
// operations. The dryrun package records calls in memory; the runtime package
// executes them in a containerd build container.
//
// Two resources are tracked across steps. Transient build dependencies are an
// acquire/release pair: every package installed by install-transient-deps
// must be removed by a later remove-transient-deps, or [Finalize] fails. The
// privilege drop (set-user) must follow every privileged step and must target
// a created, non-root user that owns the working directory.
//
// Example usage:
//
//	result, err := build.Run(ctx, build.Options{
//	    Plan:    plan.Airflow(),
//	    Backend: dryrun.New(),
//	    Context: ".",
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Contract.Entrypoint)
package build
