package build

import (
	"context"

	"github.com/cruciblehq/buildplan/internal/image"
)

// Supplies the initial filesystem snapshot.
type BaseResolver interface {

	// Opens the base image identified by ref (name:tag or an OCI archive path)
	// and returns the environment declared by its image config.
	Open(ctx context.Context, ref string) (map[string]string, error)
}

// Scopes the commands run by later steps.
type Environment interface {

	// Replaces the environment of later commands. env is the complete
	// environment, base image entries included.
	Setenv(ctx context.Context, env map[string]string) error

	// Sets the working directory of later commands. dir exists.
	Chdir(ctx context.Context, dir string) error
}

// Installs and removes native system packages.
type SystemPackages interface {
	Add(ctx context.Context, pkgs []string) error
	Del(ctx context.Context, pkgs []string) error
}

// Installs language-level packages at exact versions.
type LanguagePackages interface {

	// Installs name at version. The version is an opaque string and is never
	// interpreted as a range.
	Install(ctx context.Context, name, version string) error
}

// Applies filesystem and principal changes to the image.
type Filesystem interface {
	MkdirAll(ctx context.Context, path string) error
	Symlink(ctx context.Context, target, link string) error
	Chown(ctx context.Context, path string, owner image.Owner) error
	AddGroup(ctx context.Context, name string) error
	AddUser(ctx context.Context, name, group string) error

	// Copies a host file or directory to dest inside the image.
	CopyIn(ctx context.Context, src, dest string) error
}

// All collaborators of a build, backed by a single image under construction.
//
// Calls are synchronous and made from a single goroutine. Release is always
// called once the build ends, whether or not Commit was reached.
type Backend interface {
	BaseResolver
	Environment
	SystemPackages
	LanguagePackages
	Filesystem

	// Publishes the finished image with the given runtime contract and
	// returns its location.
	Commit(ctx context.Context, name string, contract image.RuntimeContract) (string, error)

	// Releases all resources held for the build. Uncommitted work is discarded.
	Release(ctx context.Context)
}
