package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cruciblehq/buildplan/internal/image"
)

// Mode for created output directories.
const outputDirMode = 0o755

// Build collaborators backed by a containerd build container.
//
// The container is started when the base image is opened and destroyed on
// release. Every step effect runs as a command inside it.
type Backend struct {
	rt     *Runtime   // Runtime used to start the build container.
	id     string     // Build container ID.
	output string     // Directory receiving the exported archive.
	ctr    *Container // Build container, nil until Open.
	env    []string   // Environment of build commands.
	dir    string     // Working directory of build commands.
}

// Creates a backend that builds in a container named id and exports to
// output.
func NewBackend(rt *Runtime, id, output string) *Backend {
	return &Backend{rt: rt, id: id, output: output}
}

// Returns the build container ID.
func (b *Backend) ID() string {
	return b.id
}

// Starts the build container from a registry reference or OCI archive and
// returns the environment of the base image config.
func (b *Backend) Open(ctx context.Context, ref string) (map[string]string, error) {
	if b.ctr != nil {
		return nil, ErrStarted
	}
	ctr, err := b.rt.StartContainer(ctx, ref, b.id)
	if err != nil {
		return nil, err
	}
	b.ctr = ctr

	env, err := ctr.Env(ctx)
	if err != nil {
		return nil, err
	}
	b.env = env
	return envMap(env), nil
}

// Sets the environment of later build commands.
func (b *Backend) Setenv(ctx context.Context, env map[string]string) error {
	if b.ctr == nil {
		return ErrNotStarted
	}
	b.env = envList(env)
	return nil
}

// Sets the working directory of later build commands.
func (b *Backend) Chdir(ctx context.Context, dir string) error {
	if b.ctr == nil {
		return ErrNotStarted
	}
	b.dir = dir
	return nil
}

func (b *Backend) Add(ctx context.Context, pkgs []string) error {
	return b.run(ctx, apkAddArgs(pkgs))
}

func (b *Backend) Del(ctx context.Context, pkgs []string) error {
	return b.run(ctx, apkDelArgs(pkgs))
}

func (b *Backend) Install(ctx context.Context, name, version string) error {
	return b.run(ctx, pipInstallArgs(name, version))
}

func (b *Backend) MkdirAll(ctx context.Context, path string) error {
	return b.run(ctx, mkdirArgs(path))
}

func (b *Backend) Symlink(ctx context.Context, target, link string) error {
	return b.run(ctx, symlinkArgs(target, link))
}

func (b *Backend) Chown(ctx context.Context, path string, owner image.Owner) error {
	return b.run(ctx, chownArgs(path, owner))
}

func (b *Backend) AddGroup(ctx context.Context, name string) error {
	return b.run(ctx, addGroupArgs(name))
}

func (b *Backend) AddUser(ctx context.Context, name, group string) error {
	return b.run(ctx, addUserArgs(name, group))
}

func (b *Backend) CopyIn(ctx context.Context, src, dest string) error {
	if b.ctr == nil {
		return ErrNotStarted
	}
	return b.ctr.CopyIn(ctx, src, dest)
}

// Exports the container filesystem with the contract applied to the image
// config and returns the archive path.
func (b *Backend) Commit(ctx context.Context, name string, contract image.RuntimeContract) (string, error) {
	if b.ctr == nil {
		return "", ErrNotStarted
	}
	if err := os.MkdirAll(b.output, outputDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return b.ctr.Export(ctx, b.output, name, contract.ImageConfig())
}

// Destroys the build container, if one was started.
func (b *Backend) Release(ctx context.Context) {
	if b.ctr == nil {
		return
	}
	b.ctr.Destroy(ctx)
	b.ctr = nil
}

// Runs a command in the build container.
func (b *Backend) run(ctx context.Context, args []string) error {
	if b.ctr == nil {
		return ErrNotStarted
	}
	slog.Debug("exec", "id", b.id, "dir", b.dir, "cmd", strings.Join(args, " "))
	return b.ctr.Exec(ctx, Command{Args: args, Env: b.env, Dir: b.dir})
}
