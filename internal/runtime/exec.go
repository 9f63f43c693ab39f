package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// A process to run in the build container.
type Command struct {
	Args   []string  // Program and arguments, run without a shell.
	Env    []string  // KEY=VALUE entries merged over the container's env.
	Dir    string    // Working directory. Empty means "/".
	Stdin  io.Reader // Standard input, or nil.
	Stdout io.Writer // Standard output, or nil to discard.
}

// Runs a command with the container's own environment from the filesystem
// root.
func (c *Container) Run(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) error {
	return c.Exec(ctx, Command{Args: args, Stdin: stdin, Stdout: stdout})
}

// Runs a command inside the container.
//
// Standard error is captured and reported in an [*ExitError] when the
// process exits with a non-zero code.
func (c *Container) Exec(ctx context.Context, cmd Command) error {
	pspec, err := c.processSpec(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	var stderr bytes.Buffer
	code, err := c.execProcess(ctx, pspec, cmd.Stdin, cmd.Stdout, &stderr)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Args: cmd.Args, Code: code, Stderr: strings.TrimSpace(stderr.String())}
	}
	return nil
}

// Returns the environment the container was created with, taken from the
// base image config.
func (c *Container) Env(ctx context.Context) ([]string, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	if spec.Process == nil {
		return nil, nil
	}
	return slices.Clone(spec.Process.Env), nil
}

// Builds an OCI process spec for running a command inside the container.
//
// The base values are copied from the container's own OCI spec, with the
// command's environment merged on top. Commands always run as root; the
// runtime contract's user only applies to the exported image.
func (c *Container) processSpec(ctx context.Context, cmd Command) (*specs.Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, err
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	return commandProcess(*spec.Process, cmd), nil
}

// Derives the process of cmd from the container's base process.
func commandProcess(base specs.Process, cmd Command) *specs.Process {
	p := base
	p.Terminal = false
	p.Args = cmd.Args
	p.Env = mergeEnv(base.Env, cmd.Env)
	p.Cwd = cmd.Dir
	if p.Cwd == "" {
		p.Cwd = "/"
	}
	p.User = specs.User{UID: 0, GID: 0}
	return &p
}

// Merges override env entries on top of a base env slice.
//
// The result is sorted by key. Malformed entries without "=" are dropped.
func mergeEnv(base, overrides []string) []string {
	return envList(envMap(slices.Concat(base, overrides)))
}

// Converts KEY=VALUE entries to a map. Later entries win.
func envMap(entries []string) map[string]string {
	m := make(map[string]string, len(entries))
	for _, entry := range entries {
		if k, v, ok := strings.Cut(entry, "="); ok {
			m[k] = v
		}
	}
	return m
}

// Converts a map to KEY=VALUE entries sorted by key.
func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Starts a process inside the container's running task, waits for it to exit,
// and returns the exit code.
//
// The process is attached to the task as an additional exec, not as the
// primary process. Nil output streams are replaced with io.Discard. When
// stdin is provided, the process stdin is closed once the reader is drained;
// the containerd shim holds both ends of the stdin FIFO open and never
// propagates EOF on its own.
func (c *Container) execProcess(ctx context.Context, pspec *specs.Process, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	task, err := c.loadTask(ctx)
	if err != nil {
		return 0, err
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	var drained <-chan struct{}
	if stdin != nil {
		r := newEOFReader(stdin)
		stdin = r
		drained = r.eof
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(stdin, stdout, stderr),
	))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return awaitProcess(ctx, process, drained)
}

// Loads the container's running task.
func (c *Container) loadTask(ctx context.Context) (containerd.Task, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return task, nil
}

// Starts an exec process and blocks until it exits.
//
// If drained is non-nil, the process stdin is closed when it fires. The
// process is always deleted before returning.
func awaitProcess(ctx context.Context, process containerd.Process, drained <-chan struct{}) (int, error) {
	statusC, err := process.Wait(ctx)
	if err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := process.Start(ctx); err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if drained != nil {
		go func() {
			select {
			case <-drained:
				process.CloseIO(ctx, containerd.WithStdinCloser)
			case <-ctx.Done():
			}
		}()
	}

	status := <-statusC
	process.Delete(ctx)

	code, _, err := status.Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return int(code), nil
}
