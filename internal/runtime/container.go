package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Lifecycle state of a build container.
type ContainerState string

const (
	ContainerRunning    ContainerState = "running"     // Task is active.
	ContainerStopped    ContainerState = "stopped"     // Container exists without a running task.
	ContainerNotCreated ContainerState = "not-created" // No container with the ID exists.
)

// Container label recording the base image a build container started from.
const buildLabel = "buildplan.base"

// A running build container backed by containerd.
type Container struct {
	client   *containerd.Client // Containerd client for managing the container.
	id       string             // Containerd container ID.
	platform string             // OCI platform (e.g., "linux/amd64").
}

// Returns the container ID.
func (c *Container) ID() string {
	return c.id
}

// Queries the current state of the container.
func (c *Container) Status(ctx context.Context) (ContainerState, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if errdefs.IsNotFound(err) {
		return ContainerNotCreated, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if errdefs.IsNotFound(err) {
		return ContainerStopped, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return stateOf(status.Status), nil
}

// Maps a containerd task status onto a container state.
func stateOf(status containerd.ProcessStatus) ContainerState {
	switch status {
	case containerd.Running, containerd.Paused, containerd.Pausing:
		return ContainerRunning
	}
	return ContainerStopped
}

// Removes the build container, its task, and its snapshot.
//
// After destruction the handle is invalid. Failures are logged, not returned.
func (c *Container) Destroy(ctx context.Context) {
	if err := c.remove(ctx); err != nil {
		slog.Warn("failed to destroy build container", "id", c.id, "error", err)
		return
	}
	slog.Debug("build container destroyed", "id", c.id)
}

// Creates the build container from the base image.
//
// The host network and resolver are shared so apk and pip can reach their
// mirrors. The container idles until commands are executed in it.
func (c *Container) create(ctx context.Context, image containerd.Image) (containerd.Container, error) {
	return c.client.NewContainer(ctx, c.id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(c.id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithContainerLabels(map[string]string{buildLabel: image.Name()}),
		containerd.WithNewSpec(
			oci.WithDefaultSpecForPlatform(c.platform),
			oci.WithImageConfig(image),
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
			oci.WithProcessArgs("sleep", "infinity"),
		),
	)
}

// Starts the idle task with no attached IO.
func (c *Container) startTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}

// Kills the task and deletes the container with its snapshot. A container
// that does not exist is not an error.
func (c *Container) remove(ctx context.Context) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if errdefs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			return err
		}
	}

	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}
