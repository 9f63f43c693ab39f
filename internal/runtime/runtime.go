package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"strings"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/distribution/reference"
)

const (

	// Snapshotter used for container filesystems. fuse-overlayfs provides
	// overlay semantics without mount(2), so the daemon can run unprivileged.
	snapshotter = "fuse-overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// Manages the containerd client and provides image and container operations.
type Runtime struct {
	client   *containerd.Client // Containerd client for managing containers and images.
	platform string             // Target OCI platform for pulled and unpacked images.
}

// Creates a runtime connected to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to a single tenant. An empty
// platform selects the host platform. The runtime must be closed when no
// longer needed.
func New(address, namespace, platform string) (*Runtime, error) {
	if platform == "" {
		platform = DefaultPlatform()
	}
	if _, err := platforms.Parse(platform); err != nil {
		return nil, fmt.Errorf("%w: platform %q: %w", ErrRuntime, platform, err)
	}

	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return &Runtime{client: client, platform: platform}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Returns the target platform.
func (rt *Runtime) Platform() string {
	return rt.platform
}

// Resolves a base image and starts a build container from it.
//
// When ref names an existing file it is imported as an OCI archive and tagged
// with a deterministic name derived from the path; otherwise it is pulled
// from its registry. The layers for the target platform are unpacked, any
// stale container with the same ID is removed, and a long-running task (sleep
// infinity) is started so commands can be exec'd into it. Building for a
// platform other than the host requires QEMU / binfmt_misc support.
func (rt *Runtime) StartContainer(ctx context.Context, ref, id string) (*Container, error) {
	tag, err := rt.acquireImage(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRuntime, ref, err)
	}

	c := rt.Container(id)
	if err := c.remove(ctx); err != nil {
		return nil, fmt.Errorf("%w: stale container %s: %w", ErrRuntime, id, err)
	}

	image, err := rt.resolveImage(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	ctr, err := c.create(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("container started", "id", id, "image", tag)

	return c, nil
}

// Returns a handle for a container.
//
// The container is not loaded or verified; the handle resolves it lazily on
// subsequent calls.
func (rt *Runtime) Container(id string) *Container {
	return &Container{
		client:   rt.client,
		id:       id,
		platform: rt.platform,
	}
}

// Makes a base image available locally and returns its image name.
func (rt *Runtime) acquireImage(ctx context.Context, ref string) (string, error) {
	if isArchive(ref) {
		return rt.importImage(ctx, ref)
	}
	return rt.pullImage(ctx, ref)
}

// Pulls and unpacks a registry image for the target platform.
//
// Short references such as "python:3.5-alpine" are normalized to their fully
// qualified form. An image already present in the store is not fetched
// again.
func (rt *Runtime) pullImage(ctx context.Context, ref string) (string, error) {
	name, err := normalizeRef(ref)
	if err != nil {
		return "", err
	}

	if _, err := rt.client.ImageService().Get(ctx, name); err == nil {
		if err := rt.unpackImage(ctx, name); err != nil {
			return "", err
		}
		slog.Debug("image cached", "image", name)
		return name, nil
	} else if !errdefs.IsNotFound(err) {
		return "", err
	}

	slog.Info("pulling image", "image", name, "platform", rt.platform)

	img, err := rt.client.Pull(ctx, name,
		containerd.WithPlatform(rt.platform),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(snapshotter),
	)
	if err != nil {
		return "", err
	}

	return img.Name(), nil
}

// Imports an OCI archive, tags it, and unpacks it for the target platform.
func (rt *Runtime) importImage(ctx context.Context, path string) (string, error) {
	tag := imageTag(path)

	source, err := rt.importArchive(ctx, path)
	if err != nil {
		return "", err
	}

	if err := rt.tagImage(ctx, source, tag); err != nil {
		return "", err
	}

	if err := rt.unpackImage(ctx, tag); err != nil {
		return "", err
	}

	slog.Debug("image imported", "path", path, "tag", tag)
	return tag, nil
}

// Imports an OCI archive into the content store.
//
// The archive must contain exactly one image. Multi-platform archives
// (a single OCI index with per-platform manifests) are supported; platform
// selection happens in resolveImage.
func (rt *Runtime) importArchive(ctx context.Context, path string) (images.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return images.Image{}, err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return images.Image{}, err
	}

	switch len(imported) {
	case 0:
		return images.Image{}, ErrEmptyArchive
	case 1:
		return imported[0], nil
	default:
		return images.Image{}, ErrMultipleImages
	}
}

// Tags an imported image under a deterministic name.
//
// Updates the tag if it already exists. Removes the source record when
// its name differs from the tag to avoid duplicates.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}

	if source.Name != tag {
		_ = is.Delete(ctx, source.Name)
	}

	return nil
}

// Unpacks the image layers for the target platform into the snapshotter.
func (rt *Runtime) unpackImage(ctx context.Context, name string) error {
	image, err := rt.resolveImage(ctx, name)
	if err != nil {
		return err
	}
	return image.Unpack(ctx, snapshotter)
}

// Looks up an image and selects the manifest for the target platform.
func (rt *Runtime) resolveImage(ctx context.Context, name string) (containerd.Image, error) {
	p, err := platforms.Parse(rt.platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, name)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Returns true if ref names an existing regular file on the host.
func isArchive(ref string) bool {
	info, err := os.Stat(ref)
	return err == nil && info.Mode().IsRegular()
}

// Returns the fully qualified form of a registry reference.
//
// A reference without a tag or digest gets ":latest".
func normalizeRef(ref string) (string, error) {
	named, err := reference.ParseDockerRef(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return named.String(), nil
}

// Produces a containerd image tag from an archive path.
//
// The path is hashed to produce a tag that is always valid for OCI references
// regardless of which characters the path contains.
func imageTag(path string) string {
	h := sha256.Sum256([]byte(path))
	return fmt.Sprintf("import/%s:latest", hex.EncodeToString(h[:]))
}

// Returns the default OCI platform for the host architecture.
func DefaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}
