package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/containerd/containerd/v2/core/containers"
	"github.com/containerd/containerd/v2/core/content"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/containerd/v2/core/images/archive"
	"github.com/containerd/containerd/v2/pkg/rootfs"
	"github.com/containerd/platforms"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Filename of the OCI archive produced by Export.
const ExportFilename = "image.tar"

// Commits the container's filesystem changes and exports the result as an
// OCI archive named name.
//
// The diff between the container's snapshot and its parent is appended as a
// new layer, and cfg replaces the runtime attributes of the base image config
// (see [applyConfig]). The archive is written to output/image.tar and its
// path returned. The stored base image record is never modified: the mutated
// manifest, config, and index are written as ephemeral blobs under a content
// lease that protects them from garbage collection until the export
// completes.
func (c *Container) Export(ctx context.Context, output, name string, cfg ocispec.ImageConfig) (string, error) {
	loaded, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	info, err := loaded.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	layer, diffID, err := c.snapshotDiff(ctx, info)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	ctx, done, err := c.client.WithLease(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	defer done(context.Background())

	target, err := c.buildExportTarget(ctx, info.Image, func(manifest *ocispec.Manifest, config *ocispec.Image) {
		manifest.Layers = append(manifest.Layers, layer)
		config.RootFS.DiffIDs = append(config.RootFS.DiffIDs, diffID)
		applyConfig(&config.Config, cfg)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	exportPath := filepath.Join(output, ExportFilename)
	if err := c.exportImage(ctx, target, name, exportPath); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Info("image exported", "path", exportPath, "name", name)
	return exportPath, nil
}

// Overlays the runtime attributes of cfg onto a base image config.
//
// User, working directory, entrypoint, and exposed ports are replaced. Cmd is
// cleared so the base image's default command is not appended to the new
// entrypoint. Environment entries are merged on top of the base environment,
// which keeps variables such as PATH set by the base image.
func applyConfig(base *ocispec.ImageConfig, cfg ocispec.ImageConfig) {
	base.User = cfg.User
	base.WorkingDir = cfg.WorkingDir
	base.Entrypoint = cfg.Entrypoint
	base.Cmd = nil
	base.ExposedPorts = cfg.ExposedPorts
	base.Env = mergeEnv(base.Env, cfg.Env)
}

// Computes the diff between the container's snapshot and its parent, returning
// the layer descriptor and its diff ID without modifying the image.
func (c *Container) snapshotDiff(ctx context.Context, info containers.Container) (ocispec.Descriptor, digest.Digest, error) {
	layer, err := rootfs.CreateDiff(ctx,
		info.SnapshotKey,
		c.client.SnapshotService(info.Snapshotter),
		c.client.DiffService(),
	)
	if err != nil {
		return ocispec.Descriptor{}, "", err
	}

	diffID, err := images.GetDiffID(ctx, c.client.ContentStore(), layer)
	if err != nil {
		return ocispec.Descriptor{}, "", err
	}

	return layer, diffID, nil
}

// Writes the target descriptor to an OCI tar archive at path.
//
// The target is exported directly via [archive.WithManifest] so ephemeral
// content can be exported without an image record. name is attached as the
// OCI reference annotation. Only the container's platform is included.
func (c *Container) exportImage(ctx context.Context, target ocispec.Descriptor, name, path string) error {
	p, err := platforms.Parse(c.platform)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return c.client.Export(ctx, f,
		archive.WithManifest(target, name),
		archive.WithPlatform(platforms.Only(p)),
	)
}

// Builds the export target descriptor by applying a mutation to the image's
// manifest and config.
//
// When the root is an index, a new single-entry index is written containing
// only the updated manifest. Entries for other platforms are dropped because
// only the target platform's layers are present in the content store.
func (c *Container) buildExportTarget(ctx context.Context, imageName string, mutate func(*ocispec.Manifest, *ocispec.Image)) (ocispec.Descriptor, error) {
	img, err := c.client.ImageService().Get(ctx, imageName)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	desc, index, err := c.resolveManifestDescriptor(ctx, img.Target, imageName)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	manifest, err := c.mutateManifest(ctx, desc, imageName, mutate)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	if index == nil {
		return manifest, nil
	}

	index.Manifests = []ocispec.Descriptor{manifest}
	return c.writeBlob(ctx, img.Target.MediaType, index, imageName+"-index", content.WithLabels(indexGCLabels(*index)))
}

// Resolves the image root descriptor to a platform-specific manifest.
//
// If the root is an OCI image index, the manifest matching the container's
// platform is selected and the index is returned alongside it; otherwise the
// index is nil. Registries that serve index entries without platform metadata
// are handled by reading each candidate's config.
func (c *Container) resolveManifestDescriptor(ctx context.Context, root ocispec.Descriptor, imageName string) (ocispec.Descriptor, *ocispec.Index, error) {
	if !images.IsIndexType(root.MediaType) {
		return root, nil, nil
	}

	idx, err := readJSON[ocispec.Index](ctx, c.client.ContentStore(), root)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}

	if len(idx.Manifests) == 0 {
		return ocispec.Descriptor{}, nil, fmt.Errorf("%w: %s", ErrEmptyIndex, imageName)
	}

	p, err := platforms.Parse(c.platform)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}

	if i, ok := c.matchManifest(ctx, idx, platforms.OnlyStrict(p)); ok {
		return idx.Manifests[i], &idx, nil
	}
	return idx.Manifests[0], &idx, nil
}

// Searches the index for a manifest matching the given platform.
//
// Descriptors with an explicit platform field are checked first, then
// descriptors without one are matched through their image config.
func (c *Container) matchManifest(ctx context.Context, idx ocispec.Index, matcher platforms.MatchComparer) (int, bool) {
	for i, m := range idx.Manifests {
		if m.Platform != nil && matcher.Match(*m.Platform) {
			return i, true
		}
	}
	for i, m := range idx.Manifests {
		if m.Platform != nil || !images.IsManifestType(m.MediaType) {
			continue
		}
		if p, ok := c.configPlatform(ctx, m); ok && matcher.Match(p) {
			return i, true
		}
	}
	return 0, false
}

// Returns the platform declared in the image config of a manifest.
func (c *Container) configPlatform(ctx context.Context, desc ocispec.Descriptor) (ocispec.Platform, bool) {
	cs := c.client.ContentStore()
	manifest, err := readJSON[ocispec.Manifest](ctx, cs, desc)
	if err != nil {
		return ocispec.Platform{}, false
	}
	config, err := readJSON[ocispec.Image](ctx, cs, manifest.Config)
	if err != nil {
		return ocispec.Platform{}, false
	}
	return config.Platform, true
}

// Reads the manifest and config, applies the mutation, and writes the
// updated blobs back to the content store.
func (c *Container) mutateManifest(ctx context.Context, target ocispec.Descriptor, imageName string, mutate func(*ocispec.Manifest, *ocispec.Image)) (ocispec.Descriptor, error) {
	cs := c.client.ContentStore()

	manifest, err := readJSON[ocispec.Manifest](ctx, cs, target)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	config, err := readJSON[ocispec.Image](ctx, cs, manifest.Config)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	mutate(&manifest, &config)

	configDesc, err := c.writeBlob(ctx, manifest.Config.MediaType, config, imageName+"-config")
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	manifest.Config = configDesc

	return c.writeBlob(ctx, target.MediaType, manifest, imageName+"-manifest", content.WithLabels(manifestGCLabels(manifest)))
}

// Decodes a JSON blob from the content store.
func readJSON[T any](ctx context.Context, p content.Provider, desc ocispec.Descriptor) (T, error) {
	var v T
	b, err := content.ReadBlob(ctx, p, desc)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(b, &v)
	return v, err
}

// Serializes a value and writes it to the content store, returning the
// descriptor that references the stored blob.
func (c *Container) writeBlob(ctx context.Context, mediaType string, v any, ref string, opts ...content.Opt) (ocispec.Descriptor, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(b),
		Size:      int64(len(b)),
	}
	if err := content.WriteBlob(ctx, c.client.ContentStore(), ref, bytes.NewReader(b), desc, opts...); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Computes containerd GC reference labels for a manifest's children, so the
// collector can trace reachability from the manifest to its config and
// layers.
func manifestGCLabels(m ocispec.Manifest) map[string]string {
	labels := map[string]string{
		"containerd.io/gc.ref.content.config": m.Config.Digest.String(),
	}
	for i, layer := range m.Layers {
		labels[fmt.Sprintf("containerd.io/gc.ref.content.l.%d", i)] = layer.Digest.String()
	}
	return labels
}

// Computes containerd GC reference labels for an index's children.
func indexGCLabels(idx ocispec.Index) map[string]string {
	labels := make(map[string]string, len(idx.Manifests))
	for i, m := range idx.Manifests {
		labels[fmt.Sprintf("containerd.io/gc.ref.content.m.%d", i)] = m.Digest.String()
	}
	return labels
}
