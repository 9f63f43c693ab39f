package build

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// Resolves the host source and image destination of a copy-files step.
//
// Relative sources are resolved against the build context and must not
// escape it. Relative destinations are joined with the working directory. The
// source must exist on the host.
func resolveCopy(src, dest, workdir, buildCtx string) (hostSrc, imageDest string, err error) {
	hostSrc, err = resolveSource(src, buildCtx)
	if err != nil {
		return "", "", err
	}

	if _, err := os.Stat(hostSrc); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrCopy, err)
	}

	return hostSrc, resolveDest(dest, workdir), nil
}

// Returns the host path of a copy source.
func resolveSource(src, buildCtx string) (string, error) {
	if filepath.IsAbs(src) {
		return src, nil
	}
	if !filepath.IsLocal(src) {
		return "", fmt.Errorf("%w: source %q escapes the build context", ErrCopy, src)
	}
	if buildCtx == "" {
		buildCtx = "."
	}
	return filepath.Join(buildCtx, src), nil
}

// Returns the absolute image path of a destination.
//
// A trailing slash is dropped; the destination always names the copied entry
// itself.
func resolveDest(dest, workdir string) string {
	if !path.IsAbs(dest) {
		dest = path.Join(workdir, dest)
	}
	return path.Clean(dest)
}
