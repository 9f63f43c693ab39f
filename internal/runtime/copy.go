package runtime

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
)

// Creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, dir string) error {
	return c.Run(ctx, nil, nil, mkdirArgs(dir)...)
}

// Copies a host file or directory into the container at dest.
//
// The entry is streamed as a tar archive whose root is named after the base
// of dest, then extracted into the parent of dest, which is created first.
// Directories are copied recursively.
func (c *Container) CopyIn(ctx context.Context, src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	parent := path.Dir(dest)
	if err := c.MkdirAll(ctx, parent); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	slog.Debug("copy in", "src", src, "dest", dest, "dir", info.IsDir())

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTar(pw, src, path.Base(dest)))
	}()

	if err := c.CopyTo(ctx, pr, parent); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}
	return nil
}

// Extracts a tar stream into destDir inside the container.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return c.Run(ctx, r, nil, "tar", "xf", "-", "-C", destDir)
}

// Writes src to w as a tar archive whose root entry is named name.
func writeTar(w io.Writer, src, name string) error {
	tw := tar.NewWriter(w)

	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if info.IsDir() {
		err = writeDirToTar(tw, src, name)
	} else {
		err = writeTarEntry(tw, src, name, info)
	}
	if err != nil {
		return err
	}

	return tw.Close()
}

// Writes a directory tree to a tar writer rooted at the given archive prefix.
func writeDirToTar(tw *tar.Writer, hostDir, prefix string) error {
	return filepath.WalkDir(hostDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(hostDir, p)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		return writeTarEntry(tw, p, filepath.ToSlash(filepath.Join(prefix, rel)), info)
	})
}

// Writes a single file, directory, or symlink entry to a tar writer.
//
// Ownership is reset to root; set-owner steps assign it inside the image.
func writeTarEntry(tw *tar.Writer, hostPath, name string, info os.FileInfo) error {
	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(hostPath)
		if err != nil {
			return err
		}
		link = target
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	header.Uid, header.Gid = 0, 0
	header.Uname, header.Gname = "", ""

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}
