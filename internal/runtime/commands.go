package runtime

import "github.com/cruciblehq/buildplan/internal/image"

// Command lines run inside the build container. The base image is expected to
// ship busybox or coreutils, apk, and pip.

func apkAddArgs(pkgs []string) []string {
	return append([]string{"apk", "add", "--no-cache"}, pkgs...)
}

func apkDelArgs(pkgs []string) []string {
	return append([]string{"apk", "del", "--purge"}, pkgs...)
}

// Version pins are passed through verbatim.
func pipInstallArgs(name, version string) []string {
	return []string{"pip", "install", "--no-cache-dir", name + "==" + version}
}

func mkdirArgs(path string) []string {
	return []string{"mkdir", "-p", path}
}

func symlinkArgs(target, link string) []string {
	return []string{"ln", "-s", target, link}
}

func chownArgs(path string, owner image.Owner) []string {
	return []string{"chown", "-R", owner.String(), path}
}

func addGroupArgs(name string) []string {
	return []string{"addgroup", "-S", name}
}

// Creates a system account without a password whose primary group is group.
func addUserArgs(name, group string) []string {
	return []string{"adduser", "-S", "-D", "-G", group, name}
}
