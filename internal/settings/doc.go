// Package settings loads the buildplan configuration file.
//
// The file is TOML and every key is optional. Missing keys keep their
// defaults, unknown keys are rejected, and a missing file is not an error.
//
//	platform = "linux/amd64"
//	socket = "/run/buildplan/buildplan.sock"
//
//	[containerd]
//	address = "/run/containerd/containerd.sock"
//	namespace = "buildplan"
//
// Command-line flags override values from the file.
package settings
