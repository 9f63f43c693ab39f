package internal

import (
	"fmt"
	"runtime"
	"strings"
)

// Program name used for the CLI, log groups, and container IDs.
const Name = "buildplan"

const (
	undefined  = "(undefined)" // Placeholder for an unset linker variable.
	localBuild = "(local)"     // Version string of a non-pipeline build.
	mainBranch = "main"        // Stage omitted from version strings.
)

// Set via -ldflags "-X github.com/cruciblehq/buildplan/internal.version=..."
// and friends. Pipeline builds set all three identifiers.
var (
	version   = ""
	stage     = ""
	gitCommit = ""

	rawQuiet   = "false"
	rawDebug   = "false"
	rawVerbose = "false"
)

// Identifies the running binary.
type BuildInfo struct {
	Version string // Version without a "v" prefix, or "(undefined)".
	Stage   string // Lowercased branch or stage, or "(undefined)".
	Commit  string // Git commit hash, or "(undefined)".
	Arch    string // GOARCH of the binary.
	Local   bool   // Whether any identifier was left unset.
}

// Returns the build identifiers set at link time.
func Info() BuildInfo {
	v := strings.TrimSpace(version)
	s := strings.TrimSpace(stage)
	c := strings.TrimSpace(gitCommit)

	return BuildInfo{
		Version: orUndefined(strings.TrimPrefix(strings.ToLower(v), "v")),
		Stage:   orUndefined(strings.ToLower(s)),
		Commit:  orUndefined(c),
		Arch:    runtime.GOARCH,
		Local:   v == "" || s == "" || c == "",
	}
}

// Returns the build architecture.
func Arch() string {
	return runtime.GOARCH
}

// Returns "(local)" for local builds, otherwise
// "<version>[+<stage>] <commit> [<arch>]". The stage is omitted on main.
func VersionString() string {
	info := Info()
	if info.Local {
		return localBuild
	}

	suffix := ""
	if info.Stage != mainBranch {
		suffix = "+" + info.Stage
	}
	return fmt.Sprintf("%s%s %s [%s]", info.Version, suffix, info.Commit, info.Arch)
}

func orUndefined(s string) string {
	if s == "" {
		return undefined
	}
	return s
}
