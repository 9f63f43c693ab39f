package main

import (
	"log/slog"
	"os"

	"github.com/cruciblehq/buildplan/internal"
	"github.com/cruciblehq/buildplan/internal/cli"
	"github.com/cruciblehq/buildplan/internal/logging"
)

// The entry point for buildplan.
//
// Initializes logging, displays startup information, and executes the root
// command. If any error occurs during execution, it exits with a non-zero code.
func main() {
	slog.SetDefault(logger())

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug(internal.Name+" is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// Creates a logger seeded from build-time linker flags.
//
// The logger is replaced after flag parsing via cli.Execute.
func logger() *slog.Logger {
	return slog.New(logging.New(os.Stderr, logging.Options{
		Level:   internal.LogLevel(),
		Verbose: internal.IsVerbose(),
		Name:    internal.Name,
	}))
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
