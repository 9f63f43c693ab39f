package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cruciblehq/buildplan/internal"
	"github.com/cruciblehq/buildplan/internal/logging"
	"github.com/cruciblehq/buildplan/internal/settings"
)

// Represents the root command for buildplan.
var RootCmd struct {
	Quiet   bool       `short:"q" help:"Suppress informational output."`
	Verbose bool       `short:"v" help:"Enable verbose output."`
	Debug   bool       `short:"d" help:"Enable debug output."`
	Socket  string     `short:"s" help:"Override the daemon Unix socket path." placeholder:"PATH"`
	Config  string     `help:"Read settings from this file." placeholder:"PATH" type:"path"`
	Check   CheckCmd   `cmd:"" help:"Dry-run a plan and print its runtime contract."`
	Build   BuildCmd   `cmd:"" help:"Build a plan with containerd and export an OCI archive."`
	Render  RenderCmd  `cmd:"" help:"Print a plan as a Dockerfile."`
	Import  ImportCmd  `cmd:"" help:"Convert a Dockerfile into a plan."`
	Serve   ServeCmd   `cmd:"" help:"Run the build daemon."`
	Status  StatusCmd  `cmd:"" help:"Show daemon status."`
	Stop    StopCmd    `cmd:"" help:"Stop the daemon."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Build-plan executor.\n\nApplies an ordered list of build steps to a base image and produces its runtime contract."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	internal.Configure(quiet, debug, verbose)

	handler := logging.New(os.Stderr, logging.Options{
		Level:   internal.LogLevel(),
		Verbose: verbose,
		Name:    internal.Name,
	})
	slog.SetDefault(slog.New(handler))
}

// Loads the settings file and applies flag overrides.
func loadSettings() (settings.Settings, error) {
	s, err := settings.Load(RootCmd.Config)
	if err != nil {
		return settings.Settings{}, err
	}
	if RootCmd.Socket != "" {
		s.Socket = RootCmd.Socket
	}
	return s, nil
}
