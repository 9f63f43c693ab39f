package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cruciblehq/buildplan/internal"
	"github.com/cruciblehq/buildplan/internal/build"
	"github.com/cruciblehq/buildplan/internal/paths"
	"github.com/cruciblehq/buildplan/internal/protocol"
	"github.com/cruciblehq/buildplan/internal/runtime"
)

// Represents the 'buildplan build' command.
type BuildCmd struct {
	PlanFlags `embed:""`

	Output   string `short:"o" help:"Output directory for the OCI archive." placeholder:"DIR" type:"path"`
	Platform string `help:"Target platform, such as linux/amd64. Defaults to the settings file, then the host." placeholder:"OS/ARCH"`
	Daemon   bool   `help:"Run the build on the daemon."`
}

// Executes the build command.
//
// Runs every step in a containerd build container, then exports the result
// as an OCI image archive and prints its path.
func (c *BuildCmd) Run(ctx context.Context) error {
	p, err := c.load()
	if err != nil {
		return err
	}

	dir, err := c.contextDir()
	if err != nil {
		return err
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}

	if c.Daemon {
		return c.remote(ctx, s.Socket, protocol.BuildRequest{Plan: p, Context: dir, Output: c.Output})
	}

	platform := c.Platform
	if platform == "" {
		platform = s.Platform
	}

	rt, err := runtime.New(s.Containerd.Address, s.Containerd.Namespace, platform)
	if err != nil {
		return err
	}
	defer rt.Close()

	output := c.Output
	if output == "" {
		output = paths.Output(p.Name)
	}

	id := fmt.Sprintf("%s-%s-%d", internal.Name, p.Name, os.Getpid())

	result, err := build.Run(ctx, build.Options{
		Plan:    p,
		Backend: runtime.NewBackend(rt, id, output),
		Context: dir,
	})
	if err != nil {
		return err
	}

	slog.Info("image exported", "digest", result.Digest, "steps", result.Steps)
	fmt.Println(result.Output)
	return nil
}

func (c *BuildCmd) remote(ctx context.Context, socket string, req protocol.BuildRequest) error {
	if c.Platform != "" {
		return fmt.Errorf("%w: --platform cannot be used with --daemon", ErrFlagConflict)
	}

	env, err := protocol.Send(ctx, socket, protocol.CmdBuild, &req)
	if err != nil {
		return err
	}

	result, err := protocol.Result[protocol.BuildResult](env)
	if err != nil {
		return err
	}

	slog.Info("image exported", "digest", result.Digest)
	fmt.Println(result.Output)
	return nil
}
