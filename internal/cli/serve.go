package cli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/buildplan/internal"
	"github.com/cruciblehq/buildplan/internal/server"
)

// Represents the 'buildplan serve' command.
type ServeCmd struct{}

// Executes the serve command.
//
// Starts the daemon on a Unix domain socket and blocks until the context is
// cancelled (e.g. via SIGINT or SIGTERM) or a client sends shutdown.
func (c *ServeCmd) Run(ctx context.Context) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		SocketPath:          s.Socket,
		ContainerdAddress:   s.Containerd.Address,
		ContainerdNamespace: s.Containerd.Namespace,
		Platform:            s.Platform,
	})

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info(internal.Name+" is running", "socket", s.Socket)

	stopped := make(chan struct{})
	go func() {
		srv.Wait()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case <-stopped:
		slog.Info("shutdown requested")
	}

	return srv.Stop()
}
