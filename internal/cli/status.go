package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/buildplan/internal/protocol"
)

// Represents the 'buildplan status' command.
type StatusCmd struct{}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	env, err := protocol.Send(ctx, s.Socket, protocol.CmdStatus, nil)
	if err != nil {
		return err
	}

	st, err := protocol.Result[protocol.StatusResult](env)
	if err != nil {
		return err
	}

	fmt.Printf("version: %s\npid:     %d\nuptime:  %s\nbuilds:  %d\n", st.Version, st.Pid, st.Uptime, st.Builds)
	if st.Active != "" {
		fmt.Printf("active:  %s (%s)\n", st.Active, st.Container)
	}
	return nil
}

// Represents the 'buildplan stop' command.
type StopCmd struct{}

// Executes the stop command.
func (c *StopCmd) Run(ctx context.Context) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	env, err := protocol.Send(ctx, s.Socket, protocol.CmdShutdown, nil)
	if err != nil {
		return err
	}

	if env.Command == protocol.CmdError {
		_, err := protocol.Result[struct{}](env)
		return err
	}

	slog.Info("daemon stopped")
	return nil
}
