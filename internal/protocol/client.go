package protocol

import (
	"bufio"
	"context"
	"fmt"
	"net"
)

// Sends one command to the daemon listening on socketPath and returns its
// response envelope.
//
// Cancelling ctx closes the connection, which the daemon treats as an abort.
func Send(ctx context.Context, socketPath string, cmd Command, payload any) (*Envelope, error) {
	data, err := Encode(cmd, payload)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	env, _, err := Decode(line)
	return env, err
}
