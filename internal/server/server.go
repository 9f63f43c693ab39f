package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cruciblehq/buildplan/internal/paths"
	"github.com/cruciblehq/buildplan/internal/protocol"
	"github.com/cruciblehq/buildplan/internal/runtime"
	"github.com/cruciblehq/buildplan/internal/settings"
)

const (

	// Group name used to grant socket access. Members of this group can
	// connect to the daemon socket without owning the process.
	socketGroup = "buildplan"

	// File mode applied to the Unix socket. Owner and group get read-write
	// (required for connect); others get no access.
	socketMode = 0660
)

// Holds server configuration.
type Config struct {
	SocketPath          string // Unix socket path. Empty uses the default.
	PIDFile             string // PID file path. Empty uses the default.
	ContainerdAddress   string // Containerd socket address. Empty uses [settings.DefaultContainerdAddress].
	ContainerdNamespace string // Containerd namespace. Empty uses [settings.DefaultContainerdNamespace].
	Platform            string // Target platform for builds. Empty selects the host.
}

// Listens on a Unix domain socket and dispatches commands.
//
// The containerd runtime is connected on the first build, so a daemon
// without containerd still answers check and status commands. Builds run one
// at a time.
type Server struct {
	cfg       Config           // Effective configuration.
	runtime   *runtime.Runtime // Containerd runtime, nil until the first build.
	listener  net.Listener     // Listener for incoming connections.
	startedAt time.Time        // Timestamp when the server started.
	builds    int              // Completed check and build commands.
	active    string           // Build container ID of the running build.
	seq       int              // Build counter for container IDs.
	done      chan struct{}    // Closed on shutdown.
	stopOnce  sync.Once        // Guards shutdown.
	mu        sync.Mutex       // Protects the fields above.
	buildMu   sync.Mutex       // Serializes builds.
}

// Creates a new server instance.
//
// The socket is not opened until [Server.Start] is called.
func New(cfg Config) *Server {
	if cfg.SocketPath == "" {
		cfg.SocketPath = paths.Socket()
	}
	if cfg.PIDFile == "" {
		cfg.PIDFile = paths.PIDFile()
	}
	if cfg.ContainerdAddress == "" {
		cfg.ContainerdAddress = settings.DefaultContainerdAddress
	}
	if cfg.ContainerdNamespace == "" {
		cfg.ContainerdNamespace = settings.DefaultContainerdNamespace
	}

	return &Server{
		cfg:       cfg,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Opens the Unix socket and begins accepting connections.
func (s *Server) Start() error {
	listener, err := listen(s.cfg.SocketPath)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startedAt = time.Now()

	if err := writePID(s.cfg.PIDFile); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}

	slog.Info("server listening on socket", "path", s.cfg.SocketPath)

	go s.accept()
	return nil
}

// Creates the Unix socket listener, removes any stale socket from a previous
// run, and applies permissions.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %s: %w", ErrServer, socketPath, err)
	}

	if err := setSocketPermissions(socketPath); err != nil {
		listener.Close()
		return nil, err
	}

	return listener, nil
}

// Restricts socket access to owner and group. Any user in the buildplan
// group can also connect.
func setSocketPermissions(socketPath string) error {
	if err := os.Chmod(socketPath, socketMode); err != nil {
		return fmt.Errorf("%w: chmod socket %s: %w", ErrServer, socketPath, err)
	}

	g, err := user.LookupGroup(socketGroup)
	if err != nil {
		slog.Debug("socket group not found, socket accessible to owner only", "group", socketGroup)
		return nil
	}
	if gid, err := strconv.Atoi(g.Gid); err == nil {
		if err := os.Chown(socketPath, -1, gid); err != nil {
			slog.Warn("failed to chgrp socket", "group", socketGroup, "error", err)
		}
	}
	return nil
}

// Shuts down the server and cleans up resources. Safe to call more than
// once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
			os.Remove(s.cfg.SocketPath)
			os.Remove(s.cfg.PIDFile)
		}

		s.mu.Lock()
		if s.runtime != nil {
			s.runtime.Close()
			s.runtime = nil
		}
		s.mu.Unlock()

		close(s.done)
	})
	return nil
}

// Blocks until the server stops.
func (s *Server) Wait() {
	<-s.done
}

// Accepts connections in a loop until the server shuts down.
func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept error", "error", err)
			continue
		}

		go s.handle(conn)
	}
}

// Processes a single connection.
//
// Reads one newline-delimited JSON message, dispatches the command, and
// writes the response. The connection is closed after one exchange.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes('\n')
	if err != nil {
		slog.Error("read error", "error", err)
		return
	}

	env, payload, err := protocol.Decode(line)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	slog.Info("command received", "command", env.Command)

	ctx, cancel := contextWithDisconnect(context.Background(), reader)
	defer cancel()

	s.dispatch(ctx, conn, env.Command, payload)
}

// Routes a command to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, w io.Writer, cmd protocol.Command, payload json.RawMessage) {
	switch cmd {
	case protocol.CmdCheck:
		s.handleCheck(ctx, w, payload)
	case protocol.CmdBuild:
		s.handleBuild(ctx, w, payload)
	case protocol.CmdStatus:
		s.handleStatus(ctx, w)
	case protocol.CmdShutdown:
		s.handleShutdown(w)
	default:
		s.respond(w, protocol.CmdError, &protocol.ErrorResult{
			Message: fmt.Sprintf("unknown command: %s", cmd),
		})
	}
}

// Writes a JSON envelope response.
func (s *Server) respond(w io.Writer, cmd protocol.Command, payload any) {
	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		slog.Error("encode response failed", "error", err)
		return
	}
	w.Write(append(data, '\n'))
}

// Writes the daemon PID so the CLI can detect a running daemon.
func writePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), paths.DefaultFileMode)
}

// Returns a derived context that is cancelled when the remote end of the
// connection closes.
//
// A background goroutine reads from r; the read returns when the peer closes
// the connection, and the context is cancelled. No further data may be
// expected on r while the context is live. The returned cancel function must
// always be called.
func contextWithDisconnect(parent context.Context, r io.Reader) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		buf := make([]byte, 1)
		r.Read(buf)
		cancel()
	}()

	return ctx, cancel
}
