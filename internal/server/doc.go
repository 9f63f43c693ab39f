// Package server implements the buildplan daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands.
// Each connection carries a single request-response exchange: the client
// sends a newline-delimited JSON envelope, the server dispatches the command,
// and writes the result back before closing the connection.
//
// The check command runs a plan against the dry-run backend. The build
// command runs it against containerd and exports an OCI archive. The
// containerd connection is opened on the first build.
//
// Example usage:
//
//	srv := server.New(server.Config{
//	    ContainerdAddress:   "/run/containerd/containerd.sock",
//	    ContainerdNamespace: "buildplan",
//	})
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	srv.Wait()
package server
