package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cruciblehq/buildplan/internal/image"
	"github.com/cruciblehq/buildplan/internal/plan"
)

// Names a daemon command or response.
type Command string

const (
	CmdCheck    Command = "check"    // Dry-run a plan.
	CmdBuild    Command = "build"    // Build a plan with containerd.
	CmdStatus   Command = "status"   // Report daemon status.
	CmdShutdown Command = "shutdown" // Stop the daemon.

	CmdOK    Command = "ok"    // Successful response.
	CmdError Command = "error" // Failed response carrying an [ErrorResult].
)

// Wire format of every message.
type Envelope struct {
	Command Command         `json:"command"`           // Command or response kind.
	Payload json.RawMessage `json:"payload,omitempty"` // Command-specific body.
}

// Requests a dry run of a plan.
type CheckRequest struct {
	Plan    plan.Plan         `json:"plan"`              // Plan to check.
	Env     map[string]string `json:"env,omitempty"`     // Build arguments applied after set-base.
	Context string            `json:"context,omitempty"` // Build context directory on the daemon host.
}

// Outcome of a dry run.
type CheckResult struct {
	Contract image.RuntimeContract `json:"contract"` // Runtime contract of the finished image.
	Digest   string                `json:"digest"`   // Digest of the runtime contract.
	Steps    int                   `json:"steps"`    // Number of steps applied.
	Calls    []string              `json:"calls"`    // Collaborator calls that a real build would make.
}

// Requests a containerd build of a plan.
type BuildRequest struct {
	Plan    plan.Plan         `json:"plan"`              // Plan to build.
	Env     map[string]string `json:"env,omitempty"`     // Build arguments applied after set-base.
	Context string            `json:"context,omitempty"` // Build context directory on the daemon host.
	Output  string            `json:"output,omitempty"`  // Output directory. Empty uses the daemon default.
}

// Outcome of a build.
type BuildResult struct {
	Output   string                `json:"output"`   // Path of the exported OCI archive.
	Contract image.RuntimeContract `json:"contract"` // Runtime contract of the exported image.
	Digest   string                `json:"digest"`   // Digest of the runtime contract.
}

// Daemon status.
type StatusResult struct {
	Running   bool   `json:"running"`             // Always true when the daemon answers.
	Version   string `json:"version"`             // Daemon version string.
	Pid       int    `json:"pid"`                 // Daemon process ID.
	Uptime    string `json:"uptime"`              // Time since the daemon started.
	Builds    int    `json:"builds"`              // Completed builds and checks.
	Active    string `json:"active,omitempty"`    // Build container ID of the running build.
	Container string `json:"container,omitempty"` // State of the active build container.
}

// Failure of a command.
type ErrorResult struct {
	Message string `json:"message"`        // Human-readable error.
	Step    int    `json:"step,omitempty"` // One-based index of the failing step, zero if none.
	Kind    string `json:"kind,omitempty"` // Error class, such as "privilege-ordering".
}

// Serializes an envelope with the given command and payload.
//
// A nil payload is omitted.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncode, err)
		}
		env.Payload = raw
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return data, nil
}

// Parses an envelope, returning it with its raw payload.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: missing command", ErrDecode)
	}
	return &env, env.Payload, nil
}

// Unmarshals a payload into a value of type T.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrDecode)
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &v, nil
}

// Returns the result carried by a response envelope.
//
// An error response is returned as a [*RemoteError].
func Result[T any](env *Envelope) (*T, error) {
	if env.Command == CmdError {
		r, err := DecodePayload[ErrorResult](env.Payload)
		if err != nil {
			return nil, err
		}
		return nil, &RemoteError{Result: *r}
	}
	if env.Command != CmdOK {
		return nil, fmt.Errorf("%w: unexpected response %q", ErrDecode, env.Command)
	}
	return DecodePayload[T](env.Payload)
}
