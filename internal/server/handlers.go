package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cruciblehq/buildplan/internal"
	"github.com/cruciblehq/buildplan/internal/build"
	"github.com/cruciblehq/buildplan/internal/dryrun"
	"github.com/cruciblehq/buildplan/internal/paths"
	"github.com/cruciblehq/buildplan/internal/protocol"
	"github.com/cruciblehq/buildplan/internal/runtime"
)

// Handles a check command.
//
// Runs the plan against a dry-run backend and reports the calls a real build
// would make.
func (s *Server) handleCheck(ctx context.Context, w io.Writer, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.CheckRequest](payload)
	if err != nil {
		s.respond(w, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	backend := dryrun.New()

	result, err := build.Run(ctx, build.Options{
		Plan:    req.Plan.WithEnv(req.Env),
		Backend: backend,
		Context: req.Context,
	})
	if err != nil {
		s.respond(w, protocol.CmdError, errorResult(err))
		return
	}

	s.completed()

	calls := backend.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}

	s.respond(w, protocol.CmdOK, &protocol.CheckResult{
		Contract: result.Contract,
		Digest:   result.Digest.String(),
		Steps:    result.Steps,
		Calls:    lines,
	})
}

// Handles a build command.
//
// Builds run one at a time; a request arriving while another build is in
// progress is rejected with [ErrBusy].
func (s *Server) handleBuild(ctx context.Context, w io.Writer, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.respond(w, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	if !s.buildMu.TryLock() {
		s.respond(w, protocol.CmdError, &protocol.ErrorResult{Message: ErrBusy.Error()})
		return
	}
	defer s.buildMu.Unlock()

	rt, err := s.connect()
	if err != nil {
		s.respond(w, protocol.CmdError, errorResult(err))
		return
	}

	output := req.Output
	if output == "" {
		output = paths.Output(req.Plan.Name)
	}

	backend := runtime.NewBackend(rt, s.nextID(req.Plan.Name), output)

	s.setActive(backend.ID())
	defer s.setActive("")

	result, err := build.Run(ctx, build.Options{
		Plan:    req.Plan.WithEnv(req.Env),
		Backend: backend,
		Context: req.Context,
	})
	if err != nil {
		s.respond(w, protocol.CmdError, errorResult(err))
		return
	}

	s.completed()

	s.respond(w, protocol.CmdOK, &protocol.BuildResult{
		Output:   result.Output,
		Contract: result.Contract,
		Digest:   result.Digest.String(),
	})
}

// Handles a status command.
func (s *Server) handleStatus(ctx context.Context, w io.Writer) {
	s.mu.Lock()
	result := &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  time.Since(s.startedAt).Truncate(time.Second).String(),
		Builds:  s.builds,
		Active:  s.active,
	}
	rt := s.runtime
	s.mu.Unlock()

	if result.Active != "" && rt != nil {
		if state, err := rt.Container(result.Active).Status(ctx); err == nil {
			result.Container = string(state)
		}
	}

	s.respond(w, protocol.CmdOK, result)
}

// Handles a shutdown command.
//
// The response is written before the server stops.
func (s *Server) handleShutdown(w io.Writer) {
	s.respond(w, protocol.CmdOK, nil)
	go s.Stop()
}

// Returns the containerd runtime, connecting on first use.
func (s *Server) connect() (*runtime.Runtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runtime != nil {
		return s.runtime, nil
	}

	rt, err := runtime.New(s.cfg.ContainerdAddress, s.cfg.ContainerdNamespace, s.cfg.Platform)
	if err != nil {
		return nil, err
	}
	s.runtime = rt
	return rt, nil
}

// Returns a fresh build container ID for the named plan.
func (s *Server) nextID(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s-%s-%d", internal.Name, name, s.seq)
}

func (s *Server) setActive(id string) {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
}

func (s *Server) completed() {
	s.mu.Lock()
	s.builds++
	s.mu.Unlock()
}

// Converts a build error into a wire error, naming the failing step and the
// error class when known.
func errorResult(err error) *protocol.ErrorResult {
	r := &protocol.ErrorResult{Message: err.Error(), Kind: errorKind(err)}

	var failure *build.StepFailure
	if errors.As(err, &failure) {
		r.Step = failure.Index + 1
	}
	return r
}

// Returns the class of a build error.
func errorKind(err error) string {
	var (
		ordering   *build.PrivilegeOrderingError
		principal  *build.UnknownPrincipalError
		transient  *build.UnremovedTransientDependencyError
		incomplete *build.IncompleteContractError
		failure    *build.StepFailure
	)

	switch {
	case errors.As(err, &ordering):
		return "privilege-ordering"
	case errors.As(err, &principal):
		return "unknown-principal"
	case errors.As(err, &transient):
		return "unremoved-transient"
	case errors.As(err, &incomplete):
		return "incomplete-contract"
	case errors.As(err, &failure):
		return "step"
	}
	return ""
}
