package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/cruciblehq/buildplan/internal/build"
	"github.com/cruciblehq/buildplan/internal/dryrun"
	"github.com/cruciblehq/buildplan/internal/image"
	"github.com/cruciblehq/buildplan/internal/protocol"
	"gopkg.in/yaml.v3"
)

// Represents the 'buildplan check' command.
type CheckCmd struct {
	PlanFlags `embed:""`

	Index  string `help:"Package index (YAML map of name to available versions) checked by language installs." placeholder:"PATH" type:"existingfile"`
	Daemon bool   `help:"Run the check on the daemon."`
}

// Printed outcome of a check.
type checkReport struct {
	Contract image.RuntimeContract `yaml:"contract"`
	Digest   string                `yaml:"digest"`
	Steps    int                   `yaml:"steps"`
	Calls    []string              `yaml:"calls,omitempty"`
}

// Executes the check command.
//
// Applies the plan against the dry-run backend and prints the runtime
// contract as YAML. With --verbose, the collaborator calls are listed too.
func (c *CheckCmd) Run(ctx context.Context) error {
	p, err := c.load()
	if err != nil {
		return err
	}

	dir, err := c.contextDir()
	if err != nil {
		return err
	}

	var report checkReport

	if c.Daemon {
		report, err = c.remote(ctx, protocol.CheckRequest{Plan: p, Context: dir})
	} else {
		report, err = c.local(ctx, build.Options{Plan: p, Context: dir})
	}
	if err != nil {
		return err
	}

	if !RootCmd.Verbose {
		report.Calls = nil
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func (c *CheckCmd) local(ctx context.Context, opts build.Options) (checkReport, error) {
	var backendOpts []dryrun.Option
	if c.Index != "" {
		idx, err := dryrun.LoadIndex(c.Index)
		if err != nil {
			return checkReport{}, err
		}
		backendOpts = append(backendOpts, dryrun.WithIndex(idx))
	}

	backend := dryrun.New(backendOpts...)
	opts.Backend = backend

	result, err := build.Run(ctx, opts)
	if err != nil {
		return checkReport{}, err
	}

	calls := backend.Calls()
	lines := make([]string, len(calls))
	for i, call := range calls {
		lines[i] = call.String()
	}

	return checkReport{
		Contract: result.Contract,
		Digest:   result.Digest.String(),
		Steps:    result.Steps,
		Calls:    lines,
	}, nil
}

func (c *CheckCmd) remote(ctx context.Context, req protocol.CheckRequest) (checkReport, error) {
	if c.Index != "" {
		return checkReport{}, fmt.Errorf("%w: --index cannot be used with --daemon", ErrFlagConflict)
	}

	s, err := loadSettings()
	if err != nil {
		return checkReport{}, err
	}

	env, err := protocol.Send(ctx, s.Socket, protocol.CmdCheck, &req)
	if err != nil {
		return checkReport{}, err
	}

	result, err := protocol.Result[protocol.CheckResult](env)
	if err != nil {
		return checkReport{}, err
	}

	return checkReport{
		Contract: result.Contract,
		Digest:   result.Digest,
		Steps:    result.Steps,
		Calls:    result.Calls,
	}, nil
}
