package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/buildplan/internal/dockerfile"
	"github.com/cruciblehq/buildplan/internal/plan"
)

// Represents the 'buildplan import' command.
type ImportCmd struct {
	Dockerfile string `arg:"" help:"Dockerfile to convert." type:"existingfile"`
	Name       string `help:"Plan name. Defaults to the Dockerfile's directory name."`
	Format     string `short:"f" help:"Output format (${enum})." enum:"yaml,toml" default:"yaml"`
	Strict     bool   `help:"Fail on instructions that have no step equivalent instead of skipping them."`
}

// Executes the import command.
//
// The resulting plan is validated and printed to standard output.
func (c *ImportCmd) Run(ctx context.Context) error {
	f, err := os.Open(c.Dockerfile)
	if err != nil {
		return err
	}
	defer f.Close()

	var opts []dockerfile.Option
	if c.Strict {
		opts = append(opts, dockerfile.WithStrict())
	}

	p, err := dockerfile.Parse(f, c.planName(), opts...)
	if err != nil {
		return err
	}

	out, err := plan.Encode(p, plan.Format(c.Format))
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(out)
	return err
}

func (c *ImportCmd) planName() string {
	if c.Name != "" {
		return c.Name
	}
	abs, err := filepath.Abs(c.Dockerfile)
	if err != nil {
		return "imported"
	}
	return strings.ToLower(filepath.Base(filepath.Dir(abs)))
}
