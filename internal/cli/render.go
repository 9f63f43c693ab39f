package cli

import (
	"context"
	"os"

	"github.com/cruciblehq/buildplan/internal/dockerfile"
)

// Represents the 'buildplan render' command.
type RenderCmd struct {
	Plan string `arg:"" optional:"" help:"Plan file (.yaml or .toml). Defaults to the embedded reference plan." type:"existingfile"`
}

// Executes the render command.
func (c *RenderCmd) Run(ctx context.Context) error {
	p, err := readPlan(c.Plan)
	if err != nil {
		return err
	}

	out, err := dockerfile.Render(p)
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(out)
	return err
}
