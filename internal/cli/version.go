package cli

import (
	"context"
	"fmt"

	"github.com/cruciblehq/buildplan/internal"
)

// Represents the 'buildplan version' command.
type VersionCmd struct{}

// Executes the version command.
func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Printf("%s %s\n", internal.Name, internal.VersionString())
	return nil
}
