package runtime

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRuntime        = errors.New("runtime error")
	ErrEmptyIndex     = errors.New("empty image index")
	ErrEmptyArchive   = errors.New("archive contains no images")
	ErrMultipleImages = errors.New("archive contains multiple images")
	ErrNotStarted     = errors.New("build container not started")
	ErrStarted        = errors.New("build container already started")
	ErrCommand        = errors.New("command failed")
	ErrCopy           = errors.New("copy failed")
)

// Non-zero exit of a command run inside a container.
type ExitError struct {
	Args   []string // Command and arguments.
	Code   int      // Exit code of the process.
	Stderr string   // Captured standard error, trimmed.
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", strings.Join(e.Args, " "), e.Code)
	if e.Stderr != "" {
		msg += " (" + e.Stderr + ")"
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return ErrCommand
}
