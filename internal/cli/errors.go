package cli

import "errors"

var (
	ErrFlagConflict = errors.New("conflicting flags")
)
