package settings

import "errors"

var (
	ErrConfig = errors.New("invalid configuration")
)
