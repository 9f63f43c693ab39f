package plan

import "errors"

var (
	ErrInvalidStep   = errors.New("invalid step")
	ErrUnknownKind   = errors.New("unknown step kind")
	ErrUnknownFormat = errors.New("unknown plan format")
	ErrDecode        = errors.New("plan decode failed")
)
