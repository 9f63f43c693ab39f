package dockerfile

import "errors"

var (
	ErrRender      = errors.New("cannot render step")
	ErrParse       = errors.New("cannot parse dockerfile")
	ErrUnsupported = errors.New("unsupported instruction")
	ErrUnpinned    = errors.New("package version not pinned")
	ErrMultiStage  = errors.New("multi-stage dockerfiles are not supported")
)
