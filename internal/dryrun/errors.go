package dryrun

import "errors"

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrNotOpened       = errors.New("base image not opened")
	ErrIndex           = errors.New("invalid package index")
)
