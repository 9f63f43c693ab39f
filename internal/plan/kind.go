package plan

import "fmt"

// Identifies the operation a step performs.
type Kind string

const (
	SetBase               Kind = "set-base"
	SetEnv                Kind = "set-env"
	SetWorkdir            Kind = "set-workdir"
	InstallTransientDeps  Kind = "install-transient-deps"
	InstallPersistentDeps Kind = "install-persistent-deps"
	Symlink               Kind = "symlink"
	InstallPackage        Kind = "install-package"
	CreateGroup           Kind = "create-group"
	CreateUser            Kind = "create-user"
	RemoveTransientDeps   Kind = "remove-transient-deps"
	DeclarePort           Kind = "declare-port"
	CopyFiles             Kind = "copy-files"
	SetOwner              Kind = "set-owner"
	SetUser               Kind = "set-user"
	SetEntrypoint         Kind = "set-entrypoint"
)

// All step kinds in the order they are documented.
var kinds = []Kind{
	SetBase,
	SetEnv,
	SetWorkdir,
	InstallTransientDeps,
	InstallPersistentDeps,
	Symlink,
	InstallPackage,
	CreateGroup,
	CreateUser,
	RemoveTransientDeps,
	DeclarePort,
	CopyFiles,
	SetOwner,
	SetUser,
	SetEntrypoint,
}

// Returns every known step kind.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// Parses a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Returns true if the kind names a known operation.
func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}

// Returns true if applying a step of this kind needs an elevated principal.
//
// Package installation and removal, principal creation, ownership changes,
// and anything that writes to the filesystem are privileged. Only metadata
// declarations (environment, ports, entrypoint) may follow a privilege drop.
func (k Kind) Privileged() bool {
	switch k {
	case SetEnv, DeclarePort, SetEntrypoint:
		return false
	}
	return true
}

func (k Kind) String() string {
	return string(k)
}
