package dryrun

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cruciblehq/buildplan/internal/image"
)

// Names of recorded operations.
const (
	OpOpen     = "open"
	OpEnv      = "env"
	OpChdir    = "cd"
	OpAdd      = "add"
	OpDel      = "del"
	OpInstall  = "install"
	OpMkdir    = "mkdir"
	OpSymlink  = "symlink"
	OpChown    = "chown"
	OpAddGroup = "addgroup"
	OpAddUser  = "adduser"
	OpCopy     = "copy"
	OpCommit   = "commit"
)

// Environment of an alpine-based Python image, reported by Open unless
// [WithBaseEnv] replaces it.
var DefaultEnv = map[string]string{
	"PATH": "/usr/local/bin:/usr/local/sbin:/usr/sbin:/usr/bin:/sbin:/bin",
	"LANG": "C.UTF-8",
}

// A recorded collaborator call.
type Call struct {
	Op   string            // Operation name (e.g., [OpInstall]).
	Args []string          // Operation arguments in call order.
	Env  map[string]string // Environment the call ran with.
	Dir  string            // Working directory the call ran in.
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Op
	}
	return c.Op + " " + strings.Join(c.Args, " ")
}

// Configures a [Backend].
type Option func(*Backend)

// Resolves language packages against idx.
func WithIndex(idx Index) Option {
	return func(b *Backend) { b.index = idx }
}

// Reports env as the environment of every opened base image.
func WithBaseEnv(env map[string]string) Option {
	return func(b *Backend) { b.base = maps.Clone(env) }
}

// Makes every call to op fail with err.
func WithFailure(op string, err error) Option {
	return func(b *Backend) {
		if b.failures == nil {
			b.failures = make(map[string]error)
		}
		b.failures[op] = err
	}
}

// In-memory backend that records calls instead of performing them.
type Backend struct {
	index    Index                  // Package index, nil accepts everything.
	base     map[string]string      // Environment reported by Open.
	env      map[string]string      // Environment of later calls.
	dir      string                 // Working directory of later calls.
	failures map[string]error       // Injected failures keyed by operation.
	calls    []Call                 // Recorded calls in order.
	opened   bool                   // Whether a base image was opened.
	contract *image.RuntimeContract // Contract passed to Commit, nil until committed.
	released bool                   // Whether Release was called.
}

// Creates a new in-memory [Backend].
func New(opts ...Option) *Backend {
	b := &Backend{base: maps.Clone(DefaultEnv), dir: "/"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Returns a copy of the recorded calls.
func (b *Backend) Calls() []Call {
	out := make([]Call, len(b.calls))
	for i, c := range b.calls {
		out[i] = Call{Op: c.Op, Args: slices.Clone(c.Args), Env: maps.Clone(c.Env), Dir: c.Dir}
	}
	return out
}

// Returns the committed contract, if any.
func (b *Backend) Committed() (image.RuntimeContract, bool) {
	if b.contract == nil {
		return image.RuntimeContract{}, false
	}
	return *b.contract, true
}

// Returns true once Release has been called.
func (b *Backend) Released() bool {
	return b.released
}

// Records a call, returning the injected failure for its operation.
//
// Failed calls are not recorded. Every operation except open requires an
// opened base image.
func (b *Backend) record(op string, args ...string) error {
	if err, ok := b.failures[op]; ok {
		return err
	}
	if op != OpOpen && !b.opened {
		return ErrNotOpened
	}
	b.calls = append(b.calls, Call{Op: op, Args: args, Env: maps.Clone(b.env), Dir: b.dir})
	return nil
}

// Records the base image and returns the configured base environment.
func (b *Backend) Open(ctx context.Context, ref string) (map[string]string, error) {
	if err := b.record(OpOpen, ref); err != nil {
		return nil, err
	}
	b.opened = true
	b.env = maps.Clone(b.base)
	return maps.Clone(b.base), nil
}

// Scopes later calls to env. Scope changes are not recorded as calls.
func (b *Backend) Setenv(ctx context.Context, env map[string]string) error {
	if err, ok := b.failures[OpEnv]; ok {
		return err
	}
	b.env = maps.Clone(env)
	return nil
}

// Scopes later calls to dir.
func (b *Backend) Chdir(ctx context.Context, dir string) error {
	if err, ok := b.failures[OpChdir]; ok {
		return err
	}
	b.dir = dir
	return nil
}

func (b *Backend) Add(ctx context.Context, pkgs []string) error {
	return b.record(OpAdd, pkgs...)
}

func (b *Backend) Del(ctx context.Context, pkgs []string) error {
	return b.record(OpDel, pkgs...)
}

// Records the installation after resolving the exact version in the index.
func (b *Backend) Install(ctx context.Context, name, version string) error {
	if err := b.index.Resolve(name, version); err != nil {
		return err
	}
	return b.record(OpInstall, name, version)
}

func (b *Backend) MkdirAll(ctx context.Context, path string) error {
	return b.record(OpMkdir, path)
}

func (b *Backend) Symlink(ctx context.Context, target, link string) error {
	return b.record(OpSymlink, target, link)
}

func (b *Backend) Chown(ctx context.Context, path string, owner image.Owner) error {
	return b.record(OpChown, owner.String(), path)
}

func (b *Backend) AddGroup(ctx context.Context, name string) error {
	return b.record(OpAddGroup, name)
}

func (b *Backend) AddUser(ctx context.Context, name, group string) error {
	return b.record(OpAddUser, name, group)
}

func (b *Backend) CopyIn(ctx context.Context, src, dest string) error {
	return b.record(OpCopy, src, dest)
}

// Records the contract and returns a pseudo location naming its digest.
func (b *Backend) Commit(ctx context.Context, name string, contract image.RuntimeContract) (string, error) {
	if err := b.record(OpCommit, name); err != nil {
		return "", err
	}
	b.contract = &contract
	return fmt.Sprintf("dryrun://%s@%s", name, contract.Digest()), nil
}

func (b *Backend) Release(ctx context.Context) {
	b.released = true
}
