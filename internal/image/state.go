package image

import (
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Default working directory of an image that never declared one.
const DefaultWorkdir = "/"

// Cumulative filesystem and metadata state of an image after applying a
// prefix of a build plan.
//
// The zero value is an empty state with no base image. States are immutable;
// all With* methods return modified copies.
type State struct {
	base       string
	env        map[string]string
	workdir    string
	system     map[string]struct{}
	transient  map[string]struct{}
	packages   map[string]string
	symlinks   map[string]string
	dirs       map[string]struct{}
	groups     map[string]struct{}
	users      map[string]string
	owners     map[string]Owner
	files      map[string]string
	user       string
	ports      []Port
	entrypoint string
	applied    int
}

// Creates the initial state for a base image.
func New(base string) State {
	return State{base: base}
}

// Returns a copy of the state sharing no mutable data with the receiver.
func (s State) clone() State {
	c := s
	c.env = maps.Clone(s.env)
	c.system = maps.Clone(s.system)
	c.transient = maps.Clone(s.transient)
	c.packages = maps.Clone(s.packages)
	c.symlinks = maps.Clone(s.symlinks)
	c.dirs = maps.Clone(s.dirs)
	c.groups = maps.Clone(s.groups)
	c.users = maps.Clone(s.users)
	c.owners = maps.Clone(s.owners)
	c.files = maps.Clone(s.files)
	c.ports = slices.Clone(s.ports)
	return c
}

// Returns the base image reference, or empty if none was selected.
func (s State) Base() string { return s.base }

// Returns true once a base image has been selected.
func (s State) HasBase() bool { return s.base != "" }

// Returns the number of steps applied to produce this state.
func (s State) Applied() int { return s.applied }

// Returns the value of an environment variable.
func (s State) Getenv(key string) (string, bool) {
	v, ok := s.env[key]
	return v, ok
}

// Returns a copy of the accumulated environment.
func (s State) Env() map[string]string { return maps.Clone(s.env) }

// Returns the working directory, defaulting to [DefaultWorkdir].
func (s State) Workdir() string {
	if s.workdir == "" {
		return DefaultWorkdir
	}
	return s.workdir
}

// Returns the effective user. An empty state runs as [Root].
func (s State) User() string {
	if s.user == "" {
		return Root
	}
	return s.user
}

// Returns true while the effective user is the superuser.
func (s State) Privileged() bool { return s.User() == Root }

// Returns true if the group exists.
func (s State) HasGroup(name string) bool {
	_, ok := s.groups[name]
	return ok
}

// Returns true if the user exists. [Root] always exists.
func (s State) HasUser(name string) bool {
	if name == Root {
		return true
	}
	_, ok := s.users[name]
	return ok
}

// Returns the primary group of a created user.
func (s State) PrimaryGroup(user string) (string, bool) {
	g, ok := s.users[user]
	return g, ok
}

// Returns the owner of a path.
//
// Ownership set on a directory applies recursively, so the closest owned
// ancestor wins. Paths with no recorded owner belong to root:root.
func (s State) OwnerOf(p string) Owner {
	p = path.Clean(p)
	for {
		if o, ok := s.owners[p]; ok {
			return o
		}
		if p == "/" || p == "." {
			return Owner{User: Root, Group: Root}
		}
		p = path.Dir(p)
	}
}

// Returns the installed version of a language package.
func (s State) Package(name string) (string, bool) {
	v, ok := s.packages[name]
	return v, ok
}

// Returns true if the system package is installed as a transient dependency.
func (s State) IsTransient(name string) bool {
	_, ok := s.transient[name]
	return ok
}

// Returns the sorted names of transient packages still installed.
func (s State) Transient() []string {
	return slices.Sorted(maps.Keys(s.transient))
}

// Returns the sorted names of persistent system packages.
func (s State) System() []string {
	return slices.Sorted(maps.Keys(s.system))
}

// Returns the target of a symlink.
func (s State) Symlink(link string) (string, bool) {
	t, ok := s.symlinks[path.Clean(link)]
	return t, ok
}

// Returns the build context source copied to an image path.
func (s State) File(dest string) (string, bool) {
	src, ok := s.files[path.Clean(dest)]
	return src, ok
}

// Returns the declared ports in declaration order.
func (s State) Ports() []Port { return slices.Clone(s.ports) }

// Returns the declared entrypoint, or empty.
func (s State) Entrypoint() string { return s.entrypoint }

// Returns true if the effective user has been explicitly declared.
func (s State) UserDeclared() bool { return s.user != "" }

// Returns a state with the applied-step counter advanced by one.
func (s State) Advance() State {
	c := s.clone()
	c.applied++
	return c
}

// Returns a state with the given environment variables assigned.
func (s State) WithEnv(env map[string]string) State {
	c := s.clone()
	if c.env == nil {
		c.env = make(map[string]string, len(env))
	}
	maps.Copy(c.env, env)
	return c
}

// Returns a state with the working directory set and created.
func (s State) WithWorkdir(dir string) State {
	c := s.clone()
	c.workdir = path.Clean(dir)
	c.dirs = addKey(c.dirs, c.workdir)
	return c
}

// Returns a state with system packages installed as transient dependencies.
func (s State) WithTransient(pkgs []string) State {
	c := s.clone()
	for _, p := range pkgs {
		c.transient = addKey(c.transient, p)
	}
	return c
}

// Returns a state with transient dependencies removed.
func (s State) WithoutTransient(pkgs []string) State {
	c := s.clone()
	for _, p := range pkgs {
		delete(c.transient, p)
	}
	return c
}

// Returns a state with persistent system packages installed.
func (s State) WithSystem(pkgs []string) State {
	c := s.clone()
	for _, p := range pkgs {
		c.system = addKey(c.system, p)
	}
	return c
}

// Returns a state with a symlink created.
func (s State) WithSymlink(target, link string) State {
	c := s.clone()
	if c.symlinks == nil {
		c.symlinks = make(map[string]string)
	}
	c.symlinks[path.Clean(link)] = target
	return c
}

// Returns a state with a language package installed at an exact version.
func (s State) WithPackage(name, version string) State {
	c := s.clone()
	if c.packages == nil {
		c.packages = make(map[string]string)
	}
	c.packages[name] = version
	return c
}

// Returns a state with a group created.
func (s State) WithGroup(name string) State {
	c := s.clone()
	c.groups = addKey(c.groups, name)
	return c
}

// Returns a state with a user created in the given primary group.
func (s State) WithUser(name, group string) State {
	c := s.clone()
	if c.users == nil {
		c.users = make(map[string]string)
	}
	c.users[name] = group
	return c
}

// Returns a state with a path recursively owned by the given owner.
//
// Ownership recorded on descendants of the path is replaced, matching the
// effect of a recursive chown.
func (s State) WithOwner(p string, o Owner) State {
	c := s.clone()
	p = path.Clean(p)
	if c.owners == nil {
		c.owners = make(map[string]Owner)
	}
	for k := range c.owners {
		if isWithin(k, p) {
			delete(c.owners, k)
		}
	}
	c.owners[p] = o
	return c
}

// Returns a state with a build context file copied to an image path.
func (s State) WithFile(src, dest string) State {
	c := s.clone()
	if c.files == nil {
		c.files = make(map[string]string)
	}
	c.files[path.Clean(dest)] = src
	return c
}

// Returns a state running as the given user.
func (s State) WithEffectiveUser(name string) State {
	c := s.clone()
	c.user = name
	return c
}

// Returns a state with a port exposed. Redeclaring a port is a no-op.
func (s State) WithPort(p Port) State {
	c := s.clone()
	if !slices.Contains(c.ports, p) {
		c.ports = append(c.ports, p)
	}
	return c
}

// Returns a state with the entrypoint declared.
func (s State) WithEntrypoint(entrypoint string) State {
	c := s.clone()
	c.entrypoint = entrypoint
	return c
}

// Serializable form of a [State]. Maps are emitted with sorted keys by
// encoding/json, so the encoding is canonical.
type snapshot struct {
	Base       string            `json:"base"`
	Env        map[string]string `json:"env,omitempty"`
	Workdir    string            `json:"workdir"`
	System     []string          `json:"system,omitempty"`
	Transient  []string          `json:"transient,omitempty"`
	Packages   map[string]string `json:"packages,omitempty"`
	Symlinks   map[string]string `json:"symlinks,omitempty"`
	Dirs       []string          `json:"dirs,omitempty"`
	Groups     []string          `json:"groups,omitempty"`
	Users      map[string]string `json:"users,omitempty"`
	Owners     map[string]Owner  `json:"owners,omitempty"`
	Files      map[string]string `json:"files,omitempty"`
	User       string            `json:"user"`
	Ports      []Port            `json:"ports,omitempty"`
	Entrypoint string            `json:"entrypoint,omitempty"`
}

// Returns a content digest of the state.
//
// The applied-step counter is not part of the digest: two plans that reach the
// same filesystem and metadata produce the same digest.
func (s State) Digest() digest.Digest {
	b, err := json.Marshal(snapshot{
		Base:       s.base,
		Env:        s.env,
		Workdir:    s.Workdir(),
		System:     s.System(),
		Transient:  s.Transient(),
		Packages:   s.packages,
		Symlinks:   s.symlinks,
		Dirs:       slices.Sorted(maps.Keys(s.dirs)),
		Groups:     slices.Sorted(maps.Keys(s.groups)),
		Users:      s.users,
		Owners:     s.owners,
		Files:      s.files,
		User:       s.User(),
		Ports:      s.ports,
		Entrypoint: s.entrypoint,
	})
	if err != nil {
		panic(fmt.Sprintf("image: encode state: %v", err))
	}
	return digest.FromBytes(b)
}

// Adds a key to a set, allocating it when nil.
func addKey(set map[string]struct{}, key string) map[string]struct{} {
	if set == nil {
		set = make(map[string]struct{})
	}
	set[key] = struct{}{}
	return set
}

// Returns true if p equals dir or lies beneath it.
func isWithin(p, dir string) bool {
	if dir == "/" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// Formats a port number and protocol in OCI notation.
func portString(number uint16, protocol string) string {
	return fmt.Sprintf("%d/%s", number, protocol)
}
