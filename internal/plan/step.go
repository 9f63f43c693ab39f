package plan

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Default protocol for declared ports.
const DefaultProtocol = "tcp"

// A single build step.
//
// Only the parameters relevant to the step's [Kind] are set. Steps are values;
// [Step.Clone] returns a copy that shares no mutable state with the receiver.
type Step struct {
	Kind       Kind              `yaml:"kind" toml:"kind" json:"kind"`                                                 // Operation to perform.
	Image      string            `yaml:"image,omitempty" toml:"image,omitempty" json:"image,omitempty"`                // Base image reference (set-base).
	Env        map[string]string `yaml:"env,omitempty" toml:"env,omitempty" json:"env,omitempty"`                      // Variables to assign (set-env).
	Path       string            `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty"`                   // Directory (set-workdir) or ownership target (set-owner).
	Packages   []string          `yaml:"packages,omitempty" toml:"packages,omitempty" json:"packages,omitempty"`       // System packages (install/remove deps).
	Name       string            `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`                   // Package, group, or user name.
	Version    string            `yaml:"version,omitempty" toml:"version,omitempty" json:"version,omitempty"`          // Exact version pin (install-package).
	User       string            `yaml:"user,omitempty" toml:"user,omitempty" json:"user,omitempty"`                   // Owning user (set-owner).
	Group      string            `yaml:"group,omitempty" toml:"group,omitempty" json:"group,omitempty"`                // Primary or owning group (create-user, set-owner).
	Target     string            `yaml:"target,omitempty" toml:"target,omitempty" json:"target,omitempty"`             // Existing path the link points to (symlink).
	Link       string            `yaml:"link,omitempty" toml:"link,omitempty" json:"link,omitempty"`                   // Path of the link to create (symlink).
	Port       uint16            `yaml:"port,omitempty" toml:"port,omitempty" json:"port,omitempty"`                   // Exposed port number (declare-port).
	Protocol   string            `yaml:"protocol,omitempty" toml:"protocol,omitempty" json:"protocol,omitempty"`       // Port protocol, tcp or udp (declare-port).
	Source     string            `yaml:"source,omitempty" toml:"source,omitempty" json:"source,omitempty"`             // Build context path (copy-files).
	Dest       string            `yaml:"dest,omitempty" toml:"dest,omitempty" json:"dest,omitempty"`                   // Image path (copy-files).
	Entrypoint string            `yaml:"entrypoint,omitempty" toml:"entrypoint,omitempty" json:"entrypoint,omitempty"` // Executable path (set-entrypoint).
}

// Returns a deep copy of the step.
func (s Step) Clone() Step {
	c := s
	c.Env = maps.Clone(s.Env)
	c.Packages = slices.Clone(s.Packages)
	return c
}

// Returns the effective port protocol, defaulting to tcp.
func (s Step) PortProtocol() string {
	if s.Protocol == "" {
		return DefaultProtocol
	}
	return strings.ToLower(s.Protocol)
}

// Checks that the parameters required by the step's kind are present.
func (s Step) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}

	var missing []string
	need := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	switch s.Kind {
	case SetBase:
		need("image", s.Image)
	case SetEnv:
		if len(s.Env) == 0 {
			missing = append(missing, "env")
		}
		for k := range s.Env {
			if k == "" || strings.ContainsAny(k, "= \t") {
				return fmt.Errorf("%w: %s: invalid variable name %q", ErrInvalidStep, s.Kind, k)
			}
		}
	case SetWorkdir:
		need("path", s.Path)
	case InstallTransientDeps, InstallPersistentDeps, RemoveTransientDeps:
		if len(s.Packages) == 0 {
			missing = append(missing, "packages")
		}
		if slices.Contains(s.Packages, "") {
			return fmt.Errorf("%w: %s: empty package name", ErrInvalidStep, s.Kind)
		}
	case Symlink:
		need("target", s.Target)
		need("link", s.Link)
	case InstallPackage:
		need("name", s.Name)
		need("version", s.Version)
	case CreateGroup, SetUser:
		need("name", s.Name)
	case CreateUser:
		need("name", s.Name)
		need("group", s.Group)
	case DeclarePort:
		if s.Port == 0 {
			missing = append(missing, "port")
		}
		if p := s.PortProtocol(); p != "tcp" && p != "udp" {
			return fmt.Errorf("%w: %s: unsupported protocol %q", ErrInvalidStep, s.Kind, s.Protocol)
		}
	case CopyFiles:
		need("source", s.Source)
		need("dest", s.Dest)
	case SetOwner:
		need("user", s.User)
		need("group", s.Group)
	case SetEntrypoint:
		need("entrypoint", s.Entrypoint)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s: missing %s", ErrInvalidStep, s.Kind, strings.Join(missing, ", "))
	}
	return nil
}

// Returns a short human-readable description of the step.
func (s Step) String() string {
	switch s.Kind {
	case SetBase:
		return fmt.Sprintf("%s %s", s.Kind, s.Image)
	case SetEnv:
		keys := slices.Sorted(maps.Keys(s.Env))
		return fmt.Sprintf("%s %s", s.Kind, strings.Join(keys, ","))
	case SetWorkdir:
		return fmt.Sprintf("%s %s", s.Kind, s.Path)
	case InstallTransientDeps, InstallPersistentDeps, RemoveTransientDeps:
		return fmt.Sprintf("%s [%s]", s.Kind, strings.Join(s.Packages, " "))
	case Symlink:
		return fmt.Sprintf("%s %s -> %s", s.Kind, s.Link, s.Target)
	case InstallPackage:
		return fmt.Sprintf("%s %s==%s", s.Kind, s.Name, s.Version)
	case CreateGroup, SetUser:
		return fmt.Sprintf("%s %s", s.Kind, s.Name)
	case CreateUser:
		return fmt.Sprintf("%s %s:%s", s.Kind, s.Name, s.Group)
	case DeclarePort:
		return fmt.Sprintf("%s %d/%s", s.Kind, s.Port, s.PortProtocol())
	case CopyFiles:
		return fmt.Sprintf("%s %s %s", s.Kind, s.Source, s.Dest)
	case SetOwner:
		if s.Path != "" {
			return fmt.Sprintf("%s %s:%s %s", s.Kind, s.User, s.Group, s.Path)
		}
		return fmt.Sprintf("%s %s:%s", s.Kind, s.User, s.Group)
	case SetEntrypoint:
		return fmt.Sprintf("%s %s", s.Kind, s.Entrypoint)
	}
	return string(s.Kind)
}
