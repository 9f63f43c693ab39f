package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/containerd/platforms"
	"github.com/cruciblehq/buildplan/internal/paths"
	"github.com/pelletier/go-toml/v2"
)

const (

	// Default containerd socket address.
	DefaultContainerdAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for images and containers.
	DefaultContainerdNamespace = "buildplan"
)

// Containerd connection settings.
type Containerd struct {
	Address   string `toml:"address"`   // Containerd socket address.
	Namespace string `toml:"namespace"` // Namespace scoping images and containers.
}

// Configuration read from the settings file.
type Settings struct {
	Containerd Containerd `toml:"containerd"` // Containerd connection.
	Platform   string     `toml:"platform"`   // Target OCI platform. Empty selects the host.
	Socket     string     `toml:"socket"`     // Daemon socket path.
}

// Returns the built-in settings.
func Default() Settings {
	return Settings{
		Containerd: Containerd{
			Address:   DefaultContainerdAddress,
			Namespace: DefaultContainerdNamespace,
		},
		Socket: paths.Socket(),
	}
}

// Reads settings from path on top of [Default].
//
// An empty path reads the default settings file. A missing file yields the
// defaults.
func Load(path string) (Settings, error) {
	if path == "" {
		path = paths.ConfigFile()
	}

	s := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return Settings{}, err
	}

	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("%w: %s: %w", ErrConfig, path, err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Checks that every set value is well-formed.
func (s Settings) Validate() error {
	if s.Containerd.Address == "" {
		return fmt.Errorf("%w: containerd address is empty", ErrConfig)
	}
	if s.Containerd.Namespace == "" {
		return fmt.Errorf("%w: containerd namespace is empty", ErrConfig)
	}
	if s.Platform != "" {
		if _, err := platforms.Parse(s.Platform); err != nil {
			return fmt.Errorf("%w: platform %q: %w", ErrConfig, s.Platform, err)
		}
	}
	return nil
}
