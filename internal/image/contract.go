package image

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Terminal runtime attributes of a finished image.
//
// Produced once at build completion and consumed by the container runtime.
type RuntimeContract struct {
	Port       uint16            `json:"port,omitempty"`       // Primary exposed port (first declared), or zero.
	Ports      []Port            `json:"ports,omitempty"`      // All exposed ports in declaration order.
	User       string            `json:"user"`                 // Effective run-as user.
	Entrypoint string            `json:"entrypoint"`           // Executable invoked at container start.
	Env        map[string]string `json:"env,omitempty"`        // Environment visible to the entrypoint.
	WorkingDir string            `json:"workingDir,omitempty"` // Working directory of the entrypoint.
}

// Extracts the runtime attributes of a state.
//
// No invariants are checked; callers finalize through the executor, which
// rejects incomplete or unclean states first.
func ContractOf(s State) RuntimeContract {
	c := RuntimeContract{
		Ports:      s.Ports(),
		User:       s.User(),
		Entrypoint: s.Entrypoint(),
		Env:        s.Env(),
		WorkingDir: s.Workdir(),
	}
	if len(c.Ports) > 0 {
		c.Port = c.Ports[0].Number
	}
	return c
}

// Returns a content digest of the contract.
func (c RuntimeContract) Digest() digest.Digest {
	b, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("image: encode contract: %v", err))
	}
	return digest.FromBytes(b)
}

// Renders the contract as an OCI image config.
//
// Environment entries are sorted by key so the config is deterministic. Cmd
// is left empty; the entrypoint is invoked with no arguments.
func (c RuntimeContract) ImageConfig() ocispec.ImageConfig {
	cfg := ocispec.ImageConfig{
		User:       c.User,
		WorkingDir: c.WorkingDir,
	}

	if c.Entrypoint != "" {
		cfg.Entrypoint = []string{c.Entrypoint}
	}

	if len(c.Ports) > 0 {
		cfg.ExposedPorts = make(map[string]struct{}, len(c.Ports))
		for _, p := range c.Ports {
			cfg.ExposedPorts[p.String()] = struct{}{}
		}
	}

	for _, k := range slices.Sorted(maps.Keys(c.Env)) {
		cfg.Env = append(cfg.Env, k+"="+c.Env[k])
	}

	return cfg
}
