package dryrun

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Available versions of language packages, keyed by package name.
//
// Versions are exact strings. A nil Index accepts every package and version.
type Index map[string][]string

// Reads an index from a YAML file mapping package names to version lists.
//
//	numpy: ["1.16.2", "1.16.3"]
//	apache-airflow: ["1.10.2"]
func LoadIndex(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIndex, path, err)
	}
	return idx, nil
}

// Checks that name is published at exactly version.
func (idx Index) Resolve(name, version string) error {
	if idx == nil {
		return nil
	}
	versions, ok := idx[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	if !slices.Contains(versions, version) {
		return fmt.Errorf("%w: %s==%s", ErrVersionNotFound, name, version)
	}
	return nil
}
