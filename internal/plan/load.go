package plan

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Serialization format of a plan file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Infers the plan format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
}

// Reads and validates a plan file.
//
// The format is chosen from the file extension. A plan without a name takes
// the file's base name.
func Load(path string) (Plan, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Plan{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Plan{}, err
	}
	defer f.Close()

	p, err := Decode(f, format)
	if err != nil {
		return Plan{}, fmt.Errorf("%s: %w", path, err)
	}

	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return p, nil
}

// Decodes and validates a plan in the given format.
func Decode(r io.Reader, format Format) (Plan, error) {
	var p Plan

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Plan{}, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Plan{}, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	default:
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Encodes a plan in the given format.
func Encode(p Plan, format Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(p); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	return buf.Bytes(), nil
}
