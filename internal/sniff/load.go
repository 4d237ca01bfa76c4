package sniff

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// Table file formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

type table struct {
	Signatures []Signature `yaml:"signatures" toml:"signature"`
}

// Parse decodes a signature table. YAML tables list entries under
// "signatures"; TOML tables use [[signature]] blocks.
func Parse(data []byte, format string) ([]Signature, error) {
	var t table
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported table format %q", format)
	}
	return t.Signatures, nil
}

// LoadFiles reads every table matching a doublestar pattern such as
// "/etc/scripthost/signatures/**/*.{yaml,toml}". Files are read in sorted
// order; the format follows the extension.
func LoadFiles(pattern string) ([]Signature, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var sigs []Signature
	for _, path := range paths {
		format, ok := formatOf(path)
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		parsed, err := Parse(data, format)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		sigs = append(sigs, parsed...)
	}
	return sigs, nil
}

// WithFiles returns a Detector over the embedded table plus every table
// matching pattern. An empty pattern yields the embedded table alone.
func WithFiles(pattern string, log *zap.Logger) (*Detector, error) {
	sigs, err := Parse(builtin, FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("builtin signatures: %w", err)
	}
	if pattern != "" {
		extra, err := LoadFiles(pattern)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, extra...)
	}
	return New(sigs, log)
}

func formatOf(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	}
	return "", false
}
