package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when --config is
// not given. Its absence is not an error.
const DefaultConfigFile = "svcidl.yaml"

// Config is the project file. Command-line flags override every field.
type Config struct {
	// Decls is the default declarations directory.
	Decls string `yaml:"decls"`

	// Registry is the path of the SQLite interface registry.
	Registry string `yaml:"registry"`

	// Output is where resolve writes the description artifact.
	Output string `yaml:"output"`

	// Compress makes resolve write deflate-packed artifacts.
	Compress bool `yaml:"compress"`
}

// LoadConfig reads a project file with strict field checking.
// A missing file yields an empty Config unless required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// pick returns flag when set, otherwise fallback.
func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
