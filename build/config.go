package build

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultImages is built when no config file or image arguments are given.
var DefaultImages = []string{"app"}

// BackendDocker and friends name the supported build backends.
const (
	BackendDocker   = "docker"
	BackendEngine   = "engine"
	BackendBuildkit = "buildkit"
)

// Config selects the images to build and how to build them.
type Config struct {
	Images    []string          `yaml:"images"`
	Root      string            `yaml:"root"`
	Registry  string            `yaml:"registry"`
	Backend   string            `yaml:"backend"`
	BuildArgs map[string]string `yaml:"build_args"`
}

// LoadConfigFile reads a config from fn. A missing file yields the default
// config with the build context rooted at the parent of fn's directory.
func LoadConfigFile(fn string) (*Config, error) {
	f, err := os.Open(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := &Config{}
			return cfg, cfg.normalize(fn)
		}
		return nil, err
	}
	defer f.Close()

	cfg, err := LoadConfig(f)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", fn, err)
	}
	return cfg, cfg.normalize(fn)
}

// LoadConfig decodes a config from in.
func LoadConfig(in io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(in).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills defaults and validates image names. The root defaults to
// the parent of the config file's own directory, so a config in
// docker/forge.yaml builds from the repository root.
func (c *Config) normalize(fn string) error {
	if len(c.Images) == 0 {
		c.Images = append([]string{}, DefaultImages...)
	}
	for i, img := range c.Images {
		img = strings.TrimSpace(img)
		if img == "" {
			return fmt.Errorf("image %d is empty", i)
		}
		c.Images[i] = img
	}

	if c.Backend == "" {
		c.Backend = BackendDocker
	}
	switch c.Backend {
	case BackendDocker, BackendEngine, BackendBuildkit:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Root == "" {
		abs, err := filepath.Abs(fn)
		if err != nil {
			return err
		}
		c.Root = filepath.Dir(filepath.Dir(abs))
	}
	return nil
}

// Params returns build parameters for the configured images.
func (c *Config) Params() *Params {
	return &Params{
		Images:    c.Images,
		Root:      c.Root,
		Registry:  c.Registry,
		BuildArgs: c.BuildArgs,
	}
}
