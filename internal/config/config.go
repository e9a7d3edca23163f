// Package config loads the project configuration. The embedded default
// reproduces the stock environment and experiment battery; a user file only
// needs the sections it changes.
package config

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
	"github.com/jitsdp/jitsdp-runner/internal/image"
	"github.com/jitsdp/jitsdp-runner/internal/taskrunner"
)

//go:embed default.yaml
var defaultConfig []byte

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Tool     Tool                `yaml:"tool"`
	Runner   Runner              `yaml:"runner"`
	Image    image.Spec          `yaml:"image"`
	Targets  []taskrunner.Target `yaml:"targets"`
	Battery  battery.Battery     `yaml:"battery"`
	Tracking Tracking            `yaml:"tracking"`
	Log      Log                 `yaml:"log"`
}

// Tool is the external experiment executable.
type Tool struct {
	Executable string   `yaml:"executable"`
	Dir        string   `yaml:"dir"`
	Env        []string `yaml:"env,omitempty"`
}

type Runner struct {
	Jobs     int  `yaml:"jobs"`
	DryRun   bool `yaml:"dry_run"`
	Progress bool `yaml:"progress"`
	// Graph is a file receiving the DOT rendering of the battery pipeline.
	Graph string `yaml:"graph,omitempty"`
}

type Tracking struct {
	Database string `yaml:"database"`
	Addr     string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	var c Config
	if err := decode(defaultConfig, &c); err != nil {
		return nil, errors.Wrap(err, "default configuration")
	}

	return &c, nil
}

// Load reads the file at path over the default configuration. An empty path
// returns the default.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, c.Validate()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read configuration")
	}
	if err := decode(content, c); err != nil {
		return nil, errors.Wrapf(err, "configuration %s", path)
	}

	return c, c.Validate()
}

func decode(content []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	err := dec.Decode(c)
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Tool.Executable) == "" {
		return errors.Wrap(ErrInvalidConfig, "tool executable must be set")
	}
	if c.Runner.Jobs < 1 {
		return errors.Wrapf(ErrInvalidConfig, "runner jobs must be at least 1, got %d", c.Runner.Jobs)
	}
	if err := c.Battery.Validate(); err != nil {
		return errors.Wrap(err, "battery")
	}
	if err := c.Image.Validate(); err != nil {
		return errors.Wrap(err, "image")
	}

	return nil
}

// Invocations expands the battery.
func (c *Config) Invocations() []battery.Invocation {
	return c.Battery.Expand()
}
