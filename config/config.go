// Package config handles loki.toml generator and tool configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/lokierrors"
)

const FileName = "loki.toml"

type Config struct {
	Generator Generator `toml:"generator"`
	Output    Output    `toml:"output"`
	Log       Log       `toml:"log"`
	Telemetry Telemetry `toml:"telemetry"`

	// Path is the file the configuration was read from, if any.
	Path string `toml:"-"`
}

// Generator holds the handler generator knobs.
type Generator struct {
	NumALUs                  int    `toml:"num_alus"`
	NumReservedALUHandler    int    `toml:"num_reserved_alu_handler"`
	MinSemanticsPerALU       int    `toml:"min_semantics_per_alu"`
	MaxSemanticsPerALU       int    `toml:"max_semantics_per_alu"`
	ScheduleNonDeterministic bool   `toml:"schedule_non_deterministic"`
	HandlerDuplication       bool   `toml:"handler_duplication"`
	// Seed pins the generator. Zero draws a fresh seed for every build.
	Seed uint64 `toml:"seed"`
}

type Output struct {
	DebugOutput bool   `toml:"debug_output"`
	Workdir     string `toml:"workdir"`
	CacheDir    string `toml:"cache_dir"`
}

type Log struct {
	Level   string `toml:"level"`
	Modules string `toml:"modules"`
}

type Telemetry struct {
	Endpoint string `toml:"endpoint"`
	Insecure bool   `toml:"insecure"`
}

func Default() *Config {
	return &Config{
		Generator: Generator{
			NumALUs:                  511,
			NumReservedALUHandler:    2,
			MinSemanticsPerALU:       3,
			MaxSemanticsPerALU:       5,
			ScheduleNonDeterministic: true,
		},
		Output: Output{Workdir: "workdir"},
		Log:    Log{Level: "info"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path = path
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir looking for loki.toml. Without one it
// returns the defaults.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) ALUOptions() alu.Options {
	g := c.Generator
	return alu.Options{
		NumALUs:      g.NumALUs,
		Reserved:     g.NumReservedALUHandler,
		MinSemantics: g.MinSemanticsPerALU,
		MaxSemantics: g.MaxSemanticsPerALU,
		Shuffle:      g.ScheduleNonDeterministic,
		Duplicate:    g.HandlerDuplication,
	}
}

func (c *Config) EmitterOptions() bytecode.Options {
	return bytecode.Options{ALU: c.ALUOptions(), Seed: c.Generator.Seed}
}

func (c *Config) Validate() error {
	if err := c.ALUOptions().Validate(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error", "crit":
	default:
		return fmt.Errorf("log level %q: %w", c.Log.Level, lokierrors.ErrCInvalid)
	}
	return nil
}

// Encode writes c in TOML form.
func (c *Config) Encode(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
