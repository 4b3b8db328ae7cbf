// Package config provides the argspec tool's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pattyshack/argspec/argspec"
	"github.com/pattyshack/argspec/logging"
)

const (
	EnvLogLevel      = "ARGSPEC_LOG_LEVEL"
	EnvMaxChainDepth = "ARGSPEC_MAX_CHAIN_DEPTH"
)

// Address is a uint64 which may be written in YAML either as an integer or
// as a (0x prefixed hex) string.
type Address uint64

func (addr *Address) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: address must be a scalar", node.Line)
	}

	value, err := strconv.ParseUint(strings.TrimSpace(node.Value), 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid address %q: %w", node.Line, node.Value, err)
	}

	*addr = Address(value)
	return nil
}

func (addr Address) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%#x", uint64(addr)), nil
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Target is a binary to inspect.  The load offset is taken from LoadOffset,
// or from the process' memory maps when Pid is set.
type Target struct {
	Path       string   `yaml:"path"`
	LoadOffset Address  `yaml:"load_offset,omitempty"`
	Pid        int      `yaml:"pid,omitempty"`
	Functions  []string `yaml:"functions,omitempty"` // empty means every function
}

type Config struct {
	Log           LogConfig `yaml:"log"`
	MaxChainDepth int       `yaml:"max_chain_depth"`
	Targets       []Target  `yaml:"targets"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "warn",
			Pretty: true,
		},
		MaxChainDepth: argspec.DefaultMaxChainDepth,
	}
}

// Load reads the config file.  Unset fields keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()

	err := yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(cfg)
}

// ApplyEnv overrides config values with ARGSPEC_* environment variables.
func (cfg *Config) ApplyEnv() error {
	level := os.Getenv(EnvLogLevel)
	if level != "" {
		cfg.Log.Level = level
	}

	depth := os.Getenv(EnvMaxChainDepth)
	if depth != "" {
		value, err := strconv.Atoi(depth)
		if err != nil {
			return fmt.Errorf("invalid %s (%s): %w", EnvMaxChainDepth, depth, err)
		}
		cfg.MaxChainDepth = value
	}

	return nil
}

func (cfg *Config) LoggingConfig() logging.Config {
	result := logging.DefaultConfig()
	result.Level = cfg.Log.Level
	result.Pretty = cfg.Log.Pretty
	return result
}
