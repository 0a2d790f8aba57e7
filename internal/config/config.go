// Package config handles corevortex engine configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is overridden in tests so FindConfig doesn't pick up
// real config files lying around on a developer or deploy machine.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./corevortex.yaml, ~/.config/corevortex/config.yaml,
// /config/corevortex.yaml, /etc/corevortex/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"corevortex.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "corevortex", "config.yaml"))
	}

	paths = append(paths, "/config/corevortex.yaml") // Container convention
	paths = append(paths, "/etc/corevortex/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches the default search paths and returns the first that
// exists. Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds a full engine run's configuration: every flag spec.md
// §6 documents, plus the component graph that stands in for the
// excluded front-end/config-graph-builder.
type Config struct {
	TimeBase  string `yaml:"timebase"`
	StopAt    string `yaml:"stop_at"`
	ExitAfter string `yaml:"exit_after"`

	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	Signals    SignalConfig     `yaml:"signals"`
	Console    ConsoleConfig    `yaml:"interactive_console"`
	Profiling  string           `yaml:"enable_profiling"`

	SearchPaths string `yaml:"search_paths"`
	OutputDir   string `yaml:"output_dir"`
	Prefix      string `yaml:"prefix"`
	LogLevel    string `yaml:"log_level"`

	Ranks   int `yaml:"ranks"`
	Threads int `yaml:"threads"`

	Components []ComponentSpec `yaml:"components"`
}

// CheckpointConfig controls periodic and prefix settings for
// checkpointing (`--checkpoint-sim-period`, `--checkpoint-wall-period`,
// `--checkpoint-prefix`).
type CheckpointConfig struct {
	SimPeriod  string `yaml:"sim_period"`
	WallPeriod string `yaml:"wall_period"`
	Prefix     string `yaml:"prefix"`
}

// HeartbeatConfig controls periodic reporting
// (`--heartbeat-sim-period`, `--heartbeat-wall-period`).
type HeartbeatConfig struct {
	SimPeriod  string `yaml:"sim_period"`
	WallPeriod string `yaml:"wall_period"`
}

// SignalConfig maps OS signals to action strings
// (`--sigusr1`, `--sigusr2`, `--sigalrm`).
type SignalConfig struct {
	SIGUSR1 string `yaml:"sigusr1"`
	SIGUSR2 string `yaml:"sigusr2"`
	SIGALRM string `yaml:"sigalrm"`
}

// ConsoleConfig controls the interactive console
// (`--interactive-console`, `--interactive-start`).
type ConsoleConfig struct {
	Type    string `yaml:"type"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	StartAt string `yaml:"start_at"`
}

// ComponentSpec describes one node of the component graph: its plugin
// kind, construction parameters, and the rank it's assigned to.
type ComponentSpec struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Rank   int               `yaml:"rank"`
	Params map[string]string `yaml:"params"`
	Links  []LinkSpec        `yaml:"links"`
}

// LinkSpec describes one port-to-port wiring between two components,
// with the latency applied on delivery. Polling and PeerPolling mark
// the local and peer endpoint, respectively, as polling-kind (that
// side calls Link.Recv instead of registering a handler); a single
// LinkSpec entry fully describes both ends so a link is only ever
// declared once, by one side of the pair.
type LinkSpec struct {
	Port        string `yaml:"port"`
	Peer        string `yaml:"peer"`
	PeerPort    string `yaml:"peer_port"`
	Latency     string `yaml:"latency"`
	Polling     bool   `yaml:"polling"`
	PeerPolling bool   `yaml:"peer_polling"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}) so search paths and
	// output directories can be templated in container deployments.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.TimeBase == "" {
		c.TimeBase = "1ps"
	}
	if c.Ranks == 0 {
		c.Ranks = 1
	}
	if c.Threads == 0 {
		c.Threads = 1
	}
	if c.OutputDir == "" {
		c.OutputDir = "./output"
	}
	if c.Prefix == "" {
		c.Prefix = "run"
	}
	if c.Checkpoint.Prefix == "" {
		c.Checkpoint.Prefix = c.Prefix
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Ranks < 1 {
		return fmt.Errorf("ranks %d must be >= 1", c.Ranks)
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads %d must be >= 1", c.Threads)
	}
	if c.Console.Type != "" && (c.Console.Port < 0 || c.Console.Port > 65535) {
		return fmt.Errorf("interactive_console.port %d out of range (0-65535)", c.Console.Port)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(c.Components))
	for _, comp := range c.Components {
		if comp.Name == "" {
			return fmt.Errorf("component of type %q has no name", comp.Type)
		}
		if comp.Type == "" {
			return fmt.Errorf("component %q has no type", comp.Name)
		}
		if comp.Rank < 0 || comp.Rank >= c.Ranks {
			return fmt.Errorf("component %q assigned rank %d, but only %d ranks configured", comp.Name, comp.Rank, c.Ranks)
		}
		if seen[comp.Name] {
			return fmt.Errorf("component name %q used more than once", comp.Name)
		}
		seen[comp.Name] = true
	}
	for _, comp := range c.Components {
		for _, l := range comp.Links {
			if l.Peer != "" && !seen[l.Peer] {
				return fmt.Errorf("component %q links to undefined peer %q", comp.Name, l.Peer)
			}
		}
	}
	return nil
}

// Default returns a minimal single-rank, single-thread configuration
// with no components, suitable as a starting point for tests.
// `vortexd run` does not fall back to it: it exits when no config
// file is found.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
