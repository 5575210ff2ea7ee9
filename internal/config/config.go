// Package config resolves the orchestration core's on-disk layout (spec
// §6.3) and environment-driven settings (spec §6.4), with an optional
// YAML settings file for defaults that rarely change between invocations.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"aish/internal/api"

	"gopkg.in/yaml.v3"
)

const (
	envMCPPort       = "AISH_MCP_PORT"
	envPortMode      = "CI_TOOLS_PORT_MODE"
	envPortRange     = "CI_TOOLS_PORT_RANGE"
	envStackID       = "TEKTON_STACK_ID"
	envRegisterAI    = "REGISTER_AI"
	envRoot          = "TEKTON_ROOT"

	defaultMCPPort   = 8118
	defaultRangeLo   = 8400
	defaultRangeHi   = 8449
)

// Config holds every externally-tunable setting the core reads once at
// startup. Values come from environment variables first, an optional
// ~/.tekton/config.yaml second, and compiled-in defaults last.
type Config struct {
	Root string // defaults to ~/.tekton, namespaced by StackID when set

	MCPPort int

	PortMode    api.PortMode
	PortRangeLo int
	PortRangeHi int

	StackID string

	RegisterAI bool
}

// fileOverrides is the shape of the optional YAML settings file. Only
// fields the user actually sets are applied; env vars always win.
type fileOverrides struct {
	MCPPort     *int    `yaml:"mcpPort"`
	PortMode    *string `yaml:"portMode"`
	PortRangeLo *int    `yaml:"portRangeLo"`
	PortRangeHi *int    `yaml:"portRangeHi"`
	StackID     *string `yaml:"stackId"`
	RegisterAI  *bool   `yaml:"registerAI"`
}

// Load resolves a Config from the environment, a settings file if present,
// and defaults, in that order of precedence (environment wins).
func Load() (*Config, error) {
	root, err := defaultRoot()
	if err != nil {
		return nil, fmt.Errorf("resolving config root: %w", err)
	}
	if v := os.Getenv(envRoot); v != "" {
		root = v
	}

	cfg := &Config{
		Root:        root,
		MCPPort:     defaultMCPPort,
		PortMode:    api.PortModeDynamic,
		PortRangeLo: defaultRangeLo,
		PortRangeHi: defaultRangeHi,
		RegisterAI:  true,
	}

	applyFileOverrides(cfg, root)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.Root = namespacedRoot(cfg.Root, cfg.StackID)
	return cfg, nil
}

func defaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tekton"), nil
}

// namespacedRoot appends the stack identifier to the root path so
// independent stacks never collide (spec §4.5 "Multi-stack support").
func namespacedRoot(root, stackID string) string {
	if stackID == "" {
		return root
	}
	return filepath.Join(root, "stacks", stackID)
}

func applyFileOverrides(cfg *Config, root string) {
	data, err := os.ReadFile(filepath.Join(root, "config.yaml"))
	if err != nil {
		return
	}
	var f fileOverrides
	if err := yaml.Unmarshal(data, &f); err != nil {
		return
	}
	if f.MCPPort != nil {
		cfg.MCPPort = *f.MCPPort
	}
	if f.PortMode != nil {
		cfg.PortMode = api.PortMode(*f.PortMode)
	}
	if f.PortRangeLo != nil {
		cfg.PortRangeLo = *f.PortRangeLo
	}
	if f.PortRangeHi != nil {
		cfg.PortRangeHi = *f.PortRangeHi
	}
	if f.StackID != nil {
		cfg.StackID = *f.StackID
	}
	if f.RegisterAI != nil {
		cfg.RegisterAI = *f.RegisterAI
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envMCPPort); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q: %w", envMCPPort, v, err)
		}
		cfg.MCPPort = p
	}

	if v := os.Getenv(envPortMode); v != "" {
		switch api.PortMode(v) {
		case api.PortModeStatic, api.PortModeDynamic:
			cfg.PortMode = api.PortMode(v)
		default:
			return fmt.Errorf("%s: invalid mode %q", envPortMode, v)
		}
	}

	if v := os.Getenv(envPortRange); v != "" {
		lo, hi, err := parseRange(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPortRange, err)
		}
		cfg.PortRangeLo, cfg.PortRangeHi = lo, hi
	}

	if v := os.Getenv(envStackID); v != "" {
		cfg.StackID = v
	}

	// Absent REGISTER_AI defaults to true (set above): platform AIs launch
	// unless explicitly disabled (spec §4.9).
	if v := os.Getenv(envRegisterAI); v != "" {
		cfg.RegisterAI = v == "true"
	}

	return nil
}

func parseRange(v string) (lo, hi int, err error) {
	parts := strings.SplitN(v, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected <lo>-<hi>, got %q", v)
	}
	lo, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	hi, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("range high %d below low %d", hi, lo)
	}
	return lo, hi, nil
}

// RegistryPath is the master registry document (spec §6.3).
func (c *Config) RegistryPath() string { return filepath.Join(c.Root, "registry.json") }

// BackupsDir holds rolling daily registry backups (spec §6.3).
func (c *Config) BackupsDir() string { return filepath.Join(c.Root, "backups") }

// CustomToolsPath is where user-defined tool definitions persist (spec §6.3).
func (c *Config) CustomToolsPath() string { return filepath.Join(c.Root, "ci_tools", "custom_tools.json") }

// QueuesDir holds the Message Bus's per-CI unixgram sockets (spec §6.3).
func (c *Config) QueuesDir() string { return filepath.Join(c.Root, "ci_queues") }

// LogsDir holds the MCP server's daily log files (spec §6.3).
func (c *Config) LogsDir() string { return filepath.Join(c.Root, "logs") }

// EnsureLayout creates every directory the persisted layout requires.
func (c *Config) EnsureLayout() error {
	for _, dir := range []string{c.Root, c.BackupsDir(), filepath.Dir(c.CustomToolsPath()), c.QueuesDir(), c.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
