// Package config loads noeticd's process configuration (spec.md §6) from a
// YAML file, the same format and DefaultConfig()-plus-env-overrides shape
// as codenerd's internal/config/config.go, trimmed to this service's option
// set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized option from spec.md §6.
type Config struct {
	HTTPPort         int    `yaml:"http_port"`
	RPCPort          int    `yaml:"rpc_port"`
	SeedKBPath       string `yaml:"seed_kb_path"`
	SeedRulesPath    string `yaml:"seed_rules_path"`
	ShapesPath       string `yaml:"shapes_path"`
	MaxFacts         int    `yaml:"max_facts"`
	MaxQueryResults  int    `yaml:"max_query_results"`
	MaxRadius        int    `yaml:"max_radius"`
	MaxSubgraphNodes int    `yaml:"max_subgraph_nodes"`
	MaxRulePackBytes int    `yaml:"max_rule_pack_bytes"`
	RendererCommand  string `yaml:"renderer_command"`
	LogLevel         string `yaml:"log_level"`
	LogJSON          bool   `yaml:"log_json"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTPPort:         8080,
		RPCPort:          9090,
		MaxFacts:         1_000_000,
		MaxQueryResults:  1000,
		MaxRadius:        6,
		MaxSubgraphNodes: 2000,
		MaxRulePackBytes: 5 * 1024 * 1024,
		LogLevel:         "info",
		LogJSON:          true,
	}
}

// Load reads a YAML config file, falling back to defaults for any field
// it doesn't set, then applies NOETIC_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies an environment-variable override to every
// overridable field. Names follow the teacher's convention (internal/config/env_override_test.go):
// a fixed prefix plus the option's upper-snake-case name.
func (c *Config) applyEnvOverrides() {
	overrideInt(&c.HTTPPort, "NOETIC_HTTP_PORT")
	overrideInt(&c.RPCPort, "NOETIC_RPC_PORT")
	overrideString(&c.SeedKBPath, "NOETIC_SEED_KB_PATH")
	overrideString(&c.SeedRulesPath, "NOETIC_SEED_RULES_PATH")
	overrideString(&c.ShapesPath, "NOETIC_SHAPES_PATH")
	overrideInt(&c.MaxFacts, "NOETIC_MAX_FACTS")
	overrideInt(&c.MaxQueryResults, "NOETIC_MAX_QUERY_RESULTS")
	overrideInt(&c.MaxRadius, "NOETIC_MAX_RADIUS")
	overrideInt(&c.MaxSubgraphNodes, "NOETIC_MAX_SUBGRAPH_NODES")
	overrideInt(&c.MaxRulePackBytes, "NOETIC_MAX_RULE_PACK_BYTES")
	overrideString(&c.RendererCommand, "NOETIC_RENDERER_COMMAND")
	overrideString(&c.LogLevel, "NOETIC_LOG_LEVEL")
	overrideBool(&c.LogJSON, "NOETIC_LOG_JSON")
}

func overrideString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func overrideInt(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func overrideBool(dst *bool, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

// Validate rejects configurations that would fail at startup (spec.md §6
// exit code 1: "unparseable seed, unbindable port" — port range and cap
// sanity are caught here before any socket is opened).
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: http_port out of range: %d", c.HTTPPort)
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("config: rpc_port out of range: %d", c.RPCPort)
	}
	if c.HTTPPort == c.RPCPort {
		return fmt.Errorf("config: http_port and rpc_port must differ")
	}
	if c.MaxFacts <= 0 || c.MaxQueryResults <= 0 || c.MaxRadius < 0 || c.MaxSubgraphNodes <= 0 || c.MaxRulePackBytes <= 0 {
		return fmt.Errorf("config: resource caps must be positive (radius may be zero)")
	}
	return nil
}
