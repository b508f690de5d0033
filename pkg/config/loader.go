package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config is the root document: a set of agent definitions.
type Config struct {
	Agents []AgentConfig `yaml:"agents"`
}

// Load reads a config file or a directory of *.yaml/*.yml files, expands
// env references, applies defaults and validates every agent.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config path: %w", err)
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return LoadFromBytes(data)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)

	cfg := &Config{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		part, err := LoadFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		cfg.Agents = append(cfg.Agents, part.Agents...)
	}

	if err := cfg.checkUnique(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses one YAML document. Env expansion happens on the raw
// decoded tree so defaults and validation see final values.
func LoadFromBytes(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	expanded := ExpandEnvVarsInData(raw)
	normalized, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	for i := range cfg.Agents {
		cfg.Agents[i].SetDefaults()
		if err := cfg.Agents[i].Validate(); err != nil {
			return nil, err
		}
	}
	if err := cfg.checkUnique(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) checkUnique() error {
	seen := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		name := c.Agents[i].AgentName
		if seen[name] {
			return fmt.Errorf("duplicate agent name %q", name)
		}
		seen[name] = true
	}
	return nil
}

// Get returns the agent config by name.
func (c *Config) Get(name string) (*AgentConfig, bool) {
	for i := range c.Agents {
		if c.Agents[i].AgentName == name {
			return &c.Agents[i], true
		}
	}
	return nil, false
}
