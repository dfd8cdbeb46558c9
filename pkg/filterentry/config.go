package filterentry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the persisted per-filter configuration. InitialCapacity/Probability/ScaleSize/
// Reduction are fixed at creation time; Size/Capacity/ByteSize are
// advisory and refreshed on every flush so a Proxy can answer reporting
// commands without faulting in.
type Config struct {
	InitialCapacity      int     `yaml:"initial_capacity"`
	DefaultProbability   float64 `yaml:"default_probability"`
	ScaleSize            int     `yaml:"scale_size"`
	ProbabilityReduction float64 `yaml:"probability_reduction"`
	Size                 uint64  `yaml:"size"`
	Capacity             int     `yaml:"capacity"`
	ByteSize             int64   `yaml:"byte_size"`
}

// configFileName is the fixed name of the per-filter config file within
// its directory.
const configFileName = "config"

// loadConfig reads and decodes the config file within dir.
func loadConfig(dir string) (Config, error) {
	raw, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		return Config{}, fmt.Errorf("filterentry: load config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("filterentry: decode config: %w", err)
	}
	return cfg, nil
}

// saveConfig serializes cfg and overwrites the config file within dir.
func saveConfig(dir string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("filterentry: encode config: %w", err)
	}
	path := filepath.Join(dir, configFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("filterentry: write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("filterentry: rename config: %w", err)
	}
	return nil
}
