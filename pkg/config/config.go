// Package config loads and validates bloomd's process configuration
//. Recognized options mirror the original
// bloomd.cfg options one-for-one, but are read from YAML here rather than
// an INI file, matching the rest of this codebase's configuration layer.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/bloomd/pkg/logging"
	"github.com/dd0wney/bloomd/pkg/validation"
)

// Config holds every recognized bloomd option.
type Config struct {
	Port    int `yaml:"port"`
	UDPPort int `yaml:"udp_port"`

	DataDir  string `yaml:"data_dir"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	InitialCapacity      int     `yaml:"initial_capacity"`
	DefaultProbability   float64 `yaml:"default_probability"`
	ScaleSize            int     `yaml:"scale_size"`
	ProbabilityReduction float64 `yaml:"probability_reduction"`

	// FlushIntervalSeconds/ColdIntervalSeconds are stored as plain seconds
	//"), matching the
	// original bloomd.cfg's integer-seconds options rather than a
	// Go-style duration string.
	FlushIntervalSeconds int `yaml:"flush_interval"`
	ColdIntervalSeconds  int `yaml:"cold_interval"`

	Workers int `yaml:"workers"`

	// AdminAddr, when set, serves health/metrics/filter-listing over HTTP
	// alongside the TCP/UDP command ports.
	AdminAddr string `yaml:"admin_addr"`

	// AdminJWTSecret signs and validates bearer tokens for the admin HTTP
	// surface's mutating routes (drop, flush). Required when AdminAddr is set.
	AdminJWTSecret string `yaml:"admin_jwt_secret"`

	// AuditDSN, when set, persists create/drop/flush events to Postgres.
	AuditDSN string `yaml:"audit_dsn"`

	// BackupBucket, when set, uploads a tarred snapshot of each filter's
	// directory to S3 after every flush_all sweep.
	BackupBucket string `yaml:"backup_bucket"`
	BackupPrefix string `yaml:"backup_prefix"`
}

// Defaults returns the out-of-the-box configuration, matching the original
// bloomd's bloomd.cfg defaults (original_source/bloomd/config.py).
func Defaults() Config {
	return Config{
		Port:                 8673,
		UDPPort:              8674,
		DataDir:              "/var/lib/bloomd",
		LogFile:              "/var/log/bloomd.log",
		LogLevel:             "INFO",
		InitialCapacity:      1000000,
		DefaultProbability:   1e-4,
		ScaleSize:            4,
		ProbabilityReduction: 0.9,
		FlushIntervalSeconds: 60,
		ColdIntervalSeconds:  3600,
		Workers:              8,
	}
}

// Load reads and decodes a YAML config file at path, layering its values
// over Defaults, then validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every recognized option's bounds. A
// scale_size above the recommended 4 is a soft warning in the original
// bloomd (original_source/bloomd/config.py, sane_scale_size); here it is
// accepted without any warning, not rejected.
func (c Config) Validate() error {
	v := validation.NewConfigValidator("Config")
	v.Required("data_dir", c.DataDir).
		RequiredInt("port", c.Port).
		RequiredInt("udp_port", c.UDPPort).
		RangeInt("port", c.Port, 1, 65535).
		RangeInt("udp_port", c.UDPPort, 1, 65535).
		MinInt("initial_capacity", c.InitialCapacity, validation.MinInitialCapacity).
		Custom("default_probability", func() error {
			if c.DefaultProbability <= 0 || c.DefaultProbability >= 1 {
				return fmt.Errorf("must be in (0, 1), got %v", c.DefaultProbability)
			}
			return nil
		}).
		MinInt("scale_size", c.ScaleSize, validation.MinScaleSize).
		Custom("probability_reduction", func() error {
			if c.ProbabilityReduction <= 0 || c.ProbabilityReduction > 1 {
				return fmt.Errorf("must be in (0, 1], got %v", c.ProbabilityReduction)
			}
			return nil
		}).
		NonNegative("flush_interval", c.FlushIntervalSeconds).
		NonNegative("cold_interval", c.ColdIntervalSeconds).
		Positive("workers", c.Workers).
		When(c.AdminAddr != "", func(cv *validation.ConfigValidator) {
			cv.Custom("admin_jwt_secret", func() error {
				if len(c.AdminJWTSecret) < 32 {
					return fmt.Errorf("must be at least 32 characters when admin_addr is set")
				}
				return nil
			})
		})

	return v.Validate()
}

// LogLevelParsed returns the configured log level as a logging.Level.
func (c Config) LogLevelParsed() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

// FlushInterval returns the configured flush tick as a time.Duration; zero
// disables the periodic flush scheduler.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// ColdInterval returns the configured cold-sweep tick as a time.Duration;
// zero disables the periodic cold sweep.
func (c Config) ColdInterval() time.Duration {
	return time.Duration(c.ColdIntervalSeconds) * time.Second
}
