package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level fluxo.yaml configuration.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Database  DatabaseConfig `yaml:"database"`
	Matching  MatchingConfig `yaml:"matching"`
	Forecast  ForecastConfig `yaml:"forecast"`
	Logging   LoggingConfig  `yaml:"logging"`
	AuditRoot string         `yaml:"audit_root,omitempty"`
	Sweep     SweepConfig    `yaml:"sweep"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection settings. An empty URL means
// the in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url,omitempty"`
}

// MatchingConfig controls reconciliation thresholds.
type MatchingConfig struct {
	AmountTolerance string  `yaml:"amount_tolerance"` // decimal string, e.g. "0.01"
	DateWindowDays  int     `yaml:"date_window_days"`
	HighConfidence  float64 `yaml:"high_confidence"`
	LowConfidence   float64 `yaml:"low_confidence"`
}

// ForecastConfig controls cash-flow probability decay.
type ForecastConfig struct {
	DecayPerDay      float64 `yaml:"decay_per_day"`
	ProbabilityFloor float64 `yaml:"probability_floor"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// SweepConfig controls the daily overdue sweep.
type SweepConfig struct {
	// Schedule is a cron expression. Empty disables the sweep.
	Schedule string `yaml:"schedule"`
}

// Load reads a fluxo.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with stock settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Matching: MatchingConfig{
			AmountTolerance: "0.01",
			DateWindowDays:  30,
			HighConfidence:  0.8,
			LowConfidence:   0.5,
		},
		Forecast: ForecastConfig{
			DecayPerDay:      0.05,
			ProbabilityFloor: 0.1,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		Sweep: SweepConfig{
			Schedule: "0 6 * * *",
		},
	}
}
