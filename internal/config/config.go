// Package config loads datasteward configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all datasteward configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Semantic oracle configuration
	LLM LLMConfig `yaml:"llm"`

	// Metadata/time-series store
	Store StoreConfig `yaml:"store"`

	// Policy ontology
	Policy PolicyConfig `yaml:"policy"`

	// Risk scoring parameters
	Risk RiskConfig `yaml:"risk"`

	// Simulation driver
	Simulation SimulationConfig `yaml:"simulation"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the semantic oracle client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`

	// CacheEnabled wraps the oracle in the memoizing decorator.
	CacheEnabled bool `yaml:"cache_enabled"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// PolicyConfig locates the governance ontology.
type PolicyConfig struct {
	OntologyPath string `yaml:"ontology_path"`
}

// RiskConfig holds the risk-assessment tuning constants.
type RiskConfig struct {
	// TrendWindowDays is the trailing score window for slope fitting.
	TrendWindowDays int `yaml:"trend_window_days"`

	// MinTrendFactor / MaxTrendFactor clamp the trend multiplier.
	MinTrendFactor float64 `yaml:"min_trend_factor"`
	MaxTrendFactor float64 `yaml:"max_trend_factor"`
}

// SimulationConfig configures the daily-cycle driver.
type SimulationConfig struct {
	StartDate string `yaml:"start_date"` // ISO date, first simulated day
	Days      int    `yaml:"days"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "datasteward",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider:     "gemini",
			Model:        "gemini-3-flash-preview",
			Timeout:      "60s",
			CacheEnabled: true,
		},

		Store: StoreConfig{
			DatabasePath: "data/governance.db",
		},

		Policy: PolicyConfig{
			OntologyPath: "policy/ontology.yaml",
		},

		Risk: RiskConfig{
			TrendWindowDays: 5,
			MinTrendFactor:  0.5,
			MaxTrendFactor:  3.0,
		},

		Simulation: SimulationConfig{
			StartDate: "2026-01-01",
			Days:      30,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if path := os.Getenv("DATASTEWARD_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if path := os.Getenv("DATASTEWARD_ONTOLOGY"); path != "" {
		c.Policy.OntologyPath = path
	}
}

// GetLLMTimeout returns the oracle timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
