package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Broker  BrokerConfig  `json:"broker" yaml:"broker"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
}

// LoggingConfig contains structured-logging parameters
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"` // debug, info, warn, error
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// BrokerConfig selects the brokerage connector. Alpaca credentials are not
// stored here; the connector reads APCA_API_KEY_ID / APCA_API_SECRET_KEY from
// the environment (loaded from .env when present).
type BrokerConfig struct {
	Type    string `json:"type" yaml:"type"` // "alpaca" or "sim"
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// EngineConfig contains evaluation parameters
type EngineConfig struct {
	Account     string `json:"account,omitempty" yaml:"account,omitempty"`
	RulesDir    string `json:"rules_dir" yaml:"rules_dir"`
	Lookback    string `json:"lookback,omitempty" yaml:"lookback,omitempty"`         // e.g. "24h"
	LockTimeout string `json:"lock_timeout,omitempty" yaml:"lock_timeout,omitempty"` // e.g. "250ms"
	PriceTTL    string `json:"price_ttl,omitempty" yaml:"price_ttl,omitempty"`       // e.g. "5s"
}

// ParseLookback converts the lookback string to time.Duration
func (ec EngineConfig) ParseLookback() (time.Duration, error) {
	if ec.Lookback == "" {
		return 24 * time.Hour, nil
	}
	return time.ParseDuration(ec.Lookback)
}

// ParseLockTimeout converts the lock timeout string to time.Duration
func (ec EngineConfig) ParseLockTimeout() (time.Duration, error) {
	if ec.LockTimeout == "" {
		return 250 * time.Millisecond, nil
	}
	return time.ParseDuration(ec.LockTimeout)
}

// ParsePriceTTL converts the price cache TTL string to time.Duration
func (ec EngineConfig) ParsePriceTTL() (time.Duration, error) {
	if ec.PriceTTL == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(ec.PriceTTL)
}

// LoadFromFile loads configuration from a file (JSON or YAML based on extension)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	if c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required")
	}
	if c.Broker.Type != "alpaca" && c.Broker.Type != "sim" {
		return fmt.Errorf("broker.type must be 'alpaca' or 'sim'")
	}
	if c.Engine.RulesDir == "" {
		return fmt.Errorf("engine.rules_dir is required")
	}
	if _, err := c.Engine.ParseLookback(); err != nil {
		return fmt.Errorf("engine.lookback: %w", err)
	}
	if _, err := c.Engine.ParseLockTimeout(); err != nil {
		return fmt.Errorf("engine.lock_timeout: %w", err)
	}
	if _, err := c.Engine.ParsePriceTTL(); err != nil {
		return fmt.Errorf("engine.price_ttl: %w", err)
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Journal: JournalConfig{DBPath: "./autotrader.db"},
		Broker:  BrokerConfig{Type: "sim"},
		Engine: EngineConfig{
			RulesDir:    "./rules",
			Lookback:    "24h",
			LockTimeout: "250ms",
			PriceTTL:    "5s",
		},
	}
}
