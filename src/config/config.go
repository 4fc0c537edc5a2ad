package config

import (
	"fmt"
	"os"

	"trade-stream/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills in cadences and limits left unset in the YAML.
// Cadences mirror the dashboard defaults; all are tunable.
func (c *Config) applyDefaults() {
	ch := &c.Channels
	if ch.MarketOverviewSeconds <= 0 {
		ch.MarketOverviewSeconds = 3
	}
	if ch.MarketDataSeconds <= 0 {
		ch.MarketDataSeconds = 1
	}
	if ch.KlineDataSeconds <= 0 {
		ch.KlineDataSeconds = 5
	}
	if ch.OrderBookSeconds <= 0 {
		ch.OrderBookSeconds = 2
	}
	if ch.TradesSeconds <= 0 {
		ch.TradesSeconds = 3
	}
	if ch.BotStatusSeconds <= 0 {
		ch.BotStatusSeconds = 2
	}
	if ch.TradesSeenWindow <= 0 {
		ch.TradesSeenWindow = 100
	}
	if ch.OrderBookDepth <= 0 {
		ch.OrderBookDepth = 20
	}
	if len(ch.OverviewPairs) == 0 {
		ch.OverviewPairs = []string{"BTC/USDT", "ETH/USDT", "BNB/USDT", "SOL/USDT", "XRP/USDT"}
	}

	if c.Network.RequestTimeout <= 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Storage.RetentionDays <= 0 {
		c.Storage.RetentionDays = 7
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "none"
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "none":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unknown database type: %s", c.Storage.DBType)
	}

	// Validate Network configuration
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Validate Exchange configuration
	if c.Exchange.BaseURL != "" && len(c.Exchange.Pairs) == 0 {
		return fmt.Errorf("exchange base_url is set but no pairs are configured")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
