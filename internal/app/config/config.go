// Package config loads the ledger service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/agoramesh/ledger/pkg/logger"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "memory" or "postgres"
	DSN    string `yaml:"dsn"`
}

// LedgerConfig carries the money-handling tunables. Rates and minimums are
// decimal strings so the YAML never goes through floating point.
type LedgerConfig struct {
	PlatformFeeRate string            `yaml:"platform_fee_rate"`
	Minimums        map[string]string `yaml:"redemption_minimums"`
	UPIFiatRate     string            `yaml:"upi_fiat_rate"`
	SweepSpec       string            `yaml:"sweep_spec"`
	SweepEnabled    bool              `yaml:"sweep_enabled"`
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Ledger   LedgerConfig         `yaml:"ledger"`
	Logging  logger.LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Driver: "memory"},
		Ledger: LedgerConfig{
			PlatformFeeRate: "0.02",
			SweepSpec:       "0 2 1 * *",
			SweepEnabled:    true,
		},
		Logging: logger.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Load reads the path named by LEDGER_CONFIG, falling back to config.yaml
// and then to defaults, and applies environment overrides.
func Load() (*Config, error) {
	path := os.Getenv("LEDGER_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads and parses one YAML file, merged over defaults.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LEDGER_HTTP_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("LEDGER_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("LEDGER_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
		if os.Getenv("LEDGER_DB_DRIVER") == "" {
			c.Database.Driver = "postgres"
		}
	}
	if v := os.Getenv("LEDGER_FEE_RATE"); v != "" {
		c.Ledger.PlatformFeeRate = v
	}
	if v := os.Getenv("LEDGER_SWEEP_SPEC"); v != "" {
		c.Ledger.SweepSpec = v
	}
	if v := os.Getenv("LEDGER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LEDGER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if _, err := c.FeeRate(); err != nil {
		return err
	}
	if _, err := c.RedemptionMinimums(); err != nil {
		return err
	}
	return nil
}

// FeeRate parses the platform fee rate.
func (c *Config) FeeRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Ledger.PlatformFeeRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger.platform_fee_rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("ledger.platform_fee_rate %s out of range [0,1)", rate)
	}
	return rate, nil
}

// UPIRate parses the USD to INR conversion rate used for UPI payouts. An
// empty value means no override.
func (c *Config) UPIRate() (decimal.Decimal, error) {
	if strings.TrimSpace(c.Ledger.UPIFiatRate) == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(c.Ledger.UPIFiatRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger.upi_fiat_rate: %w", err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("ledger.upi_fiat_rate must be positive")
	}
	return rate, nil
}

// RedemptionMinimums parses the configured per-type minimum overrides.
func (c *Config) RedemptionMinimums() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(c.Ledger.Minimums))
	for name, raw := range c.Ledger.Minimums {
		m, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("ledger.redemption_minimums.%s: %w", name, err)
		}
		if m.IsNegative() {
			return nil, fmt.Errorf("ledger.redemption_minimums.%s must not be negative", name)
		}
		out[name] = m
	}
	return out, nil
}
