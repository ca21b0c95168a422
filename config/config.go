package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// CollateralAsset pairs a collateral symbol with its oracle feed identifier.
type CollateralAsset struct {
	Symbol string `toml:"Symbol"`
	Feed   string `toml:"Feed"`
}

type Config struct {
	RPCAddress          string            `toml:"RPCAddress"`
	MetricsAddress      string            `toml:"MetricsAddress"`
	DataDir             string            `toml:"DataDir"`
	Environment         string            `toml:"Environment"`
	LogFile             string            `toml:"LogFile"`
	LogMaxSizeMB        int               `toml:"LogMaxSizeMB"`
	LogMaxBackups       int               `toml:"LogMaxBackups"`
	LogMaxAgeDays       int               `toml:"LogMaxAgeDays"`
	OracleMaxAgeSeconds int               `toml:"OracleMaxAgeSeconds"`
	OraclePriority      []string          `toml:"OraclePriority"`
	Collateral          []CollateralAsset `toml:"Collateral"`
}

// Load loads the configuration from the given path, creating a commented-out
// default file when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./synth-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.OracleMaxAgeSeconds == 0 {
		c.OracleMaxAgeSeconds = 300
	}
	if c.OraclePriority == nil {
		c.OraclePriority = []string{}
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if len(c.Collateral) == 0 {
		return fmt.Errorf("at least one [[Collateral]] entry required")
	}
	seen := make(map[string]bool, len(c.Collateral))
	for i, asset := range c.Collateral {
		symbol := strings.ToLower(strings.TrimSpace(asset.Symbol))
		if symbol == "" {
			return fmt.Errorf("collateral entry %d: Symbol required", i)
		}
		if strings.TrimSpace(asset.Feed) == "" {
			return fmt.Errorf("collateral %s: Feed required", symbol)
		}
		if seen[symbol] {
			return fmt.Errorf("collateral %s listed twice", symbol)
		}
		seen[symbol] = true
	}
	if c.OracleMaxAgeSeconds < 0 {
		return fmt.Errorf("OracleMaxAgeSeconds must not be negative")
	}
	return nil
}

// Symbols returns the collateral symbols in file order.
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Collateral))
	for _, asset := range c.Collateral {
		out = append(out, asset.Symbol)
	}
	return out
}

// Feeds returns the oracle feed identifiers parallel to Symbols.
func (c *Config) Feeds() []string {
	out := make([]string, 0, len(c.Collateral))
	for _, asset := range c.Collateral {
		out = append(out, asset.Feed)
	}
	return out
}

// OracleMaxAge converts the configured freshness window to a duration.
func (c *Config) OracleMaxAge() time.Duration {
	return time.Duration(c.OracleMaxAgeSeconds) * time.Second
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:          ":8080",
		MetricsAddress:      ":9090",
		DataDir:             "./synth-data",
		Environment:         "local",
		OracleMaxAgeSeconds: 300,
		OraclePriority:      []string{},
		Collateral: []CollateralAsset{
			{Symbol: "weth", Feed: "eth-usd"},
			{Symbol: "wbtc", Feed: "btc-usd"},
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
