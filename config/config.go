package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"synthdollar/native/collateral"
)

// Config is the daemon's top-level configuration.
type Config struct {
	ListenAddress     string `toml:"ListenAddress"`
	Environment       string `toml:"Environment"`
	DataDir           string `toml:"DataDir"`
	CustodyAddress    string `toml:"CustodyAddress"`
	LogFile           string `toml:"LogFile"`
	CheckpointSeconds uint32 `toml:"CheckpointSeconds"`

	Engine    collateral.Config    `toml:"engine"`
	Assets    []AssetConfig        `toml:"assets"`
	Limits    map[string]RateLimit `toml:"limits"`
	Telemetry TelemetryConfig      `toml:"telemetry"`
}

// AssetConfig declares one accepted collateral asset with its manual feed.
type AssetConfig struct {
	Symbol        string `toml:"Symbol"`
	Address       string `toml:"Address"`
	FeedDecimals  uint8  `toml:"FeedDecimals"`
	InitialAnswer string `toml:"InitialAnswer"`
}

// RateLimit bounds request rates for one route class.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// TelemetryConfig wires the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
}

// Load reads the configuration from the given path, writing a commented
// default file when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8660"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./synthd-data"
	}
	if c.CheckpointSeconds == 0 {
		c.CheckpointSeconds = 30
	}
	if c.Limits == nil {
		c.Limits = map[string]RateLimit{}
	}
}

// Validate rejects configurations that cannot produce a working engine.
func (c *Config) Validate() error {
	if !common.IsHexAddress(strings.TrimSpace(c.CustodyAddress)) {
		return fmt.Errorf("invalid CustodyAddress %q", c.CustodyAddress)
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("at least one [[assets]] entry is required")
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for i, asset := range c.Assets {
		if strings.TrimSpace(asset.Symbol) == "" {
			return fmt.Errorf("assets[%d]: Symbol is required", i)
		}
		if !common.IsHexAddress(strings.TrimSpace(asset.Address)) {
			return fmt.Errorf("assets[%d]: invalid Address %q", i, asset.Address)
		}
		key := common.HexToAddress(asset.Address).Hex()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("assets[%d]: duplicate Address %s", i, key)
		}
		seen[key] = struct{}{}
		if asset.FeedDecimals > 18 {
			return fmt.Errorf("assets[%d]: FeedDecimals %d exceeds 18", i, asset.FeedDecimals)
		}
	}
	if _, err := c.Engine.RiskParameters(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if _, err := c.Engine.Quota.MintQuota(); err != nil {
		return fmt.Errorf("engine quota: %w", err)
	}
	return nil
}

// Custody returns the parsed custody address.
func (c *Config) Custody() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.CustodyAddress))
}

// CheckpointPath is the ledger checkpoint database location under DataDir.
func (c *Config) CheckpointPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// AuditPath is the audit trail database location under DataDir.
func (c *Config) AuditPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

const defaultConfigTOML = `ListenAddress = ":8660"
Environment = "dev"
DataDir = "./synthd-data"
CustodyAddress = "0x00000000000000000000000000000000000000ee"
CheckpointSeconds = 30

[engine]
LiquidationThresholdPct = 50
LiquidationBonusPct = 10

[telemetry]
Enabled = false

[limits.mutate]
RequestsPerMinute = 600
Burst = 20

[limits.query]
RequestsPerMinute = 6000
Burst = 100

[[assets]]
Symbol = "WETH"
Address = "0x00000000000000000000000000000000000000a0"
FeedDecimals = 8
InitialAnswer = "200000000000"
`

func createDefault(path string) (*Config, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfigTOML), 0o644); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}
	cfg := &Config{}
	if _, err := toml.Decode(defaultConfigTOML, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
