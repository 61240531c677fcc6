package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level daemon configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	Environment   string `toml:"Environment"`
	DataDir       string `toml:"DataDir"`

	Token       TokenConfig       `toml:"Token"`
	Debt        DebtConfig        `toml:"Debt"`
	Liquidation LiquidationConfig `toml:"Liquidation"`
	Assets      []AssetConfig     `toml:"Assets"`
}

type TokenConfig struct {
	// SupplyCap is a decimal string in 18-decimal base units. Empty means
	// uncapped.
	SupplyCap string `toml:"SupplyCap"`
}

type DebtConfig struct {
	FixedRateBps    uint64          `toml:"FixedRateBps"`
	MinDebt         string          `toml:"MinDebt"`
	ReserveShareBps uint64          `toml:"ReserveShareBps"`
	RateModel       RateModelConfig `toml:"RateModel"`
}

type RateModelConfig struct {
	Enabled   bool   `toml:"Enabled"`
	BaseBps   uint64 `toml:"BaseBps"`
	Slope1Bps uint64 `toml:"Slope1Bps"`
	Slope2Bps uint64 `toml:"Slope2Bps"`
	KinkBps   uint64 `toml:"KinkBps"`
}

type LiquidationConfig struct {
	CloseFactorBps   uint64 `toml:"CloseFactorBps"`
	FullThresholdBps uint64 `toml:"FullThresholdBps"`
}

// AssetConfig describes one collateral asset and its price feed policy.
type AssetConfig struct {
	Symbol                  string `toml:"Symbol"`
	Decimals                uint8  `toml:"Decimals"`
	BorrowFactorBps         uint64 `toml:"BorrowFactorBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationPenaltyBps   uint64 `toml:"LiquidationPenaltyBps"`
	MaxPriceAgeSeconds      uint64 `toml:"MaxPriceAgeSeconds"`
	MaxDeviationBps         uint64 `toml:"MaxDeviationBps"`
	// SeedPrice is the initial manual feed observation, a decimal string in
	// whole dollars per unit.
	SeedPrice string `toml:"SeedPrice"`
}

// Load reads the configuration from path and applies defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalise()
	return cfg, nil
}

// Normalise fills unset fields with defaults and trims user input.
func (c *Config) Normalise() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8645"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./riskdata"
	}
	if c.Debt.ReserveShareBps == 0 {
		c.Debt.ReserveShareBps = 1_000
	}
	if strings.TrimSpace(c.Debt.MinDebt) == "" {
		c.Debt.MinDebt = "0"
	}
	if c.Liquidation.CloseFactorBps == 0 {
		c.Liquidation.CloseFactorBps = 5_000
	}
	if c.Liquidation.FullThresholdBps == 0 {
		c.Liquidation.FullThresholdBps = 5_000
	}
	for i := range c.Assets {
		asset := &c.Assets[i]
		asset.Symbol = strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if asset.MaxPriceAgeSeconds == 0 {
			asset.MaxPriceAgeSeconds = 300
		}
		if asset.MaxDeviationBps == 0 {
			asset.MaxDeviationBps = 500
		}
	}
}

// Validate rejects configurations the engines would refuse at wiring time.
func (c *Config) Validate() error {
	if c.Debt.ReserveShareBps > 10_000 {
		return fmt.Errorf("config: reserve share %d exceeds 10000 bps", c.Debt.ReserveShareBps)
	}
	if _, err := c.MinDebt(); err != nil {
		return err
	}
	if _, err := c.SupplyCap(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for _, asset := range c.Assets {
		if asset.Symbol == "" {
			return fmt.Errorf("config: asset with empty symbol")
		}
		if _, dup := seen[asset.Symbol]; dup {
			return fmt.Errorf("config: duplicate asset %s", asset.Symbol)
		}
		seen[asset.Symbol] = struct{}{}
		if asset.LiquidationThresholdBps < asset.BorrowFactorBps {
			return fmt.Errorf("config: asset %s liquidation threshold below borrow factor", asset.Symbol)
		}
	}
	return nil
}

// MinDebt parses the configured minimum debt in base units.
func (c *Config) MinDebt() (*big.Int, error) {
	return parseAmount("MinDebt", c.Debt.MinDebt)
}

// SupplyCap parses the configured token supply cap. Nil means uncapped.
func (c *Config) SupplyCap() (*big.Int, error) {
	if strings.TrimSpace(c.Token.SupplyCap) == "" {
		return nil, nil
	}
	return parseAmount("SupplyCap", c.Token.SupplyCap)
}

func parseAmount(field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid %s %q", field, raw)
	}
	return amount, nil
}
