package collateral

import (
	"fmt"
	"math/big"
	"strings"

	nativecommon "synthdollar/native/common"
)

// Config captures the runtime configuration for the collateral module.
// Zero values fall back to the protocol defaults.
type Config struct {
	LiquidationThresholdPct uint64      `toml:"LiquidationThresholdPct"`
	LiquidationBonusPct     uint64      `toml:"LiquidationBonusPct"`
	MinHealthFactorWei      string      `toml:"MinHealthFactorWei"`
	Quota                   QuotaConfig `toml:"quota"`
}

// QuotaConfig throttles per-account debt issuance.
type QuotaConfig struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxAmountWei        string `toml:"MaxAmountWei"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// RiskParameters materialises the configured overrides on top of the protocol
// defaults.
func (c Config) RiskParameters() (RiskParameters, error) {
	params := RiskParameters{
		LiquidationThreshold: c.LiquidationThresholdPct,
		LiquidationBonus:     c.LiquidationBonusPct,
	}
	if raw := strings.TrimSpace(c.MinHealthFactorWei); raw != "" {
		value, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return RiskParameters{}, fmt.Errorf("%w: MinHealthFactorWei %q", ErrInvalidRiskParameters, raw)
		}
		params.MinHealthFactor = value
	}
	params = params.Normalized()
	if err := params.Validate(); err != nil {
		return RiskParameters{}, err
	}
	return params, nil
}

// MintQuota materialises the configured issuance throttle. An empty config
// yields a disabled quota.
func (c QuotaConfig) MintQuota() (nativecommon.MintQuota, error) {
	quota := nativecommon.MintQuota{
		MaxRequestsPerEpoch: c.MaxRequestsPerEpoch,
		EpochSeconds:        c.EpochSeconds,
	}
	if raw := strings.TrimSpace(c.MaxAmountWei); raw != "" {
		value, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nativecommon.MintQuota{}, fmt.Errorf("invalid MaxAmountWei %q", raw)
		}
		quota.MaxAmountPerEpoch = value
	}
	return quota, nil
}
