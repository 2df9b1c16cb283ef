package collateral

import "math/big"

const moduleName = "collateral"

// LiquidationPrecision is the denominator shared by the liquidation threshold
// and bonus percentages.
const LiquidationPrecision = 100

// MaxHealthFactor is the sentinel returned for accounts with zero debt. It is
// the maximum representable ledger value, so no real position can exceed it and
// division by zero is never reached.
func MaxHealthFactor() *big.Int {
	return new(big.Int).Set(maxBalance)
}

// RiskParameters groups the protocol safety constants governing solvency
// checks and liquidation incentives.
type RiskParameters struct {
	// LiquidationThreshold is the percentage of raw collateral USD value
	// counted toward solvency. 50 encodes a 200% over-collateralization
	// requirement.
	LiquidationThreshold uint64
	// LiquidationBonus is the extra collateral percentage awarded to a
	// liquidator on top of the USD-equivalent of the debt repaid.
	LiquidationBonus uint64
	// MinHealthFactor is the solvency floor in 1e18 fixed point. Accounts at
	// or above the floor are healthy; strictly below is liquidatable.
	MinHealthFactor *big.Int
}

// DefaultRiskParameters returns the protocol defaults: 200% collateralization
// target, 10% liquidation bonus, health floor of 1.0.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		LiquidationThreshold: 50,
		LiquidationBonus:     10,
		MinHealthFactor:      new(big.Int).Set(precision),
	}
}

// Normalized fills zero-value fields with the protocol defaults.
func (p RiskParameters) Normalized() RiskParameters {
	defaults := DefaultRiskParameters()
	out := p
	if out.LiquidationThreshold == 0 {
		out.LiquidationThreshold = defaults.LiquidationThreshold
	}
	if out.LiquidationBonus == 0 {
		out.LiquidationBonus = defaults.LiquidationBonus
	}
	if out.MinHealthFactor == nil || out.MinHealthFactor.Sign() <= 0 {
		out.MinHealthFactor = defaults.MinHealthFactor
	} else {
		out.MinHealthFactor = new(big.Int).Set(p.MinHealthFactor)
	}
	return out
}

// Validate rejects parameter combinations that cannot keep the protocol
// solvent.
func (p RiskParameters) Validate() error {
	if p.LiquidationThreshold == 0 || p.LiquidationThreshold > LiquidationPrecision {
		return ErrInvalidRiskParameters
	}
	if p.LiquidationBonus >= LiquidationPrecision {
		return ErrInvalidRiskParameters
	}
	if p.MinHealthFactor == nil || p.MinHealthFactor.Sign() <= 0 {
		return ErrInvalidRiskParameters
	}
	return nil
}

// HealthFactor derives the solvency ratio for a hypothetical (debt,
// collateralValueUsd) pair in 1e18 fixed point. It is a pure function usable
// for live checks and pre-flight simulations alike.
func (p RiskParameters) HealthFactor(debt, collateralValueUsd *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return MaxHealthFactor()
	}
	if collateralValueUsd == nil {
		return big.NewInt(0)
	}
	adjusted := mulDiv(collateralValueUsd, new(big.Int).SetUint64(p.LiquidationThreshold), big.NewInt(LiquidationPrecision))
	return mulDiv(adjusted, precision, debt)
}
