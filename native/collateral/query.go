package collateral

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountInformation is the (debt, collateral value) pair backing health
// factor computations, exposed for callers and indexers.
type AccountInformation struct {
	DebtUsd            *big.Int
	CollateralValueUsd *big.Int
}

// ProtocolSolvency is the global invariant snapshot: total collateral value in
// custody versus outstanding debt token supply.
type ProtocolSolvency struct {
	CollateralValueUsd *big.Int
	DebtTokenSupply    *big.Int
}

// HealthFactor returns the user's current solvency ratio. Accounts with zero
// debt report the maximum sentinel and never error.
func (e *Engine) HealthFactor(ctx context.Context, user common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calc.AccountHealthFactor(ctx, e.collateral, e.debt, user)
}

// AccountInfo returns the user's outstanding debt and total collateral value.
// Valid for any account, including ones with no activity.
func (e *Engine) AccountInfo(ctx context.Context, user common.Address) (AccountInformation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	value, err := e.calc.AccountCollateralValue(ctx, e.collateral, user)
	if err != nil {
		return AccountInformation{}, err
	}
	return AccountInformation{DebtUsd: e.debt.Balance(user), CollateralValueUsd: value}, nil
}

// AccountCollateralValue returns the USD value of everything the user has
// deposited.
func (e *Engine) AccountCollateralValue(ctx context.Context, user common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calc.AccountCollateralValue(ctx, e.collateral, user)
}

// CollateralBalance returns the user's deposited amount of a single asset.
func (e *Engine) CollateralBalance(user, asset common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collateral.Balance(user, asset)
}

// DebtOf returns the user's outstanding minted debt.
func (e *Engine) DebtOf(user common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.debt.Balance(user)
}

// Assets lists the accepted collateral assets in configuration order.
func (e *Engine) Assets() []common.Address {
	return e.calc.Assets()
}

// Params returns a copy of the protocol risk parameters.
func (e *Engine) Params() RiskParameters {
	out := e.params
	out.MinHealthFactor = new(big.Int).Set(e.params.MinHealthFactor)
	return out
}

// UsdValue converts an asset amount to USD at the current oracle price.
func (e *Engine) UsdValue(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	return e.calc.UsdValue(ctx, asset, amount)
}

// TokenAmountFromUsd converts a USD value back to an asset amount at the
// current oracle price, rounded down.
func (e *Engine) TokenAmountFromUsd(ctx context.Context, asset common.Address, usd *big.Int) (*big.Int, error) {
	return e.calc.TokenAmountFromUsd(ctx, asset, usd)
}

// Solvency reports the global collateral value held in custody against the
// debt token supply. The protocol invariant is CollateralValueUsd >=
// DebtTokenSupply at every observable moment.
func (e *Engine) Solvency(ctx context.Context) (ProtocolSolvency, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := big.NewInt(0)
	for _, asset := range e.calc.Assets() {
		deposited := e.collateral.TotalDeposited(asset)
		if deposited.Sign() == 0 {
			continue
		}
		value, err := e.calc.UsdValue(ctx, asset, deposited)
		if err != nil {
			return ProtocolSolvency{}, err
		}
		total.Add(total, value)
	}
	return ProtocolSolvency{
		CollateralValueUsd: total,
		DebtTokenSupply:    e.debtToken.TotalSupply(),
	}, nil
}
