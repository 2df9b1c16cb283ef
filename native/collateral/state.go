package collateral

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralEntry is one (user, asset) ledger row in an exported snapshot.
type CollateralEntry struct {
	User   common.Address
	Asset  common.Address
	Amount *big.Int
}

// DebtEntry is one user debt row in an exported snapshot.
type DebtEntry struct {
	User   common.Address
	Amount *big.Int
}

// LedgerState is a portable snapshot of both ledgers used for persistence
// checkpoints. Entries are sorted so the encoding is deterministic.
type LedgerState struct {
	Collateral []CollateralEntry
	Debt       []DebtEntry
}

// ExportState captures the current ledger state. Zero-amount rows are elided;
// a zero balance is a valid terminal state that round-trips as an absent
// entry.
func (e *Engine) ExportState() *LedgerState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := &LedgerState{}
	for user, assets := range e.collateral.balances {
		for asset, amount := range assets {
			if amount.Sign() == 0 {
				continue
			}
			state.Collateral = append(state.Collateral, CollateralEntry{
				User:   user,
				Asset:  asset,
				Amount: new(big.Int).Set(amount),
			})
		}
	}
	for user, amount := range e.debt.debts {
		if amount.Sign() == 0 {
			continue
		}
		state.Debt = append(state.Debt, DebtEntry{User: user, Amount: new(big.Int).Set(amount)})
	}

	sort.Slice(state.Collateral, func(i, j int) bool {
		if cmp := bytes.Compare(state.Collateral[i].User[:], state.Collateral[j].User[:]); cmp != 0 {
			return cmp < 0
		}
		return bytes.Compare(state.Collateral[i].Asset[:], state.Collateral[j].Asset[:]) < 0
	})
	sort.Slice(state.Debt, func(i, j int) bool {
		return bytes.Compare(state.Debt[i].User[:], state.Debt[j].User[:]) < 0
	})
	return state
}

// ImportState replaces the ledger contents with a previously exported
// snapshot. Intended for daemon startup before the engine serves traffic.
func (e *Engine) ImportState(state *LedgerState) error {
	if state == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	collateral := NewCollateralLedger()
	debt := NewDebtLedger()
	for _, entry := range state.Collateral {
		if entry.Amount == nil || entry.Amount.Sign() == 0 {
			continue
		}
		if err := collateral.Increase(entry.User, entry.Asset, entry.Amount); err != nil {
			return err
		}
	}
	for _, entry := range state.Debt {
		if entry.Amount == nil || entry.Amount.Sign() == 0 {
			continue
		}
		if err := debt.Increase(entry.User, entry.Amount); err != nil {
			return err
		}
	}
	e.collateral = collateral
	e.debt = debt
	return nil
}
