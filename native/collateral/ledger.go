package collateral

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralLedger owns the (user, asset) -> deposited amount bookkeeping. It
// performs no validation beyond balance arithmetic and has no side effects; the
// engine is its only writer.
type CollateralLedger struct {
	balances map[common.Address]map[common.Address]*big.Int
}

// NewCollateralLedger constructs an empty ledger.
func NewCollateralLedger() *CollateralLedger {
	return &CollateralLedger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// Increase credits the user's deposited balance for the asset. Entries are
// created implicitly on first write.
func (l *CollateralLedger) Increase(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	assets, ok := l.balances[user]
	if !ok {
		assets = make(map[common.Address]*big.Int)
		l.balances[user] = assets
	}
	current, ok := assets[asset]
	if !ok {
		current = big.NewInt(0)
	}
	next := new(big.Int).Add(current, amount)
	if next.Cmp(maxBalance) > 0 {
		return ErrOverflow
	}
	assets[asset] = next
	return nil
}

// Decrease debits the user's deposited balance for the asset. Draining past
// zero fails without clamping.
func (l *CollateralLedger) Decrease(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current := l.Balance(user, asset)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[user][asset] = new(big.Int).Sub(current, amount)
	return nil
}

// Balance returns a copy of the deposited amount; zero for untouched entries.
func (l *CollateralLedger) Balance(user, asset common.Address) *big.Int {
	assets, ok := l.balances[user]
	if !ok {
		return big.NewInt(0)
	}
	current, ok := assets[asset]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(current)
}

// TotalDeposited sums the deposited amount of the asset across all users.
func (l *CollateralLedger) TotalDeposited(asset common.Address) *big.Int {
	total := big.NewInt(0)
	for _, assets := range l.balances {
		if amount, ok := assets[asset]; ok {
			total.Add(total, amount)
		}
	}
	return total
}

// CollateralSnapshot is a deep copy of the ledger state used for
// whole-operation rollback.
type CollateralSnapshot map[common.Address]map[common.Address]*big.Int

// Snapshot captures the current ledger state.
func (l *CollateralLedger) Snapshot() CollateralSnapshot {
	snap := make(CollateralSnapshot, len(l.balances))
	for user, assets := range l.balances {
		entry := make(map[common.Address]*big.Int, len(assets))
		for asset, amount := range assets {
			entry[asset] = new(big.Int).Set(amount)
		}
		snap[user] = entry
	}
	return snap
}

// Restore replaces the ledger state with a previously captured snapshot.
func (l *CollateralLedger) Restore(snap CollateralSnapshot) {
	balances := make(map[common.Address]map[common.Address]*big.Int, len(snap))
	for user, assets := range snap {
		entry := make(map[common.Address]*big.Int, len(assets))
		for asset, amount := range assets {
			entry[asset] = new(big.Int).Set(amount)
		}
		balances[user] = entry
	}
	l.balances = balances
}

// DebtLedger owns the user -> minted debt bookkeeping. Debt only grows via
// mint and only shrinks via burn or liquidation-covered burn.
type DebtLedger struct {
	debts map[common.Address]*big.Int
}

// NewDebtLedger constructs an empty ledger.
func NewDebtLedger() *DebtLedger {
	return &DebtLedger{debts: make(map[common.Address]*big.Int)}
}

// Increase credits the user's outstanding debt.
func (l *DebtLedger) Increase(user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current, ok := l.debts[user]
	if !ok {
		current = big.NewInt(0)
	}
	next := new(big.Int).Add(current, amount)
	if next.Cmp(maxBalance) > 0 {
		return ErrOverflow
	}
	l.debts[user] = next
	return nil
}

// Decrease debits the user's outstanding debt, failing on underflow.
func (l *DebtLedger) Decrease(user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current := l.Balance(user)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.debts[user] = new(big.Int).Sub(current, amount)
	return nil
}

// Balance returns a copy of the user's outstanding debt; zero when untouched.
func (l *DebtLedger) Balance(user common.Address) *big.Int {
	current, ok := l.debts[user]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(current)
}

// TotalDebt sums outstanding debt across all users.
func (l *DebtLedger) TotalDebt() *big.Int {
	total := big.NewInt(0)
	for _, amount := range l.debts {
		total.Add(total, amount)
	}
	return total
}

// DebtSnapshot is a deep copy of the debt ledger used for rollback.
type DebtSnapshot map[common.Address]*big.Int

// Snapshot captures the current ledger state.
func (l *DebtLedger) Snapshot() DebtSnapshot {
	snap := make(DebtSnapshot, len(l.debts))
	for user, amount := range l.debts {
		snap[user] = new(big.Int).Set(amount)
	}
	return snap
}

// Restore replaces the ledger state with a previously captured snapshot.
func (l *DebtLedger) Restore(snap DebtSnapshot) {
	debts := make(map[common.Address]*big.Int, len(snap))
	for user, amount := range snap {
		debts[user] = new(big.Int).Set(amount)
	}
	l.debts = debts
}
