package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	TypeCollateralDeposited = "collateral.deposited"
	TypeCollateralRedeemed  = "collateral.redeemed"
	TypeDebtMinted          = "debt.minted"
	TypeDebtBurned          = "debt.burned"
	TypePositionLiquidated  = "collateral.liquidated"
)

// CollateralDeposited records collateral entering engine custody.
type CollateralDeposited struct {
	Account common.Address
	Asset   common.Address
	Amount  *big.Int
}

// EventType implements the Event interface.
func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

// CollateralRedeemed records collateral leaving engine custody. From and To
// differ when a liquidation redirects a victim's collateral to the liquidator;
// indexers rely on the distinction to separate voluntary redemptions from
// seizures.
type CollateralRedeemed struct {
	From   common.Address
	To     common.Address
	Asset  common.Address
	Amount *big.Int
}

// EventType implements the Event interface.
func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

// DebtMinted records new debt issued against an account.
type DebtMinted struct {
	Account common.Address
	Amount  *big.Int
}

// EventType implements the Event interface.
func (DebtMinted) EventType() string { return TypeDebtMinted }

// DebtBurned records debt repaid. Payer differs from Account when a liquidator
// covers a victim's debt.
type DebtBurned struct {
	Account common.Address
	Payer   common.Address
	Amount  *big.Int
}

// EventType implements the Event interface.
func (DebtBurned) EventType() string { return TypeDebtBurned }

// PositionLiquidated summarises a completed liquidation.
type PositionLiquidated struct {
	Liquidator       common.Address
	Account          common.Address
	Asset            common.Address
	DebtCovered      *big.Int
	CollateralSeized *big.Int
}

// EventType implements the Event interface.
func (PositionLiquidated) EventType() string { return TypePositionLiquidated }
