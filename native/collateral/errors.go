package collateral

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidAmount       = errors.New("collateral engine: amount must be positive")
	ErrUnsupportedAsset    = errors.New("collateral engine: asset not accepted as collateral")
	ErrInsufficientBalance = errors.New("collateral engine: insufficient balance")
	ErrOverflow            = errors.New("collateral engine: balance overflow")

	ErrTransferFailed = errors.New("collateral engine: token transfer failed")
	ErrMintFailed     = errors.New("collateral engine: debt token mint failed")
	ErrBurnFailed     = errors.New("collateral engine: debt token burn failed")

	ErrBreaksHealthFactor      = errors.New("collateral engine: health factor below minimum")
	ErrHealthFactorOk          = errors.New("collateral engine: account health factor not below minimum")
	ErrHealthFactorNotImproved = errors.New("collateral engine: liquidation did not improve health factor")

	ErrReentrantCall = errors.New("collateral engine: reentrant call rejected")
	ErrOracle        = errors.New("collateral engine: price feed query failed")

	ErrAssetFeedLengthMismatch  = errors.New("collateral engine: token addresses and price feed addresses must be same length")
	ErrAssetTokenLengthMismatch = errors.New("collateral engine: asset and token lists must be same length")
	ErrNoCollateralAssets       = errors.New("collateral engine: at least one collateral asset required")
	ErrZeroAddress              = errors.New("collateral engine: zero address not allowed")
	ErrNilPriceFeed             = errors.New("collateral engine: price feed not configured")
	ErrNilToken                 = errors.New("collateral engine: collateral token not configured")
	ErrNilDebtToken             = errors.New("collateral engine: debt token not configured")
	ErrDuplicateAsset           = errors.New("collateral engine: duplicate collateral asset")
	ErrFeedPrecision            = errors.New("collateral engine: unsupported price feed precision")
	ErrInvalidRiskParameters    = errors.New("collateral engine: invalid risk parameters")
)

// BreaksHealthFactorError carries the computed health factor so callers can
// decide whether to retry with different parameters.
type BreaksHealthFactorError struct {
	Factor *big.Int
}

// Error implements the error interface.
func (e *BreaksHealthFactorError) Error() string {
	return fmt.Sprintf("collateral engine: health factor %s below minimum", e.Factor)
}

// Unwrap lets errors.Is match against ErrBreaksHealthFactor.
func (e *BreaksHealthFactorError) Unwrap() error {
	return ErrBreaksHealthFactor
}

func breaksHealthFactor(factor *big.Int) error {
	carried := big.NewInt(0)
	if factor != nil {
		carried = new(big.Int).Set(factor)
	}
	return &BreaksHealthFactorError{Factor: carried}
}
