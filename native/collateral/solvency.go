package collateral

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthdollar/native/oracle"
)

// Calculator derives USD values and health factors from ledger state and
// injected price feeds. It is stateless given a ledger snapshot; the oracle
// lookup is the only external dependency and is fixed at construction so the
// calculator stays deterministic under test feeds.
type Calculator struct {
	assets []common.Address
	feeds  map[common.Address]oracle.PriceFeed
	// adjust normalizes each feed's native precision to the 1e18 scale. The
	// factor is fixed per asset at construction, never inferred per round.
	adjust map[common.Address]*big.Int
	params RiskParameters
}

// NewCalculator wires one price feed per accepted collateral asset. The two
// lists must align index for index.
func NewCalculator(assets []common.Address, feeds []oracle.PriceFeed, params RiskParameters) (*Calculator, error) {
	if len(assets) != len(feeds) {
		return nil, ErrAssetFeedLengthMismatch
	}
	if len(assets) == 0 {
		return nil, ErrNoCollateralAssets
	}
	params = params.Normalized()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	calc := &Calculator{
		assets: make([]common.Address, 0, len(assets)),
		feeds:  make(map[common.Address]oracle.PriceFeed, len(assets)),
		adjust: make(map[common.Address]*big.Int, len(assets)),
		params: params,
	}
	for i, asset := range assets {
		if asset == (common.Address{}) {
			return nil, ErrZeroAddress
		}
		feed := feeds[i]
		if feed == nil {
			return nil, ErrNilPriceFeed
		}
		if _, exists := calc.feeds[asset]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, asset.Hex())
		}
		decimals := feed.Decimals()
		if decimals > 18 {
			return nil, fmt.Errorf("%w: feed for %s reports %d decimals", ErrFeedPrecision, asset.Hex(), decimals)
		}
		calc.assets = append(calc.assets, asset)
		calc.feeds[asset] = feed
		calc.adjust[asset] = pow10(18 - decimals)
	}
	return calc, nil
}

// Assets returns the accepted collateral assets in configuration order.
func (c *Calculator) Assets() []common.Address {
	return append([]common.Address{}, c.assets...)
}

// Supports reports whether the asset is accepted collateral.
func (c *Calculator) Supports(asset common.Address) bool {
	_, ok := c.feeds[asset]
	return ok
}

// Params returns the risk parameters the calculator was built with.
func (c *Calculator) Params() RiskParameters {
	return c.params
}

// price18 resolves the asset's current USD price normalized to 1e18 fixed
// point.
func (c *Calculator) price18(ctx context.Context, asset common.Address) (*big.Int, error) {
	feed, ok := c.feeds[asset]
	if !ok {
		return nil, ErrUnsupportedAsset
	}
	data, err := feed.LatestRoundData(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracle, err)
	}
	if data.Answer == nil || data.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive answer", ErrOracle)
	}
	return new(big.Int).Mul(data.Answer, c.adjust[asset]), nil
}

// UsdValue converts an asset amount to its USD value in 1e18 fixed point.
func (c *Calculator) UsdValue(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	price, err := c.price18(ctx, asset)
	if err != nil {
		return nil, err
	}
	return mulDiv(price, amount, precision), nil
}

// TokenAmountFromUsd is the inverse of UsdValue: the asset quantity worth the
// supplied USD value at the current price, rounded down.
func (c *Calculator) TokenAmountFromUsd(ctx context.Context, asset common.Address, usd *big.Int) (*big.Int, error) {
	if usd == nil || usd.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	price, err := c.price18(ctx, asset)
	if err != nil {
		return nil, err
	}
	return mulDiv(usd, precision, price), nil
}

// AccountCollateralValue sums the USD value of every configured asset the user
// has deposited. Zero-balance assets contribute zero and never error.
func (c *Calculator) AccountCollateralValue(ctx context.Context, ledger *CollateralLedger, user common.Address) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range c.assets {
		balance := ledger.Balance(user, asset)
		if balance.Sign() == 0 {
			continue
		}
		value, err := c.UsdValue(ctx, asset, balance)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// AccountHealthFactor combines ledger state and oracle prices into the user's
// current solvency ratio.
func (c *Calculator) AccountHealthFactor(ctx context.Context, collateral *CollateralLedger, debt *DebtLedger, user common.Address) (*big.Int, error) {
	owed := debt.Balance(user)
	if owed.Sign() == 0 {
		return MaxHealthFactor(), nil
	}
	value, err := c.AccountCollateralValue(ctx, collateral, user)
	if err != nil {
		return nil, err
	}
	return c.params.HealthFactor(owed, value), nil
}
