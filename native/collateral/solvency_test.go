package collateral

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"synthdollar/native/oracle"
)

var oneEther = mustBigInt("1000000000000000000")

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneEther)
}

// feedPrice renders a USD price into an 8-decimal oracle answer.
func feedPrice(usd int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(usd), big.NewInt(100_000_000))
}

func newTestCalculator(t *testing.T, price int64) (*Calculator, *oracle.ManualFeed) {
	t.Helper()
	feed := oracle.NewManualFeed(8)
	feed.Set(feedPrice(price))
	calc, err := NewCalculator([]common.Address{makeAddress(0xA0)}, []oracle.PriceFeed{feed}, DefaultRiskParameters())
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	return calc, feed
}

func TestUsdValueNormalizesFeedPrecision(t *testing.T) {
	calc, _ := newTestCalculator(t, 2000)

	value, err := calc.UsdValue(context.Background(), makeAddress(0xA0), ether(10))
	if err != nil {
		t.Fatalf("usd value: %v", err)
	}
	if value.Cmp(ether(20_000)) != 0 {
		t.Fatalf("unexpected usd value: %s", value)
	}
}

func TestTokenAmountFromUsdInverse(t *testing.T) {
	calc, _ := newTestCalculator(t, 2000)
	asset := makeAddress(0xA0)

	amount, err := calc.TokenAmountFromUsd(context.Background(), asset, ether(100))
	if err != nil {
		t.Fatalf("token amount: %v", err)
	}
	// $100 at $2000/token is 0.05 tokens.
	want := new(big.Int).Quo(oneEther, big.NewInt(20))
	if amount.Cmp(want) != 0 {
		t.Fatalf("unexpected amount: %s", amount)
	}
}

func TestConversionRoundTripBoundedByOneUnit(t *testing.T) {
	calc, _ := newTestCalculator(t, 1777)
	asset := makeAddress(0xA0)
	ctx := context.Background()

	for _, amount := range []*big.Int{ether(1), ether(13), big.NewInt(999_999_999_999_999_999), big.NewInt(3)} {
		value, err := calc.UsdValue(ctx, asset, amount)
		if err != nil {
			t.Fatalf("usd value: %v", err)
		}
		back, err := calc.TokenAmountFromUsd(ctx, asset, value)
		if err != nil {
			t.Fatalf("token amount: %v", err)
		}
		diff := new(big.Int).Sub(amount, back)
		if diff.Sign() < 0 || diff.Cmp(big.NewInt(1)) > 0 {
			t.Fatalf("round trip drifted by %s for amount %s", diff, amount)
		}
	}
}

func TestHealthFactorZeroDebtSentinel(t *testing.T) {
	params := DefaultRiskParameters()
	factor := params.HealthFactor(big.NewInt(0), ether(1))
	if factor.Cmp(MaxHealthFactor()) != 0 {
		t.Fatalf("expected max sentinel, got %s", factor)
	}
	factor = params.HealthFactor(nil, nil)
	if factor.Cmp(MaxHealthFactor()) != 0 {
		t.Fatalf("expected max sentinel for nil debt, got %s", factor)
	}
}

func TestHealthFactorBoundary(t *testing.T) {
	params := DefaultRiskParameters()

	// $20000 collateral at 50% threshold backs exactly $10000 of debt.
	factor := params.HealthFactor(ether(10_000), ether(20_000))
	if factor.Cmp(precision) != 0 {
		t.Fatalf("expected exactly 1.0, got %s", factor)
	}

	over := new(big.Int).Add(ether(10_000), big.NewInt(1))
	factor = params.HealthFactor(over, ether(20_000))
	if factor.Cmp(precision) >= 0 {
		t.Fatalf("expected factor below 1.0, got %s", factor)
	}
}

func TestAccountCollateralValueZeroBalances(t *testing.T) {
	calc, _ := newTestCalculator(t, 2000)
	ledger := NewCollateralLedger()

	value, err := calc.AccountCollateralValue(context.Background(), ledger, makeAddress(0x42))
	if err != nil {
		t.Fatalf("value query must not fail for empty accounts: %v", err)
	}
	if value.Sign() != 0 {
		t.Fatalf("expected zero value, got %s", value)
	}
}

func TestUsdValueUnsupportedAsset(t *testing.T) {
	calc, _ := newTestCalculator(t, 2000)
	if _, err := calc.UsdValue(context.Background(), makeAddress(0xBB), ether(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
}

func TestCalculatorConstructionValidation(t *testing.T) {
	feed := oracle.NewManualFeed(8)

	if _, err := NewCalculator([]common.Address{makeAddress(1), makeAddress(2)}, []oracle.PriceFeed{feed}, DefaultRiskParameters()); !errors.Is(err, ErrAssetFeedLengthMismatch) {
		t.Fatalf("expected ErrAssetFeedLengthMismatch, got %v", err)
	}
	if _, err := NewCalculator(nil, nil, DefaultRiskParameters()); !errors.Is(err, ErrNoCollateralAssets) {
		t.Fatalf("expected ErrNoCollateralAssets, got %v", err)
	}
	if _, err := NewCalculator([]common.Address{{}}, []oracle.PriceFeed{feed}, DefaultRiskParameters()); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if _, err := NewCalculator([]common.Address{makeAddress(1)}, []oracle.PriceFeed{nil}, DefaultRiskParameters()); !errors.Is(err, ErrNilPriceFeed) {
		t.Fatalf("expected ErrNilPriceFeed, got %v", err)
	}
	if _, err := NewCalculator([]common.Address{makeAddress(1), makeAddress(1)}, []oracle.PriceFeed{feed, feed}, DefaultRiskParameters()); !errors.Is(err, ErrDuplicateAsset) {
		t.Fatalf("expected ErrDuplicateAsset, got %v", err)
	}
	if _, err := NewCalculator([]common.Address{makeAddress(1)}, []oracle.PriceFeed{oracle.NewManualFeed(19)}, DefaultRiskParameters()); !errors.Is(err, ErrFeedPrecision) {
		t.Fatalf("expected ErrFeedPrecision, got %v", err)
	}
}
