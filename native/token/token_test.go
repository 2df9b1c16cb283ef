package token

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestTransferMovesFunds(t *testing.T) {
	tok := NewToken("WETH")
	alice := addr(0x01)
	bob := addr(0x02)
	tok.Credit(alice, big.NewInt(100))

	if err := tok.Transfer(context.Background(), alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := tok.BalanceOf(alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("unexpected sender balance: %s", got)
	}
	if got := tok.BalanceOf(bob); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected recipient balance: %s", got)
	}
}

func TestTransferInsufficientFundsLeavesStateUntouched(t *testing.T) {
	tok := NewToken("WETH")
	alice := addr(0x01)
	bob := addr(0x02)
	tok.Credit(alice, big.NewInt(10))

	err := tok.Transfer(context.Background(), alice, bob, big.NewInt(11))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := tok.BalanceOf(alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("sender balance changed on failed transfer: %s", got)
	}
	if got := tok.BalanceOf(bob); got.Sign() != 0 {
		t.Fatalf("recipient balance changed on failed transfer: %s", got)
	}
}

func TestTransferRejectsNonPositiveAmounts(t *testing.T) {
	tok := NewToken("WETH")
	if err := tok.Transfer(context.Background(), addr(1), addr(2), big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if err := tok.Transfer(context.Background(), addr(1), addr(2), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
}

func TestSynthDollarMintBurnTracksSupply(t *testing.T) {
	sdx := NewSynthDollar()
	holder := addr(0x05)

	if err := sdx.Mint(context.Background(), holder, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := sdx.TotalSupply(); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected supply after mint: %s", got)
	}
	if got := sdx.BalanceOf(holder); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected holder balance: %s", got)
	}

	if err := sdx.Burn(context.Background(), holder, big.NewInt(200)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := sdx.TotalSupply(); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected supply after burn: %s", got)
	}

	if err := sdx.Burn(context.Background(), holder, big.NewInt(301)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := sdx.TotalSupply(); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("supply changed on failed burn: %s", got)
	}
}
