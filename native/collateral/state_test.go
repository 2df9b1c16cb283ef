package collateral

import (
	"context"
	"math/big"
	"reflect"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(0x01)
	bob := makeAddress(0x02)
	env.fund(alice, ether(10))
	env.fund(bob, ether(4))
	ctx := context.Background()

	if err := env.engine.DepositAndMint(ctx, alice, env.asset, ether(10), ether(5_000)); err != nil {
		t.Fatalf("alice position: %v", err)
	}
	if err := env.engine.DepositCollateral(ctx, bob, env.asset, ether(4)); err != nil {
		t.Fatalf("bob deposit: %v", err)
	}

	state := env.engine.ExportState()
	if len(state.Collateral) != 2 || len(state.Debt) != 1 {
		t.Fatalf("unexpected snapshot shape: %d collateral rows, %d debt rows", len(state.Collateral), len(state.Debt))
	}

	restored := newTestEnv(t)
	if err := restored.engine.ImportState(state); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := restored.engine.CollateralBalance(alice, env.asset); got.Cmp(ether(10)) != 0 {
		t.Fatalf("alice collateral lost in round trip: %s", got)
	}
	if got := restored.engine.DebtOf(alice); got.Cmp(ether(5_000)) != 0 {
		t.Fatalf("alice debt lost in round trip: %s", got)
	}
	if got := restored.engine.CollateralBalance(bob, env.asset); got.Cmp(ether(4)) != 0 {
		t.Fatalf("bob collateral lost in round trip: %s", got)
	}
	if !reflect.DeepEqual(restored.engine.ExportState(), state) {
		t.Fatal("re-exported snapshot differs from imported one")
	}
}

func TestExportStateElidesZeroRows(t *testing.T) {
	env := newTestEnv(t)
	user := makeAddress(0x01)
	env.fund(user, ether(2))
	ctx := context.Background()

	if err := env.engine.DepositCollateral(ctx, user, env.asset, ether(2)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.RedeemCollateral(ctx, user, env.asset, ether(2)); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	state := env.engine.ExportState()
	if len(state.Collateral) != 0 || len(state.Debt) != 0 {
		t.Fatalf("zero balances should not be exported: %+v", state)
	}
}

func TestExportStateIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, b := range []byte{0x09, 0x03, 0x07, 0x01} {
		user := makeAddress(b)
		env.fund(user, ether(1))
		if err := env.engine.DepositCollateral(ctx, user, env.asset, ether(1)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}

	first := env.engine.ExportState()
	second := env.engine.ExportState()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated exports differ")
	}
	for i := 1; i < len(first.Collateral); i++ {
		prev, cur := first.Collateral[i-1], first.Collateral[i]
		if string(prev.User[:]) > string(cur.User[:]) {
			t.Fatalf("collateral rows not sorted at index %d", i)
		}
	}
}

func TestImportStateRejectsCorruptRows(t *testing.T) {
	env := newTestEnv(t)
	state := &LedgerState{
		Debt: []DebtEntry{{User: makeAddress(0x01), Amount: big.NewInt(-5)}},
	}
	if err := env.engine.ImportState(state); err == nil {
		t.Fatal("negative debt row must be rejected")
	}
}
