package collateral

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"synthdollar/core/events"
	nativecommon "synthdollar/native/common"
	"synthdollar/native/oracle"
	"synthdollar/native/token"
)

type stubPauseView struct {
	paused map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool { return s.paused[module] }

func TestPauseGuardBlocksMutations(t *testing.T) {
	env := newTestEnv(t, WithPauses(stubPauseView{paused: map[string]bool{moduleName: true}}))
	user := makeAddress(0x01)
	env.fund(user, ether(10))
	ctx := context.Background()

	if err := env.engine.DepositCollateral(ctx, user, env.asset, ether(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused for deposit, got %v", err)
	}
	if err := env.engine.MintDebt(ctx, user, ether(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused for mint, got %v", err)
	}
	if err := env.engine.Liquidate(ctx, user, makeAddress(0x02), env.asset, ether(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused for liquidate, got %v", err)
	}

	// Read paths stay available while the module is halted.
	if _, err := env.engine.HealthFactor(ctx, user); err != nil {
		t.Fatalf("health factor while paused: %v", err)
	}
	if _, err := env.engine.Solvency(ctx); err != nil {
		t.Fatalf("solvency while paused: %v", err)
	}
}

// reentrantToken calls back into the engine from inside Transfer, imitating a
// malicious asset that tries to observe intermediate ledger state.
type reentrantToken struct {
	*token.Token
	engine *Engine
	asset  common.Address
	seen   error
	fired  bool
}

func (r *reentrantToken) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if r.engine != nil && !r.fired {
		r.fired = true
		r.seen = r.engine.RedeemCollateral(ctx, from, r.asset, amount)
	}
	return r.Token.Transfer(ctx, from, to, amount)
}

func TestReentrantTokenCallbackRefused(t *testing.T) {
	asset := makeAddress(0xA0)
	custody := makeAddress(0xEE)
	feed := oracle.NewManualFeed(8)
	feed.Set(feedPrice(2000))
	evil := &reentrantToken{Token: token.NewToken("WETH"), asset: asset}
	sdx := token.NewSynthDollar()

	engine, err := NewEngine(custody, []common.Address{asset}, []oracle.PriceFeed{feed}, []token.Fungible{evil}, sdx)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	evil.engine = engine

	user := makeAddress(0x01)
	evil.Credit(user, ether(1))

	if err := engine.DepositCollateral(context.Background(), user, asset, ether(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !evil.fired {
		t.Fatal("callback never fired")
	}
	if !errors.Is(evil.seen, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall from reentrant callback, got %v", evil.seen)
	}
	if got := engine.CollateralBalance(user, asset); got.Cmp(ether(1)) != 0 {
		t.Fatalf("reentry corrupted the ledger: %s", got)
	}
}

type recordingEmitter struct {
	emitted []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.emitted = append(r.emitted, evt) }

func (r *recordingEmitter) types() []string {
	out := make([]string, len(r.emitted))
	for i, evt := range r.emitted {
		out[i] = evt.EventType()
	}
	return out
}

func TestEventsEmittedOnlyAfterCommit(t *testing.T) {
	sink := &recordingEmitter{}
	env := newTestEnv(t, WithEmitter(sink))
	user := makeAddress(0x01)
	env.fund(user, ether(10))
	ctx := context.Background()

	// A failed operation must leave no trace in the event stream.
	if err := env.engine.MintDebt(ctx, user, ether(1)); !errors.Is(err, ErrBreaksHealthFactor) {
		t.Fatalf("expected ErrBreaksHealthFactor, got %v", err)
	}
	if len(sink.emitted) != 0 {
		t.Fatalf("events emitted for aborted operation: %v", sink.types())
	}

	if err := env.engine.DepositAndMint(ctx, user, env.asset, ether(10), ether(100)); err != nil {
		t.Fatalf("deposit and mint: %v", err)
	}
	want := []string{events.TypeCollateralDeposited, events.TypeDebtMinted}
	got := sink.types()
	if len(got) != len(want) {
		t.Fatalf("unexpected event stream: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}

	deposited, ok := sink.emitted[0].(events.CollateralDeposited)
	if !ok {
		t.Fatalf("unexpected event payload type %T", sink.emitted[0])
	}
	if deposited.Account != user || deposited.Amount.Cmp(ether(10)) != 0 {
		t.Fatalf("unexpected deposit payload: %+v", deposited)
	}
}

func TestLiquidationEventStream(t *testing.T) {
	sink := &recordingEmitter{}
	env := newTestEnv(t, WithEmitter(sink))
	victim := makeAddress(0x01)
	liquidator := makeAddress(0x02)
	env.fund(victim, ether(10))
	env.fund(liquidator, ether(100))
	ctx := context.Background()

	if err := env.engine.DepositAndMint(ctx, victim, env.asset, ether(10), ether(100)); err != nil {
		t.Fatalf("victim position: %v", err)
	}
	if err := env.engine.DepositAndMint(ctx, liquidator, env.asset, ether(100), ether(100)); err != nil {
		t.Fatalf("liquidator position: %v", err)
	}
	env.feed.Set(feedPrice(18))
	sink.emitted = nil

	if err := env.engine.Liquidate(ctx, liquidator, victim, env.asset, ether(100)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	var summary events.PositionLiquidated
	found := false
	for _, evt := range sink.emitted {
		if s, ok := evt.(events.PositionLiquidated); ok {
			summary = s
			found = true
		}
	}
	if !found {
		t.Fatalf("no liquidation summary in stream: %v", sink.types())
	}
	if summary.Liquidator != liquidator || summary.Account != victim {
		t.Fatalf("unexpected summary parties: %+v", summary)
	}
	if summary.DebtCovered.Cmp(ether(100)) != 0 {
		t.Fatalf("unexpected covered debt: %s", summary.DebtCovered)
	}

	var redeemed events.CollateralRedeemed
	found = false
	for _, evt := range sink.emitted {
		if s, ok := evt.(events.CollateralRedeemed); ok {
			redeemed = s
			found = true
		}
	}
	if !found {
		t.Fatalf("no seizure record in stream: %v", sink.types())
	}
	if redeemed.From != victim || redeemed.To != liquidator {
		t.Fatalf("seizure should run victim -> liquidator: %+v", redeemed)
	}
}
