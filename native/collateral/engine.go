package collateral

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthdollar/core/events"
	nativecommon "synthdollar/native/common"
	"synthdollar/native/oracle"
	"synthdollar/native/token"
)

const defaultQuotaEpochSeconds = 3600

// Engine orchestrates the collateral and debt ledgers, the solvency
// calculator, and the external token collaborators. Every mutating operation
// is atomic: ledger mutations, solvency re-checks, and external transfers
// either all apply or none do.
type Engine struct {
	mu         sync.Mutex
	custody    common.Address
	collateral *CollateralLedger
	debt       *DebtLedger
	calc       *Calculator
	tokens     map[common.Address]token.Fungible
	debtToken  token.DebtToken
	params     RiskParameters
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	quota      nativecommon.MintQuota
	quotaUsage map[common.Address]nativecommon.QuotaNow
	now        func() time.Time
}

// Option customises engine construction.
type Option func(*Engine)

// WithRiskParameters overrides the default protocol constants.
func WithRiskParameters(params RiskParameters) Option {
	return func(e *Engine) { e.params = params }
}

// WithPauses wires the operational pause switchboard.
func WithPauses(p nativecommon.PauseView) Option {
	return func(e *Engine) { e.pauses = p }
}

// WithEmitter wires the event sink used for observability.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithMintQuota enables the per-account issuance throttle.
func WithMintQuota(quota nativecommon.MintQuota) Option {
	return func(e *Engine) { e.quota = quota }
}

// WithClock overrides the time source used for quota epochs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs the accounting engine. The asset, feed, and token lists
// must align index for index; mismatched lengths abort construction before any
// state is created.
func NewEngine(custody common.Address, assets []common.Address, feeds []oracle.PriceFeed, tokens []token.Fungible, debtToken token.DebtToken, opts ...Option) (*Engine, error) {
	if custody == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if len(assets) != len(feeds) {
		return nil, ErrAssetFeedLengthMismatch
	}
	if len(assets) != len(tokens) {
		return nil, ErrAssetTokenLengthMismatch
	}
	if debtToken == nil {
		return nil, ErrNilDebtToken
	}

	engine := &Engine{
		custody:    custody,
		collateral: NewCollateralLedger(),
		debt:       NewDebtLedger(),
		tokens:     make(map[common.Address]token.Fungible, len(assets)),
		debtToken:  debtToken,
		params:     DefaultRiskParameters(),
		emitter:    events.NoopEmitter{},
		quotaUsage: make(map[common.Address]nativecommon.QuotaNow),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	engine.params = engine.params.Normalized()
	if err := engine.params.Validate(); err != nil {
		return nil, err
	}

	calc, err := NewCalculator(assets, feeds, engine.params)
	if err != nil {
		return nil, err
	}
	engine.calc = calc

	for i, asset := range assets {
		if tokens[i] == nil {
			return nil, ErrNilToken
		}
		engine.tokens[asset] = tokens[i]
	}
	return engine, nil
}

type reentryKey struct{}

// enter serialises the operation against all others and rejects reentrant
// invocations. Token collaborators receive a context stamped with the engine
// identity; a mutating entry point invoked with a stamped context is a
// callback trying to re-enter mid-operation and is refused before it can
// observe intermediate state.
func (e *Engine) enter(ctx context.Context) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if owner, ok := ctx.Value(reentryKey{}).(*Engine); ok && owner == e {
		return nil, nil, ErrReentrantCall
	}
	e.mu.Lock()
	return context.WithValue(ctx, reentryKey{}, e), e.mu.Unlock, nil
}

type ledgerSnapshot struct {
	collateral CollateralSnapshot
	debt       DebtSnapshot
}

func (e *Engine) snapshot() ledgerSnapshot {
	return ledgerSnapshot{collateral: e.collateral.Snapshot(), debt: e.debt.Snapshot()}
}

func (e *Engine) restore(snap ledgerSnapshot) {
	e.collateral.Restore(snap.collateral)
	e.debt.Restore(snap.debt)
}

// effect is an external token action staged during an operation. Externals run
// only after every ledger mutation and solvency check has passed; undo is the
// best-effort compensation applied when a later effect fails.
type effect struct {
	apply func(ctx context.Context) error
	undo  func(ctx context.Context)
}

func runEffects(ctx context.Context, effects []effect) error {
	for i, eff := range effects {
		if err := eff.apply(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if effects[j].undo != nil {
					effects[j].undo(ctx)
				}
			}
			return err
		}
	}
	return nil
}

// run wraps a mutating operation with the reentrancy guard, pause guard, and
// snapshot-restore atomicity. The body stages external effects and returns
// events to emit once everything has committed.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context) ([]effect, []events.Event, error)) error {
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	snap := e.snapshot()
	effects, emitted, err := fn(ctx)
	if err != nil {
		e.restore(snap)
		return err
	}
	if err := runEffects(ctx, effects); err != nil {
		e.restore(snap)
		return err
	}
	for _, evt := range emitted {
		e.emitter.Emit(evt)
	}
	return nil
}

// requireHealthy aborts with the computed factor when the user's post-mutation
// health factor sits below the protocol minimum.
func (e *Engine) requireHealthy(ctx context.Context, user common.Address) error {
	factor, err := e.calc.AccountHealthFactor(ctx, e.collateral, e.debt, user)
	if err != nil {
		return err
	}
	if factor.Cmp(e.params.MinHealthFactor) < 0 {
		return breaksHealthFactor(factor)
	}
	return nil
}

// DepositCollateral locks the user's collateral in engine custody. Deposits
// can only improve solvency so no post-check is required.
func (e *Engine) DepositCollateral(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	return e.run(ctx, func(ctx context.Context) ([]effect, []events.Event, error) {
		effects, evt, err := e.depositCollateral(user, asset, amount)
		if err != nil {
			return nil, nil, err
		}
		return effects, []events.Event{evt}, nil
	})
}

func (e *Engine) depositCollateral(user, asset common.Address, amount *big.Int) ([]effect, events.Event, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return nil, nil, ErrUnsupportedAsset
	}
	if err := e.collateral.Increase(user, asset, amount); err != nil {
		return nil, nil, err
	}
	pulled := new(big.Int).Set(amount)
	effects := []effect{{
		apply: func(ctx context.Context) error {
			if err := tok.Transfer(ctx, user, e.custody, pulled); err != nil {
				return fmt.Errorf("%w: %v", ErrTransferFailed, err)
			}
			return nil
		},
		undo: func(ctx context.Context) {
			_ = tok.Transfer(ctx, e.custody, user, pulled)
		},
	}}
	return effects, events.CollateralDeposited{Account: user, Asset: asset, Amount: pulled}, nil
}

// MintDebt issues new debt against the user's collateral. The health factor is
// re-checked on the post-mutation ledger state and the whole operation aborts
// when it falls below the minimum.
func (e *Engine) MintDebt(ctx context.Context, user common.Address, amount *big.Int) error {
	return e.run(ctx, func(ctx context.Context) ([]effect, []events.Event, error) {
		effects, evt, err := e.mintDebt(ctx, user, amount)
		if err != nil {
			return nil, nil, err
		}
		return effects, []events.Event{evt}, nil
	})
}

func (e *Engine) mintDebt(ctx context.Context, user common.Address, amount *big.Int) ([]effect, events.Event, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	var nextUsage nativecommon.QuotaNow
	quotaActive := e.quota.Enabled()
	if quotaActive {
		epochSeconds := e.quota.EpochSeconds
		if epochSeconds == 0 {
			epochSeconds = defaultQuotaEpochSeconds
		}
		epoch := uint64(e.now().Unix()) / uint64(epochSeconds)
		usage, err := nativecommon.CheckMintQuota(e.quota, epoch, e.quotaUsage[user], 1, amount)
		if err != nil {
			return nil, nil, err
		}
		nextUsage = usage
	}

	if err := e.debt.Increase(user, amount); err != nil {
		return nil, nil, err
	}
	if err := e.requireHealthy(ctx, user); err != nil {
		return nil, nil, err
	}

	minted := new(big.Int).Set(amount)
	effects := []effect{{
		apply: func(ctx context.Context) error {
			if err := e.debtToken.Mint(ctx, user, minted); err != nil {
				return fmt.Errorf("%w: %v", ErrMintFailed, err)
			}
			if quotaActive {
				e.quotaUsage[user] = nextUsage
			}
			return nil
		},
		undo: func(ctx context.Context) {
			_ = e.debtToken.Burn(ctx, user, minted)
		},
	}}
	return effects, events.DebtMinted{Account: user, Amount: minted}, nil
}

// BurnDebt retires the user's debt by pulling debt tokens into custody and
// destroying them. Burning can only improve solvency; the post-check is a
// defensive backstop for future extensions.
func (e *Engine) BurnDebt(ctx context.Context, user common.Address, amount *big.Int) error {
	return e.run(ctx, func(ctx context.Context) ([]effect, []events.Event, error) {
		effects, evt, err := e.burnDebt(ctx, user, user, amount)
		if err != nil {
			return nil, nil, err
		}
		// Burning debt can only improve solvency; the check guards future
		// extensions rather than any reachable failure today.
		if err := e.requireHealthy(ctx, user); err != nil {
			return nil, nil, err
		}
		return effects, []events.Event{evt}, nil
	})
}

// burnDebt retires onBehalfOf's ledger debt while pulling the debt tokens from
// payer. The two differ during liquidation. Callers own the solvency
// post-check: a partially liquidated account must improve but need not reach
// the minimum.
func (e *Engine) burnDebt(_ context.Context, payer, onBehalfOf common.Address, amount *big.Int) ([]effect, events.Event, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if err := e.debt.Decrease(onBehalfOf, amount); err != nil {
		return nil, nil, err
	}

	burned := new(big.Int).Set(amount)
	effects := []effect{
		{
			apply: func(ctx context.Context) error {
				if err := e.debtToken.Transfer(ctx, payer, e.custody, burned); err != nil {
					return fmt.Errorf("%w: %v", ErrTransferFailed, err)
				}
				return nil
			},
			undo: func(ctx context.Context) {
				_ = e.debtToken.Transfer(ctx, e.custody, payer, burned)
			},
		},
		{
			apply: func(ctx context.Context) error {
				if err := e.debtToken.Burn(ctx, e.custody, burned); err != nil {
					return fmt.Errorf("%w: %v", ErrBurnFailed, err)
				}
				return nil
			},
		},
	}
	return effects, events.DebtBurned{Account: onBehalfOf, Payer: payer, Amount: burned}, nil
}

// RedeemCollateral releases deposited collateral back to the user. The health
// factor is verified on the post-mutation state; the deliberate break from
// check-before-mutate keeps a single computation of the prospective factor.
func (e *Engine) RedeemCollateral(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	return e.run(ctx, func(ctx context.Context) ([]effect, []events.Event, error) {
		effects, evt, err := e.redeemCollateral(ctx, user, user, asset, amount)
		if err != nil {
			return nil, nil, err
		}
		if err := e.requireHealthy(ctx, user); err != nil {
			return nil, nil, err
		}
		return effects, []events.Event{evt}, nil
	})
}

// redeemCollateral debits `from`'s collateral ledger entry and stages the
// token push to `to`. Callers are responsible for the solvency post-check of
// whichever account must remain healthy.
func (e *Engine) redeemCollateral(_ context.Context, from, to, asset common.Address, amount *big.Int) ([]effect, events.Event, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return nil, nil, ErrUnsupportedAsset
	}
	if err := e.collateral.Decrease(from, asset, amount); err != nil {
		return nil, nil, err
	}

	released := new(big.Int).Set(amount)
	effects := []effect{{
		apply: func(ctx context.Context) error {
			if err := tok.Transfer(ctx, e.custody, to, released); err != nil {
				return fmt.Errorf("%w: %v", ErrTransferFailed, err)
			}
			return nil
		},
		undo: func(ctx context.Context) {
			_ = tok.Transfer(ctx, to, e.custody, released)
		},
	}}
	return effects, events.CollateralRedeemed{From: from, To: to, Asset: asset, Amount: released}, nil
}

// DepositAndMint composes deposit and mint into one atomic operation,
// inheriting mint's solvency post-check.
func (e *Engine) DepositAndMint(ctx context.Context, user, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	return e.run(ctx, func(ctx context.Context) ([]effect, []events.Event, error) {
		depositEffects, depositEvt, err := e.depositCollateral(user, asset, collateralAmount)
		if err != nil {
			return nil, nil, err
		}
		mintEffects, mintEvt, err := e.mintDebt(ctx, user, debtAmount)
		if err != nil {
			return nil, nil, err
		}
		return append(depositEffects, mintEffects...), []events.Event{depositEvt, mintEvt}, nil
	})
}

// RedeemForBurn composes burn then redeem into one atomic operation,
// inheriting redeem's solvency post-check.
func (e *Engine) RedeemForBurn(ctx context.Context, user, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	return e.run(ctx, func(ctx context.Context) ([]effect, []events.Event, error) {
		burnEffects, burnEvt, err := e.burnDebt(ctx, user, user, debtAmount)
		if err != nil {
			return nil, nil, err
		}
		redeemEffects, redeemEvt, err := e.redeemCollateral(ctx, user, user, asset, collateralAmount)
		if err != nil {
			return nil, nil, err
		}
		if err := e.requireHealthy(ctx, user); err != nil {
			return nil, nil, err
		}
		return append(burnEffects, redeemEffects...), []events.Event{burnEvt, redeemEvt}, nil
	})
}

// Liquidate lets a third party cover part of an unsafe account's debt in
// exchange for the equivalent collateral plus the liquidation bonus.
func (e *Engine) Liquidate(ctx context.Context, liquidator, account, asset common.Address, debtToCover *big.Int) error {
	return e.run(ctx, func(ctx context.Context) ([]effect, []events.Event, error) {
		if debtToCover == nil || debtToCover.Sign() <= 0 {
			return nil, nil, ErrInvalidAmount
		}
		if !e.calc.Supports(asset) {
			return nil, nil, ErrUnsupportedAsset
		}

		preFactor, err := e.calc.AccountHealthFactor(ctx, e.collateral, e.debt, account)
		if err != nil {
			return nil, nil, err
		}
		if preFactor.Cmp(e.params.MinHealthFactor) >= 0 {
			return nil, nil, ErrHealthFactorOk
		}

		seizedBase, err := e.calc.TokenAmountFromUsd(ctx, asset, debtToCover)
		if err != nil {
			return nil, nil, err
		}
		bonus := mulDiv(seizedBase, new(big.Int).SetUint64(e.params.LiquidationBonus), big.NewInt(LiquidationPrecision))
		totalSeized := new(big.Int).Add(seizedBase, bonus)

		redeemEffects, redeemEvt, err := e.redeemCollateral(ctx, account, liquidator, asset, totalSeized)
		if err != nil {
			return nil, nil, err
		}
		burnEffects, burnEvt, err := e.burnDebt(ctx, liquidator, account, debtToCover)
		if err != nil {
			return nil, nil, err
		}

		postFactor, err := e.calc.AccountHealthFactor(ctx, e.collateral, e.debt, account)
		if err != nil {
			return nil, nil, err
		}
		if postFactor.Cmp(preFactor) <= 0 {
			return nil, nil, ErrHealthFactorNotImproved
		}
		if err := e.requireHealthy(ctx, liquidator); err != nil {
			return nil, nil, err
		}

		emitted := []events.Event{
			redeemEvt,
			burnEvt,
			events.PositionLiquidated{
				Liquidator:       liquidator,
				Account:          account,
				Asset:            asset,
				DebtCovered:      new(big.Int).Set(debtToCover),
				CollateralSeized: totalSeized,
			},
		}
		return append(redeemEffects, burnEffects...), emitted, nil
	})
}
