package token

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrInvalidAmount     = errors.New("token: amount must be positive")
	ErrNotMinter         = errors.New("token: caller is not the configured minter")
)

// Fungible is the minimal transfer surface the accounting engine requires from
// a collateral asset. The engine supplies explicit from/to addresses; a failed
// transfer must return a non-nil error and leave balances untouched.
type Fungible interface {
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) *big.Int
}

// DebtToken extends Fungible with supply management. Mint and Burn are gated to
// the holder of the concrete handle; only the accounting engine is ever handed
// one.
type DebtToken interface {
	Fungible
	Mint(ctx context.Context, to common.Address, amount *big.Int) error
	Burn(ctx context.Context, from common.Address, amount *big.Int) error
	TotalSupply() *big.Int
}

// Token is an in-memory fungible ledger keyed by address. It backs collateral
// assets in the daemon and the engine test suites.
type Token struct {
	mu       sync.RWMutex
	symbol   string
	balances map[common.Address]*big.Int
}

// NewToken constructs an empty token ledger.
func NewToken(symbol string) *Token {
	return &Token{symbol: symbol, balances: make(map[common.Address]*big.Int)}
}

// Symbol returns the token ticker.
func (t *Token) Symbol() string {
	return t.symbol
}

// Credit adds funds to an address outside of the transfer flow. It exists for
// genesis allocations and tests.
func (t *Token) Credit(addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(addr, amount)
}

func (t *Token) credit(addr common.Address, amount *big.Int) {
	current, ok := t.balances[addr]
	if !ok {
		current = big.NewInt(0)
	}
	t.balances[addr] = new(big.Int).Add(current, amount)
}

func (t *Token) debit(addr common.Address, amount *big.Int) error {
	current, ok := t.balances[addr]
	if !ok || current.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	t.balances[addr] = new(big.Int).Sub(current, amount)
	return nil
}

// Transfer moves funds between two addresses, failing without side effects
// when the source balance is insufficient.
func (t *Token) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

// BalanceOf returns a copy of the balance for the supplied address.
func (t *Token) BalanceOf(addr common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	current, ok := t.balances[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(current)
}

// SynthDollar is the debt token: a burnable fungible whose supply is managed
// exclusively through the accounting engine's handle.
type SynthDollar struct {
	Token
	supply *big.Int
}

// NewSynthDollar constructs the debt token with zero supply.
func NewSynthDollar() *SynthDollar {
	return &SynthDollar{
		Token:  Token{symbol: "SDX", balances: make(map[common.Address]*big.Int)},
		supply: big.NewInt(0),
	}
}

// Mint creates new debt tokens for the recipient.
func (s *SynthDollar) Mint(_ context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credit(to, amount)
	s.supply = new(big.Int).Add(s.supply, amount)
	return nil
}

// Burn destroys debt tokens held by the supplied address.
func (s *SynthDollar) Burn(_ context.Context, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.debit(from, amount); err != nil {
		return err
	}
	s.supply = new(big.Int).Sub(s.supply, amount)
	return nil
}

// TotalSupply returns a copy of the outstanding supply.
func (s *SynthDollar) TotalSupply() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.supply)
}
