package token

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrUnknownAsset          = errors.New("unknown asset")
)

// Ledger is the fungible-token collaborator the wagering ledger moves
// stakes and payouts through. TransferFrom requires prior approval;
// insufficient balance or allowance fails the call.
type Ledger interface {
	Transfer(asset, from, to common.Address, amount uint64) error
	TransferFrom(asset, spender, owner, to common.Address, amount uint64) error
	BalanceOf(asset, account common.Address) uint64
	Approve(asset, owner, spender common.Address, amount uint64) error
}

// Wrapped extends Ledger with the designated wrapped asset's
// native-value entry points.
type Wrapped interface {
	Ledger
	Deposit(to common.Address, value uint64) error
	Withdraw(from common.Address, value uint64) error
	NativeBalanceOf(account common.Address) uint64
	WrappedAsset() common.Address
}

// Bank is an in-memory multi-asset ledger used by the server, the
// simulation, and tests. It stands in for the external token contracts.
type Bank struct {
	mu      sync.Mutex
	wrapped common.Address
	// balances[asset][account], allowances[asset][owner][spender]
	balances   map[common.Address]map[common.Address]uint64
	allowances map[common.Address]map[common.Address]map[common.Address]uint64
	native     map[common.Address]uint64
}

func NewBank(wrapped common.Address) *Bank {
	return &Bank{
		wrapped:    wrapped,
		balances:   make(map[common.Address]map[common.Address]uint64),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]uint64),
		native:     make(map[common.Address]uint64),
	}
}

func (b *Bank) WrappedAsset() common.Address {
	return b.wrapped
}

// Mint credits an account with asset units out of thin air. Simulation and
// test setup only.
func (b *Bank) Mint(asset, account common.Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset, account, amount)
}

// MintNative credits an account with native value.
func (b *Bank) MintNative(account common.Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.native[account] += amount
}

func (b *Bank) BalanceOf(asset, account common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[asset][account]
}

func (b *Bank) NativeBalanceOf(account common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.native[account]
}

func (b *Bank) Approve(asset, owner, spender common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allowances[asset] == nil {
		b.allowances[asset] = make(map[common.Address]map[common.Address]uint64)
	}
	if b.allowances[asset][owner] == nil {
		b.allowances[asset][owner] = make(map[common.Address]uint64)
	}
	b.allowances[asset][owner][spender] = amount
	return nil
}

func (b *Bank) Transfer(asset, from, to common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(asset, from, to, amount)
}

func (b *Bank) TransferFrom(asset, spender, owner, to common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	allowed := b.allowances[asset][owner][spender]
	if allowed < amount {
		return ErrInsufficientAllowance
	}
	if err := b.move(asset, owner, to, amount); err != nil {
		return err
	}
	b.allowances[asset][owner][spender] = allowed - amount
	return nil
}

// Deposit wraps native value into the wrapped asset.
func (b *Bank) Deposit(to common.Address, value uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.native[to] < value {
		return ErrInsufficientBalance
	}
	b.native[to] -= value
	b.credit(b.wrapped, to, value)

	log.Debug().
		Str("account", to.Hex()).
		Uint64("value", value).
		Msg("wrapped native value")
	return nil
}

// Withdraw unwraps wrapped-asset units back into native value.
func (b *Bank) Withdraw(from common.Address, value uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[b.wrapped][from] < value {
		return ErrInsufficientBalance
	}
	b.balances[b.wrapped][from] -= value
	b.native[from] += value
	return nil
}

func (b *Bank) move(asset, from, to common.Address, amount uint64) error {
	if b.balances[asset][from] < amount {
		return ErrInsufficientBalance
	}
	b.balances[asset][from] -= amount
	b.credit(asset, to, amount)
	return nil
}

func (b *Bank) credit(asset, account common.Address, amount uint64) {
	if b.balances[asset] == nil {
		b.balances[asset] = make(map[common.Address]uint64)
	}
	b.balances[asset][account] += amount
}
