//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Token balances
//

package ics20

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// ErrInsufficientFunds indicates that an account balance is too low.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Bank moves tokens between the accounts of a chain.
type Bank interface {
	// Send moves tokens between two accounts.
	Send(from, to, denom string, amount *big.Int) error

	// Mint creates new tokens into an account.
	Mint(to, denom string, amount *big.Int) error

	// Burn destroys tokens held by an account.
	Burn(from, denom string, amount *big.Int) error
}

// MemoryBank is an in-memory [Bank].
//
// The zero value is ready to use.
type MemoryBank struct {
	balances map[string]map[string]*big.Int
	mu       sync.Mutex
}

var _ Bank = &MemoryBank{}

// NewMemoryBank creates a new, empty [*MemoryBank].
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{}
}

// Balance returns a copy of the balance of an account.
func (b *MemoryBank) Balance(addr, denom string) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balanceLocked(addr, denom))
}

// Balances returns a copy of all the balances of an account.
func (b *MemoryBank) Balances(addr string) map[string]*big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := map[string]*big.Int{}
	for denom, amount := range b.balances[addr] {
		if amount.Sign() > 0 {
			out[denom] = new(big.Int).Set(amount)
		}
	}
	return out
}

// balanceLocked returns the balance of an account, creating it if needed.
func (b *MemoryBank) balanceLocked(addr, denom string) *big.Int {
	if b.balances == nil {
		b.balances = map[string]map[string]*big.Int{}
	}
	account := b.balances[addr]
	if account == nil {
		account = map[string]*big.Int{}
		b.balances[addr] = account
	}
	amount := account[denom]
	if amount == nil {
		amount = new(big.Int)
		account[denom] = amount
	}
	return amount
}

// Send implements [Bank].
func (b *MemoryBank) Send(from, to, denom string, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debitLocked(from, denom, amount); err != nil {
		return err
	}
	b.balanceLocked(to, denom).Add(b.balanceLocked(to, denom), amount)
	return nil
}

// Mint implements [Bank].
func (b *MemoryBank) Mint(to, denom string, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("cannot mint negative amount %s", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balanceLocked(to, denom).Add(b.balanceLocked(to, denom), amount)
	return nil
}

// Burn implements [Bank].
func (b *MemoryBank) Burn(from, denom string, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debitLocked(from, denom, amount)
}

// debitLocked removes tokens from an account.
func (b *MemoryBank) debitLocked(from, denom string, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("cannot move negative amount %s", amount)
	}
	balance := b.balanceLocked(from, denom)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s%s, needs %s%s", ErrInsufficientFunds, from, balance, denom, amount, denom)
	}
	balance.Sub(balance, amount)
	return nil
}
