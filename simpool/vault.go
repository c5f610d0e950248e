// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simpool

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/alm/amm"
)

// Vault is an in-memory asset ledger. Pull and Push move value through
// the manager's working account; Credit seeds balances directly.
type Vault struct {
	mu      sync.RWMutex
	manager common.Address
	// holder -> asset -> balance
	balances map[common.Address]map[common.Address]*big.Int
}

// NewVault returns a vault routing Pull and Push through manager.
func NewVault(manager common.Address) *Vault {
	return &Vault{
		manager:  manager,
		balances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Pull moves amount of asset from the holder into the manager account.
func (v *Vault) Pull(ctx context.Context, asset amm.Currency, from common.Address, amount *big.Int) error {
	return v.transfer(asset, from, v.manager, amount)
}

// Push moves amount of asset from the manager account to the holder.
func (v *Vault) Push(ctx context.Context, asset amm.Currency, to common.Address, amount *big.Int) error {
	return v.transfer(asset, v.manager, to, amount)
}

// Balance returns the holder's balance of asset.
func (v *Vault) Balance(ctx context.Context, asset amm.Currency, holder common.Address) (*big.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.balanceOf(asset.Address, holder)), nil
}

// Credit adds amount of asset to the holder's balance.
func (v *Vault) Credit(asset amm.Currency, holder common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	bal := v.balanceOf(asset.Address, holder)
	bal.Add(bal, amount)
	v.setBalance(asset.Address, holder, bal)
}

func (v *Vault) transfer(asset amm.Currency, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return amm.ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fromBal := v.balanceOf(asset.Address, from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromBal.Sub(fromBal, amount)
	v.setBalance(asset.Address, from, fromBal)

	toBal := v.balanceOf(asset.Address, to)
	toBal.Add(toBal, amount)
	v.setBalance(asset.Address, to, toBal)
	return nil
}

// balanceOf returns a copy of the holder's balance. Callers hold the
// lock.
func (v *Vault) balanceOf(asset, holder common.Address) *big.Int {
	assets := v.balances[holder]
	if assets == nil {
		return big.NewInt(0)
	}
	bal := assets[asset]
	if bal == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

func (v *Vault) setBalance(asset, holder common.Address, bal *big.Int) {
	assets := v.balances[holder]
	if assets == nil {
		assets = make(map[common.Address]*big.Int)
		v.balances[holder] = assets
	}
	assets[asset] = bal
}

// Errors
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
)
