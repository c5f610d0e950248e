// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
)

// WrappedAdapter values amounts through an inner source, treating a
// designated wrapped native asset as the native one. The inner source
// can be swapped by the admin.
type WrappedAdapter struct {
	mu      sync.RWMutex
	admin   common.Address
	inner   Source
	wrapped common.Address
	native  common.Address
}

var _ Source = (*WrappedAdapter)(nil)

// NewWrappedAdapter returns a wrapped-native adapter over inner.
// Amounts of the wrapped asset are valued as native.
func NewWrappedAdapter(admin common.Address, inner Source, wrapped, native common.Address) (*WrappedAdapter, error) {
	if inner == nil {
		return nil, ErrNoOracle
	}
	return &WrappedAdapter{
		admin:   admin,
		inner:   inner,
		wrapped: wrapped,
		native:  native,
	}, nil
}

// ValueInCommonUnit converts amount of asset into the common unit,
// substituting the native asset for the wrapped one.
func (w *WrappedAdapter) ValueInCommonUnit(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	w.mu.RLock()
	inner := w.inner
	if asset == w.wrapped {
		asset = w.native
	}
	w.mu.RUnlock()

	return inner.ValueInCommonUnit(ctx, asset, amount)
}

// SetSource swaps the inner source. Only the admin may call this.
func (w *WrappedAdapter) SetSource(caller common.Address, inner Source) error {
	if caller != w.admin {
		return ErrNotAdmin
	}
	if inner == nil {
		return ErrNoOracle
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inner = inner
	return nil
}
