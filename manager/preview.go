// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"context"
	"fmt"
	"math/big"

	"github.com/luxfi/alm/amm"
)

// PreviewCreatePosition quotes a CreatePosition call against current
// pool state without moving value. The quoted deposit amounts round up,
// matching what the venue would require.
func (m *Manager) PreviewCreatePosition(ctx context.Context, params CreateParams) (*PreviewResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := params.PoolKey
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := amm.CheckTicks(params.TickLower, params.TickUpper, key.TickSpacing); err != nil {
		return nil, err
	}
	return m.previewDeposit(ctx, key, params.TickLower, params.TickUpper, params.Amount0In, params.Amount1In)
}

// PreviewIncreaseLiquidity quotes an IncreaseLiquidity call for an
// existing position.
func (m *Manager) PreviewIncreaseLiquidity(ctx context.Context, params IncreaseParams) (*PreviewResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.activePosition(params.PositionID)
	if err != nil {
		return nil, err
	}
	return m.previewDeposit(ctx, p.PoolKey, p.TickLower, p.TickUpper, params.Amount0In, params.Amount1In)
}

func (m *Manager) previewDeposit(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32, amount0In, amount1In *big.Int) (*PreviewResult, error) {
	a0 := zeroIfNil(amount0In)
	a1 := zeroIfNil(amount1In)
	if a0.Sign() < 0 || a1.Sign() < 0 {
		return nil, amm.ErrInvalidAmount
	}

	pool, err := m.venue.Pool(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("pool lookup: %w", err)
	}

	fee0, fee1, net0, net1 := m.skimFees(a0, a1, FeeOnLiquidity)

	liquidity, err := amm.LiquidityForAmounts(pool.SqrtPriceX96, tickLower, tickUpper, net0, net1)
	if err != nil {
		return nil, err
	}
	used0, used1, err := amm.AmountsForLiquidity(pool.SqrtPriceX96, tickLower, tickUpper, liquidity, true)
	if err != nil {
		return nil, err
	}

	return &PreviewResult{
		Liquidity: liquidity,
		Amount0:   used0,
		Amount1:   used1,
		Fee0:      fee0,
		Fee1:      fee1,
	}, nil
}

// PreviewFees reports the position's total unclaimed fees, combining
// the stored balance with growth accrued since the last checkpoint.
// The position itself is not modified. Retired positions report their
// stored balances, which a retirement leaves at zero.
func (m *Manager) PreviewFees(ctx context.Context, id PositionID) (*big.Int, *big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.store.Get(id)
	if err != nil {
		return nil, nil, err
	}

	owed0 := new(big.Int).Set(p.TokensOwed0)
	owed1 := new(big.Int).Set(p.TokensOwed1)
	if p.Retired || p.Liquidity.Sign() == 0 {
		return owed0, owed1, nil
	}

	growth0, growth1, err := m.venue.FeeGrowthInside(ctx, p.PoolKey, p.TickLower, p.TickUpper)
	if err != nil {
		return nil, nil, fmt.Errorf("fee growth lookup: %w", err)
	}
	owed0.Add(owed0, amm.FeesOwed(growth0, p.FeeGrowth0Last, p.Liquidity))
	owed1.Add(owed1, amm.FeesOwed(growth1, p.FeeGrowth1Last, p.Liquidity))
	return owed0, owed1, nil
}
