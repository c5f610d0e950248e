// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package simpool provides a deterministic in-memory liquidity venue,
// asset vault, and ownership registry. It backs tests and local
// tooling with real tick, liquidity, and fee-growth accounting but
// executes swaps at the spot price without walking ticks.
package simpool

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/alm/amm"
)

const feeDenominator = 1_000_000 // pool fee is in hundredths of a bip

// tickInfo tracks per-tick crossing state.
type tickInfo struct {
	liquidityNet *big.Int     // liquidity added when crossing left to right
	outside0     *uint256.Int // fee growth on the far side of the tick
	outside1     *uint256.Int
}

type rangeKey struct {
	Lower, Upper int32
}

type stagedAmounts struct {
	amount0 *big.Int
	amount1 *big.Int
}

// poolState is one pool's full accounting state.
type poolState struct {
	key          amm.PoolKey
	sqrtPriceX96 *big.Int
	tick         int32
	liquidity    *big.Int // liquidity active at the current tick
	feeGrowth0   *uint256.Int
	feeGrowth1   *uint256.Int
	ticks        map[int32]*tickInfo
	staged       map[rangeKey]*stagedAmounts
}

// Venue simulates a concentrated-liquidity venue over a set of pools.
// Pool reserves live in the vault under the venue's account.
type Venue struct {
	mu      sync.RWMutex
	account common.Address
	vault   *Vault
	pools   map[common.Hash]*poolState
}

// NewVenue returns a venue holding its reserves at account in vault.
func NewVenue(account common.Address, vault *Vault) *Venue {
	return &Venue{
		account: account,
		vault:   vault,
		pools:   make(map[common.Hash]*poolState),
	}
}

// Account returns the venue's vault account.
func (v *Venue) Account() common.Address {
	return v.account
}

// CreatePool initializes a pool at the given starting price.
func (v *Venue) CreatePool(key amm.PoolKey, sqrtPriceX96 *big.Int) error {
	if err := key.Validate(); err != nil {
		return err
	}
	tick, err := amm.SqrtPriceX96ToTick(sqrtPriceX96)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	id := key.ID()
	if _, ok := v.pools[id]; ok {
		return ErrPoolExists
	}
	v.pools[id] = &poolState{
		key:          key,
		sqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
		tick:         tick,
		liquidity:    big.NewInt(0),
		feeGrowth0:   uint256.NewInt(0),
		feeGrowth1:   uint256.NewInt(0),
		ticks:        make(map[int32]*tickInfo),
		staged:       make(map[rangeKey]*stagedAmounts),
	}
	return nil
}

// Pool returns the pool's current price, tick, and active liquidity.
func (v *Venue) Pool(ctx context.Context, key amm.PoolKey) (amm.PoolState, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p := v.pools[key.ID()]
	if p == nil {
		return amm.PoolState{}, ErrPoolNotFound
	}
	return amm.PoolState{
		SqrtPriceX96: new(big.Int).Set(p.sqrtPriceX96),
		Tick:         p.tick,
		Liquidity:    new(big.Int).Set(p.liquidity),
	}, nil
}

// FeeGrowthInside returns the per-liquidity fee growth accumulated
// inside the tick range.
func (v *Venue) FeeGrowthInside(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32) (*uint256.Int, *uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.pools[key.ID()]
	if p == nil {
		return nil, nil, ErrPoolNotFound
	}
	lower := p.tickAt(tickLower)
	upper := p.tickAt(tickUpper)
	inside0, inside1 := amm.FeeGrowthInside(
		p.feeGrowth0, p.feeGrowth1,
		lower.outside0, lower.outside1,
		upper.outside0, upper.outside1,
		tickLower, tickUpper, p.tick,
	)
	return inside0, inside1, nil
}

// Mint adds liquidity over the range and returns the deposit amounts,
// rounded up. The venue expects the amounts pushed to its account.
func (v *Venue) Mint(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32, liquidity *big.Int) (*big.Int, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.pools[key.ID()]
	if p == nil {
		return nil, nil, ErrPoolNotFound
	}
	amount0, amount1, err := amm.AmountsForLiquidity(p.sqrtPriceX96, tickLower, tickUpper, liquidity, true)
	if err != nil {
		return nil, nil, err
	}

	lower := p.tickAt(tickLower)
	upper := p.tickAt(tickUpper)
	lower.liquidityNet.Add(lower.liquidityNet, liquidity)
	upper.liquidityNet.Sub(upper.liquidityNet, liquidity)
	if tickLower <= p.tick && p.tick < tickUpper {
		p.liquidity.Add(p.liquidity, liquidity)
	}
	return amount0, amount1, nil
}

// Burn removes liquidity from the range, rounding the released amounts
// down, and stages them for Collect.
func (v *Venue) Burn(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32, liquidity *big.Int) (*big.Int, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.pools[key.ID()]
	if p == nil {
		return nil, nil, ErrPoolNotFound
	}
	amount0, amount1, err := amm.AmountsForLiquidity(p.sqrtPriceX96, tickLower, tickUpper, liquidity, false)
	if err != nil {
		return nil, nil, err
	}

	lower := p.tickAt(tickLower)
	upper := p.tickAt(tickUpper)
	lower.liquidityNet.Sub(lower.liquidityNet, liquidity)
	upper.liquidityNet.Add(upper.liquidityNet, liquidity)
	if tickLower <= p.tick && p.tick < tickUpper {
		p.liquidity.Sub(p.liquidity, liquidity)
		if p.liquidity.Sign() < 0 {
			return nil, nil, ErrInsufficientLiquidity
		}
	}

	rk := rangeKey{Lower: tickLower, Upper: tickUpper}
	s := p.staged[rk]
	if s == nil {
		s = &stagedAmounts{amount0: big.NewInt(0), amount1: big.NewInt(0)}
		p.staged[rk] = s
	}
	s.amount0.Add(s.amount0, amount0)
	s.amount1.Add(s.amount1, amount1)
	return amount0, amount1, nil
}

// Collect clears and returns the amounts staged by Burn for the range.
func (v *Venue) Collect(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32) (*big.Int, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.pools[key.ID()]
	if p == nil {
		return nil, nil, ErrPoolNotFound
	}
	rk := rangeKey{Lower: tickLower, Upper: tickUpper}
	s := p.staged[rk]
	if s == nil {
		return big.NewInt(0), big.NewInt(0), nil
	}
	delete(p.staged, rk)
	return s.amount0, s.amount1, nil
}

// swapOutput prices amountIn at the pool's spot price: the pool fee
// portion and the output the remainder converts into.
func (p *poolState) swapOutput(zeroForOne bool, amountIn *big.Int) (fee, out *big.Int) {
	fee = new(big.Int).Mul(amountIn, big.NewInt(int64(p.key.Fee)))
	fee.Div(fee, big.NewInt(feeDenominator))
	netIn := new(big.Int).Sub(amountIn, fee)

	if zeroForOne {
		out = new(big.Int).Mul(netIn, p.sqrtPriceX96)
		out.Div(out, amm.Q96)
		out.Mul(out, p.sqrtPriceX96)
		out.Div(out, amm.Q96)
	} else {
		out = new(big.Int).Mul(netIn, amm.Q96)
		out.Div(out, p.sqrtPriceX96)
		out.Mul(out, amm.Q96)
		out.Div(out, p.sqrtPriceX96)
	}
	return fee, out
}

// Swap converts amountIn of one pool asset into the other at the spot
// price, charging the pool fee. The price does not move; the fee
// accrues to the active liquidity and the output is credited to the
// venue's reserves.
func (v *Venue) Swap(ctx context.Context, key amm.PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.pools[key.ID()]
	if p == nil {
		return nil, ErrPoolNotFound
	}
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, amm.ErrInvalidAmount
	}
	if amountIn.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if p.liquidity.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	fee, out := p.swapOutput(zeroForOne, amountIn)
	if zeroForOne {
		p.bumpFeeGrowth(p.feeGrowth0, fee)
	} else {
		p.bumpFeeGrowth(p.feeGrowth1, fee)
	}

	assetOut := p.key.Currency1
	if !zeroForOne {
		assetOut = p.key.Currency0
	}
	v.vault.Credit(assetOut, v.account, out)
	return out, nil
}

// Quote prices a swap without executing it. The price does not move on
// swaps, so the returned amount is exactly what Swap pays for amountIn
// at the pool's current state.
func (v *Venue) Quote(ctx context.Context, key amm.PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p := v.pools[key.ID()]
	if p == nil {
		return nil, ErrPoolNotFound
	}
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, amm.ErrInvalidAmount
	}
	if amountIn.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if p.liquidity.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	_, out := p.swapOutput(zeroForOne, amountIn)
	return out, nil
}

// SetPrice moves the pool to a new price, crossing any initialized
// ticks on the way. Crossing a tick flips its outside counters and
// applies its net liquidity, as a sequence of swaps would.
func (v *Venue) SetPrice(key amm.PoolKey, sqrtPriceX96 *big.Int) error {
	newTick, err := amm.SqrtPriceX96ToTick(sqrtPriceX96)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.pools[key.ID()]
	if p == nil {
		return ErrPoolNotFound
	}
	oldTick := p.tick
	for t, info := range p.ticks {
		up := oldTick < t && t <= newTick
		down := newTick < t && t <= oldTick
		if !up && !down {
			continue
		}
		info.outside0 = new(uint256.Int).Sub(p.feeGrowth0, info.outside0)
		info.outside1 = new(uint256.Int).Sub(p.feeGrowth1, info.outside1)
		if up {
			p.liquidity.Add(p.liquidity, info.liquidityNet)
		} else {
			p.liquidity.Sub(p.liquidity, info.liquidityNet)
		}
	}
	p.sqrtPriceX96.Set(sqrtPriceX96)
	p.tick = newTick
	return nil
}

// AccrueFees credits fee revenue to the pool's active liquidity and
// funds the venue's reserves to cover the later payout.
func (v *Venue) AccrueFees(key amm.PoolKey, amount0, amount1 *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.pools[key.ID()]
	if p == nil {
		return ErrPoolNotFound
	}
	if p.liquidity.Sign() == 0 {
		return ErrInsufficientLiquidity
	}
	p.bumpFeeGrowth(p.feeGrowth0, amount0)
	p.bumpFeeGrowth(p.feeGrowth1, amount1)
	v.vault.Credit(p.key.Currency0, v.account, amount0)
	v.vault.Credit(p.key.Currency1, v.account, amount1)
	return nil
}

// tickAt returns the tick's state, initializing it on first use. A new
// tick at or below the current tick starts with the full global growth
// on its far side.
func (p *poolState) tickAt(tick int32) *tickInfo {
	info := p.ticks[tick]
	if info != nil {
		return info
	}
	info = &tickInfo{
		liquidityNet: big.NewInt(0),
		outside0:     uint256.NewInt(0),
		outside1:     uint256.NewInt(0),
	}
	if tick <= p.tick {
		info.outside0.Set(p.feeGrowth0)
		info.outside1.Set(p.feeGrowth1)
	}
	p.ticks[tick] = info
	return info
}

// bumpFeeGrowth adds amount of fees, scaled per unit of active
// liquidity, to the global accumulator.
func (p *poolState) bumpFeeGrowth(global *uint256.Int, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 || p.liquidity.Sign() == 0 {
		return
	}
	delta := uint256.MustFromBig(amount)
	delta.Lsh(delta, 128)
	delta.Div(delta, uint256.MustFromBig(p.liquidity))
	global.Add(global, delta)
}

// Errors
var (
	ErrPoolExists            = errors.New("pool already exists")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
)
