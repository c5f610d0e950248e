// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"context"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/alm/amm"
)

// deposited is the outcome of a liquidity deposit.
type deposited struct {
	liquidity *big.Int
	used0     *big.Int // deposited into the venue, rounded up
	used1     *big.Int
	fee0      *big.Int // protocol fee on the gross inputs
	fee1      *big.Int
	change0   *big.Int // unused input returned to the caller
	change1   *big.Int
}

// deposit skims the protocol fee from the gross inputs, converts the
// remainder into liquidity over the range, and settles: gross pulled
// from the caller, fee to the collector, deposit to the venue, change
// back to the caller. A non-nil maxLiquidity caps the minted amount so
// an existing position's total stays within the 128-bit range. The
// depositor pays first; any failure after that refunds what the
// manager still holds, and a mint the remainder cannot cover is burned
// back out.
func (m *Manager) deposit(ctx context.Context, caller common.Address, key amm.PoolKey, tickLower, tickUpper int32, amount0In, amount1In, minLiquidity, maxLiquidity *big.Int) (*deposited, error) {
	gross0 := zeroIfNil(amount0In)
	gross1 := zeroIfNil(amount1In)
	if gross0.Sign() < 0 || gross1.Sign() < 0 {
		return nil, amm.ErrInvalidAmount
	}

	pool, err := m.venue.Pool(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("pool lookup: %w", err)
	}

	fee0, fee1, net0, net1 := m.skimFees(gross0, gross1, FeeOnLiquidity)

	liquidity, err := amm.LiquidityForAmounts(pool.SqrtPriceX96, tickLower, tickUpper, net0, net1)
	if err != nil {
		return nil, err
	}
	if belowMin(liquidity, minLiquidity) {
		return nil, ErrMinLiquidity
	}
	if maxLiquidity != nil && liquidity.Cmp(maxLiquidity) > 0 {
		return nil, amm.ErrLiquidityOverflow
	}

	if err := m.pullBoth(ctx, key, caller, gross0, gross1); err != nil {
		return nil, m.refund(ctx, key, caller, err)
	}

	used0, used1, err := m.venue.Mint(ctx, key, tickLower, tickUpper, liquidity)
	if err != nil {
		return nil, m.refund(ctx, key, caller, fmt.Errorf("venue mint: %w", err))
	}
	change0 := new(big.Int).Sub(net0, used0)
	change1 := new(big.Int).Sub(net1, used1)
	if change0.Sign() < 0 || change1.Sign() < 0 {
		err := m.unwindMint(ctx, key, tickLower, tickUpper, liquidity, ErrSettlementFailed)
		return nil, m.refund(ctx, key, caller, err)
	}

	if err := m.pushBoth(ctx, key, m.fees.Recipient(), fee0, fee1); err != nil {
		return nil, err
	}
	if err := m.pushBoth(ctx, key, m.venue.Account(), used0, used1); err != nil {
		return nil, err
	}
	if err := m.pushBoth(ctx, key, caller, change0, change1); err != nil {
		return nil, err
	}
	if err := m.settle(ctx, key); err != nil {
		return nil, err
	}

	return &deposited{
		liquidity: liquidity,
		used0:     used0,
		used1:     used1,
		fee0:      fee0,
		fee1:      fee1,
		change0:   change0,
		change1:   change1,
	}, nil
}

// unwindMint reverts a venue mint that cannot be paid for and returns
// cause. The staged burn output is discarded; no value ever moved.
func (m *Manager) unwindMint(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32, liquidity *big.Int, cause error) error {
	if _, _, err := m.venue.Burn(ctx, key, tickLower, tickUpper, liquidity); err != nil {
		m.log.Error("mint unwind failed", "cause", cause, "err", err)
		return cause
	}
	if _, _, err := m.venue.Collect(ctx, key, tickLower, tickUpper); err != nil {
		m.log.Error("mint unwind collect failed", "cause", cause, "err", err)
	}
	return cause
}

// refund returns whatever portion of a failed deposit's inputs the
// manager still holds to the depositor and propagates cause. The
// manager's account is empty between operations, so its balance is
// exactly what this operation pulled.
func (m *Manager) refund(ctx context.Context, key amm.PoolKey, to common.Address, cause error) error {
	for _, asset := range []amm.Currency{key.Currency0, key.Currency1} {
		bal, err := m.vault.Balance(ctx, asset, m.cfg.Account)
		if err != nil || bal.Sign() == 0 {
			continue
		}
		if err := m.vault.Push(ctx, asset, to, bal); err != nil {
			m.log.Error("deposit refund failed", "asset", asset.Address, "err", err)
		}
	}
	return cause
}

// remint restores previously burned liquidity after a settlement
// failure and propagates cause.
func (m *Manager) remint(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32, liquidity *big.Int, cause error) error {
	if liquidity.Sign() == 0 {
		return cause
	}
	if _, _, err := m.venue.Mint(ctx, key, tickLower, tickUpper, liquidity); err != nil {
		m.log.Error("liquidity restore failed", "cause", cause, "err", err)
	}
	return cause
}

// unwindDeposit reverses an already settled deposit after a
// bookkeeping failure and propagates cause: the fresh liquidity is
// burned back out and its proceeds, together with the skimmed protocol
// fee, return to the depositor. Burn rounding can keep a wei per asset
// at the venue.
func (m *Manager) unwindDeposit(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32, dep *deposited, caller common.Address, cause error) error {
	if _, _, err := m.venue.Burn(ctx, key, tickLower, tickUpper, dep.liquidity); err != nil {
		m.log.Error("deposit unwind failed", "cause", cause, "err", err)
		return cause
	}
	col0, col1, err := m.venue.Collect(ctx, key, tickLower, tickUpper)
	if err != nil {
		m.log.Error("deposit unwind collect failed", "cause", cause, "err", err)
		return cause
	}
	if err := m.pullBoth(ctx, key, m.venue.Account(), col0, col1); err != nil {
		m.log.Error("deposit unwind pull failed", "cause", cause, "err", err)
	}
	if err := m.pullBoth(ctx, key, m.fees.Recipient(), dep.fee0, dep.fee1); err != nil {
		m.log.Error("protocol fee recovery failed", "cause", cause, "err", err)
	}
	return m.refund(ctx, key, caller, cause)
}

// CreatePosition opens a new position. The protocol fee is skimmed
// from the gross inputs before the liquidity math, the remainder is
// deposited into the venue, and unused change returns to the caller.
// Ownership of the minted position is assigned to params.Recipient.
func (m *Manager) CreatePosition(ctx context.Context, caller common.Address, params CreateParams) (*CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := params.PoolKey
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := amm.CheckTicks(params.TickLower, params.TickUpper, key.TickSpacing); err != nil {
		return nil, err
	}
	if params.Recipient == (common.Address{}) {
		return nil, ErrZeroRecipient
	}

	dep, err := m.deposit(ctx, caller, key, params.TickLower, params.TickUpper, params.Amount0In, params.Amount1In, params.MinLiquidity, nil)
	if err != nil {
		return nil, err
	}

	// The deposit settled; a bookkeeping failure past this point must
	// unwind it so no liquidity is left without a record.
	id, err := m.mintPositionID(key.ID(), params.Recipient, params.TickLower, params.TickUpper)
	if err != nil {
		return nil, m.unwindDeposit(ctx, key, params.TickLower, params.TickUpper, dep, caller, err)
	}
	growth0, growth1, err := m.venue.FeeGrowthInside(ctx, key, params.TickLower, params.TickUpper)
	if err != nil {
		return nil, m.unwindDeposit(ctx, key, params.TickLower, params.TickUpper, dep, caller, fmt.Errorf("fee growth lookup: %w", err))
	}
	if err := m.registry.Mint(ctx, id, params.Recipient); err != nil {
		return nil, m.unwindDeposit(ctx, key, params.TickLower, params.TickUpper, dep, caller, fmt.Errorf("registry mint: %w", err))
	}

	p := &Position{
		ID:             id,
		PoolKey:        key,
		TickLower:      params.TickLower,
		TickUpper:      params.TickUpper,
		Liquidity:      dep.liquidity,
		FeeGrowth0Last: growth0.Clone(),
		FeeGrowth1Last: growth1.Clone(),
		TokensOwed0:    big.NewInt(0),
		TokensOwed1:    big.NewInt(0),
		CreatedAt:      uint64(m.now().Unix()),
	}
	if err := m.store.Put(p); err != nil {
		if rerr := m.registry.Burn(ctx, id); rerr != nil {
			m.log.Error("registry rollback failed", "position", id, "err", rerr)
		}
		return nil, m.unwindDeposit(ctx, key, params.TickLower, params.TickUpper, dep, caller, fmt.Errorf("store position: %w", err))
	}

	m.emit(ctx, PositionCreated{
		PositionID: id,
		Owner:      params.Recipient,
		PoolID:     key.ID(),
		TickLower:  params.TickLower,
		TickUpper:  params.TickUpper,
		Liquidity:  dep.liquidity,
		Amount0:    dep.used0,
		Amount1:    dep.used1,
		Fee0:       dep.fee0,
		Fee1:       dep.fee1,
	})

	return &CreateResult{
		PositionID: id,
		Liquidity:  dep.liquidity,
		Amount0:    dep.used0,
		Amount1:    dep.used1,
		Fee0:       dep.fee0,
		Fee1:       dep.fee1,
		Change0:    dep.change0,
		Change1:    dep.change1,
	}, nil
}

// IncreaseLiquidity adds liquidity to an existing position with the
// same settlement rules as CreatePosition. The caller must be the
// registered owner or an approved operator.
func (m *Manager) IncreaseLiquidity(ctx context.Context, caller common.Address, params IncreaseParams) (*IncreaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.activePosition(params.PositionID)
	if err != nil {
		return nil, err
	}
	owner, err := m.requireOwner(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}

	// Fees accrued at the old liquidity must be checkpointed before
	// the liquidity changes.
	if err := m.syncFees(ctx, p); err != nil {
		return nil, err
	}

	// The position's total liquidity must stay within the 128-bit range.
	headroom := new(big.Int).Sub(amm.MaxUint128, p.Liquidity)
	dep, err := m.deposit(ctx, caller, p.PoolKey, p.TickLower, p.TickUpper, params.Amount0In, params.Amount1In, params.MinLiquidity, headroom)
	if err != nil {
		return nil, err
	}

	before := new(big.Int).Set(p.Liquidity)
	p.Liquidity.Add(p.Liquidity, dep.liquidity)
	if err := m.store.Put(p); err != nil {
		return nil, m.unwindDeposit(ctx, p.PoolKey, p.TickLower, p.TickUpper, dep, caller, fmt.Errorf("store position: %w", err))
	}

	m.emit(ctx, LiquidityIncreased{
		PositionID:      p.ID,
		Owner:           owner,
		Liquidity:       dep.liquidity,
		LiquidityBefore: before,
		LiquidityAfter:  p.Liquidity,
		Amount0:         dep.used0,
		Amount1:         dep.used1,
		Fee0:            dep.fee0,
		Fee1:            dep.fee1,
	})

	return &IncreaseResult{
		Liquidity:      dep.liquidity,
		LiquidityAfter: new(big.Int).Set(p.Liquidity),
		Amount0:        dep.used0,
		Amount1:        dep.used1,
		Fee0:           dep.fee0,
		Fee1:           dep.fee1,
		Change0:        dep.change0,
		Change1:        dep.change1,
	}, nil
}

// ClaimFees synchronizes and pays out the position's unclaimed fees in
// both assets. A claim with nothing accrued succeeds and moves
// nothing.
func (m *Manager) ClaimFees(ctx context.Context, caller common.Address, params ClaimParams) (*ClaimResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.activePosition(params.PositionID)
	if err != nil {
		return nil, err
	}
	owner, err := m.requireOwner(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}
	if params.Recipient == (common.Address{}) {
		return nil, ErrZeroRecipient
	}

	if err := m.syncFees(ctx, p); err != nil {
		return nil, err
	}

	gross0 := new(big.Int).Set(p.TokensOwed0)
	gross1 := new(big.Int).Set(p.TokensOwed1)
	fee0, fee1, out0, out1 := m.skimFees(gross0, gross1, FeeOnClaim)

	if belowMin(out0, params.MinOut0) || belowMin(out1, params.MinOut1) {
		return nil, ErrMinAmountOut
	}

	key := p.PoolKey
	if err := m.pullBoth(ctx, key, m.venue.Account(), gross0, gross1); err != nil {
		return nil, err
	}
	if err := m.pushBoth(ctx, key, m.fees.Recipient(), fee0, fee1); err != nil {
		return nil, err
	}
	if err := m.pushBoth(ctx, key, params.Recipient, out0, out1); err != nil {
		return nil, err
	}

	p.TokensOwed0.SetInt64(0)
	p.TokensOwed1.SetInt64(0)
	if err := m.store.Put(p); err != nil {
		return nil, fmt.Errorf("store position: %w", err)
	}
	if err := m.settle(ctx, key); err != nil {
		return nil, err
	}

	m.emit(ctx, ClaimedFees{
		PositionID: p.ID,
		Owner:      owner,
		Recipient:  params.Recipient,
		Amount0:    out0,
		Amount1:    out1,
		Fee0:       fee0,
		Fee1:       fee1,
	})

	return &ClaimResult{Amount0: out0, Amount1: out1, Fee0: fee0, Fee1: fee1}, nil
}

// ClaimFeesInToken claims accrued fees with the payout converted into
// a single pool asset through the venue. The conversion is priced with
// a venue quote before anything is pulled, so an unmet minimum output
// fails the operation with no value moved.
func (m *Manager) ClaimFeesInToken(ctx context.Context, caller common.Address, params ClaimInTokenParams) (*ClaimInTokenResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.activePosition(params.PositionID)
	if err != nil {
		return nil, err
	}
	owner, err := m.requireOwner(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}
	if params.Recipient == (common.Address{}) {
		return nil, ErrZeroRecipient
	}

	key := p.PoolKey
	zeroForOne, err := directionFor(key, params.TokenOut)
	if err != nil {
		return nil, err
	}

	if err := m.syncFees(ctx, p); err != nil {
		return nil, err
	}

	gross0 := new(big.Int).Set(p.TokensOwed0)
	gross1 := new(big.Int).Set(p.TokensOwed1)
	fee0, fee1, net0, net1 := m.skimFees(gross0, gross1, FeeOnClaim)

	est, err := m.estimateConvert(ctx, key, zeroForOne, net0, net1)
	if err != nil {
		return nil, err
	}
	if belowMin(est, params.MinOut) {
		return nil, ErrMinAmountOut
	}

	if err := m.pullBoth(ctx, key, m.venue.Account(), gross0, gross1); err != nil {
		return nil, err
	}
	if err := m.pushBoth(ctx, key, m.fees.Recipient(), fee0, fee1); err != nil {
		return nil, err
	}

	total, err := m.convertOut(ctx, key, zeroForOne, net0, net1)
	if err != nil {
		return nil, err
	}
	if total.Sign() > 0 {
		if err := m.vault.Push(ctx, params.TokenOut, params.Recipient, total); err != nil {
			return nil, fmt.Errorf("push payout: %w", err)
		}
	}

	p.TokensOwed0.SetInt64(0)
	p.TokensOwed1.SetInt64(0)
	if err := m.store.Put(p); err != nil {
		return nil, fmt.Errorf("store position: %w", err)
	}
	if err := m.settle(ctx, key); err != nil {
		return nil, err
	}

	m.emit(ctx, ClaimedFeesInToken{
		PositionID: p.ID,
		Owner:      owner,
		Recipient:  params.Recipient,
		TokenOut:   params.TokenOut.Address,
		AmountOut:  total,
		Fee0:       fee0,
		Fee1:       fee1,
	})

	return &ClaimInTokenResult{AmountOut: total, Fee0: fee0, Fee1: fee1}, nil
}

// directionFor resolves which pool asset converts into tokenOut.
func directionFor(key amm.PoolKey, tokenOut amm.Currency) (bool, error) {
	switch tokenOut {
	case key.Currency1:
		return true, nil // the asset0 side converts into asset1
	case key.Currency0:
		return false, nil
	default:
		return false, ErrInvalidTokenOut
	}
}

// convertOut swaps the unwanted side of a payout into the requested
// one and returns the combined single-asset total held by the manager.
func (m *Manager) convertOut(ctx context.Context, key amm.PoolKey, zeroForOne bool, net0, net1 *big.Int) (*big.Int, error) {
	assetIn, amountIn, total := key.Currency0, net0, new(big.Int).Set(net1)
	if !zeroForOne {
		assetIn, amountIn, total = key.Currency1, net1, new(big.Int).Set(net0)
	}
	if amountIn.Sign() == 0 {
		return total, nil
	}

	if err := m.vault.Push(ctx, assetIn, m.venue.Account(), amountIn); err != nil {
		return nil, fmt.Errorf("push swap input: %w", err)
	}
	swapOut, err := m.venue.Swap(ctx, key, zeroForOne, amountIn)
	if err != nil {
		return nil, fmt.Errorf("venue swap: %w", err)
	}
	if swapOut.Sign() > 0 {
		assetOut := key.Currency1
		if !zeroForOne {
			assetOut = key.Currency0
		}
		if err := m.vault.Pull(ctx, assetOut, m.venue.Account(), swapOut); err != nil {
			return nil, fmt.Errorf("pull swap output: %w", err)
		}
	}
	return total.Add(total, swapOut), nil
}

// estimateConvert prices what convertOut would return for the same
// inputs, using a venue quote instead of a swap. No value moves.
func (m *Manager) estimateConvert(ctx context.Context, key amm.PoolKey, zeroForOne bool, net0, net1 *big.Int) (*big.Int, error) {
	amountIn, total := net0, new(big.Int).Set(net1)
	if !zeroForOne {
		amountIn, total = net1, new(big.Int).Set(net0)
	}
	if amountIn.Sign() == 0 {
		return total, nil
	}

	quoted, err := m.venue.Quote(ctx, key, zeroForOne, amountIn)
	if err != nil {
		return nil, fmt.Errorf("venue quote: %w", err)
	}
	return total.Add(total, quoted), nil
}

// CompoundFees reinvests the position's accrued fees as additional
// liquidity over the same range. Only the protocol fee leaves the
// venue; the reinvested remainder never touches the vault.
func (m *Manager) CompoundFees(ctx context.Context, caller common.Address, positionID PositionID, minLiquidity *big.Int) (*CompoundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.activePosition(positionID)
	if err != nil {
		return nil, err
	}
	owner, err := m.requireOwner(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}

	if err := m.syncFees(ctx, p); err != nil {
		return nil, err
	}

	gross0 := new(big.Int).Set(p.TokensOwed0)
	gross1 := new(big.Int).Set(p.TokensOwed1)
	fee0, fee1, net0, net1 := m.skimFees(gross0, gross1, FeeOnClaim)

	key := p.PoolKey
	pool, err := m.venue.Pool(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("pool lookup: %w", err)
	}

	liquidity, err := amm.LiquidityForAmounts(pool.SqrtPriceX96, p.TickLower, p.TickUpper, net0, net1)
	if err != nil {
		return nil, err
	}
	if liquidity.Sign() == 0 {
		return nil, ErrNothingToCompound
	}
	if belowMin(liquidity, minLiquidity) {
		return nil, ErrMinLiquidity
	}
	// The position's total liquidity must stay within the 128-bit range.
	if new(big.Int).Add(p.Liquidity, liquidity).Cmp(amm.MaxUint128) > 0 {
		return nil, amm.ErrLiquidityOverflow
	}

	used0, used1, err := m.venue.Mint(ctx, key, p.TickLower, p.TickUpper, liquidity)
	if err != nil {
		return nil, fmt.Errorf("venue mint: %w", err)
	}
	leftover0 := new(big.Int).Sub(net0, used0)
	leftover1 := new(big.Int).Sub(net1, used1)
	if leftover0.Sign() < 0 || leftover1.Sign() < 0 {
		return nil, m.unwindMint(ctx, key, p.TickLower, p.TickUpper, liquidity, ErrSettlementFailed)
	}

	// Only the protocol fee moves through the vault. A failure after the
	// mint unwinds it and returns the fee to the venue's reserves.
	if err := m.pullBoth(ctx, key, m.venue.Account(), fee0, fee1); err != nil {
		return nil, m.unwindMint(ctx, key, p.TickLower, p.TickUpper, liquidity, err)
	}
	if err := m.pushBoth(ctx, key, m.fees.Recipient(), fee0, fee1); err != nil {
		if perr := m.pushBoth(ctx, key, m.venue.Account(), fee0, fee1); perr != nil {
			m.log.Error("protocol fee return failed", "cause", err, "err", perr)
		}
		return nil, m.unwindMint(ctx, key, p.TickLower, p.TickUpper, liquidity, err)
	}

	before := new(big.Int).Set(p.Liquidity)
	p.Liquidity.Add(p.Liquidity, liquidity)
	p.TokensOwed0.Set(leftover0)
	p.TokensOwed1.Set(leftover1)
	if err := m.store.Put(p); err != nil {
		err = fmt.Errorf("store position: %w", err)
		if perr := m.pullBoth(ctx, key, m.fees.Recipient(), fee0, fee1); perr != nil {
			m.log.Error("protocol fee recovery failed", "cause", err, "err", perr)
		} else if perr := m.pushBoth(ctx, key, m.venue.Account(), fee0, fee1); perr != nil {
			m.log.Error("protocol fee return failed", "cause", err, "err", perr)
		}
		return nil, m.unwindMint(ctx, key, p.TickLower, p.TickUpper, liquidity, err)
	}
	if err := m.settle(ctx, key); err != nil {
		return nil, err
	}

	m.emit(ctx, CompoundedFees{
		PositionID:      p.ID,
		Owner:           owner,
		Liquidity:       liquidity,
		LiquidityBefore: before,
		LiquidityAfter:  p.Liquidity,
		Amount0:         used0,
		Amount1:         used1,
		Fee0:            fee0,
		Fee1:            fee1,
	})

	return &CompoundResult{
		Liquidity:      liquidity,
		LiquidityAfter: new(big.Int).Set(p.Liquidity),
		Amount0:        used0,
		Amount1:        used1,
		Fee0:           fee0,
		Fee1:           fee1,
		Leftover0:      leftover0,
		Leftover1:      leftover1,
	}, nil
}

// MoveRange atomically withdraws all principal and fees from a
// position, retires it, and recreates it over the new range. The old
// identifier is invalidated; value is preserved modulo re-deposit
// rounding, with any remainder carried as unclaimed balances on the
// new position. If the re-deposit cannot proceed, the original
// liquidity is re-minted over the old range and the position is left
// untouched; bookkeeping failures after the re-deposit unwind it the
// same way. The retired record and its replacement land in a single
// batched write, so neither exists without the other.
func (m *Manager) MoveRange(ctx context.Context, caller common.Address, params MoveRangeParams) (*MoveRangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.activePosition(params.PositionID)
	if err != nil {
		return nil, err
	}
	owner, err := m.requireOwner(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}
	if params.Owner == (common.Address{}) {
		return nil, ErrZeroRecipient
	}

	key := p.PoolKey
	if err := amm.CheckTicks(params.NewTickLower, params.NewTickUpper, key.TickSpacing); err != nil {
		return nil, err
	}

	if err := m.syncFees(ctx, p); err != nil {
		return nil, err
	}

	if _, _, err := m.venue.Burn(ctx, key, p.TickLower, p.TickUpper, p.Liquidity); err != nil {
		return nil, fmt.Errorf("venue burn: %w", err)
	}
	col0, col1, err := m.venue.Collect(ctx, key, p.TickLower, p.TickUpper)
	if err != nil {
		return nil, fmt.Errorf("venue collect: %w", err)
	}

	// From here on a failure must restore the burned liquidity. The
	// amount is snapshotted because the record is zeroed before the
	// final write.
	removed := new(big.Int).Set(p.Liquidity)
	compensate := func(cause error) error {
		return m.remint(ctx, key, p.TickLower, p.TickUpper, removed, cause)
	}

	total0 := new(big.Int).Add(col0, p.TokensOwed0)
	total1 := new(big.Int).Add(col1, p.TokensOwed1)

	pool, err := m.venue.Pool(ctx, key)
	if err != nil {
		return nil, compensate(fmt.Errorf("pool lookup: %w", err))
	}

	liquidity, err := amm.LiquidityForAmounts(pool.SqrtPriceX96, params.NewTickLower, params.NewTickUpper, total0, total1)
	if err != nil {
		return nil, compensate(err)
	}
	if liquidity.Sign() == 0 {
		return nil, compensate(amm.ErrZeroLiquidity)
	}
	if belowMin(liquidity, params.MinLiquidity) {
		return nil, compensate(ErrMinLiquidity)
	}

	used0, used1, err := m.venue.Mint(ctx, key, params.NewTickLower, params.NewTickUpper, liquidity)
	if err != nil {
		return nil, compensate(fmt.Errorf("venue mint: %w", err))
	}
	leftover0 := new(big.Int).Sub(total0, used0)
	leftover1 := new(big.Int).Sub(total1, used1)
	if leftover0.Sign() < 0 || leftover1.Sign() < 0 {
		err := m.unwindMint(ctx, key, params.NewTickLower, params.NewTickUpper, liquidity, ErrSettlementFailed)
		return nil, compensate(err)
	}

	oldID := p.ID
	oldLower, oldUpper := p.TickLower, p.TickUpper

	// Bookkeeping failures below also unwind the new-range mint.
	abort := func(cause error) error {
		cause = m.unwindMint(ctx, key, params.NewTickLower, params.NewTickUpper, liquidity, cause)
		return compensate(cause)
	}

	newID, err := m.mintPositionID(key.ID(), params.Owner, params.NewTickLower, params.NewTickUpper)
	if err != nil {
		return nil, abort(err)
	}
	growth0, growth1, err := m.venue.FeeGrowthInside(ctx, key, params.NewTickLower, params.NewTickUpper)
	if err != nil {
		return nil, abort(fmt.Errorf("fee growth lookup: %w", err))
	}
	if err := m.registry.Mint(ctx, newID, params.Owner); err != nil {
		return nil, abort(fmt.Errorf("registry mint: %w", err))
	}
	if err := m.registry.Burn(ctx, oldID); err != nil {
		if rerr := m.registry.Burn(ctx, newID); rerr != nil {
			m.log.Error("registry rollback failed", "position", newID, "err", rerr)
		}
		return nil, abort(fmt.Errorf("registry burn: %w", err))
	}

	replacement := &Position{
		ID:             newID,
		PoolKey:        key,
		TickLower:      params.NewTickLower,
		TickUpper:      params.NewTickUpper,
		Liquidity:      liquidity,
		FeeGrowth0Last: growth0.Clone(),
		FeeGrowth1Last: growth1.Clone(),
		TokensOwed0:    leftover0,
		TokensOwed1:    leftover1,
		CreatedAt:      uint64(m.now().Unix()),
	}
	p.Liquidity.SetInt64(0)
	p.TokensOwed0.SetInt64(0)
	p.TokensOwed1.SetInt64(0)
	p.Retired = true
	if err := m.store.PutPair(p, replacement); err != nil {
		if rerr := m.registry.Mint(ctx, oldID, owner); rerr != nil {
			m.log.Error("registry rollback failed", "position", oldID, "err", rerr)
		}
		if rerr := m.registry.Burn(ctx, newID); rerr != nil {
			m.log.Error("registry rollback failed", "position", newID, "err", rerr)
		}
		return nil, abort(fmt.Errorf("store position: %w", err))
	}

	// The whole move is venue-internal; the vault never held value.
	if err := m.settle(ctx, key); err != nil {
		return nil, err
	}

	m.emit(ctx, RangeMoved{
		OldPositionID: oldID,
		NewPositionID: newID,
		Owner:         params.Owner,
		OldTickLower:  oldLower,
		OldTickUpper:  oldUpper,
		NewTickLower:  params.NewTickLower,
		NewTickUpper:  params.NewTickUpper,
		Liquidity:     liquidity,
		Amount0:       used0,
		Amount1:       used1,
		Leftover0:     leftover0,
		Leftover1:     leftover1,
	})

	return &MoveRangeResult{
		OldPositionID: oldID,
		NewPositionID: newID,
		Liquidity:     liquidity,
		Amount0:       used0,
		Amount1:       used1,
		Leftover0:     leftover0,
		Leftover1:     leftover1,
	}, nil
}

// Withdraw removes a proportion of the position's liquidity and pays
// out the released principal plus all unclaimed fees. The protocol fee
// applies to the fee portion only. A withdrawal of the full amount
// retires the position and burns its registry entry.
func (m *Manager) Withdraw(ctx context.Context, caller common.Address, params WithdrawParams) (*WithdrawResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.activePosition(params.PositionID)
	if err != nil {
		return nil, err
	}
	owner, err := m.requireOwner(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}
	if params.Recipient == (common.Address{}) {
		return nil, ErrZeroRecipient
	}
	if params.Percent == 0 || params.Percent > PrecisionBps {
		return nil, ErrInvalidPercent
	}

	if err := m.syncFees(ctx, p); err != nil {
		return nil, err
	}

	removeL := removedLiquidity(p.Liquidity, params.Percent)
	key := p.PoolKey

	pool, err := m.venue.Pool(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("pool lookup: %w", err)
	}

	// Estimate the burn proceeds before touching the venue so slippage
	// failures move no value. The venue rounds the same way.
	est0, est1, err := amm.AmountsForLiquidity(pool.SqrtPriceX96, p.TickLower, p.TickUpper, removeL, false)
	if err != nil {
		return nil, err
	}
	fee0 := m.fees.CalculateFee(p.TokensOwed0, FeeOnClaim)
	fee1 := m.fees.CalculateFee(p.TokensOwed1, FeeOnClaim)
	estOut0 := new(big.Int).Sub(new(big.Int).Add(est0, p.TokensOwed0), fee0)
	estOut1 := new(big.Int).Sub(new(big.Int).Add(est1, p.TokensOwed1), fee1)
	if belowMin(estOut0, params.MinOut0) || belowMin(estOut1, params.MinOut1) {
		return nil, ErrMinAmountOut
	}

	col0, col1, err := m.burnAndCollect(ctx, key, p.TickLower, p.TickUpper, removeL)
	if err != nil {
		return nil, err
	}

	gross0 := new(big.Int).Add(col0, p.TokensOwed0)
	gross1 := new(big.Int).Add(col1, p.TokensOwed1)
	out0 := new(big.Int).Sub(gross0, fee0)
	out1 := new(big.Int).Sub(gross1, fee1)

	if err := m.pullBoth(ctx, key, m.venue.Account(), gross0, gross1); err != nil {
		return nil, m.remint(ctx, key, p.TickLower, p.TickUpper, removeL, err)
	}
	if err := m.pushBoth(ctx, key, m.fees.Recipient(), fee0, fee1); err != nil {
		return nil, err
	}
	if err := m.pushBoth(ctx, key, params.Recipient, out0, out1); err != nil {
		return nil, err
	}

	before := new(big.Int).Set(p.Liquidity)
	retired, err := m.debitPosition(ctx, p, removeL, params.Percent)
	if err != nil {
		return nil, err
	}
	if err := m.settle(ctx, key); err != nil {
		return nil, err
	}

	m.emit(ctx, Withdrawn{
		PositionID:      p.ID,
		Owner:           owner,
		Recipient:       params.Recipient,
		Percent:         params.Percent,
		Amount0:         out0,
		Amount1:         out1,
		Fee0:            fee0,
		Fee1:            fee1,
		LiquidityBefore: before,
		LiquidityAfter:  p.Liquidity,
		Retired:         retired,
	})

	return &WithdrawResult{
		Amount0:          out0,
		Amount1:          out1,
		Fee0:             fee0,
		Fee1:             fee1,
		LiquidityRemoved: removeL,
		LiquidityAfter:   new(big.Int).Set(p.Liquidity),
		Retired:          retired,
	}, nil
}

// WithdrawInToken withdraws with the payout converted into a single
// pool asset through the venue. As with Withdraw, the proceeds are
// estimated and the conversion priced before the burn, so an unmet
// minimum output moves no value.
func (m *Manager) WithdrawInToken(ctx context.Context, caller common.Address, params WithdrawInTokenParams) (*WithdrawInTokenResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.activePosition(params.PositionID)
	if err != nil {
		return nil, err
	}
	owner, err := m.requireOwner(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}
	if params.Recipient == (common.Address{}) {
		return nil, ErrZeroRecipient
	}
	if params.Percent == 0 || params.Percent > PrecisionBps {
		return nil, ErrInvalidPercent
	}

	key := p.PoolKey
	zeroForOne, err := directionFor(key, params.TokenOut)
	if err != nil {
		return nil, err
	}

	if err := m.syncFees(ctx, p); err != nil {
		return nil, err
	}

	removeL := removedLiquidity(p.Liquidity, params.Percent)

	pool, err := m.venue.Pool(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("pool lookup: %w", err)
	}

	// Estimate the burn proceeds and price their conversion before
	// touching the venue so slippage failures move no value. The venue
	// rounds and quotes the same way it settles.
	est0, est1, err := amm.AmountsForLiquidity(pool.SqrtPriceX96, p.TickLower, p.TickUpper, removeL, false)
	if err != nil {
		return nil, err
	}
	fee0 := m.fees.CalculateFee(p.TokensOwed0, FeeOnClaim)
	fee1 := m.fees.CalculateFee(p.TokensOwed1, FeeOnClaim)
	estNet0 := new(big.Int).Sub(new(big.Int).Add(est0, p.TokensOwed0), fee0)
	estNet1 := new(big.Int).Sub(new(big.Int).Add(est1, p.TokensOwed1), fee1)

	// The conversion swaps against the liquidity left after the burn; a
	// withdrawal that drains the pool's active liquidity cannot settle
	// in one asset.
	convertIn := estNet0
	if !zeroForOne {
		convertIn = estNet1
	}
	if convertIn.Sign() > 0 && p.InRange(pool.Tick) &&
		new(big.Int).Sub(pool.Liquidity, removeL).Sign() == 0 {
		return nil, ErrNoSwapLiquidity
	}

	est, err := m.estimateConvert(ctx, key, zeroForOne, estNet0, estNet1)
	if err != nil {
		return nil, err
	}
	if belowMin(est, params.MinOut) {
		return nil, ErrMinAmountOut
	}

	col0, col1, err := m.burnAndCollect(ctx, key, p.TickLower, p.TickUpper, removeL)
	if err != nil {
		return nil, err
	}
	gross0 := new(big.Int).Add(col0, p.TokensOwed0)
	gross1 := new(big.Int).Add(col1, p.TokensOwed1)
	net0 := new(big.Int).Sub(gross0, fee0)
	net1 := new(big.Int).Sub(gross1, fee1)

	if err := m.pullBoth(ctx, key, m.venue.Account(), gross0, gross1); err != nil {
		return nil, m.remint(ctx, key, p.TickLower, p.TickUpper, removeL, err)
	}
	if err := m.pushBoth(ctx, key, m.fees.Recipient(), fee0, fee1); err != nil {
		return nil, err
	}

	total, err := m.convertOut(ctx, key, zeroForOne, net0, net1)
	if err != nil {
		return nil, err
	}
	if total.Sign() > 0 {
		if err := m.vault.Push(ctx, params.TokenOut, params.Recipient, total); err != nil {
			return nil, fmt.Errorf("push payout: %w", err)
		}
	}

	before := new(big.Int).Set(p.Liquidity)
	retired, err := m.debitPosition(ctx, p, removeL, params.Percent)
	if err != nil {
		return nil, err
	}
	if err := m.settle(ctx, key); err != nil {
		return nil, err
	}

	amount0, amount1 := big.NewInt(0), total
	if !zeroForOne {
		amount0, amount1 = total, big.NewInt(0)
	}
	m.emit(ctx, Withdrawn{
		PositionID:      p.ID,
		Owner:           owner,
		Recipient:       params.Recipient,
		Percent:         params.Percent,
		Amount0:         amount0,
		Amount1:         amount1,
		Fee0:            fee0,
		Fee1:            fee1,
		LiquidityBefore: before,
		LiquidityAfter:  p.Liquidity,
		Retired:         retired,
	})

	return &WithdrawInTokenResult{
		AmountOut:        total,
		Fee0:             fee0,
		Fee1:             fee1,
		LiquidityRemoved: removeL,
		LiquidityAfter:   new(big.Int).Set(p.Liquidity),
		Retired:          retired,
	}, nil
}

// burnAndCollect releases removeL of liquidity and returns the
// collected amounts. A zero removal collects nothing.
func (m *Manager) burnAndCollect(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32, removeL *big.Int) (*big.Int, *big.Int, error) {
	if removeL.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	if _, _, err := m.venue.Burn(ctx, key, tickLower, tickUpper, removeL); err != nil {
		return nil, nil, fmt.Errorf("venue burn: %w", err)
	}
	col0, col1, err := m.venue.Collect(ctx, key, tickLower, tickUpper)
	if err != nil {
		return nil, nil, fmt.Errorf("venue collect: %w", err)
	}
	return col0, col1, nil
}

// debitPosition applies a withdrawal to the stored position, retiring
// it when the full amount was removed.
func (m *Manager) debitPosition(ctx context.Context, p *Position, removeL *big.Int, percent uint64) (bool, error) {
	p.Liquidity.Sub(p.Liquidity, removeL)
	p.TokensOwed0.SetInt64(0)
	p.TokensOwed1.SetInt64(0)
	retired := percent == PrecisionBps
	if retired {
		p.Retired = true
	}
	if err := m.store.Put(p); err != nil {
		return false, fmt.Errorf("store position: %w", err)
	}
	if retired {
		if err := m.registry.Burn(ctx, p.ID); err != nil {
			return false, fmt.Errorf("registry burn: %w", err)
		}
	}
	return retired, nil
}

// removedLiquidity computes the liquidity share for a withdraw
// percent. A full withdraw removes the exact remaining liquidity.
func removedLiquidity(liquidity *big.Int, percent uint64) *big.Int {
	if percent == PrecisionBps {
		return new(big.Int).Set(liquidity)
	}
	removed := new(big.Int).Mul(liquidity, new(big.Int).SetUint64(percent))
	return removed.Div(removed, new(big.Int).SetUint64(PrecisionBps))
}
