// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simpool

import (
	"context"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/alm/amm"
)

var (
	asset0 = amm.Currency{Address: common.HexToAddress("0x01")}
	asset1 = amm.Currency{Address: common.HexToAddress("0x02")}

	venueAddr   = common.HexToAddress("0xaa")
	managerAddr = common.HexToAddress("0xbb")
)

func testPoolKey(t *testing.T) amm.PoolKey {
	t.Helper()
	key := amm.PoolKey{
		Currency0:   asset0,
		Currency1:   asset1,
		Fee:         3000,
		TickSpacing: 60,
	}
	require.NoError(t, key.Validate())
	return key
}

func newTestVenue(t *testing.T, startTick int32) (*Venue, *Vault, amm.PoolKey) {
	t.Helper()
	vault := NewVault(managerAddr)
	venue := NewVenue(venueAddr, vault)
	key := testPoolKey(t)
	sqrtPrice, err := amm.TickToSqrtPriceX96(startTick)
	require.NoError(t, err)
	require.NoError(t, venue.CreatePool(key, sqrtPrice))
	return venue, vault, key
}

func TestCreatePool(t *testing.T) {
	require := require.New(t)
	venue, _, key := newTestVenue(t, 0)
	ctx := context.Background()

	pool, err := venue.Pool(ctx, key)
	require.NoError(err)
	require.Equal(int32(0), pool.Tick)
	require.Equal(amm.Q96, pool.SqrtPriceX96)
	require.Zero(pool.Liquidity.Sign())

	sqrtPrice, err := amm.TickToSqrtPriceX96(0)
	require.NoError(err)
	require.ErrorIs(venue.CreatePool(key, sqrtPrice), ErrPoolExists)

	_, err = venue.Pool(ctx, amm.PoolKey{})
	require.ErrorIs(err, ErrPoolNotFound)
}

func TestMintBurnCollect(t *testing.T) {
	require := require.New(t)
	venue, _, key := newTestVenue(t, 0)
	ctx := context.Background()

	liquidity := big.NewInt(1_000_000)
	amount0, amount1, err := venue.Mint(ctx, key, -600, 600, liquidity)
	require.NoError(err)
	require.Positive(amount0.Sign())
	require.Positive(amount1.Sign())

	pool, err := venue.Pool(ctx, key)
	require.NoError(err)
	require.Equal(liquidity, pool.Liquidity)

	burned0, burned1, err := venue.Burn(ctx, key, -600, 600, liquidity)
	require.NoError(err)
	require.True(burned0.Cmp(amount0) <= 0)
	require.True(burned1.Cmp(amount1) <= 0)

	pool, err = venue.Pool(ctx, key)
	require.NoError(err)
	require.Zero(pool.Liquidity.Sign())

	col0, col1, err := venue.Collect(ctx, key, -600, 600)
	require.NoError(err)
	require.Equal(burned0, col0)
	require.Equal(burned1, col1)

	// Collect is clearing; a second call returns nothing.
	col0, col1, err = venue.Collect(ctx, key, -600, 600)
	require.NoError(err)
	require.Zero(col0.Sign())
	require.Zero(col1.Sign())
}

func TestMintOutOfRangeLeavesActiveLiquidity(t *testing.T) {
	require := require.New(t)
	venue, _, key := newTestVenue(t, 0)
	ctx := context.Background()

	_, _, err := venue.Mint(ctx, key, 600, 1200, big.NewInt(500))
	require.NoError(err)

	pool, err := venue.Pool(ctx, key)
	require.NoError(err)
	require.Zero(pool.Liquidity.Sign())
}

func TestAccrueFees(t *testing.T) {
	require := require.New(t)
	venue, vault, key := newTestVenue(t, 0)
	ctx := context.Background()

	liquidity := new(big.Int)
	liquidity.SetString("1000000000000000000", 10)
	_, _, err := venue.Mint(ctx, key, -600, 600, liquidity)
	require.NoError(err)

	fee0 := new(big.Int)
	fee0.SetString("500000000000000000", 10)
	require.NoError(venue.AccrueFees(key, fee0, big.NewInt(0)))

	inside0, inside1, err := venue.FeeGrowthInside(ctx, key, -600, 600)
	require.NoError(err)
	require.Zero(inside1.Sign())

	// 5e17 over 1e18 liquidity is exactly half of one X128 unit.
	want := new(big.Int).Lsh(big.NewInt(1), 127)
	require.Equal(want, inside0.ToBig())

	// The payout is pre-funded at the venue account.
	bal, err := vault.Balance(ctx, key.Currency0, venueAddr)
	require.NoError(err)
	require.Equal(fee0, bal)

	// A range above the current tick sees none of the growth.
	out0, out1, err := venue.FeeGrowthInside(ctx, key, 600, 1200)
	require.NoError(err)
	require.Zero(out0.Sign())
	require.Zero(out1.Sign())
}

func TestAccrueFeesNoLiquidity(t *testing.T) {
	venue, _, key := newTestVenue(t, 0)
	err := venue.AccrueFees(key, big.NewInt(100), big.NewInt(100))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSetPriceCrossesTicks(t *testing.T) {
	require := require.New(t)
	venue, _, key := newTestVenue(t, 0)
	ctx := context.Background()

	liquidity := big.NewInt(1000)
	_, _, err := venue.Mint(ctx, key, -60, 60, liquidity)
	require.NoError(err)
	require.NoError(venue.AccrueFees(key, big.NewInt(1_000_000), big.NewInt(0)))

	insideBefore, _, err := venue.FeeGrowthInside(ctx, key, -60, 60)
	require.NoError(err)
	require.Positive(insideBefore.Sign())

	// Moving above the range deactivates its liquidity.
	above, err := amm.TickToSqrtPriceX96(120)
	require.NoError(err)
	require.NoError(venue.SetPrice(key, above))

	pool, err := venue.Pool(ctx, key)
	require.NoError(err)
	require.Zero(pool.Liquidity.Sign())
	require.Equal(int32(120), pool.Tick)

	// Moving back reactivates it and restores the growth view.
	back, err := amm.TickToSqrtPriceX96(0)
	require.NoError(err)
	require.NoError(venue.SetPrice(key, back))

	pool, err = venue.Pool(ctx, key)
	require.NoError(err)
	require.Equal(liquidity, pool.Liquidity)

	insideAfter, _, err := venue.FeeGrowthInside(ctx, key, -60, 60)
	require.NoError(err)
	require.Equal(insideBefore, insideAfter)
}

func TestSwapSpotPrice(t *testing.T) {
	require := require.New(t)
	venue, vault, key := newTestVenue(t, 0)
	ctx := context.Background()

	liquidity := new(big.Int)
	liquidity.SetString("1000000000000000000", 10)
	_, _, err := venue.Mint(ctx, key, -600, 600, liquidity)
	require.NoError(err)

	// At a 1:1 price only the 0.3% pool fee is lost.
	out, err := venue.Swap(ctx, key, true, big.NewInt(1_000_000))
	require.NoError(err)
	require.Equal(big.NewInt(997_000), out)

	bal, err := vault.Balance(ctx, key.Currency1, venueAddr)
	require.NoError(err)
	require.Equal(out, bal)

	inside0, _, err := venue.FeeGrowthInside(ctx, key, -600, 600)
	require.NoError(err)
	require.Positive(inside0.Sign())

	out, err = venue.Swap(ctx, key, false, big.NewInt(0))
	require.NoError(err)
	require.Zero(out.Sign())
}

func TestSwapNoLiquidity(t *testing.T) {
	venue, _, key := newTestVenue(t, 0)
	_, err := venue.Swap(context.Background(), key, true, big.NewInt(1000))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestQuoteMatchesSwap(t *testing.T) {
	require := require.New(t)
	venue, vault, key := newTestVenue(t, 0)
	ctx := context.Background()

	liquidity := new(big.Int)
	liquidity.SetString("1000000000000000000", 10)
	_, _, err := venue.Mint(ctx, key, -600, 600, liquidity)
	require.NoError(err)

	quoted, err := venue.Quote(ctx, key, true, big.NewInt(1_000_000))
	require.NoError(err)
	require.Equal(big.NewInt(997_000), quoted)

	// Quoting is read-only: no payout credited, no fee growth.
	bal, err := vault.Balance(ctx, key.Currency1, venueAddr)
	require.NoError(err)
	require.Zero(bal.Sign())
	inside0, _, err := venue.FeeGrowthInside(ctx, key, -600, 600)
	require.NoError(err)
	require.Zero(inside0.Sign())

	// Executing the same swap pays exactly the quoted amount.
	out, err := venue.Swap(ctx, key, true, big.NewInt(1_000_000))
	require.NoError(err)
	require.Equal(quoted, out)

	zero, err := venue.Quote(ctx, key, false, big.NewInt(0))
	require.NoError(err)
	require.Zero(zero.Sign())
}

func TestQuoteNoLiquidity(t *testing.T) {
	venue, _, key := newTestVenue(t, 0)
	_, err := venue.Quote(context.Background(), key, true, big.NewInt(1000))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}
