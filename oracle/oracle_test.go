// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	tokenB = common.HexToAddress("0x0000000000000000000000000000000000000a02")

	nativeAsset  = common.Address{}
	wrappedAsset = common.HexToAddress("0x0000000000000000000000000000000000000077")

	adminAddr = common.HexToAddress("0x0000000000000000000000000000000000000300")
	aliceAddr = common.HexToAddress("0x0000000000000000000000000000000000000500")
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big literal: " + s)
	}
	return v
}

func TestAdapterValuation(t *testing.T) {
	ctx := context.Background()

	static := NewStaticOracle(8)
	static.SetPrice(tokenA, big.NewInt(2500_00000000)) // 2500 per whole token
	static.SetPrice(tokenB, big.NewInt(1_00000000))    // 1 per whole token

	adapter, err := NewAdapter(static)
	require.NoError(t, err)
	adapter.RegisterAsset(tokenB, 6)

	// 1.5 of an 18-decimal asset at 2500.
	value, err := adapter.ValueInCommonUnit(ctx, tokenA, mustBig("1500000000000000000"))
	require.NoError(t, err)
	require.Equal(t, "3750000000000000000000", value.String())

	// 2.5 of a 6-decimal asset at 1.
	value, err = adapter.ValueInCommonUnit(ctx, tokenB, big.NewInt(2_500_000))
	require.NoError(t, err)
	require.Equal(t, "2500000000000000000", value.String())
}

func TestAdapterRoundsDown(t *testing.T) {
	ctx := context.Background()

	static := NewStaticOracle(8)
	static.SetPrice(tokenA, big.NewInt(333)) // 0.00000333 per whole token

	adapter, err := NewAdapter(static)
	require.NoError(t, err)

	// One wei of an 18-decimal asset is worth less than the smallest
	// common-unit increment.
	value, err := adapter.ValueInCommonUnit(ctx, tokenA, big.NewInt(1))
	require.NoError(t, err)
	require.Zero(t, value.Sign())
}

func TestAdapterValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewAdapter(nil)
	require.ErrorIs(t, err, ErrNoOracle)

	static := NewStaticOracle(8)
	adapter, err := NewAdapter(static)
	require.NoError(t, err)

	_, err = adapter.ValueInCommonUnit(ctx, tokenA, nil)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = adapter.ValueInCommonUnit(ctx, tokenA, big.NewInt(-1))
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Zero amounts short-circuit before any price lookup.
	value, err := adapter.ValueInCommonUnit(ctx, tokenA, big.NewInt(0))
	require.NoError(t, err)
	require.Zero(t, value.Sign())

	// Nonzero amounts of an unpriced asset fail.
	_, err = adapter.ValueInCommonUnit(ctx, tokenA, big.NewInt(1))
	require.ErrorIs(t, err, ErrPriceNotFound)

	static.SetPrice(tokenA, big.NewInt(-5))
	_, err = adapter.ValueInCommonUnit(ctx, tokenA, big.NewInt(1))
	require.ErrorIs(t, err, ErrBadPrice)
}

func TestWrappedAdapterSubstitutesNative(t *testing.T) {
	ctx := context.Background()

	static := NewStaticOracle(8)
	static.SetPrice(nativeAsset, big.NewInt(3000_00000000))
	static.SetPrice(tokenA, big.NewInt(2_00000000))

	inner, err := NewAdapter(static)
	require.NoError(t, err)

	wrapped, err := NewWrappedAdapter(adminAddr, inner, wrappedAsset, nativeAsset)
	require.NoError(t, err)

	one := mustBig("1000000000000000000")

	// The wrapped asset is valued as native.
	viaWrapped, err := wrapped.ValueInCommonUnit(ctx, wrappedAsset, one)
	require.NoError(t, err)
	viaNative, err := wrapped.ValueInCommonUnit(ctx, nativeAsset, one)
	require.NoError(t, err)
	require.Equal(t, viaNative.String(), viaWrapped.String())
	require.Equal(t, "3000000000000000000000", viaWrapped.String())

	// Other assets pass through untouched.
	value, err := wrapped.ValueInCommonUnit(ctx, tokenA, one)
	require.NoError(t, err)
	require.Equal(t, "2000000000000000000", value.String())
}

func TestWrappedAdapterSetSource(t *testing.T) {
	ctx := context.Background()

	static := NewStaticOracle(8)
	static.SetPrice(nativeAsset, big.NewInt(3000_00000000))
	inner, err := NewAdapter(static)
	require.NoError(t, err)

	wrapped, err := NewWrappedAdapter(adminAddr, inner, wrappedAsset, nativeAsset)
	require.NoError(t, err)

	replacement := NewStaticOracle(8)
	replacement.SetPrice(nativeAsset, big.NewInt(4000_00000000))
	next, err := NewAdapter(replacement)
	require.NoError(t, err)

	// Only the admin may swap the source.
	require.ErrorIs(t, wrapped.SetSource(aliceAddr, next), ErrNotAdmin)
	require.ErrorIs(t, wrapped.SetSource(adminAddr, nil), ErrNoOracle)

	one := mustBig("1000000000000000000")
	value, err := wrapped.ValueInCommonUnit(ctx, wrappedAsset, one)
	require.NoError(t, err)
	require.Equal(t, "3000000000000000000000", value.String())

	require.NoError(t, wrapped.SetSource(adminAddr, next))

	value, err = wrapped.ValueInCommonUnit(ctx, wrappedAsset, one)
	require.NoError(t, err)
	require.Equal(t, "4000000000000000000000", value.String())
}
