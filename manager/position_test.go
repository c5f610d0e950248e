// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/alm/amm"
)

func testPosition() *Position {
	return &Position{
		ID: common.HexToHash("0x01"),
		PoolKey: amm.PoolKey{
			Currency0:   amm.Currency{Address: common.HexToAddress("0x0a")},
			Currency1:   amm.Currency{Address: common.HexToAddress("0x0b")},
			Fee:         3000,
			TickSpacing: 60,
		},
		TickLower:      -887220,
		TickUpper:      887220,
		Liquidity:      mustBig("123456789012345678901234567890"),
		FeeGrowth0Last: new(uint256.Int).Lsh(uint256.NewInt(7), 130),
		FeeGrowth1Last: new(uint256.Int).Lsh(uint256.NewInt(3), 200),
		TokensOwed0:    mustBig("987654321098765432109876"),
		TokensOwed1:    big.NewInt(1),
		Retired:        true,
		CreatedAt:      1756100000,
	}
}

func TestPositionCodecRoundTrip(t *testing.T) {
	require := require.New(t)

	p := testPosition()
	data := p.ToBytes()
	require.Len(data, positionRecordSize)

	got, err := PositionFromBytes(data)
	require.NoError(err)
	require.Equal(p.PoolKey, got.PoolKey)
	require.Equal(p.TickLower, got.TickLower)
	require.Equal(p.TickUpper, got.TickUpper)
	require.Equal(p.Liquidity, got.Liquidity)
	require.Equal(p.FeeGrowth0Last, got.FeeGrowth0Last)
	require.Equal(p.FeeGrowth1Last, got.FeeGrowth1Last)
	require.Equal(p.TokensOwed0, got.TokensOwed0)
	require.Equal(p.TokensOwed1, got.TokensOwed1)
	require.Equal(p.Retired, got.Retired)
	require.Equal(p.CreatedAt, got.CreatedAt)
}

func TestPositionFromBytesTruncated(t *testing.T) {
	_, err := PositionFromBytes(make([]byte, positionRecordSize-1))
	require.Error(t, err)
}

func TestPositionStore(t *testing.T) {
	require := require.New(t)
	store := NewPositionStore(memdb.New())

	p := testPosition()
	require.NoError(store.Put(p))

	got, err := store.Get(p.ID)
	require.NoError(err)
	require.Equal(p.ID, got.ID)
	require.Equal(p.Liquidity, got.Liquidity)
	require.True(got.Retired)

	ok, err := store.Has(p.ID)
	require.NoError(err)
	require.True(ok)

	_, err = store.Get(common.HexToHash("0x02"))
	require.ErrorIs(err, ErrPositionNotFound)

	ok, err = store.Has(common.HexToHash("0x02"))
	require.NoError(err)
	require.False(ok)
}

func TestPositionStorePutPair(t *testing.T) {
	require := require.New(t)
	store := NewPositionStore(memdb.New())

	// A retired record and its replacement land in one write.
	retired := testPosition()
	replacement := testPosition()
	replacement.ID = common.HexToHash("0x02")
	replacement.Retired = false
	replacement.Liquidity = big.NewInt(42)

	require.NoError(store.PutPair(retired, replacement))

	got, err := store.Get(retired.ID)
	require.NoError(err)
	require.True(got.Retired)

	got, err = store.Get(replacement.ID)
	require.NoError(err)
	require.False(got.Retired)
	require.Equal(big.NewInt(42), got.Liquidity)
}

func TestNextSequence(t *testing.T) {
	require := require.New(t)
	store := NewPositionStore(memdb.New())

	for want := uint64(0); want < 3; want++ {
		seq, err := store.NextSequence()
		require.NoError(err)
		require.Equal(want, seq)
	}
}

func TestComputePositionID(t *testing.T) {
	require := require.New(t)

	poolID := common.HexToHash("0xaa")
	owner := common.HexToAddress("0xbb")

	a := computePositionID(poolID, owner, -600, 600, 0)
	b := computePositionID(poolID, owner, -600, 600, 0)
	require.Equal(a, b)

	// Sequence, range, and owner each change the identifier.
	require.NotEqual(a, computePositionID(poolID, owner, -600, 600, 1))
	require.NotEqual(a, computePositionID(poolID, owner, -660, 600, 0))
	require.NotEqual(a, computePositionID(poolID, common.HexToAddress("0xcc"), -600, 600, 0))
}

func TestPositionInRange(t *testing.T) {
	p := &Position{TickLower: -60, TickUpper: 60}

	require.True(t, p.InRange(-60))
	require.True(t, p.InRange(0))
	require.False(t, p.InRange(60))
	require.False(t, p.InRange(-61))
}
