// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"math/big"

	"github.com/holiman/uint256"
)

// FeeGrowthInside derives the fee growth accumulated inside a tick range
// from the pool-global counters and the outside counters recorded at each
// boundary. The accumulators are Q128 values that wrap modulo 2^256, so
// every subtraction here wraps the same way; only deltas between two
// readings are meaningful.
func FeeGrowthInside(
	global0, global1 *uint256.Int,
	lowerOutside0, lowerOutside1 *uint256.Int,
	upperOutside0, upperOutside1 *uint256.Int,
	tickLower, tickUpper, tickCurrent int24,
) (*uint256.Int, *uint256.Int) {
	below0, below1 := new(uint256.Int), new(uint256.Int)
	if tickCurrent >= tickLower {
		below0.Set(lowerOutside0)
		below1.Set(lowerOutside1)
	} else {
		below0.Sub(global0, lowerOutside0)
		below1.Sub(global1, lowerOutside1)
	}

	above0, above1 := new(uint256.Int), new(uint256.Int)
	if tickCurrent < tickUpper {
		above0.Set(upperOutside0)
		above1.Set(upperOutside1)
	} else {
		above0.Sub(global0, upperOutside0)
		above1.Sub(global1, upperOutside1)
	}

	inside0 := new(uint256.Int).Sub(global0, below0)
	inside0.Sub(inside0, above0)
	inside1 := new(uint256.Int).Sub(global1, below1)
	inside1.Sub(inside1, above1)
	return inside0, inside1
}

// FeesOwed converts the fee growth accrued since a position's checkpoint
// into an asset amount.
// owed = (growthInside - checkpoint) * liquidity >> 128
func FeesOwed(growthInside, checkpoint *uint256.Int, liquidity *big.Int) *big.Int {
	delta := new(uint256.Int).Sub(growthInside, checkpoint)
	owed := new(big.Int).Mul(delta.ToBig(), liquidity)
	return owed.Rsh(owed, 128)
}
