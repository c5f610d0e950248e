// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import "math/big"

// sqrtRatioMagics are sqrt(1.0001^-(2^i)) in Q128 format, applied per set
// bit of |tick|. The canonical table covers every bit of the 20-bit tick
// range, so the MinTick/MaxTick endpoints resolve to MinSqrtRatio and
// MaxSqrtRatio exactly.
var sqrtRatioMagics = []struct {
	mask  int24
	magic *big.Int
}{
	{0x1, hexBig("fffcb933bd6fad37aa2d162d1a594001")},
	{0x2, hexBig("fff97272373d413259a46990580e213a")},
	{0x4, hexBig("fff2e50f5f656932ef12357cf3c7fdcc")},
	{0x8, hexBig("ffe5caca7e10e4e61c3624eaa0941cd0")},
	{0x10, hexBig("ffcb9843d60f6159c9db58835c926644")},
	{0x20, hexBig("ff973b41fa98c081472e6896dfb254c0")},
	{0x40, hexBig("ff2ea16466c96a3843ec78b326b52861")},
	{0x80, hexBig("fe5dee046a99a2a811c461f1969c3053")},
	{0x100, hexBig("fcbe86c7900a88aedcffc83b479aa3a4")},
	{0x200, hexBig("f987a7253ac413176f2b074cf7815e54")},
	{0x400, hexBig("f3392b0822b70005940c7a398e4b70f3")},
	{0x800, hexBig("e7159475a2c29b7443b29c7fa6e889d9")},
	{0x1000, hexBig("d097f3bdfd2022b8845ad8f792aa5825")},
	{0x2000, hexBig("a9f746462d870fdf8a65dc1f90e061e5")},
	{0x4000, hexBig("70d869a156d2a1b890bb3df62baf32f7")},
	{0x8000, hexBig("31be135f97d08fd981231505542fcfa6")},
	{0x10000, hexBig("9aa508b5b7a84e1c677de54f3e99bc9")},
	{0x20000, hexBig("5d6af8dedb81196699c329225ee604")},
	{0x40000, hexBig("2216e584f5fa1ea926041bedfe98")},
	{0x80000, hexBig("48a170391f7dc42444e8fa2")},
}

func hexBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("amm: bad magic constant " + s)
	}
	return v
}

// TickToSqrtPriceX96 converts a tick to its sqrt price (Q64.96 format).
// sqrtPrice = sqrt(1.0001^tick) * 2^96
func TickToSqrtPriceX96(tick int24) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfRange
	}
	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	// Accumulate sqrt(1.0001^-absTick) in Q128
	ratio := new(big.Int).Lsh(big.NewInt(1), 128)
	for _, sm := range sqrtRatioMagics {
		if absTick&sm.mask != 0 {
			ratio.Mul(ratio, sm.magic)
			ratio.Rsh(ratio, 128)
		}
	}

	// Positive ticks are the reciprocal of the accumulated ratio
	if tick > 0 {
		ratio = new(big.Int).Div(maxUint256, ratio)
	}

	// Q128 -> Q64.96, rounding up
	result := new(big.Int).Rsh(ratio, 32)
	rem := new(big.Int).And(ratio, big.NewInt(0xffffffff))
	if rem.Sign() != 0 {
		result.Add(result, big.NewInt(1))
	}
	return result, nil
}

// SqrtPriceX96ToTick converts a sqrt price to the greatest tick whose
// ratio is at most the given price, by binary search.
// tick = floor(log_1.0001(price)), price = sqrtPriceX96^2 / 2^192
//
// Both domain endpoints are accepted: MaxSqrtRatio itself maps to
// MaxTick, so every value TickToSqrtPriceX96 produces round-trips.
// Swap-boundary semantics, where the upper bound is exclusive, do not
// apply here because no conversion in this package targets a
// one-past-the-end price.
func SqrtPriceX96ToTick(sqrtPriceX96 *big.Int) (int24, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return 0, ErrInvalidSqrtPrice
	}

	// tickToSqrtPrice(tick) <= sqrtPriceX96 < tickToSqrtPrice(tick+1)
	low := MinTick
	high := MaxTick

	for low < high {
		mid := low + (high-low+1)/2
		sqrtPriceMid, err := TickToSqrtPriceX96(mid)
		if err != nil {
			return 0, err
		}
		if sqrtPriceMid.Cmp(sqrtPriceX96) <= 0 {
			low = mid
		} else {
			high = mid - 1
		}
	}

	return low, nil
}

// CheckTicks validates a position's tick bounds against the price grid
func CheckTicks(tickLower, tickUpper, spacing int24) error {
	if spacing <= 0 {
		return ErrInvalidTickSpacing
	}
	if tickLower >= tickUpper {
		return ErrInvalidTickRange
	}
	if tickLower < MinTick || tickUpper > MaxTick {
		return ErrTickOutOfRange
	}
	if tickLower%spacing != 0 || tickUpper%spacing != 0 {
		return ErrTickNotSpaced
	}
	return nil
}
