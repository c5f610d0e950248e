// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import "math/big"

// mulDiv computes x*y/denominator with full-width intermediates.
// roundUp rounds the quotient toward positive infinity.
func mulDiv(x, y, denominator *big.Int, roundUp bool) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(x, y)
	quotient, remainder := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if roundUp && remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient, nil
}

// divRoundUp divides x by y rounding toward positive infinity
func divRoundUp(x, y *big.Int) (*big.Int, error) {
	if y.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	quotient, remainder := new(big.Int).QuoRem(x, y, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient, nil
}

// sortSqrtPrices returns the pair ordered low, high
func sortSqrtPrices(a, b *big.Int) (*big.Int, *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// LiquidityForAmount0 computes the liquidity purchasable with amount0 over
// the sqrt price interval [sqrtA, sqrtB].
// liquidity = amount0 * (sqrtA * sqrtB / Q96) / (sqrtB - sqrtA)
func LiquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB = sortSqrtPrices(sqrtA, sqrtB)
	intermediate, err := mulDiv(sqrtA, sqrtB, Q96, false)
	if err != nil {
		return nil, err
	}
	return mulDiv(amount0, intermediate, new(big.Int).Sub(sqrtB, sqrtA), false)
}

// LiquidityForAmount1 computes the liquidity purchasable with amount1 over
// the sqrt price interval [sqrtA, sqrtB].
// liquidity = amount1 * Q96 / (sqrtB - sqrtA)
func LiquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB = sortSqrtPrices(sqrtA, sqrtB)
	return mulDiv(amount1, Q96, new(big.Int).Sub(sqrtB, sqrtA), false)
}

// LiquidityForAmounts computes the maximum liquidity the two input amounts
// buy over [tickLower, tickUpper] at the current sqrt price. Three regimes:
// price at or below the range needs only asset0, at or above only asset1,
// inside the range the lesser of the per-asset liquidities wins.
// Rounds down, so the amounts later owed for the result never exceed the
// inputs. Nonzero input resolving to zero liquidity is a hard failure.
func LiquidityForAmounts(sqrtPriceX96 *big.Int, tickLower, tickUpper int24, amount0, amount1 *big.Int) (*big.Int, error) {
	if amount0 == nil || amount1 == nil || amount0.Sign() < 0 || amount1.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return nil, ErrInvalidSqrtPrice
	}
	sqrtLower, err := TickToSqrtPriceX96(tickLower)
	if err != nil {
		return nil, err
	}
	sqrtUpper, err := TickToSqrtPriceX96(tickUpper)
	if err != nil {
		return nil, err
	}
	if sqrtLower.Cmp(sqrtUpper) >= 0 {
		return nil, ErrInvalidTickRange
	}

	var liquidity *big.Int
	switch {
	case sqrtPriceX96.Cmp(sqrtLower) <= 0:
		liquidity, err = LiquidityForAmount0(sqrtLower, sqrtUpper, amount0)
	case sqrtPriceX96.Cmp(sqrtUpper) < 0:
		var l0, l1 *big.Int
		l0, err = LiquidityForAmount0(sqrtPriceX96, sqrtUpper, amount0)
		if err != nil {
			return nil, err
		}
		l1, err = LiquidityForAmount1(sqrtLower, sqrtPriceX96, amount1)
		if err != nil {
			return nil, err
		}
		liquidity = l0
		if l1.Cmp(l0) < 0 {
			liquidity = l1
		}
	default:
		liquidity, err = LiquidityForAmount1(sqrtLower, sqrtUpper, amount1)
	}
	if err != nil {
		return nil, err
	}

	if liquidity.Sign() == 0 && (amount0.Sign() > 0 || amount1.Sign() > 0) {
		return nil, ErrZeroLiquidity
	}
	if liquidity.Cmp(MaxUint128) > 0 {
		return nil, ErrLiquidityOverflow
	}
	return liquidity, nil
}

// Amount0ForLiquidity computes the asset0 amount corresponding to the
// liquidity over [sqrtA, sqrtB].
// amount0 = liquidity * Q96 * (sqrtB - sqrtA) / sqrtB / sqrtA
func Amount0ForLiquidity(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	sqrtA, sqrtB = sortSqrtPrices(sqrtA, sqrtB)
	if sqrtA.Sign() <= 0 {
		return nil, ErrInvalidSqrtPrice
	}
	numerator := new(big.Int).Lsh(liquidity, 96)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		inner, err := mulDiv(numerator, diff, sqrtB, true)
		if err != nil {
			return nil, err
		}
		return divRoundUp(inner, sqrtA)
	}
	inner, err := mulDiv(numerator, diff, sqrtB, false)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Quo(inner, sqrtA), nil
}

// Amount1ForLiquidity computes the asset1 amount corresponding to the
// liquidity over [sqrtA, sqrtB].
// amount1 = liquidity * (sqrtB - sqrtA) / Q96
func Amount1ForLiquidity(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	sqrtA, sqrtB = sortSqrtPrices(sqrtA, sqrtB)
	return mulDiv(liquidity, new(big.Int).Sub(sqrtB, sqrtA), Q96, roundUp)
}

// AmountsForLiquidity converts a liquidity magnitude back to asset amounts
// at the current sqrt price. roundUp selects the direction amounts are
// settled: up for amounts required from a depositor, down for amounts owed
// to one.
func AmountsForLiquidity(sqrtPriceX96 *big.Int, tickLower, tickUpper int24, liquidity *big.Int, roundUp bool) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() < 0 {
		return nil, nil, ErrInvalidAmount
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return nil, nil, ErrInvalidSqrtPrice
	}
	sqrtLower, err := TickToSqrtPriceX96(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtUpper, err := TickToSqrtPriceX96(tickUpper)
	if err != nil {
		return nil, nil, err
	}
	if sqrtLower.Cmp(sqrtUpper) >= 0 {
		return nil, nil, ErrInvalidTickRange
	}

	amount0 := big.NewInt(0)
	amount1 := big.NewInt(0)
	switch {
	case sqrtPriceX96.Cmp(sqrtLower) <= 0:
		// Below range: all liquidity is held as asset0
		amount0, err = Amount0ForLiquidity(sqrtLower, sqrtUpper, liquidity, roundUp)
	case sqrtPriceX96.Cmp(sqrtUpper) < 0:
		// In range: a mix split at the current price
		amount0, err = Amount0ForLiquidity(sqrtPriceX96, sqrtUpper, liquidity, roundUp)
		if err != nil {
			return nil, nil, err
		}
		amount1, err = Amount1ForLiquidity(sqrtLower, sqrtPriceX96, liquidity, roundUp)
	default:
		// Above range: all liquidity is held as asset1
		amount1, err = Amount1ForLiquidity(sqrtLower, sqrtUpper, liquidity, roundUp)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
