// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package automation

import (
	"math"
	"math/big"
)

// Trigger predicates. All are pure so they can be re-evaluated at any
// time with no side effects; the engine re-checks them at execution
// even when a keeper pre-checked off-chain.

// needsClaimFees evaluates the claim trigger at time now. In interval
// mode the interval must have elapsed both from the request's initial
// timestamp and, when lastClaim is nonzero, from the last recorded
// claim. In value mode the priced unclaimed fees must meet the
// threshold.
func needsClaimFees(req *ClaimRequest, now, lastClaim uint64, unclaimedValue *big.Int) bool {
	if req.ClaimInterval != 0 {
		if now < satAdd(req.InitialTimestamp, req.ClaimInterval) {
			return false
		}
		return lastClaim == 0 || now >= satAdd(lastClaim, req.ClaimInterval)
	}
	return unclaimedValue != nil && unclaimedValue.Cmp(req.MinValue) >= 0
}

// satAdd adds two timestamps, saturating at the uint64 maximum. A
// deadline that wraps would re-arm a trigger that should never fire.
func satAdd(a, b uint64) uint64 {
	if sum := a + b; sum >= a {
		return sum
	}
	return math.MaxUint64
}

// needsRebalance is true when the pool price sits outside the
// request's trigger band.
func needsRebalance(req *RebalanceRequest, sqrtPriceX96 *big.Int) bool {
	return sqrtPriceX96.Cmp(req.TriggerLower) < 0 || sqrtPriceX96.Cmp(req.TriggerUpper) > 0
}

// needsClose is true when the pool price has crossed the request's
// trigger in the configured direction.
func needsClose(req *CloseRequest, sqrtPriceX96 *big.Int) bool {
	if req.TriggerBelow {
		return sqrtPriceX96.Cmp(req.TriggerPrice) < 0
	}
	return sqrtPriceX96.Cmp(req.TriggerPrice) > 0
}
