// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// Event is a structured record of a completed mutating operation,
// emitted for off-chain observability. Emission failures never fail the
// operation that produced the event.
type Event interface {
	// Type returns the stable event name.
	Type() string
}

// PositionCreated is emitted when a new position is opened.
type PositionCreated struct {
	PositionID PositionID     `json:"positionId"`
	Owner      common.Address `json:"owner"`
	PoolID     common.Hash    `json:"poolId"`
	TickLower  int32          `json:"tickLower"`
	TickUpper  int32          `json:"tickUpper"`
	Liquidity  *big.Int       `json:"liquidity"`
	Amount0    *big.Int       `json:"amount0"`
	Amount1    *big.Int       `json:"amount1"`
	Fee0       *big.Int       `json:"fee0"`
	Fee1       *big.Int       `json:"fee1"`
}

func (PositionCreated) Type() string { return "PositionCreated" }

// LiquidityIncreased is emitted when liquidity is added to a position.
type LiquidityIncreased struct {
	PositionID      PositionID     `json:"positionId"`
	Owner           common.Address `json:"owner"`
	Liquidity       *big.Int       `json:"liquidity"`
	LiquidityBefore *big.Int       `json:"liquidityBefore"`
	LiquidityAfter  *big.Int       `json:"liquidityAfter"`
	Amount0         *big.Int       `json:"amount0"`
	Amount1         *big.Int       `json:"amount1"`
	Fee0            *big.Int       `json:"fee0"`
	Fee1            *big.Int       `json:"fee1"`
}

func (LiquidityIncreased) Type() string { return "LiquidityIncreased" }

// ClaimedFees is emitted when accrued fees are paid out in both assets.
type ClaimedFees struct {
	PositionID PositionID     `json:"positionId"`
	Owner      common.Address `json:"owner"`
	Recipient  common.Address `json:"recipient"`
	Amount0    *big.Int       `json:"amount0"`
	Amount1    *big.Int       `json:"amount1"`
	Fee0       *big.Int       `json:"fee0"`
	Fee1       *big.Int       `json:"fee1"`
}

func (ClaimedFees) Type() string { return "ClaimedFees" }

// ClaimedFeesInToken is emitted when accrued fees are paid out converted
// into a single asset.
type ClaimedFeesInToken struct {
	PositionID PositionID     `json:"positionId"`
	Owner      common.Address `json:"owner"`
	Recipient  common.Address `json:"recipient"`
	TokenOut   common.Address `json:"tokenOut"`
	AmountOut  *big.Int       `json:"amountOut"`
	Fee0       *big.Int       `json:"fee0"`
	Fee1       *big.Int       `json:"fee1"`
}

func (ClaimedFeesInToken) Type() string { return "ClaimedFeesInToken" }

// CompoundedFees is emitted when accrued fees are reinvested.
type CompoundedFees struct {
	PositionID      PositionID     `json:"positionId"`
	Owner           common.Address `json:"owner"`
	Liquidity       *big.Int       `json:"liquidity"`
	LiquidityBefore *big.Int       `json:"liquidityBefore"`
	LiquidityAfter  *big.Int       `json:"liquidityAfter"`
	Amount0         *big.Int       `json:"amount0"`
	Amount1         *big.Int       `json:"amount1"`
	Fee0            *big.Int       `json:"fee0"`
	Fee1            *big.Int       `json:"fee1"`
}

func (CompoundedFees) Type() string { return "CompoundedFees" }

// RangeMoved is emitted when a position is retired and recreated over a
// new tick range.
type RangeMoved struct {
	OldPositionID PositionID     `json:"oldPositionId"`
	NewPositionID PositionID     `json:"newPositionId"`
	Owner         common.Address `json:"owner"`
	OldTickLower  int32          `json:"oldTickLower"`
	OldTickUpper  int32          `json:"oldTickUpper"`
	NewTickLower  int32          `json:"newTickLower"`
	NewTickUpper  int32          `json:"newTickUpper"`
	Liquidity     *big.Int       `json:"liquidity"`
	Amount0       *big.Int       `json:"amount0"`
	Amount1       *big.Int       `json:"amount1"`
	Leftover0     *big.Int       `json:"leftover0"`
	Leftover1     *big.Int       `json:"leftover1"`
}

func (RangeMoved) Type() string { return "RangeMoved" }

// Withdrawn is emitted when liquidity is removed and paid out.
type Withdrawn struct {
	PositionID      PositionID     `json:"positionId"`
	Owner           common.Address `json:"owner"`
	Recipient       common.Address `json:"recipient"`
	Percent         uint64         `json:"percent"`
	Amount0         *big.Int       `json:"amount0"`
	Amount1         *big.Int       `json:"amount1"`
	Fee0            *big.Int       `json:"fee0"`
	Fee1            *big.Int       `json:"fee1"`
	LiquidityBefore *big.Int       `json:"liquidityBefore"`
	LiquidityAfter  *big.Int       `json:"liquidityAfter"`
	Retired         bool           `json:"retired"`
}

func (Withdrawn) Type() string { return "Withdrawn" }
