// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/alm/amm"
)

// PrecisionBps is the fixed-point base for percentages and fee rates.
// A withdraw percent of PrecisionBps removes 100% of a position.
const PrecisionBps uint64 = 10000

// Errors - authorization
var (
	ErrNotPositionOwner = errors.New("caller is not the position owner")
	ErrNotAdmin         = errors.New("caller is not the admin")
)

// Errors - position state
var (
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionRetired  = errors.New("position is retired")
)

// Errors - slippage and input validation
var (
	ErrMinLiquidity      = errors.New("resulting liquidity below minimum")
	ErrMinAmountOut      = errors.New("output amount below minimum")
	ErrInvalidPercent    = errors.New("withdraw percent out of range")
	ErrInvalidTokenOut   = errors.New("token is not part of the pool pair")
	ErrZeroRecipient     = errors.New("zero recipient address")
	ErrNothingToCompound = errors.New("no fees to compound")
	ErrNoSwapLiquidity   = errors.New("no pool liquidity to convert against")
)

// Errors - settlement and configuration
var (
	ErrSettlementFailed = errors.New("residual balance after settlement")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// CreateParams are the inputs for opening a new position.
type CreateParams struct {
	PoolKey      amm.PoolKey
	Amount0In    *big.Int
	Amount1In    *big.Int
	TickLower    int32
	TickUpper    int32
	Recipient    common.Address // owner of the minted position
	MinLiquidity *big.Int       // nil means no floor
}

// CreateResult reports how the deposited amounts were settled.
type CreateResult struct {
	PositionID PositionID
	Liquidity  *big.Int
	Amount0    *big.Int // deposited into the venue
	Amount1    *big.Int
	Fee0       *big.Int // protocol fee skimmed from the gross inputs
	Fee1       *big.Int
	Change0    *big.Int // returned to the caller
	Change1    *big.Int
}

// IncreaseParams are the inputs for adding liquidity to an existing position.
type IncreaseParams struct {
	PositionID   PositionID
	Amount0In    *big.Int
	Amount1In    *big.Int
	MinLiquidity *big.Int // floor on the liquidity added, nil means no floor
}

// IncreaseResult reports the liquidity added and amount settlement.
type IncreaseResult struct {
	Liquidity      *big.Int // liquidity added by this call
	LiquidityAfter *big.Int
	Amount0        *big.Int
	Amount1        *big.Int
	Fee0           *big.Int
	Fee1           *big.Int
	Change0        *big.Int
	Change1        *big.Int
}

// ClaimParams are the inputs for claiming accrued fees in both assets.
type ClaimParams struct {
	PositionID PositionID
	Recipient  common.Address
	MinOut0    *big.Int // nil means no floor
	MinOut1    *big.Int
}

// ClaimResult reports the amounts paid out and fees skimmed.
type ClaimResult struct {
	Amount0 *big.Int
	Amount1 *big.Int
	Fee0    *big.Int
	Fee1    *big.Int
}

// ClaimInTokenParams claim accrued fees converted into a single asset.
type ClaimInTokenParams struct {
	PositionID PositionID
	Recipient  common.Address
	TokenOut   amm.Currency // must be one of the pool's two assets
	MinOut     *big.Int
}

// ClaimInTokenResult reports the single-asset payout.
type ClaimInTokenResult struct {
	AmountOut *big.Int
	Fee0      *big.Int
	Fee1      *big.Int
}

// CompoundResult reports fees reinvested as additional liquidity.
type CompoundResult struct {
	Liquidity      *big.Int // liquidity added by compounding
	LiquidityAfter *big.Int
	Amount0        *big.Int // reinvested into the venue
	Amount1        *big.Int
	Fee0           *big.Int
	Fee1           *big.Int
	Leftover0      *big.Int // remains claimable on the position
	Leftover1      *big.Int
}

// MoveRangeParams retire a position and recreate it over a new range.
type MoveRangeParams struct {
	PositionID   PositionID
	Owner        common.Address // owner of the replacement position
	NewTickLower int32
	NewTickUpper int32
	MinLiquidity *big.Int
}

// MoveRangeResult reports the replacement position and value carried over.
type MoveRangeResult struct {
	OldPositionID PositionID
	NewPositionID PositionID
	Liquidity     *big.Int
	Amount0       *big.Int // redeposited principal plus fees
	Amount1       *big.Int
	Leftover0     *big.Int // carried as unclaimed balances on the new position
	Leftover1     *big.Int
}

// WithdrawParams remove a proportion of liquidity plus all unclaimed fees.
type WithdrawParams struct {
	PositionID PositionID
	Percent    uint64 // share of liquidity to remove, scaled by PrecisionBps
	Recipient  common.Address
	MinOut0    *big.Int
	MinOut1    *big.Int
}

// WithdrawResult reports the payout and remaining liquidity.
type WithdrawResult struct {
	Amount0          *big.Int
	Amount1          *big.Int
	Fee0             *big.Int
	Fee1             *big.Int
	LiquidityRemoved *big.Int
	LiquidityAfter   *big.Int
	Retired          bool
}

// WithdrawInTokenParams withdraw with the payout converted to one asset.
type WithdrawInTokenParams struct {
	PositionID PositionID
	Percent    uint64
	Recipient  common.Address
	TokenOut   amm.Currency
	MinOut     *big.Int
}

// WithdrawInTokenResult reports the single-asset payout.
type WithdrawInTokenResult struct {
	AmountOut        *big.Int
	Fee0             *big.Int
	Fee1             *big.Int
	LiquidityRemoved *big.Int
	LiquidityAfter   *big.Int
	Retired          bool
}

// PreviewResult is the side-effect-free estimate of a create or increase.
// Previews do not model the price impact of swaps a caller may perform
// first, so realized results can differ by the cost of slippage.
type PreviewResult struct {
	Liquidity *big.Int
	Amount0   *big.Int // amounts the venue will take
	Amount1   *big.Int
	Fee0      *big.Int
	Fee1      *big.Int
}
