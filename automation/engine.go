// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package automation executes signed position-maintenance requests.
// A request carries the owner's intent (claim fees, rebalance the
// range, close the position) plus the trigger condition under which it
// may run. Execution verifies a domain-separated signature against the
// position's registered owner, re-evaluates the trigger, invokes the
// lifecycle manager, and advances the anti-replay state, in that
// order.
package automation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/alm/amm"
	"github.com/luxfi/alm/manager"
	"github.com/luxfi/alm/oracle"
)

// Engine verifies and executes automation requests against the
// lifecycle manager.
type Engine struct {
	domain  Domain
	manager *manager.Manager
	venue   manager.Venue
	oracle  oracle.Source
	replay  AntiReplay

	// Logger
	log log.Logger

	// Clock, swappable in tests
	now func() time.Time
}

// New wires an engine. The venue must be the same one the manager
// operates against; the oracle serves only the value-threshold claim
// trigger.
func New(domain Domain, mgr *manager.Manager, venue manager.Venue, src oracle.Source, replay AntiReplay) (*Engine, error) {
	logger := log.NewTestLogger(log.InfoLevel)

	if err := domain.Validate(); err != nil {
		return nil, err
	}
	if mgr == nil || venue == nil || src == nil || replay == nil {
		return nil, fmt.Errorf("%w: nil collaborator", ErrInvalidConfig)
	}

	return &Engine{
		domain:  domain,
		manager: mgr,
		venue:   venue,
		oracle:  src,
		replay:  replay,
		log:     logger,
		now:     time.Now,
	}, nil
}

// Domain returns the engine's signing domain.
func (e *Engine) Domain() Domain {
	return e.domain
}

// ClaimOutcome reports an automated claim. AmountOut is set when the
// request selected a single payout asset, Amount0/Amount1 otherwise.
type ClaimOutcome struct {
	Amount0   *big.Int
	Amount1   *big.Int
	AmountOut *big.Int
	Fee0      *big.Int
	Fee1      *big.Int
}

// AutoClaimFees executes a signed claim request. The signature must
// recover to the position's registered owner and the claim trigger
// must hold at execution time.
func (e *Engine) AutoClaimFees(ctx context.Context, caller common.Address, req *ClaimRequest, sig []byte) (*ClaimOutcome, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	signer, err := e.verify(ctx, req, req.PositionID, sig)
	if err != nil {
		return nil, err
	}
	if err := e.replay.Authorize(ctx, caller, req.PositionID, req.Nonce); err != nil {
		return nil, err
	}

	met, err := e.NeedsClaimFees(ctx, req)
	if err != nil {
		return nil, err
	}
	if !met {
		return nil, ErrTriggerNotMet
	}

	claimedAt := e.timestamp()
	outcome := &ClaimOutcome{}
	if req.TokenOut == (common.Address{}) {
		res, err := e.manager.ClaimFees(ctx, signer, manager.ClaimParams{
			PositionID: req.PositionID,
			Recipient:  req.Recipient,
		})
		if err != nil {
			return nil, err
		}
		outcome.Amount0 = res.Amount0
		outcome.Amount1 = res.Amount1
		outcome.Fee0 = res.Fee0
		outcome.Fee1 = res.Fee1
	} else {
		res, err := e.manager.ClaimFeesInToken(ctx, signer, manager.ClaimInTokenParams{
			PositionID: req.PositionID,
			Recipient:  req.Recipient,
			TokenOut:   amm.Currency{Address: req.TokenOut},
		})
		if err != nil {
			return nil, err
		}
		outcome.AmountOut = res.AmountOut
		outcome.Fee0 = res.Fee0
		outcome.Fee1 = res.Fee1
	}

	if err := e.replay.Advance(ctx, req.PositionID, req.Nonce, claimedAt); err != nil {
		return nil, err
	}

	e.log.Info("automated claim executed",
		"position", req.PositionID,
		"caller", caller,
		"signer", signer,
		"recipient", req.Recipient,
	)
	return outcome, nil
}

// AutoRebalance executes a signed rebalance request once the pool
// price has left the trigger band. The position is recreated around
// the current price with its original range width, shifted to stay on
// the tick grid and inside the global bounds.
func (e *Engine) AutoRebalance(ctx context.Context, caller common.Address, req *RebalanceRequest, sig []byte) (*manager.MoveRangeResult, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	signer, err := e.verify(ctx, req, req.PositionID, sig)
	if err != nil {
		return nil, err
	}
	if err := e.replay.Authorize(ctx, caller, req.PositionID, req.Nonce); err != nil {
		return nil, err
	}

	position, err := e.manager.Position(req.PositionID)
	if err != nil {
		return nil, err
	}
	pool, err := e.venue.Pool(ctx, position.PoolKey)
	if err != nil {
		return nil, err
	}
	if !needsRebalance(req, pool.SqrtPriceX96) {
		return nil, ErrTriggerNotMet
	}

	newLower, newUpper := recenterRange(pool.Tick, position.PoolKey.TickSpacing, position.TickLower, position.TickUpper)
	res, err := e.manager.MoveRange(ctx, signer, manager.MoveRangeParams{
		PositionID:   req.PositionID,
		Owner:        signer,
		NewTickLower: newLower,
		NewTickUpper: newUpper,
	})
	if err != nil {
		return nil, err
	}

	if err := e.replay.Advance(ctx, req.PositionID, req.Nonce, 0); err != nil {
		return nil, err
	}

	e.log.Info("automated rebalance executed",
		"position", req.PositionID,
		"replacement", res.NewPositionID,
		"caller", caller,
		"tickLower", newLower,
		"tickUpper", newUpper,
	)
	return res, nil
}

// AutoClose executes a signed close request once the pool price has
// crossed the trigger. The position is withdrawn in full to its owner.
func (e *Engine) AutoClose(ctx context.Context, caller common.Address, req *CloseRequest, sig []byte) (*manager.WithdrawResult, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	signer, err := e.verify(ctx, req, req.PositionID, sig)
	if err != nil {
		return nil, err
	}
	if err := e.replay.Authorize(ctx, caller, req.PositionID, req.Nonce); err != nil {
		return nil, err
	}

	met, err := e.NeedsClose(ctx, req)
	if err != nil {
		return nil, err
	}
	if !met {
		return nil, ErrTriggerNotMet
	}

	res, err := e.manager.Withdraw(ctx, signer, manager.WithdrawParams{
		PositionID: req.PositionID,
		Percent:    manager.PrecisionBps,
		Recipient:  signer,
	})
	if err != nil {
		return nil, err
	}

	if err := e.replay.Advance(ctx, req.PositionID, req.Nonce, 0); err != nil {
		return nil, err
	}

	e.log.Info("automated close executed",
		"position", req.PositionID,
		"caller", caller,
		"signer", signer,
	)
	return res, nil
}

// NeedsClaimFees evaluates the claim trigger without side effects.
func (e *Engine) NeedsClaimFees(ctx context.Context, req *ClaimRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	if req.ClaimInterval != 0 {
		floor, err := e.replay.ClaimFloor(ctx, req.PositionID)
		if err != nil {
			return false, err
		}
		return needsClaimFees(req, e.timestamp(), floor, nil), nil
	}

	value, err := e.UnclaimedValue(ctx, req.PositionID)
	if err != nil {
		return false, err
	}
	return needsClaimFees(req, e.timestamp(), 0, value), nil
}

// NeedsRebalance evaluates the rebalance trigger without side effects.
func (e *Engine) NeedsRebalance(ctx context.Context, req *RebalanceRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	pool, err := e.poolFor(ctx, req.PositionID)
	if err != nil {
		return false, err
	}
	return needsRebalance(req, pool.SqrtPriceX96), nil
}

// NeedsClose evaluates the close trigger without side effects.
func (e *Engine) NeedsClose(ctx context.Context, req *CloseRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	pool, err := e.poolFor(ctx, req.PositionID)
	if err != nil {
		return false, err
	}
	return needsClose(req, pool.SqrtPriceX96), nil
}

// UnclaimedValue prices a position's unclaimed fees in the oracle
// common unit.
func (e *Engine) UnclaimedValue(ctx context.Context, id manager.PositionID) (*big.Int, error) {
	fee0, fee1, err := e.manager.PreviewFees(ctx, id)
	if err != nil {
		return nil, err
	}
	position, err := e.manager.Position(id)
	if err != nil {
		return nil, err
	}

	value0, err := e.oracle.ValueInCommonUnit(ctx, position.PoolKey.Currency0.Address, fee0)
	if err != nil {
		return nil, err
	}
	value1, err := e.oracle.ValueInCommonUnit(ctx, position.PoolKey.Currency1.Address, fee1)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(value0, value1), nil
}

// verify recovers the request signer and requires it to be the
// position's registered owner.
func (e *Engine) verify(ctx context.Context, req Request, id manager.PositionID, sig []byte) (common.Address, error) {
	digest, err := Digest(e.domain, req)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return common.Address{}, err
	}

	owner, err := e.manager.Owner(ctx, id)
	if err != nil {
		return common.Address{}, err
	}
	if signer != owner {
		return common.Address{}, ErrSignerNotOwner
	}
	return signer, nil
}

func (e *Engine) poolFor(ctx context.Context, id manager.PositionID) (amm.PoolState, error) {
	position, err := e.manager.Position(id)
	if err != nil {
		return amm.PoolState{}, err
	}
	return e.venue.Pool(ctx, position.PoolKey)
}

func (e *Engine) timestamp() uint64 {
	return uint64(e.now().Unix())
}

// recenterRange shifts a range of fixed width to center on the current
// tick, aligned down to the spacing grid and clamped to the usable
// tick bounds.
func recenterRange(current, spacing, oldLower, oldUpper int32) (int32, int32) {
	width := oldUpper - oldLower
	half := width / 2 / spacing * spacing

	lower := floorTick(current, spacing) - half
	upper := lower + width

	minUsable := amm.MinTick / spacing * spacing
	maxUsable := amm.MaxTick / spacing * spacing
	if lower < minUsable {
		lower = minUsable
		upper = lower + width
	}
	if upper > maxUsable {
		upper = maxUsable
		lower = upper - width
	}
	return lower, upper
}

// floorTick rounds a tick down to a spacing multiple.
func floorTick(tick, spacing int32) int32 {
	q := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		q--
	}
	return q * spacing
}

// Errors
var (
	ErrInvalidConfig  = errors.New("invalid engine configuration")
	ErrNilRequest     = errors.New("nil request")
	ErrSignerNotOwner = errors.New("signer is not the position owner")
	ErrTriggerNotMet  = errors.New("trigger condition not met")
)
