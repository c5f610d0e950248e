// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/alm/manager"
)

// AntiReplay gates request submission and records successful
// executions. The engine's flow is identical under either strategy;
// only the replay defense differs.
type AntiReplay interface {
	// Authorize rejects a submission before any state is touched.
	// caller is the address submitting the call, not the signer.
	Authorize(ctx context.Context, caller common.Address, id manager.PositionID, nonce uint64) error

	// Advance records a successful execution. claimedAt carries the
	// claim time for claim actions and is zero otherwise.
	Advance(ctx context.Context, id manager.PositionID, nonce uint64, claimedAt uint64) error

	// ClaimFloor returns the last recorded claim time when the strategy
	// uses it as replay defense, zero otherwise.
	ClaimFloor(ctx context.Context, id manager.PositionID) (uint64, error)
}

// NonceStrategy is the delegated-execution defense. Each position
// carries a counter, a request embeds the expected value, and success
// increments it, so one signed request executes at most once no matter
// how often its trigger re-occurs. Submission is restricted to
// operators granted by the admin; the signature authorizes the action,
// this check authorizes the caller.
type NonceStrategy struct {
	mu        sync.RWMutex
	admin     common.Address
	operators map[common.Address]bool
	store     *StateStore
}

var _ AntiReplay = (*NonceStrategy)(nil)

// NewNonceStrategy creates the delegated-execution strategy. Operators
// start empty and are granted through SetOperator.
func NewNonceStrategy(admin common.Address, db database.Database) *NonceStrategy {
	return &NonceStrategy{
		admin:     admin,
		operators: make(map[common.Address]bool),
		store:     NewStateStore(db),
	}
}

// SetOperator grants or revokes submission rights. Only the admin may
// call this.
func (n *NonceStrategy) SetOperator(caller, operator common.Address, allowed bool) error {
	if caller != n.admin {
		return ErrNotAdmin
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if allowed {
		n.operators[operator] = true
	} else {
		delete(n.operators, operator)
	}
	return nil
}

// Authorize requires an operator caller and an exact nonce match.
func (n *NonceStrategy) Authorize(ctx context.Context, caller common.Address, id manager.PositionID, nonce uint64) error {
	n.mu.RLock()
	allowed := n.operators[caller]
	n.mu.RUnlock()
	if !allowed {
		return ErrNotOperator
	}

	state, err := n.store.Get(id)
	if err != nil {
		return err
	}
	if state.Nonce != nonce {
		return fmt.Errorf("%w: position at %d, request carries %d", ErrNonceMismatch, state.Nonce, nonce)
	}
	return nil
}

// Advance consumes the nonce and records the claim time if any.
func (n *NonceStrategy) Advance(ctx context.Context, id manager.PositionID, nonce uint64, claimedAt uint64) error {
	state, err := n.store.Get(id)
	if err != nil {
		return err
	}
	state.Nonce = nonce + 1
	if claimedAt != 0 {
		state.LastClaimAt = claimedAt
	}
	return n.store.Put(id, state)
}

// ClaimFloor is always zero: the nonce alone makes requests single-use.
func (n *NonceStrategy) ClaimFloor(ctx context.Context, id manager.PositionID) (uint64, error) {
	return 0, nil
}

// TriggerStateStrategy is the self-service defense: no nonce and no
// caller restriction. The executed action itself invalidates the
// trigger, so only the last claim time is recorded, which the interval
// trigger consults.
type TriggerStateStrategy struct {
	store *StateStore
}

var _ AntiReplay = (*TriggerStateStrategy)(nil)

// NewTriggerStateStrategy creates the self-service strategy.
func NewTriggerStateStrategy(db database.Database) *TriggerStateStrategy {
	return &TriggerStateStrategy{store: NewStateStore(db)}
}

// Authorize accepts any caller; the signature check alone gates the
// action.
func (t *TriggerStateStrategy) Authorize(ctx context.Context, caller common.Address, id manager.PositionID, nonce uint64) error {
	return nil
}

// Advance records the claim time. Non-claim actions leave no state;
// they end or replace the position instead.
func (t *TriggerStateStrategy) Advance(ctx context.Context, id manager.PositionID, nonce uint64, claimedAt uint64) error {
	if claimedAt == 0 {
		return nil
	}
	state, err := t.store.Get(id)
	if err != nil {
		return err
	}
	state.LastClaimAt = claimedAt
	return t.store.Put(id, state)
}

// ClaimFloor returns the recorded last claim time.
func (t *TriggerStateStrategy) ClaimFloor(ctx context.Context, id manager.PositionID) (uint64, error) {
	state, err := t.store.Get(id)
	if err != nil {
		return 0, err
	}
	return state.LastClaimAt, nil
}

// Errors
var (
	ErrNotAdmin      = errors.New("caller is not the automation admin")
	ErrNotOperator   = errors.New("caller is not an authorized operator")
	ErrNonceMismatch = errors.New("request nonce does not match position state")
)
