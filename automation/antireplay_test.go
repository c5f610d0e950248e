// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package automation

import (
	"context"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestStateCodec(t *testing.T) {
	state := State{Nonce: 42, LastClaimAt: 1756100000}

	data := state.ToBytes()
	require.Len(t, data, stateRecordSize)

	decoded, err := StateFromBytes(data)
	require.NoError(t, err)
	require.Equal(t, state, decoded)

	_, err = StateFromBytes(data[:10])
	require.Error(t, err)
}

func TestStateStore(t *testing.T) {
	store := NewStateStore(memdb.New())
	id := common.HexToHash("0x1234")

	// Never-automated positions report the zero state.
	state, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, State{}, state)

	require.NoError(t, store.Put(id, State{Nonce: 3, LastClaimAt: 99}))

	state, err = store.Get(id)
	require.NoError(t, err)
	require.Equal(t, State{Nonce: 3, LastClaimAt: 99}, state)

	// Distinct positions do not share state.
	other, err := store.Get(common.HexToHash("0x5678"))
	require.NoError(t, err)
	require.Equal(t, State{}, other)
}

func TestNonceStrategy(t *testing.T) {
	ctx := context.Background()
	strategy := NewNonceStrategy(adminAddr, memdb.New())
	id := common.HexToHash("0xabcd")

	// Operators are granted only by the admin.
	require.ErrorIs(t, strategy.SetOperator(aliceAddr, operatorAddr, true), ErrNotAdmin)
	require.ErrorIs(t, strategy.Authorize(ctx, operatorAddr, id, 0), ErrNotOperator)
	require.NoError(t, strategy.SetOperator(adminAddr, operatorAddr, true))

	// Fresh positions expect nonce zero.
	require.NoError(t, strategy.Authorize(ctx, operatorAddr, id, 0))
	require.ErrorIs(t, strategy.Authorize(ctx, operatorAddr, id, 1), ErrNonceMismatch)

	// Success consumes the nonce.
	require.NoError(t, strategy.Advance(ctx, id, 0, 1756100000))
	require.ErrorIs(t, strategy.Authorize(ctx, operatorAddr, id, 0), ErrNonceMismatch)
	require.NoError(t, strategy.Authorize(ctx, operatorAddr, id, 1))

	// The claim time is recorded but never used as a floor.
	state, err := strategy.store.Get(id)
	require.NoError(t, err)
	require.Equal(t, uint64(1756100000), state.LastClaimAt)
	floor, err := strategy.ClaimFloor(ctx, id)
	require.NoError(t, err)
	require.Zero(t, floor)

	// Non-claim advances leave the claim time alone.
	require.NoError(t, strategy.Advance(ctx, id, 1, 0))
	state, err = strategy.store.Get(id)
	require.NoError(t, err)
	require.Equal(t, uint64(2), state.Nonce)
	require.Equal(t, uint64(1756100000), state.LastClaimAt)

	// Revocation takes effect immediately.
	require.NoError(t, strategy.SetOperator(adminAddr, operatorAddr, false))
	require.ErrorIs(t, strategy.Authorize(ctx, operatorAddr, id, 2), ErrNotOperator)
}

func TestTriggerStateStrategy(t *testing.T) {
	ctx := context.Background()
	strategy := NewTriggerStateStrategy(memdb.New())
	id := common.HexToHash("0xef01")

	// Any caller may submit; the signature alone gates the action.
	require.NoError(t, strategy.Authorize(ctx, aliceAddr, id, 0))
	require.NoError(t, strategy.Authorize(ctx, common.Address{}, id, 99))

	floor, err := strategy.ClaimFloor(ctx, id)
	require.NoError(t, err)
	require.Zero(t, floor)

	// Claims move the floor; other actions do not touch it.
	require.NoError(t, strategy.Advance(ctx, id, 0, 1756100000))
	floor, err = strategy.ClaimFloor(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1756100000), floor)

	require.NoError(t, strategy.Advance(ctx, id, 0, 0))
	floor, err = strategy.ClaimFloor(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1756100000), floor)
}
