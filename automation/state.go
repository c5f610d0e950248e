// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package automation

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/zeebo/blake3"

	"github.com/luxfi/alm/manager"
)

// State is the per-position automation record: the only mutable state
// that can make a later identical request non-executable.
type State struct {
	// Nonce is the expected value of the next delegated request.
	Nonce uint64

	// LastClaimAt is the unix time of the last automated claim, zero
	// when no claim has happened.
	LastClaimAt uint64
}

const stateRecordSize = 16

// ToBytes serializes the record.
func (s State) ToBytes() []byte {
	data := make([]byte, stateRecordSize)
	binary.BigEndian.PutUint64(data[0:8], s.Nonce)
	binary.BigEndian.PutUint64(data[8:16], s.LastClaimAt)
	return data
}

// StateFromBytes deserializes a record.
func StateFromBytes(data []byte) (State, error) {
	if len(data) != stateRecordSize {
		return State{}, fmt.Errorf("invalid automation state length %d", len(data))
	}
	return State{
		Nonce:       binary.BigEndian.Uint64(data[0:8]),
		LastClaimAt: binary.BigEndian.Uint64(data[8:16]),
	}, nil
}

// StateStore persists automation state per position.
type StateStore struct {
	db database.Database
}

// NewStateStore creates a store over db.
func NewStateStore(db database.Database) *StateStore {
	return &StateStore{db: db}
}

// Get reads the state for id. Positions that were never automated
// report the zero state.
func (s *StateStore) Get(id manager.PositionID) (State, error) {
	data, err := s.db.Get(stateKey(id))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return State{}, nil
		}
		return State{}, err
	}
	return StateFromBytes(data)
}

// Put writes the state for id.
func (s *StateStore) Put(id manager.PositionID, st State) error {
	return s.db.Put(stateKey(id), st.ToBytes())
}

const statePrefix = "auto"

func stateKey(id manager.PositionID) []byte {
	h := blake3.New()
	h.Write([]byte(statePrefix))
	h.Write(id[:])

	key := make([]byte, 32)
	h.Digest().Read(key)
	return key
}
