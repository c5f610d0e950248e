// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/alm/amm"
)

// PositionID uniquely identifies a managed position. It doubles as the
// key into the external ownership registry.
type PositionID = common.Hash

// Position is the managed record of a concentrated-liquidity deposit.
// Ownership is not stored here; the external registry is authoritative.
// Tick bounds never change in place: a range change retires the record
// and creates a new one under a fresh identifier.
type Position struct {
	ID        PositionID
	PoolKey   amm.PoolKey
	TickLower int32
	TickUpper int32
	Liquidity *big.Int

	// Fee growth per unit liquidity at the last synchronization, X128.
	FeeGrowth0Last *uint256.Int
	FeeGrowth1Last *uint256.Int

	// Synchronized but not yet claimed fee balances.
	TokensOwed0 *big.Int
	TokensOwed1 *big.Int

	Retired   bool
	CreatedAt uint64 // unix seconds
}

// Storage layout offsets for the fixed-size position record
const (
	posOffPoolKey   = 0
	posOffTickLower = 66
	posOffTickUpper = 70
	posOffLiquidity = 74
	posOffGrowth0   = 106
	posOffGrowth1   = 138
	posOffOwed0     = 170
	posOffOwed1     = 202
	posOffRetired   = 234
	posOffCreatedAt = 235

	positionRecordSize = 243
)

// ToBytes serializes the position record (243 bytes). The identifier is
// the storage key and is not part of the record.
func (p *Position) ToBytes() []byte {
	buf := make([]byte, positionRecordSize)

	copy(buf[posOffPoolKey:], p.PoolKey.ToBytes())
	binary.BigEndian.PutUint32(buf[posOffTickLower:], uint32(p.TickLower))
	binary.BigEndian.PutUint32(buf[posOffTickUpper:], uint32(p.TickUpper))
	p.Liquidity.FillBytes(buf[posOffLiquidity:posOffGrowth0])

	g0 := p.FeeGrowth0Last.Bytes32()
	copy(buf[posOffGrowth0:], g0[:])
	g1 := p.FeeGrowth1Last.Bytes32()
	copy(buf[posOffGrowth1:], g1[:])

	p.TokensOwed0.FillBytes(buf[posOffOwed0:posOffOwed1])
	p.TokensOwed1.FillBytes(buf[posOffOwed1:posOffRetired])

	if p.Retired {
		buf[posOffRetired] = 1
	}
	binary.BigEndian.PutUint64(buf[posOffCreatedAt:], p.CreatedAt)
	return buf
}

// PositionFromBytes deserializes a position record.
func PositionFromBytes(data []byte) (*Position, error) {
	if len(data) != positionRecordSize {
		return nil, fmt.Errorf("invalid position record length %d", len(data))
	}

	key, err := amm.PoolKeyFromBytes(data[posOffPoolKey:posOffTickLower])
	if err != nil {
		return nil, err
	}

	p := &Position{
		PoolKey:        key,
		TickLower:      int32(binary.BigEndian.Uint32(data[posOffTickLower:])),
		TickUpper:      int32(binary.BigEndian.Uint32(data[posOffTickUpper:])),
		Liquidity:      new(big.Int).SetBytes(data[posOffLiquidity:posOffGrowth0]),
		FeeGrowth0Last: new(uint256.Int).SetBytes(data[posOffGrowth0:posOffGrowth1]),
		FeeGrowth1Last: new(uint256.Int).SetBytes(data[posOffGrowth1:posOffOwed0]),
		TokensOwed0:    new(big.Int).SetBytes(data[posOffOwed0:posOffOwed1]),
		TokensOwed1:    new(big.Int).SetBytes(data[posOffOwed1:posOffRetired]),
		Retired:        data[posOffRetired] == 1,
		CreatedAt:      binary.BigEndian.Uint64(data[posOffCreatedAt:]),
	}
	return p, nil
}

// InRange reports whether the pool's current tick is inside the
// position's range.
func (p *Position) InRange(tick int32) bool {
	return p.TickLower <= tick && tick < p.TickUpper
}

// computePositionID derives a fresh identifier from the pool, owner,
// range, and a persistent sequence number. The sequence keeps the
// identifier unique even when the same owner reopens the same range.
func computePositionID(poolID common.Hash, owner common.Address, tickLower, tickUpper int32, seq uint64) PositionID {
	h := blake3.New()
	h.Write(poolID[:])
	h.Write(owner.Bytes())

	var ticks [8]byte
	binary.BigEndian.PutUint32(ticks[:4], uint32(tickLower))
	binary.BigEndian.PutUint32(ticks[4:], uint32(tickUpper))
	h.Write(ticks[:])

	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	h.Write(seqBytes[:])

	var id PositionID
	h.Digest().Read(id[:])
	return id
}

// Storage key prefixes
const (
	positionPrefix = "posn"
	sequencePrefix = "pseq"
)

// makeStorageKey derives a fixed-size database key from a prefix and parts.
func makeStorageKey(prefix string, parts ...[]byte) []byte {
	h := blake3.New()
	h.Write([]byte(prefix))
	for _, part := range parts {
		h.Write(part)
	}

	key := make([]byte, 32)
	h.Digest().Read(key)
	return key
}

// PositionStore persists position records and the identifier sequence.
type PositionStore struct {
	db database.Database
}

// NewPositionStore creates a store backed by db.
func NewPositionStore(db database.Database) *PositionStore {
	return &PositionStore{db: db}
}

// Put writes a position record.
func (s *PositionStore) Put(p *Position) error {
	return s.db.Put(makeStorageKey(positionPrefix, p.ID[:]), p.ToBytes())
}

// PutPair writes two position records in one atomic batch. Range moves
// use it so the retired record and its replacement land together.
func (s *PositionStore) PutPair(a, b *Position) error {
	batch := s.db.NewBatch()
	if err := batch.Put(makeStorageKey(positionPrefix, a.ID[:]), a.ToBytes()); err != nil {
		return err
	}
	if err := batch.Put(makeStorageKey(positionPrefix, b.ID[:]), b.ToBytes()); err != nil {
		return err
	}
	return batch.Write()
}

// Get reads a position record by identifier.
func (s *PositionStore) Get(id PositionID) (*Position, error) {
	data, err := s.db.Get(makeStorageKey(positionPrefix, id[:]))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	p, err := PositionFromBytes(data)
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

// Has reports whether a position record exists.
func (s *PositionStore) Has(id PositionID) (bool, error) {
	return s.db.Has(makeStorageKey(positionPrefix, id[:]))
}

// NextSequence returns the next value of the persistent identifier
// sequence, starting at zero, and advances it.
func (s *PositionStore) NextSequence() (uint64, error) {
	key := makeStorageKey(sequencePrefix)

	var seq uint64
	data, err := s.db.Get(key)
	switch {
	case err == nil:
		seq = binary.BigEndian.Uint64(data)
	case errors.Is(err, database.ErrNotFound):
		// first position
	default:
		return 0, err
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq+1)
	if err := s.db.Put(key, buf[:]); err != nil {
		return 0, err
	}
	return seq, nil
}
