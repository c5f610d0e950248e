// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package amm provides the concentrated-liquidity arithmetic shared by the
// position manager and its venue adapters: pool and currency identities,
// Q64.96 square-root price conversions, liquidity/amount math with
// directional rounding, and fee-growth accounting.
package amm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Pool fee tiers (hundredths of a basis point, 1_000_000 = 100%)
const (
	Fee001 uint24 = 100    // 0.01% - stablecoins
	Fee005 uint24 = 500    // 0.05% - stable pairs
	Fee030 uint24 = 3000   // 0.30% - standard
	Fee100 uint24 = 10000  // 1.00% - exotic pairs
	FeeMax uint24 = 100000 // 10% max fee
)

// Tick spacing for the standard fee tiers
const (
	TickSpacing001 int24 = 1
	TickSpacing005 int24 = 10
	TickSpacing030 int24 = 60
	TickSpacing100 int24 = 200
)

// Currency represents a fungible asset (native or token).
// Address(0) represents the native asset.
type Currency struct {
	Address common.Address
}

// NativeCurrency represents the native asset (no wrapping needed)
var NativeCurrency = Currency{Address: common.Address{}}

// IsNative returns true if this currency is the native asset
func (c Currency) IsNative() bool {
	return c.Address == common.Address{}
}

// ToBytes serializes currency for storage
func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// CurrencyFromBytes deserializes currency from storage
func CurrencyFromBytes(data []byte) Currency {
	return Currency{Address: common.BytesToAddress(data)}
}

// CurrenciesSorted returns true if c0 orders strictly before c1.
// Uses bytes comparison for correct address ordering.
func CurrenciesSorted(c0, c1 Currency) bool {
	return bytes.Compare(c0.Address.Bytes(), c1.Address.Bytes()) < 0
}

// PoolKey uniquely identifies a pricing venue pool.
// Sorted by currency address (currency0 < currency1).
type PoolKey struct {
	Currency0   Currency       // Lower address asset
	Currency1   Currency       // Higher address asset
	Fee         uint24         // Fee in hundredths of a basis point
	TickSpacing int24          // Tick spacing for the price grid
	Extension   common.Address // Optional venue extension (zero = none)
}

// ID computes the unique pool identifier
func (pk PoolKey) ID() common.Hash {
	h := blake3.New()
	h.Write(pk.Currency0.ToBytes())
	h.Write(pk.Currency1.ToBytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], uint32(pk.Fee))
	h.Write(feeBytes[1:]) // uint24

	var tickBytes [4]byte
	binary.BigEndian.PutUint32(tickBytes[:], uint32(pk.TickSpacing))
	h.Write(tickBytes[1:]) // int24

	h.Write(pk.Extension.Bytes())

	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

// Validate checks the structural pool key invariants
func (pk PoolKey) Validate() error {
	if !CurrenciesSorted(pk.Currency0, pk.Currency1) {
		return ErrCurrencyNotSorted
	}
	if pk.Fee > FeeMax {
		return ErrInvalidFee
	}
	if pk.TickSpacing <= 0 || pk.TickSpacing > MaxTick {
		return ErrInvalidTickSpacing
	}
	return nil
}

// ToBytes serializes pool key for storage (66 bytes)
func (pk PoolKey) ToBytes() []byte {
	data := make([]byte, 66) // 20+20+3+3+20
	copy(data[0:20], pk.Currency0.ToBytes())
	copy(data[20:40], pk.Currency1.ToBytes())
	data[40] = byte(pk.Fee >> 16)
	data[41] = byte(pk.Fee >> 8)
	data[42] = byte(pk.Fee)
	data[43] = byte(uint32(pk.TickSpacing) >> 16)
	data[44] = byte(uint32(pk.TickSpacing) >> 8)
	data[45] = byte(uint32(pk.TickSpacing))
	copy(data[46:66], pk.Extension.Bytes())
	return data
}

// PoolKeyFromBytes deserializes pool key from storage
func PoolKeyFromBytes(data []byte) (PoolKey, error) {
	if len(data) < 66 {
		return PoolKey{}, errors.New("invalid pool key data length")
	}
	pk := PoolKey{}
	pk.Currency0 = CurrencyFromBytes(data[0:20])
	pk.Currency1 = CurrencyFromBytes(data[20:40])
	pk.Fee = uint24(data[40])<<16 | uint24(data[41])<<8 | uint24(data[42])

	spacing := uint32(data[43])<<16 | uint32(data[44])<<8 | uint32(data[45])
	if spacing&0x800000 != 0 {
		spacing |= 0xff000000 // sign-extend int24
	}
	pk.TickSpacing = int24(spacing)

	pk.Extension = common.BytesToAddress(data[46:66])
	return pk, nil
}

// PoolState is a venue's reported pool state at a point in time.
type PoolState struct {
	SqrtPriceX96 *big.Int
	Tick         int24
	Liquidity    *big.Int
}

// Errors - liquidity and price math
var (
	ErrCurrencyNotSorted  = errors.New("currencies not sorted")
	ErrInvalidFee         = errors.New("invalid fee")
	ErrInvalidTickSpacing = errors.New("invalid tick spacing")
	ErrInvalidTickRange   = errors.New("invalid tick range")
	ErrTickOutOfRange     = errors.New("tick out of range")
	ErrTickNotSpaced      = errors.New("tick not a multiple of spacing")
	ErrInvalidSqrtPrice   = errors.New("invalid sqrt price")
	ErrInvalidAmount      = errors.New("negative or nil amount")
	ErrZeroLiquidity      = errors.New("zero liquidity for nonzero input")
	ErrLiquidityOverflow  = errors.New("liquidity exceeds 128 bits")
	ErrAmountOverflow     = errors.New("amount exceeds 256 bits")
	ErrDivisionByZero     = errors.New("division by zero")
)

// Constants for math
var (
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

	MinTick int24 = -887272
	MaxTick int24 = 887272

	MinSqrtRatio    = new(big.Int).SetUint64(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	// MaxUint128 bounds liquidity magnitudes
	MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// uint24 type alias for fees
type uint24 = uint32

// int24 type alias for ticks
type int24 = int32
