// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package automation

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/alm/manager"
)

// Domain binds signatures to one engine deployment. A request signed
// for one domain never verifies under another.
type Domain struct {
	Name    string         `json:"name" validate:"required"`
	Version string         `json:"version" validate:"required"`
	ChainID uint64         `json:"chainId" validate:"required"`
	Engine  common.Address `json:"engine" validate:"required"`
}

// Validate checks the domain.
func (d Domain) Validate() error {
	validate := validator.New()
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	return nil
}

// Separator returns the domain's hash contribution to every digest.
func (d Domain) Separator() common.Hash {
	return common.BytesToHash(crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		encodeUint64(d.ChainID),
		encodeAddress(d.Engine),
	))
}

// Request is any signable automation intent.
type Request interface {
	// StructHash binds the request type and all field values.
	StructHash() (common.Hash, error)
}

// Digest computes the signing digest of req under domain d.
func Digest(d Domain, req Request) (common.Hash, error) {
	structHash, err := req.StructHash()
	if err != nil {
		return common.Hash{}, err
	}
	separator := d.Separator()
	return common.BytesToHash(crypto.Keccak256(
		[]byte{0x19, 0x01},
		separator.Bytes(),
		structHash.Bytes(),
	)), nil
}

// Type identifiers hashed into every struct hash
var (
	domainTypeHash    = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	claimTypeHash     = crypto.Keccak256([]byte("ClaimFees(bytes32 positionId,uint64 nonce,uint64 initialTimestamp,uint64 claimInterval,uint256 minValue,address recipient,address tokenOut)"))
	rebalanceTypeHash = crypto.Keccak256([]byte("Rebalance(bytes32 positionId,uint64 nonce,uint160 triggerLower,uint160 triggerUpper)"))
	closeTypeHash     = crypto.Keccak256([]byte("Close(bytes32 positionId,uint64 nonce,uint160 triggerPrice,bool triggerBelow)"))
)

// ClaimRequest is a signed intent to claim a position's accrued fees.
// Exactly one of ClaimInterval and MinValue must be set: a nonzero
// interval arms the time trigger, a positive MinValue arms the
// value-threshold trigger.
type ClaimRequest struct {
	PositionID manager.PositionID
	Nonce      uint64

	// InitialTimestamp is the unix time the interval counts from.
	InitialTimestamp uint64

	// ClaimInterval is the minimum seconds between claims, 0 disables.
	ClaimInterval uint64

	// MinValue is the fee value threshold in the oracle common unit,
	// nil or zero disables.
	MinValue *big.Int

	Recipient common.Address

	// TokenOut selects a single payout asset; zero claims both.
	TokenOut common.Address
}

// Validate checks that exactly one trigger mode is armed.
func (r *ClaimRequest) Validate() error {
	interval := r.ClaimInterval != 0
	value := r.MinValue != nil && r.MinValue.Sign() > 0
	if interval == value {
		return ErrInvalidTriggerMode
	}
	return nil
}

// StructHash binds the claim type and field values.
func (r *ClaimRequest) StructHash() (common.Hash, error) {
	minValue, err := encodeBig(r.MinValue)
	if err != nil {
		return common.Hash{}, err
	}
	return structHash(
		claimTypeHash,
		r.PositionID.Bytes(),
		encodeUint64(r.Nonce),
		encodeUint64(r.InitialTimestamp),
		encodeUint64(r.ClaimInterval),
		minValue,
		encodeAddress(r.Recipient),
		encodeAddress(r.TokenOut),
	), nil
}

// RebalanceRequest is a signed intent to recenter a position once the
// pool price leaves [TriggerLower, TriggerUpper]. Trigger prices use
// the pool's sqrt price X96 encoding.
type RebalanceRequest struct {
	PositionID   manager.PositionID
	Nonce        uint64
	TriggerLower *big.Int
	TriggerUpper *big.Int
}

// Validate checks the trigger band.
func (r *RebalanceRequest) Validate() error {
	if r.TriggerLower == nil || r.TriggerUpper == nil || r.TriggerLower.Sign() <= 0 {
		return ErrInvalidTriggerBand
	}
	if r.TriggerLower.Cmp(r.TriggerUpper) > 0 {
		return ErrInvalidTriggerBand
	}
	return nil
}

// StructHash binds the rebalance type and field values.
func (r *RebalanceRequest) StructHash() (common.Hash, error) {
	lower, err := encodeBig(r.TriggerLower)
	if err != nil {
		return common.Hash{}, err
	}
	upper, err := encodeBig(r.TriggerUpper)
	if err != nil {
		return common.Hash{}, err
	}
	return structHash(
		rebalanceTypeHash,
		r.PositionID.Bytes(),
		encodeUint64(r.Nonce),
		lower,
		upper,
	), nil
}

// CloseRequest is a signed intent to exit a position in full once the
// pool price crosses TriggerPrice. TriggerBelow selects the direction:
// price falling below the trigger, or rising above it.
type CloseRequest struct {
	PositionID   manager.PositionID
	Nonce        uint64
	TriggerPrice *big.Int // sqrt price X96
	TriggerBelow bool
}

// Validate checks the trigger price.
func (r *CloseRequest) Validate() error {
	if r.TriggerPrice == nil || r.TriggerPrice.Sign() <= 0 {
		return ErrInvalidTriggerPrice
	}
	return nil
}

// StructHash binds the close type and field values.
func (r *CloseRequest) StructHash() (common.Hash, error) {
	price, err := encodeBig(r.TriggerPrice)
	if err != nil {
		return common.Hash{}, err
	}
	return structHash(
		closeTypeHash,
		r.PositionID.Bytes(),
		encodeUint64(r.Nonce),
		price,
		encodeBool(r.TriggerBelow),
	), nil
}

// wordLen is the width of one encoded field.
const wordLen = 32

func structHash(typeHash []byte, fields ...[]byte) common.Hash {
	data := make([][]byte, 0, len(fields)+1)
	data = append(data, typeHash)
	data = append(data, fields...)
	return common.BytesToHash(crypto.Keccak256(data...))
}

func encodeUint64(v uint64) []byte {
	word := make([]byte, wordLen)
	binary.BigEndian.PutUint64(word[24:], v)
	return word
}

func encodeAddress(a common.Address) []byte {
	word := make([]byte, wordLen)
	copy(word[12:], a.Bytes())
	return word
}

func encodeBool(b bool) []byte {
	word := make([]byte, wordLen)
	if b {
		word[wordLen-1] = 1
	}
	return word
}

func encodeBig(v *big.Int) ([]byte, error) {
	word := make([]byte, wordLen)
	if v == nil {
		return word, nil
	}
	if v.Sign() < 0 || v.BitLen() > 8*wordLen {
		return nil, ErrUnencodableValue
	}
	v.FillBytes(word)
	return word, nil
}

// Errors
var (
	ErrInvalidDomain       = errors.New("invalid signing domain")
	ErrInvalidTriggerMode  = errors.New("exactly one claim trigger mode must be set")
	ErrInvalidTriggerBand  = errors.New("invalid rebalance trigger band")
	ErrInvalidTriggerPrice = errors.New("invalid close trigger price")
	ErrUnencodableValue    = errors.New("value does not fit an encoded word")
)
