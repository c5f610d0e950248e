// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/luxfi/geth/common"
)

// FeeType selects which protocol fee rate applies to an operation.
type FeeType uint8

const (
	// FeeOnLiquidity applies to gross deposits entering the system.
	FeeOnLiquidity FeeType = iota

	// FeeOnClaim applies to accrued fees leaving or compounding within
	// the system.
	FeeOnClaim
)

// ProtocolFeeConfig holds the skim rates and their recipient. Rates are
// scaled by PrecisionBps and capped by MaxFeeBps, which is itself
// adjustable up to PrecisionBps.
type ProtocolFeeConfig struct {
	LiquidityFeeBps uint64         `json:"liquidityFeeBps" validate:"ltefield=MaxFeeBps"`
	ClaimFeeBps     uint64         `json:"claimFeeBps" validate:"ltefield=MaxFeeBps"`
	MaxFeeBps       uint64         `json:"maxFeeBps" validate:"lte=10000"`
	Recipient       common.Address `json:"recipient"`
}

// Validate checks rate bounds and that a recipient is set whenever a
// nonzero rate would route value to it.
func (c ProtocolFeeConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if (c.LiquidityFeeBps > 0 || c.ClaimFeeBps > 0) && c.Recipient == (common.Address{}) {
		return fmt.Errorf("%w: fee recipient not set", ErrInvalidConfig)
	}
	return nil
}

// DefaultProtocolFeeConfig returns the standard fee schedule with no
// recipient; rates stay inert until one is configured.
func DefaultProtocolFeeConfig() ProtocolFeeConfig {
	return ProtocolFeeConfig{
		LiquidityFeeBps: 0,
		ClaimFeeBps:     0,
		MaxFeeBps:       1000, // 10%
	}
}

// FeeCollector computes protocol fee skims and guards configuration
// changes behind an admin check. A configuration change affects only
// operations started after the change.
type FeeCollector struct {
	mu    sync.RWMutex
	cfg   ProtocolFeeConfig
	admin common.Address
}

// NewFeeCollector creates a collector administered by admin.
func NewFeeCollector(admin common.Address, cfg ProtocolFeeConfig) (*FeeCollector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FeeCollector{cfg: cfg, admin: admin}, nil
}

// Config returns a copy of the active configuration.
func (fc *FeeCollector) Config() ProtocolFeeConfig {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.cfg
}

// SetConfig replaces the fee configuration. Only the admin may call it.
func (fc *FeeCollector) SetConfig(caller common.Address, cfg ProtocolFeeConfig) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if caller != fc.admin {
		return ErrNotAdmin
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fc.cfg = cfg
	return nil
}

// CalculateFee returns the protocol fee due on a gross amount. The fee
// is rounded down, so dust amounts below the rate granularity pass free.
func (fc *FeeCollector) CalculateFee(gross *big.Int, feeType FeeType) *big.Int {
	if gross == nil || gross.Sign() <= 0 {
		return big.NewInt(0)
	}

	fc.mu.RLock()
	var rate uint64
	switch feeType {
	case FeeOnLiquidity:
		rate = fc.cfg.LiquidityFeeBps
	case FeeOnClaim:
		rate = fc.cfg.ClaimFeeBps
	}
	fc.mu.RUnlock()

	if rate == 0 {
		return big.NewInt(0)
	}

	fee := new(big.Int).Mul(gross, new(big.Int).SetUint64(rate))
	return fee.Div(fee, new(big.Int).SetUint64(PrecisionBps))
}

// Recipient returns the configured fee recipient.
func (fc *FeeCollector) Recipient() common.Address {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.cfg.Recipient
}
