// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestCalculateFee(t *testing.T) {
	require := require.New(t)

	fc, err := NewFeeCollector(adminAddr, testFees())
	require.NoError(err)

	// 1% on liquidity deposits.
	fee := fc.CalculateFee(mustBig("1000000000000000000"), FeeOnLiquidity)
	require.Equal(mustBig("10000000000000000"), fee)

	// 10% on claims.
	fee = fc.CalculateFee(mustBig("1000000000000000000"), FeeOnClaim)
	require.Equal(mustBig("100000000000000000"), fee)

	// Rounds down.
	fee = fc.CalculateFee(big.NewInt(33), FeeOnClaim)
	require.Equal(big.NewInt(3), fee)

	require.Zero(fc.CalculateFee(nil, FeeOnClaim).Sign())
	require.Zero(fc.CalculateFee(big.NewInt(-5), FeeOnClaim).Sign())
	require.Zero(fc.CalculateFee(big.NewInt(0), FeeOnClaim).Sign())
}

func TestCalculateFeeZeroRates(t *testing.T) {
	fc, err := NewFeeCollector(adminAddr, DefaultProtocolFeeConfig())
	require.NoError(t, err)
	require.Zero(t, fc.CalculateFee(mustBig("1000000000000000000"), FeeOnLiquidity).Sign())
	require.Zero(t, fc.CalculateFee(mustBig("1000000000000000000"), FeeOnClaim).Sign())
}

func TestSetConfigAdminGate(t *testing.T) {
	require := require.New(t)

	fc, err := NewFeeCollector(adminAddr, testFees())
	require.NoError(err)

	next := testFees()
	next.ClaimFeeBps = 500

	require.ErrorIs(fc.SetConfig(alice, next), ErrNotAdmin)
	require.Equal(uint64(1000), fc.Config().ClaimFeeBps)

	require.NoError(fc.SetConfig(adminAddr, next))
	require.Equal(uint64(500), fc.Config().ClaimFeeBps)

	// The new rate applies to subsequent fee calculations.
	fee := fc.CalculateFee(big.NewInt(10000), FeeOnClaim)
	require.Equal(big.NewInt(500), fee)
}

func TestProtocolFeeConfigValidate(t *testing.T) {
	require := require.New(t)

	require.NoError(DefaultProtocolFeeConfig().Validate())
	require.NoError(testFees().Validate())

	cfg := testFees()
	cfg.ClaimFeeBps = 3000 // above MaxFeeBps
	require.Error(cfg.Validate())

	cfg = testFees()
	cfg.MaxFeeBps = 20000 // above 100%
	require.Error(cfg.Validate())

	cfg = testFees()
	cfg.Recipient = common.Address{}
	require.ErrorIs(cfg.Validate(), ErrInvalidConfig)
}

func TestSetConfigRejectsInvalid(t *testing.T) {
	require := require.New(t)

	fc, err := NewFeeCollector(adminAddr, testFees())
	require.NoError(err)

	bad := testFees()
	bad.LiquidityFeeBps = 5000
	require.Error(fc.SetConfig(adminAddr, bad))
	require.Equal(uint64(100), fc.Config().LiquidityFeeBps)
}
