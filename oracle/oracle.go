// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle converts asset amounts into a common valuation unit.
// The automation engine depends only on the Source contract; the
// adapter shapes behind it differ in where prices come from.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/shopspring/decimal"
)

// CommonUnitDecimals is the scale of all Source valuations.
const CommonUnitDecimals = 18

// Source values an asset amount in the common unit (18 decimals).
type Source interface {
	ValueInCommonUnit(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error)
}

// PriceOracle is the external price collaborator: a per-asset price
// quoted at a declared base unit.
type PriceOracle interface {
	// Price returns the price of one whole asset, scaled by BaseUnit
	// decimals.
	Price(ctx context.Context, asset common.Address) (*big.Int, error)

	// BaseUnit is the decimal scale of returned prices.
	BaseUnit() uint8
}

// Adapter values amounts by querying a price oracle directly per
// asset. Asset decimal scales default to 18 and can be registered per
// asset.
type Adapter struct {
	mu       sync.RWMutex
	oracle   PriceOracle
	decimals map[common.Address]uint8
}

var _ Source = (*Adapter)(nil)

// NewAdapter returns an adapter over the given price oracle.
func NewAdapter(oracle PriceOracle) (*Adapter, error) {
	if oracle == nil {
		return nil, ErrNoOracle
	}
	return &Adapter{
		oracle:   oracle,
		decimals: make(map[common.Address]uint8),
	}, nil
}

// RegisterAsset declares the decimal scale of an asset's amounts.
func (a *Adapter) RegisterAsset(asset common.Address, decimals uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decimals[asset] = decimals
}

// ValueInCommonUnit converts amount of asset into the common unit,
// rounding down.
func (a *Adapter) ValueInCommonUnit(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}

	price, err := a.oracle.Price(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("price lookup: %w", err)
	}
	if price == nil || price.Sign() < 0 {
		return nil, ErrBadPrice
	}

	a.mu.RLock()
	assetDecimals, ok := a.decimals[asset]
	a.mu.RUnlock()
	if !ok {
		assetDecimals = CommonUnitDecimals
	}

	// amount / 10^assetDecimals * price / 10^baseUnit, scaled back to
	// the common unit.
	whole := decimal.NewFromBigInt(amount, -int32(assetDecimals))
	quote := decimal.NewFromBigInt(price, -int32(a.oracle.BaseUnit()))
	value := whole.Mul(quote).Shift(CommonUnitDecimals)
	return value.BigInt(), nil
}

// StaticOracle is a fixed price table, for tests and local tooling.
type StaticOracle struct {
	mu       sync.RWMutex
	prices   map[common.Address]*big.Int
	baseUnit uint8
}

var _ PriceOracle = (*StaticOracle)(nil)

// NewStaticOracle returns an empty price table quoting at baseUnit
// decimals.
func NewStaticOracle(baseUnit uint8) *StaticOracle {
	return &StaticOracle{
		prices:   make(map[common.Address]*big.Int),
		baseUnit: baseUnit,
	}
}

// SetPrice fixes the price of asset.
func (o *StaticOracle) SetPrice(asset common.Address, price *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[asset] = new(big.Int).Set(price)
}

// Price returns the fixed price of asset.
func (o *StaticOracle) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	price := o.prices[asset]
	if price == nil {
		return nil, ErrPriceNotFound
	}
	return new(big.Int).Set(price), nil
}

// BaseUnit returns the decimal scale of the table's prices.
func (o *StaticOracle) BaseUnit() uint8 {
	return o.baseUnit
}

// Errors
var (
	ErrNoOracle      = errors.New("no price oracle configured")
	ErrPriceNotFound = errors.New("no price for asset")
	ErrBadPrice      = errors.New("oracle returned an invalid price")
	ErrInvalidAmount = errors.New("negative or nil amount")
	ErrNotAdmin      = errors.New("caller is not the oracle admin")
)
