// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package manager owns concentrated-liquidity position state and the
// lifecycle operations over it: create, increase, claim, compound, move
// range, and withdraw, plus deterministic previews of the liquidity
// math. The external pool, ownership registry, and asset custody are
// collaborators behind narrow interfaces; the manager holds no pool
// state and no asset balances of its own once an operation returns.
package manager

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/alm/amm"
)

// Venue is the capability surface of an external pricing venue. One
// adapter implements it per AMM generation; the manager depends only on
// this interface, never on a concrete venue.
type Venue interface {
	// Account is the venue's address in the asset vault. Deposits are
	// pushed to it and proceeds pulled from it.
	Account() common.Address

	// Pool returns the current price, tick, and active liquidity.
	Pool(ctx context.Context, key amm.PoolKey) (amm.PoolState, error)

	// FeeGrowthInside returns the fee growth per unit liquidity
	// accumulated inside the tick range, X128, one value per asset.
	FeeGrowthInside(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32) (*uint256.Int, *uint256.Int, error)

	// Mint adds liquidity over the range and returns the asset amounts
	// the venue takes for it, rounded up. The caller settles them to
	// Account within the same operation.
	Mint(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32, liquidity *big.Int) (*big.Int, *big.Int, error)

	// Burn removes liquidity and stages the released amounts, rounded
	// down, for a later Collect.
	Burn(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32, liquidity *big.Int) (*big.Int, *big.Int, error)

	// Collect clears and returns all amounts staged by Burn.
	Collect(ctx context.Context, key amm.PoolKey, tickLower, tickUpper int32) (*big.Int, *big.Int, error)

	// Swap converts amountIn of one pool asset into the other at the
	// venue's current price and returns the output amount.
	Swap(ctx context.Context, key amm.PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error)

	// Quote prices the same conversion without executing it, so the
	// manager can reject an unmet minimum before any value moves.
	Quote(ctx context.Context, key amm.PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error)
}

// Vault is the external asset custody subsystem. Transfers either fully
// succeed or fail the whole operation; partial transfers do not occur.
type Vault interface {
	// Pull moves amount of asset from the holder into the manager's
	// account.
	Pull(ctx context.Context, asset amm.Currency, from common.Address, amount *big.Int) error

	// Push moves amount of asset from the manager's account to the
	// recipient.
	Push(ctx context.Context, asset amm.Currency, to common.Address, amount *big.Int) error

	// Balance returns the holder's balance of asset.
	Balance(ctx context.Context, asset amm.Currency, holder common.Address) (*big.Int, error)
}

// OwnerRegistry is the external ownership record for position
// identifiers. The manager checks ownership against it on every
// owner-gated call instead of keeping its own copy.
type OwnerRegistry interface {
	OwnerOf(ctx context.Context, id PositionID) (common.Address, error)
	Mint(ctx context.Context, id PositionID, owner common.Address) error
	Burn(ctx context.Context, id PositionID) error

	// IsApprovedFor reports whether operator may act on owner's
	// positions.
	IsApprovedFor(ctx context.Context, owner, operator common.Address) (bool, error)
}

// EventSink receives structured operation events.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// Config wires the manager's identities and fee schedule.
type Config struct {
	// Account is the manager's own address in the asset vault, used for
	// transient settlement balances.
	Account common.Address `json:"account" validate:"required"`

	// Admin may change the protocol fee configuration.
	Admin common.Address `json:"admin" validate:"required"`

	Fees ProtocolFeeConfig `json:"fees"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c.Fees.Validate()
}

// DefaultConfig returns a configuration with the standard fee schedule.
// Account and Admin must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		Fees: DefaultProtocolFeeConfig(),
	}
}

// Manager is the position lifecycle engine.
type Manager struct {
	mu sync.RWMutex

	cfg      Config
	venue    Venue
	registry OwnerRegistry
	vault    Vault
	fees     *FeeCollector
	store    *PositionStore
	sink     EventSink

	// Logger
	log log.Logger

	// Clock, swappable in tests
	now func() time.Time
}

// New creates a manager over the given collaborators. Position records
// persist in db across restarts.
func New(cfg Config, venue Venue, registry OwnerRegistry, vault Vault, db database.Database) (*Manager, error) {
	logger := log.NewTestLogger(log.InfoLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if venue == nil || registry == nil || vault == nil || db == nil {
		return nil, fmt.Errorf("%w: nil collaborator", ErrInvalidConfig)
	}

	fees, err := NewFeeCollector(cfg.Admin, cfg.Fees)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:      cfg,
		venue:    venue,
		registry: registry,
		vault:    vault,
		fees:     fees,
		store:    NewPositionStore(db),
		log:      logger,
		now:      time.Now,
	}, nil
}

// SetEventSink installs the event sink. A nil sink disables emission.
func (m *Manager) SetEventSink(sink EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// Fees returns the protocol fee collector. Configuration changes go
// through FeeCollector.SetConfig under the admin check.
func (m *Manager) Fees() *FeeCollector {
	return m.fees
}

// Account returns the manager's vault account.
func (m *Manager) Account() common.Address {
	return m.cfg.Account
}

// Position returns a copy-safe view of a stored position record.
func (m *Manager) Position(id PositionID) (*Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Get(id)
}

// Owner returns the registered owner of a position.
func (m *Manager) Owner(ctx context.Context, id PositionID) (common.Address, error) {
	return m.registry.OwnerOf(ctx, id)
}

// activePosition loads a position and rejects retired records.
func (m *Manager) activePosition(id PositionID) (*Position, error) {
	p, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Retired {
		return nil, ErrPositionRetired
	}
	return p, nil
}

// requireOwner resolves the registered owner and authorizes the caller:
// the owner itself, or an operator the registry has approved for it.
// The registered owner is returned either way.
func (m *Manager) requireOwner(ctx context.Context, caller common.Address, id PositionID) (common.Address, error) {
	owner, err := m.registry.OwnerOf(ctx, id)
	if err != nil {
		return common.Address{}, fmt.Errorf("owner lookup: %w", err)
	}
	if caller == owner {
		return owner, nil
	}

	approved, err := m.registry.IsApprovedFor(ctx, owner, caller)
	if err != nil {
		return common.Address{}, fmt.Errorf("approval lookup: %w", err)
	}
	if !approved {
		return common.Address{}, ErrNotPositionOwner
	}
	return owner, nil
}

// syncFees synchronizes the position's unclaimed fee balances with the
// venue's fee growth counters and advances the checkpoint. Mandatory
// before any liquidity mutation; idempotent when no pool activity
// happened in between.
func (m *Manager) syncFees(ctx context.Context, p *Position) error {
	growth0, growth1, err := m.venue.FeeGrowthInside(ctx, p.PoolKey, p.TickLower, p.TickUpper)
	if err != nil {
		return fmt.Errorf("fee growth lookup: %w", err)
	}

	owed0 := amm.FeesOwed(growth0, p.FeeGrowth0Last, p.Liquidity)
	owed1 := amm.FeesOwed(growth1, p.FeeGrowth1Last, p.Liquidity)

	p.TokensOwed0.Add(p.TokensOwed0, owed0)
	p.TokensOwed1.Add(p.TokensOwed1, owed1)
	p.FeeGrowth0Last.Set(growth0)
	p.FeeGrowth1Last.Set(growth1)
	return nil
}

// settle enforces the full settlement invariant: after an operation the
// manager's own account holds none of either pool asset.
func (m *Manager) settle(ctx context.Context, key amm.PoolKey) error {
	for _, asset := range []amm.Currency{key.Currency0, key.Currency1} {
		bal, err := m.vault.Balance(ctx, asset, m.cfg.Account)
		if err != nil {
			return fmt.Errorf("settlement balance lookup: %w", err)
		}
		if bal.Sign() != 0 {
			m.log.Error("settlement invariant violated", "asset", asset.Address, "balance", bal)
			return ErrSettlementFailed
		}
	}
	return nil
}

// emit delivers an event to the sink, if one is installed. Sink
// failures are logged and swallowed.
func (m *Manager) emit(ctx context.Context, ev Event) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Emit(ctx, ev); err != nil {
		m.log.Warn("event emission failed", "type", ev.Type(), "err", err)
	}
}

// mintPositionID reserves a fresh position identifier.
func (m *Manager) mintPositionID(poolID common.Hash, owner common.Address, tickLower, tickUpper int32) (PositionID, error) {
	seq, err := m.store.NextSequence()
	if err != nil {
		return PositionID{}, fmt.Errorf("sequence: %w", err)
	}
	return computePositionID(poolID, owner, tickLower, tickUpper, seq), nil
}

// pullBoth pulls both gross input amounts from the depositor.
func (m *Manager) pullBoth(ctx context.Context, key amm.PoolKey, from common.Address, amount0, amount1 *big.Int) error {
	if amount0.Sign() > 0 {
		if err := m.vault.Pull(ctx, key.Currency0, from, amount0); err != nil {
			return fmt.Errorf("pull asset0: %w", err)
		}
	}
	if amount1.Sign() > 0 {
		if err := m.vault.Pull(ctx, key.Currency1, from, amount1); err != nil {
			return fmt.Errorf("pull asset1: %w", err)
		}
	}
	return nil
}

// pushBoth pushes per-asset amounts from the manager to a recipient.
func (m *Manager) pushBoth(ctx context.Context, key amm.PoolKey, to common.Address, amount0, amount1 *big.Int) error {
	if amount0.Sign() > 0 {
		if err := m.vault.Push(ctx, key.Currency0, to, amount0); err != nil {
			return fmt.Errorf("push asset0: %w", err)
		}
	}
	if amount1.Sign() > 0 {
		if err := m.vault.Push(ctx, key.Currency1, to, amount1); err != nil {
			return fmt.Errorf("push asset1: %w", err)
		}
	}
	return nil
}

// skimFees computes the protocol fee on both gross amounts and returns
// the fees alongside the nets.
func (m *Manager) skimFees(amount0, amount1 *big.Int, feeType FeeType) (fee0, fee1, net0, net1 *big.Int) {
	fee0 = m.fees.CalculateFee(amount0, feeType)
	fee1 = m.fees.CalculateFee(amount1, feeType)
	net0 = new(big.Int).Sub(amount0, fee0)
	net1 = new(big.Int).Sub(amount1, fee1)
	return fee0, fee1, net0, net1
}

// belowMin reports whether got is below a caller-specified floor. A nil
// floor never triggers.
func belowMin(got, min *big.Int) bool {
	return min != nil && got.Cmp(min) < 0
}

// zeroIfNil normalizes optional amount inputs.
func zeroIfNil(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return x
}
