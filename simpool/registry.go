// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simpool

import (
	"context"
	"errors"
	"sync"

	"github.com/luxfi/geth/common"
)

// Registry is an in-memory position ownership ledger with per-owner
// operator approvals.
type Registry struct {
	mu        sync.RWMutex
	owners    map[common.Hash]common.Address
	approvals map[common.Address]map[common.Address]bool
}

// NewRegistry returns an empty ownership registry.
func NewRegistry() *Registry {
	return &Registry{
		owners:    make(map[common.Hash]common.Address),
		approvals: make(map[common.Address]map[common.Address]bool),
	}
}

// OwnerOf returns the owner of id.
func (r *Registry) OwnerOf(ctx context.Context, id common.Hash) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[id]
	if !ok {
		return common.Address{}, ErrTokenNotFound
	}
	return owner, nil
}

// Mint records owner as the holder of id.
func (r *Registry) Mint(ctx context.Context, id common.Hash, owner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[id]; ok {
		return ErrTokenExists
	}
	r.owners[id] = owner
	return nil
}

// Burn removes id from the ledger.
func (r *Registry) Burn(ctx context.Context, id common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[id]; !ok {
		return ErrTokenNotFound
	}
	delete(r.owners, id)
	return nil
}

// IsApprovedFor reports whether operator may act on owner's positions.
func (r *Registry) IsApprovedFor(ctx context.Context, owner, operator common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.approvals[owner][operator], nil
}

// SetApproval grants or revokes operator rights over owner's
// positions.
func (r *Registry) SetApproval(owner, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := r.approvals[owner]
	if ops == nil {
		ops = make(map[common.Address]bool)
		r.approvals[owner] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
}

// Errors
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExists   = errors.New("token already exists")
)
