// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package venues maintains the registry of execution venue adapters a
// deployment selects by config key.
package venues

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/alm/manager"
)

// Module pairs a venue adapter with the config key deployments select
// it by.
type Module struct {
	// Key is the unique config key.
	Key string

	// Venue executes pool operations and settles through its Account.
	Venue manager.Venue
}

// Registry holds venue modules sorted by account for deterministic
// iteration. Register venues during startup; the registry is not
// synchronized.
type Registry struct {
	modules  []Module
	reserved []common.Address
}

// New creates a registry. Accounts listed in reserved cannot be used by
// any venue. The zero address is always reserved.
func New(reserved ...common.Address) *Registry {
	r := &Registry{reserved: []common.Address{{}}}
	r.reserved = append(r.reserved, reserved...)
	return r
}

// Reserved returns true iff account may not be used by a venue.
func (r *Registry) Reserved(account common.Address) bool {
	for _, addr := range r.reserved {
		if addr == account {
			return true
		}
	}
	return false
}

// Register adds the module. Keys and venue accounts are unique across
// the registry.
func (r *Registry) Register(m Module) error {
	if m.Key == "" {
		return errors.New("venue key is required")
	}
	if m.Venue == nil {
		return fmt.Errorf("venue %s is nil", m.Key)
	}

	account := m.Venue.Account()
	if r.Reserved(account) {
		return fmt.Errorf("account %s is reserved", account)
	}

	for _, registered := range r.modules {
		if registered.Key == m.Key {
			return fmt.Errorf("key %s already used by a registered venue", m.Key)
		}
		if registered.Venue.Account() == account {
			return fmt.Errorf("account %s already used by a registered venue", account)
		}
	}

	// sort by account to ensure deterministic iteration
	r.modules = append(r.modules, m)
	sort.Slice(r.modules, func(i, j int) bool {
		a := r.modules[i].Venue.Account()
		b := r.modules[j].Venue.Account()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return nil
}

// ByKey returns the module registered under key.
func (r *Registry) ByKey(key string) (Module, bool) {
	for _, m := range r.modules {
		if m.Key == key {
			return m, true
		}
	}
	return Module{}, false
}

// ByAccount returns the module whose venue settles through account.
func (r *Registry) ByAccount(account common.Address) (Module, bool) {
	for _, m := range r.modules {
		if m.Venue.Account() == account {
			return m, true
		}
	}
	return Module{}, false
}

// Registered returns the modules in account order.
func (r *Registry) Registered() []Module {
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// defaultRegistry backs the package-level functions.
var defaultRegistry = New()

// Register adds the module to the process-wide registry.
func Register(m Module) error { return defaultRegistry.Register(m) }

// ByKey looks key up in the process-wide registry.
func ByKey(key string) (Module, bool) { return defaultRegistry.ByKey(key) }

// ByAccount looks account up in the process-wide registry.
func ByAccount(account common.Address) (Module, bool) { return defaultRegistry.ByAccount(account) }

// Registered lists the process-wide registry in account order.
func Registered() []Module { return defaultRegistry.Registered() }
