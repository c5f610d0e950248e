// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"errors"
	"math/big"
	"testing"
)

func TestTickToSqrtPriceEndpoints(t *testing.T) {
	tests := []struct {
		name string
		tick int24
		want *big.Int
	}{
		{"zero tick", 0, new(big.Int).Set(Q96)},
		{"min tick", MinTick, new(big.Int).Set(MinSqrtRatio)},
		{"max tick", MaxTick, new(big.Int).Set(MaxSqrtRatio)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TickToSqrtPriceX96(tt.tick)
			if err != nil {
				t.Fatalf("TickToSqrtPriceX96(%d): %v", tt.tick, err)
			}
			if got.Cmp(tt.want) != 0 {
				t.Errorf("sqrt price mismatch: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTickToSqrtPriceOutOfRange(t *testing.T) {
	for _, tick := range []int24{MaxTick + 1, MinTick - 1, MaxTick * 2} {
		if _, err := TickToSqrtPriceX96(tick); !errors.Is(err, ErrTickOutOfRange) {
			t.Errorf("tick %d: got err %v, want ErrTickOutOfRange", tick, err)
		}
	}
}

func TestTickToSqrtPriceMonotonic(t *testing.T) {
	ticks := []int24{MinTick, -500000, -100000, -60, -1, 0, 1, 60, 100000, 500000, MaxTick}

	prev, err := TickToSqrtPriceX96(ticks[0])
	if err != nil {
		t.Fatalf("TickToSqrtPriceX96(%d): %v", ticks[0], err)
	}
	for _, tick := range ticks[1:] {
		cur, err := TickToSqrtPriceX96(tick)
		if err != nil {
			t.Fatalf("TickToSqrtPriceX96(%d): %v", tick, err)
		}
		if cur.Cmp(prev) <= 0 {
			t.Errorf("sqrt price not increasing at tick %d: %v <= %v", tick, cur, prev)
		}
		prev = cur
	}
}

func TestTickToSqrtPriceScaling(t *testing.T) {
	// One tick moves price by a factor of 1.0001, so
	// price(1)^2 / price(0)^2 must sit inside (1.00009, 1.00011).
	p1, err := TickToSqrtPriceX96(1)
	if err != nil {
		t.Fatalf("TickToSqrtPriceX96(1): %v", err)
	}
	sq := new(big.Int).Mul(p1, p1)
	sq.Mul(sq, big.NewInt(100000))

	base := new(big.Int).Mul(Q96, Q96)
	low := new(big.Int).Mul(base, big.NewInt(100009))
	high := new(big.Int).Mul(base, big.NewInt(100011))

	if sq.Cmp(low) <= 0 || sq.Cmp(high) >= 0 {
		t.Errorf("price(1)^2 out of expected band: %v not in (%v, %v)", sq, low, high)
	}
}

func TestSqrtPriceToTickRoundTrip(t *testing.T) {
	ticks := []int24{MinTick, -887220, -123456, -600, -1, 0, 1, 600, 123456, 887220, MaxTick}

	for _, tick := range ticks {
		sqrtPrice, err := TickToSqrtPriceX96(tick)
		if err != nil {
			t.Fatalf("TickToSqrtPriceX96(%d): %v", tick, err)
		}
		got, err := SqrtPriceX96ToTick(sqrtPrice)
		if err != nil {
			t.Fatalf("SqrtPriceX96ToTick(%v): %v", sqrtPrice, err)
		}
		if got != tick {
			t.Errorf("round trip mismatch: got %d, want %d", got, tick)
		}
	}
}

func TestSqrtPriceToTickBounds(t *testing.T) {
	below := new(big.Int).Sub(MinSqrtRatio, big.NewInt(1))
	if _, err := SqrtPriceX96ToTick(below); !errors.Is(err, ErrInvalidSqrtPrice) {
		t.Errorf("below min: got err %v, want ErrInvalidSqrtPrice", err)
	}

	above := new(big.Int).Add(MaxSqrtRatio, big.NewInt(1))
	if _, err := SqrtPriceX96ToTick(above); !errors.Is(err, ErrInvalidSqrtPrice) {
		t.Errorf("above max: got err %v, want ErrInvalidSqrtPrice", err)
	}

	if _, err := SqrtPriceX96ToTick(nil); !errors.Is(err, ErrInvalidSqrtPrice) {
		t.Errorf("nil price: got err %v, want ErrInvalidSqrtPrice", err)
	}

	// Both domain endpoints are inclusive and map to the edge ticks.
	if tick, err := SqrtPriceX96ToTick(MinSqrtRatio); err != nil || tick != MinTick {
		t.Errorf("min ratio: got tick %d err %v, want %d", tick, err, MinTick)
	}
	if tick, err := SqrtPriceX96ToTick(MaxSqrtRatio); err != nil || tick != MaxTick {
		t.Errorf("max ratio: got tick %d err %v, want %d", tick, err, MaxTick)
	}
}

func TestCheckTicks(t *testing.T) {
	tests := []struct {
		name    string
		lower   int24
		upper   int24
		spacing int24
		wantErr error
	}{
		{"valid range", -60, 60, 60, nil},
		{"valid wide range", -887220, 887220, 60, nil},
		{"reversed", 60, -60, 60, ErrInvalidTickRange},
		{"equal", 60, 60, 60, ErrInvalidTickRange},
		{"below min", MinTick - 60, 0, 60, ErrTickOutOfRange},
		{"above max", 0, MaxTick + 60, 60, ErrTickOutOfRange},
		{"lower unspaced", -50, 60, 60, ErrTickNotSpaced},
		{"upper unspaced", -60, 61, 60, ErrTickNotSpaced},
		{"zero spacing", -60, 60, 0, ErrInvalidTickSpacing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTicks(tt.lower, tt.upper, tt.spacing)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckTicks(%d, %d, %d): got err %v, want %v",
					tt.lower, tt.upper, tt.spacing, err, tt.wantErr)
			}
		})
	}
}
