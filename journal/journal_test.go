// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/luxfi/alm/manager"
)

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestNewJSONLValidation(t *testing.T) {
	_, err := NewJSONL("")
	require.Error(t, err)
}

func TestJSONLEmit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events", "positions.jsonl")

	journal, err := NewJSONL(path)
	require.NoError(t, err)
	journal.now = fixedClock(1756100000)

	created := manager.PositionCreated{
		PositionID: common.HexToHash("0xaa01"),
		Owner:      common.HexToAddress("0x500"),
		PoolID:     common.HexToHash("0xbb02"),
		TickLower:  -600,
		TickUpper:  600,
		Liquidity:  big.NewInt(1_000_000_000_000_000_000),
		Amount0:    big.NewInt(250_000),
		Amount1:    big.NewInt(375_000),
		Fee0:       big.NewInt(0),
		Fee1:       big.NewInt(0),
	}
	require.NoError(t, journal.Emit(ctx, created))

	claimed := manager.ClaimedFees{
		PositionID: common.HexToHash("0xaa01"),
		Owner:      common.HexToAddress("0x500"),
		Recipient:  common.HexToAddress("0x600"),
		Amount0:    big.NewInt(1_500),
		Amount1:    big.NewInt(2_500),
		Fee0:       big.NewInt(15),
		Fee1:       big.NewInt(25),
	}
	require.NoError(t, journal.Emit(ctx, claimed))

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	require.Equal(t, "PositionCreated", gjson.Get(lines[0], "type").String())
	require.Equal(t, int64(1756100000), gjson.Get(lines[0], "ts").Int())

	wantCreated, err := json.Marshal(created)
	require.NoError(t, err)
	require.JSONEq(t, string(wantCreated), gjson.Get(lines[0], "event").Raw)

	var gotCreated manager.PositionCreated
	require.NoError(t, json.Unmarshal([]byte(gjson.Get(lines[0], "event").Raw), &gotCreated))
	require.Equal(t, created.Owner, gotCreated.Owner)
	require.Equal(t, created.TickLower, gotCreated.TickLower)
	require.Equal(t, created.Liquidity.String(), gotCreated.Liquidity.String())

	require.Equal(t, "ClaimedFees", gjson.Get(lines[1], "type").String())

	wantClaimed, err := json.Marshal(claimed)
	require.NoError(t, err)
	require.JSONEq(t, string(wantClaimed), gjson.Get(lines[1], "event").Raw)
}

func TestJSONLAppendsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "positions.jsonl")

	first, err := NewJSONL(path)
	require.NoError(t, err)
	first.now = fixedClock(1756100000)
	require.NoError(t, first.Emit(ctx, manager.Withdrawn{
		PositionID:      common.HexToHash("0xaa01"),
		Owner:           common.HexToAddress("0x500"),
		Recipient:       common.HexToAddress("0x500"),
		Percent:         manager.PrecisionBps,
		Amount0:         big.NewInt(10),
		Amount1:         big.NewInt(20),
		Fee0:            big.NewInt(0),
		Fee1:            big.NewInt(0),
		LiquidityBefore: big.NewInt(500),
		LiquidityAfter:  big.NewInt(0),
		Retired:         true,
	}))

	second, err := NewJSONL(path)
	require.NoError(t, err)
	second.now = fixedClock(1756103600)
	require.NoError(t, second.Emit(ctx, manager.RangeMoved{
		OldPositionID: common.HexToHash("0xaa01"),
		NewPositionID: common.HexToHash("0xaa02"),
		Owner:         common.HexToAddress("0x500"),
		OldTickLower:  -600,
		OldTickUpper:  600,
		NewTickLower:  -180,
		NewTickUpper:  1020,
		Liquidity:     big.NewInt(900),
		Amount0:       big.NewInt(1),
		Amount1:       big.NewInt(2),
		Leftover0:     big.NewInt(0),
		Leftover1:     big.NewInt(0),
	}))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	require.Equal(t, "Withdrawn", gjson.Get(lines[0], "type").String())
	require.Equal(t, "RangeMoved", gjson.Get(lines[1], "type").String())
	require.Equal(t, true, gjson.Get(lines[0], "event.retired").Bool())
	require.Equal(t, int64(-180), gjson.Get(lines[1], "event.newTickLower").Int())
}
