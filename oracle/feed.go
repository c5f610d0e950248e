// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	defaultFeedTimeout = 10 * time.Second

	// maxFeedBody caps response reads from the feed endpoint.
	maxFeedBody = 1 << 20
)

// FeedConfig configures an HTTP price feed.
type FeedConfig struct {
	// URL is the feed endpoint. The asset address is appended as the
	// "asset" query parameter.
	URL string

	// PricePath is the gjson path of the price field in the response
	// body. The field may be a JSON number or a decimal string.
	PricePath string

	// BaseUnit is the decimal scale quoted prices are reported at.
	BaseUnit uint8

	// Timeout bounds each request. Zero means a 10s default.
	Timeout time.Duration
}

// FeedOracle reads per-asset prices from a JSON HTTP endpoint.
type FeedOracle struct {
	config FeedConfig
	client *http.Client
	log    log.Logger
}

var _ PriceOracle = (*FeedOracle)(nil)

// NewFeedOracle returns a price oracle backed by the configured feed.
func NewFeedOracle(config FeedConfig) (*FeedOracle, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: empty feed URL", ErrNoOracle)
	}
	if config.PricePath == "" {
		return nil, fmt.Errorf("%w: empty price path", ErrNoOracle)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultFeedTimeout
	}
	return &FeedOracle{
		config: config,
		client: &http.Client{Timeout: timeout},
		log:    log.NewTestLogger(log.InfoLevel),
	}, nil
}

// Price fetches the price of asset from the feed.
func (f *FeedOracle) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	u, err := url.Parse(f.config.URL)
	if err != nil {
		return nil, fmt.Errorf("feed URL: %w", err)
	}
	q := u.Query()
	q.Set("asset", asset.Hex())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		f.log.Warn("price feed error", "asset", asset, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrFeedUnavailable, resp.StatusCode)
	}

	field := gjson.GetBytes(body, f.config.PricePath)
	if !field.Exists() {
		return nil, fmt.Errorf("%w: missing %q", ErrPriceNotFound, f.config.PricePath)
	}

	quote, err := decimal.NewFromString(field.String())
	if err != nil {
		return nil, fmt.Errorf("parse feed price %q: %w", field.String(), err)
	}
	if quote.IsNegative() {
		return nil, ErrBadPrice
	}
	return quote.Shift(int32(f.config.BaseUnit)).BigInt(), nil
}

// BaseUnit returns the decimal scale of feed prices.
func (f *FeedOracle) BaseUnit() uint8 {
	return f.config.BaseUnit
}

// ErrFeedUnavailable reports a non-200 response from the feed.
var ErrFeedUnavailable = errors.New("price feed unavailable")
