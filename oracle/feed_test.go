// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedOraclePrice(t *testing.T) {
	ctx := context.Background()

	var gotAsset string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAsset = r.URL.Query().Get("asset")
		w.Write([]byte(`{"data":{"price":"2500.5","updated":1756100000}}`))
	}))
	defer server.Close()

	feed, err := NewFeedOracle(FeedConfig{
		URL:       server.URL,
		PricePath: "data.price",
		BaseUnit:  8,
	})
	require.NoError(t, err)
	require.Equal(t, uint8(8), feed.BaseUnit())

	price, err := feed.Price(ctx, tokenA)
	require.NoError(t, err)
	require.Equal(t, "250050000000", price.String())
	require.Equal(t, tokenA.Hex(), gotAsset)
}

func TestFeedOracleNumericField(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price":1999.25}`))
	}))
	defer server.Close()

	feed, err := NewFeedOracle(FeedConfig{URL: server.URL, PricePath: "price", BaseUnit: 6})
	require.NoError(t, err)

	price, err := feed.Price(ctx, tokenA)
	require.NoError(t, err)
	require.Equal(t, "1999250000", price.String())
}

func TestFeedOracleErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewFeedOracle(FeedConfig{PricePath: "price"})
	require.ErrorIs(t, err, ErrNoOracle)
	_, err = NewFeedOracle(FeedConfig{URL: "http://localhost"})
	require.ErrorIs(t, err, ErrNoOracle)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("asset") {
		case tokenA.Hex():
			w.WriteHeader(http.StatusInternalServerError)
		case tokenB.Hex():
			w.Write([]byte(`{"other":1}`))
		default:
			w.Write([]byte(`{"price":"-3"}`))
		}
	}))
	defer server.Close()

	feed, err := NewFeedOracle(FeedConfig{URL: server.URL, PricePath: "price", BaseUnit: 8})
	require.NoError(t, err)

	_, err = feed.Price(ctx, tokenA)
	require.ErrorIs(t, err, ErrFeedUnavailable)

	_, err = feed.Price(ctx, tokenB)
	require.ErrorIs(t, err, ErrPriceNotFound)

	_, err = feed.Price(ctx, wrappedAsset)
	require.ErrorIs(t, err, ErrBadPrice)
}
