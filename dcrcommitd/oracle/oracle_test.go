// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMockSeed(t *testing.T) {
	m, err := NewMock("", 1)
	require.NoError(t, err)
	defer m.Close()

	prices := m.Prices()
	require.Len(t, prices, len(mockAssets))
	for i, v := range mockAssets {
		p := prices[i]
		require.Equal(t, v.asset, p.Asset)
		require.True(t, p.Price.GreaterThanOrEqual(
			decimal.NewFromFloat(v.low)), "%v %v", p.Asset, p.Price)
		require.True(t, p.Price.LessThanOrEqual(
			decimal.NewFromFloat(v.low+v.width)), "%v %v", p.Asset,
			p.Price)
		require.True(t, p.Price.Equal(p.Price.Round(2)))
	}
}

func TestMockStep(t *testing.T) {
	m, err := NewMock("", 42)
	require.NoError(t, err)
	defer m.Close()

	var (
		mtx   sync.Mutex
		calls int
	)
	m.Subscribe(func(s commitment.Snapshot) {
		mtx.Lock()
		defer mtx.Unlock()
		calls++
		require.Equal(t, len(mockAssets), s.Len())
	})

	bound := decimal.NewFromFloat(maxStep)
	for i := 0; i < 100; i++ {
		before := m.Prices()
		m.Step()
		after := m.Prices()
		for j := range before {
			require.False(t, after[j].Price.IsNegative())
			require.True(t, after[j].Price.Equal(after[j].Price.Round(2)))

			// Allow for cent rounding.
			limit := before[j].Price.Mul(bound).Add(
				decimal.RequireFromString("0.01"))
			delta := after[j].Price.Sub(before[j].Price).Abs()
			require.True(t, delta.LessThanOrEqual(limit),
				"%v moved %v", before[j].Asset, delta)
		}
	}

	mtx.Lock()
	require.Equal(t, 100, calls)
	mtx.Unlock()
}

func TestMockSchedule(t *testing.T) {
	m, err := NewMock("@every 1s", 7)
	require.NoError(t, err)

	published := make(chan struct{}, 1)
	m.Subscribe(func(commitment.Snapshot) {
		select {
		case published <- struct{}{}:
		default:
		}
	})

	select {
	case <-published:
	case <-time.After(5 * time.Second):
		t.Fatal("no price update")
	}

	// Close must be idempotent.
	m.Close()
	m.Close()

	_, err = NewMock("not a schedule", 7)
	require.Error(t, err)
}

func TestStatic(t *testing.T) {
	s := NewStatic(commitment.Sample{Asset: "BTC",
		Price: decimal.NewFromInt(119999)})
	defer s.Close()

	var got commitment.Snapshot
	s.Subscribe(func(snapshot commitment.Snapshot) {
		got = snapshot
	})

	sample, ok := s.Snapshot().Price("BTC")
	require.True(t, ok)
	require.True(t, sample.Price.Equal(decimal.NewFromInt(119999)))

	s.Set(commitment.Sample{Asset: "BTC", Price: decimal.NewFromInt(120000)},
		commitment.Sample{Asset: "ETH", Price: decimal.NewFromInt(4000)})
	require.Equal(t, 2, got.Len())
	sample, ok = got.Price("BTC")
	require.True(t, ok)
	require.True(t, sample.Price.Equal(decimal.NewFromInt(120000)))
	require.Len(t, s.Prices(), 2)
}

func TestHTTP(t *testing.T) {
	var (
		mtx  sync.Mutex
		body = `{"BTC":"101000.12","eth":3800}`
		fail bool
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mtx.Lock()
		defer mtx.Unlock()
		if fail {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer ts.Close()

	h, err := NewHTTP(ts.URL, "")
	require.NoError(t, err)
	defer h.Close()

	prices := h.Prices()
	require.Len(t, prices, 2)
	require.Equal(t, "BTC", prices[0].Asset)
	require.True(t, prices[0].Price.Equal(
		decimal.RequireFromString("101000.12")))
	require.Equal(t, "ETH", prices[1].Asset)

	// Failures keep the previous prices.
	mtx.Lock()
	fail = true
	mtx.Unlock()
	require.Error(t, h.Poll(context.Background()))
	require.Len(t, h.Prices(), 2)

	// Garbage is rejected as well.
	mtx.Lock()
	fail = false
	body = `not json`
	mtx.Unlock()
	require.Error(t, h.Poll(context.Background()))
	require.Len(t, h.Prices(), 2)
}
