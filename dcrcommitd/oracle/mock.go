// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package oracle

import (
	"math/rand"
	"sync"

	"github.com/decred/dcrcommit/commitment"
	"github.com/shopspring/decimal"
)

const (
	// DefaultMockSchedule is how often the mock feed moves its prices.
	DefaultMockSchedule = "@every 2s"

	// maxStep is the largest relative move per step.
	maxStep = 0.01
)

// seedRange is the initial price interval of a simulated asset.
type seedRange struct {
	asset string
	low   float64
	width float64
}

var mockAssets = []seedRange{
	{asset: "BTC", low: 95000, width: 10000},
	{asset: "ETH", low: 3500, width: 500},
	{asset: "SOL", low: 180, width: 40},
}

var _ Feed = (*Mock)(nil)

// Mock is a random walk price simulator for BTC, ETH and SOL.
type Mock struct {
	publisher

	mtx       sync.Mutex // Protects rand
	rand      *rand.Rand
	scheduler *scheduler
}

// NewMock returns a simulated feed.  Prices move on every tick of schedule; an
// empty schedule disables the timer and prices only move through Step.
func NewMock(schedule string, seed int64) (*Mock, error) {
	m := &Mock{
		rand: rand.New(rand.NewSource(seed)),
	}
	m.publisher.init()

	now := m.myNow()
	for _, v := range mockAssets {
		price := v.low + m.rand.Float64()*v.width
		m.samples[v.asset] = commitment.Sample{
			Asset:      v.asset,
			Price:      decimal.NewFromFloat(price).Round(2),
			ObservedAt: now,
		}
	}

	if schedule != "" {
		var err error
		m.scheduler, err = newScheduler(schedule, m.Step)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Step moves every price by up to one percent in either direction and
// publishes the result.  Prices are rounded to cents and never negative.
func (m *Mock) Step() {
	current := m.Prices()
	now := m.myNow()

	m.mtx.Lock()
	next := make([]commitment.Sample, 0, len(current))
	for _, v := range current {
		change := (m.rand.Float64() - 0.5) * 2 * maxStep
		price := v.Price.Mul(decimal.NewFromFloat(1 + change)).Round(2)
		if price.IsNegative() {
			price = decimal.Zero
		}
		next = append(next, commitment.Sample{
			Asset:      v.Asset,
			Price:      price,
			ObservedAt: now,
		})
	}
	m.mtx.Unlock()

	m.publish(next)

	log.Tracef("Step: %v", next)
}

// Close stops the price timer.
func (m *Mock) Close() {
	m.scheduler.stop()
}
