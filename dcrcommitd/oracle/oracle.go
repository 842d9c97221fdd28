// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package oracle provides price feeds that drive price triggered reveals.
package oracle

import (
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/robfig/cron"
)

// Feed publishes the latest price per asset.
type Feed interface {
	// Prices returns the latest sample of every asset sorted by asset.
	Prices() []commitment.Sample

	// Snapshot returns the latest prices as an evaluation snapshot.
	Snapshot() commitment.Snapshot

	// Subscribe registers fn to be called with every fresh snapshot.
	Subscribe(fn func(commitment.Snapshot))

	// Close stops the feed.  It is safe to call Close more than once.
	Close()
}

// publisher holds the latest samples and the subscriber list.  It is embedded
// by all feeds.
type publisher struct {
	sync.RWMutex

	samples     map[string]commitment.Sample
	subscribers []func(commitment.Snapshot)

	myNow func() time.Time // Override time.Now()
}

func (p *publisher) init() {
	p.samples = make(map[string]commitment.Sample)
	p.myNow = time.Now
}

// Prices returns the latest sample of every asset sorted by asset.
func (p *publisher) Prices() []commitment.Sample {
	p.RLock()
	defer p.RUnlock()

	r := make([]commitment.Sample, 0, len(p.samples))
	for _, v := range p.samples {
		r = append(r, v)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Asset < r[j].Asset })
	return r
}

// Snapshot returns the latest prices evaluated at the current time.
func (p *publisher) Snapshot() commitment.Snapshot {
	p.RLock()
	defer p.RUnlock()

	return p.snapshot()
}

// snapshot must be called with the lock held.
func (p *publisher) snapshot() commitment.Snapshot {
	samples := make([]commitment.Sample, 0, len(p.samples))
	for _, v := range p.samples {
		samples = append(samples, v)
	}
	return commitment.NewSnapshot(p.myNow(), samples...)
}

// Subscribe registers fn to be called with every fresh snapshot.
func (p *publisher) Subscribe(fn func(commitment.Snapshot)) {
	p.Lock()
	defer p.Unlock()

	p.subscribers = append(p.subscribers, fn)
}

// publish replaces the stored samples and notifies all subscribers.
// Subscribers are called without the lock held so they may query the feed.
func (p *publisher) publish(samples []commitment.Sample) {
	p.Lock()
	for _, v := range samples {
		p.samples[v.Asset] = v
	}
	snapshot := p.snapshot()
	subscribers := make([]func(commitment.Snapshot), len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}

// scheduler runs a single function from a cron schedule.  Stop is idempotent.
type scheduler struct {
	cron *cron.Cron
	once sync.Once
}

func newScheduler(schedule string, fn func()) (*scheduler, error) {
	c := cron.New()
	if err := c.AddFunc(schedule, fn); err != nil {
		return nil, err
	}
	c.Start()
	return &scheduler{cron: c}, nil
}

func (s *scheduler) stop() {
	if s == nil {
		return
	}
	s.once.Do(s.cron.Stop)
}
