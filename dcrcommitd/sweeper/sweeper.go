// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sweeper auto-reveals pending commitments whose condition has been
// met.
package sweeper

import (
	"sync"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/backend"
	"github.com/decred/dcrcommit/dcrcommitd/oracle"
	"github.com/robfig/cron"
)

// DefaultSchedule is how often a full pass runs in absence of price updates.
const DefaultSchedule = "@every 5s"

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source used for evaluation.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithSchedule overrides DefaultSchedule.
func WithSchedule(schedule string) Option {
	return func(s *Sweeper) {
		s.schedule = schedule
	}
}

// WithRevealHandler registers fn to be called for every commitment the
// sweeper revealed.
func WithRevealHandler(fn func(commitment.Commitment)) Option {
	return func(s *Sweeper) {
		s.onReveal = fn
	}
}

// Sweeper periodically evaluates all pending commitments against the latest
// price snapshot and reveals the satisfied ones.
type Sweeper struct {
	mtx        sync.Mutex // Protects cron, running and subscribed
	cron       *cron.Cron
	running    bool
	subscribed bool

	sweepMtx sync.Mutex // Serializes passes

	backend  backend.Backend
	feed     oracle.Feed
	schedule string
	now      func() time.Time
	onReveal func(commitment.Commitment)
}

// New returns a stopped sweeper.
func New(b backend.Backend, feed oracle.Feed, opts ...Option) *Sweeper {
	s := &Sweeper{
		backend:  b,
		feed:     feed,
		schedule: DefaultSchedule,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the periodic pass and hooks the sweeper to the price feed.
// Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	err := c.AddFunc(s.schedule, func() {
		s.pass(s.feed.Snapshot())
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c

	// Feeds cannot unsubscribe so the hook is installed once and gated on
	// running.
	if !s.subscribed {
		s.feed.Subscribe(s.priceUpdate)
		s.subscribed = true
	}
	s.running = true

	log.Infof("Sweeper started: %v", s.schedule)

	return nil
}

// Stop halts periodic passes.  Calling Stop on a stopped sweeper does
// nothing.
func (s *Sweeper) Stop() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.running = false

	log.Infof("Sweeper stopped")
}

// Running returns true when the sweeper has been started.
func (s *Sweeper) Running() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.running
}

func (s *Sweeper) priceUpdate(snapshot commitment.Snapshot) {
	if !s.Running() {
		return
	}
	s.pass(snapshot)
}

func (s *Sweeper) pass(snapshot commitment.Snapshot) {
	revealed, err := s.SweepSnapshot(snapshot)
	if err != nil {
		log.Errorf("Sweep: %v", err)
		return
	}
	if len(revealed) != 0 {
		log.Infof("Sweep: auto-revealed %v commitments", len(revealed))
	}
}

// Sweep runs a single pass against the feed's latest snapshot.
func (s *Sweeper) Sweep() ([]commitment.Commitment, error) {
	return s.SweepSnapshot(s.feed.Snapshot())
}

// SweepSnapshot runs a single pass against the prices in snapshot, evaluated
// at the sweeper's clock.  It returns the commitments it revealed.  Failures
// on individual commitments are logged and do not abort the pass.
func (s *Sweeper) SweepSnapshot(snapshot commitment.Snapshot) ([]commitment.Commitment, error) {
	s.sweepMtx.Lock()
	defer s.sweepMtx.Unlock()

	pending, err := s.backend.Pending()
	if err != nil {
		return nil, err
	}

	snapshot = snapshot.At(s.now())
	revealed := make([]commitment.Commitment, 0, len(pending))
	for _, c := range pending {
		if !commitment.IsSatisfied(c.Condition, snapshot) {
			continue
		}

		payload := commitment.AutoRevealPayload(c.Condition)
		proof := commitment.GenerateProof(payload, c.Hash, snapshot.Now)
		r, err := s.backend.AutoReveal(c.ID, payload, proof)
		if err != nil {
			log.Errorf("AutoReveal %v: %v", c.ID, err)
			continue
		}

		// Someone else won the race.
		if r.Reveal == nil || r.Reveal.Proof != proof {
			continue
		}

		log.Debugf("Auto-revealed %v: %v", c.ID, c.Condition.Describe())

		revealed = append(revealed, *r)
		if s.onReveal != nil {
			s.onReveal(*r)
		}
	}

	return revealed, nil
}
