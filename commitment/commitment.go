// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package commitment implements the commit/reveal domain: commitment records,
// their reveal conditions and the condition evaluator that decides whether a
// pending commitment may be revealed automatically.
package commitment

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a commitment.
type Status int

const (
	StatusPending  Status = 0 // Secret not disclosed yet
	StatusRevealed Status = 1 // Secret (or auto-reveal placeholder) disclosed
	StatusExpired  Status = 2 // Declared but never produced
)

var statusNames = map[Status]string{
	StatusPending:  "pending",
	StatusRevealed: "revealed",
	StatusExpired:  "expired",
}

// String returns the human readable status.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for k, v := range statusNames {
		if v == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid status: %v", s)
}

// Reveal holds everything that becomes known when a commitment transitions
// from pending to revealed.  It is set exactly once.
type Reveal struct {
	RevealedAt time.Time
	Secret     string // Revealed secret, or placeholder for auto-reveals
	Proof      string
	Automatic  bool // Set when the sweeper revealed the commitment
}

// Commitment binds the digest of a secret to a public description and a
// reveal condition.
type Commitment struct {
	ID          string
	Hash        string
	Description string
	Condition   Condition
	Status      Status
	CreatedAt   time.Time
	Reveal      *Reveal // nil iff Status != StatusRevealed
}

// IsPending returns true if the commitment has not been revealed.
func (c *Commitment) IsPending() bool {
	return c.Status == StatusPending
}

// Consistent reports whether the status and the reveal payload agree.
func (c *Commitment) Consistent() bool {
	return (c.Status == StatusRevealed) == (c.Reveal != nil)
}

// Copy returns a deep copy so that callers never alias store owned records.
func (c Commitment) Copy() Commitment {
	if c.Reveal != nil {
		r := *c.Reveal
		c.Reveal = &r
	}
	return c
}

// Sample is a single price observation of an asset.
type Sample struct {
	Asset      string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Snapshot is an immutable view of the latest price per asset together with
// the time at which conditions are evaluated.
type Snapshot struct {
	Now    time.Time
	prices map[string]Sample
}

// NewSnapshot creates a snapshot.  Later samples for the same asset supersede
// earlier ones.
func NewSnapshot(now time.Time, samples ...Sample) Snapshot {
	s := Snapshot{
		Now:    now,
		prices: make(map[string]Sample, len(samples)),
	}
	for _, v := range samples {
		s.prices[v.Asset] = v
	}
	return s
}

// Price returns the sample for asset if present.
func (s Snapshot) Price(asset string) (Sample, bool) {
	v, ok := s.prices[asset]
	return v, ok
}

// Len returns the number of assets in the snapshot.
func (s Snapshot) Len() int {
	return len(s.prices)
}

// Samples returns all samples sorted by asset.
func (s Snapshot) Samples() []Sample {
	r := make([]Sample, 0, len(s.prices))
	for _, v := range s.prices {
		r = append(r, v)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Asset < r[j].Asset })
	return r
}

// At returns a copy of the snapshot evaluated at a different time.
func (s Snapshot) At(now time.Time) Snapshot {
	return Snapshot{Now: now, prices: s.prices}
}
