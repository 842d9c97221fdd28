// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/shopspring/decimal"
)

// loader is implemented by backends that accept fully formed commitments.
type loader interface {
	Load(commitment.Commitment) error
}

type sampleCommitment struct {
	description string
	secret      string
	condition   commitment.Condition
	age         int // days
	revealedAge int // days, 0 while pending
}

const day = 24 * time.Hour

func priceTrigger(asset string, target int64) commitment.Condition {
	return commitment.PriceTrigger{
		Asset:  asset,
		Target: decimal.NewFromInt(target),
	}
}

func timeLock(year int, month time.Month, d, hour, min int) commitment.Condition {
	return commitment.TimeLock{
		Expiry: time.Date(year, month, d, hour, min, 0, 0, time.UTC),
	}
}

var sampleCommitments = []sampleCommitment{
	{
		description: "Bitcoin Price Prediction - March 2024",
		secret:      "Bitcoin will reach $120,000 by March 2024 - I'm calling it now!",
		condition:   priceTrigger("BTC", 120000),
		age:         2,
	},
	{
		description: "AI Technology Prediction",
		secret: "The next major AI breakthrough will be in multimodal " +
			"reasoning, combining vision, language, and action in a " +
			"single model.",
		condition: timeLock(2025, time.January, 15, 12, 0),
		age:       5,
	},
	{
		description: "The Flippening Prediction",
		secret: "Ethereum will flip Bitcoin in market cap during the " +
			"next bull run - the flippening is inevitable!",
		condition: priceTrigger("ETH", 8000),
		age:       1,
	},
	{
		description: "Remote Work Revolution",
		secret: "I predicted that remote work would become the new " +
			"normal before the pandemic hit. The future of work is " +
			"distributed.",
		condition:   commitment.Manual{},
		age:         10,
		revealedAge: 3,
	},
	{
		description: "Solana Performance Prediction",
		secret: "Solana will outperform most altcoins in 2024 due to " +
			"its superior technology and growing ecosystem.",
		condition: priceTrigger("SOL", 300),
		age:       7,
	},
	{
		description: "Web3 Social Media Prediction",
		secret: "The next major social media platform will be built on " +
			"blockchain technology with true user ownership of data " +
			"and content.",
		condition: timeLock(2024, time.December, 31, 23, 59),
		age:       14,
	},
	{
		description: "Tesla Stock & Battery Tech",
		secret: "Tesla's stock will hit $500 per share when they " +
			"announce their next-generation battery technology.",
		condition:   commitment.Manual{},
		age:         21,
		revealedAge: 1,
	},
	{
		description: "Metaverse Reality Check",
		secret: "The metaverse hype will die down by 2025, but AR/VR " +
			"will find real utility in education and remote " +
			"collaboration.",
		condition: timeLock(2025, time.June, 1, 9, 0),
		age:       30,
	},
}

// buildSamples returns the demonstration commitments relative to now.
func buildSamples(now time.Time) []commitment.Commitment {
	cs := make([]commitment.Commitment, 0, len(sampleCommitments))
	for _, s := range sampleCommitments {
		c := commitment.Commitment{
			ID:          commitment.NewID(),
			Hash:        commitment.Digest(s.secret),
			Description: s.description,
			Condition:   s.condition,
			Status:      commitment.StatusPending,
			CreatedAt:   now.Add(-time.Duration(s.age) * day),
		}
		if s.revealedAge > 0 {
			at := now.Add(-time.Duration(s.revealedAge) * day)
			c.Status = commitment.StatusRevealed
			c.Reveal = &commitment.Reveal{
				RevealedAt: at,
				Secret:     s.secret,
				Proof:      commitment.GenerateProof(s.secret, c.Hash, at),
			}
		}
		cs = append(cs, c)
	}
	return cs
}

// seedSamples loads the demonstration commitments into l.
func seedSamples(l loader, now time.Time) error {
	for _, c := range buildSamples(now) {
		if err := l.Load(c); err != nil {
			return err
		}
	}
	log.Infof("Seeded %v sample commitments", len(sampleCommitments))
	return nil
}
