// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commitment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Condition kinds as they appear on the wire and in storage.
const (
	KindManual = "manual"
	KindPrice  = "price"
	KindTime   = "time"
)

// descriptionTimeFormat renders time locks the way they were shown to users.
const descriptionTimeFormat = "January 2, 2006 at 3:04 PM"

// Condition is a reveal condition.  The set of implementations is closed:
// Manual, PriceTrigger and TimeLock.
type Condition interface {
	// Kind returns one of KindManual, KindPrice or KindTime.
	Kind() string

	// Describe returns the human readable condition.
	Describe() string

	isCondition()
}

// Manual conditions are only satisfied by the owner revealing the secret.
type Manual struct{}

// PriceTrigger is satisfied once Asset trades at or above Target.
type PriceTrigger struct {
	Asset  string
	Target decimal.Decimal
}

// TimeLock is satisfied once wall clock time reaches Expiry.
type TimeLock struct {
	Expiry time.Time
}

var (
	_ Condition = Manual{}
	_ Condition = PriceTrigger{}
	_ Condition = TimeLock{}
)

func (Manual) Kind() string       { return KindManual }
func (PriceTrigger) Kind() string { return KindPrice }
func (TimeLock) Kind() string     { return KindTime }

func (Manual) isCondition()       {}
func (PriceTrigger) isCondition() {}
func (TimeLock) isCondition()     {}

func (Manual) Describe() string {
	return "Manual reveal only"
}

func (p PriceTrigger) Describe() string {
	return fmt.Sprintf("Auto-reveal when %v reaches $%v", p.Asset,
		FormatAmount(p.Target))
}

func (t TimeLock) Describe() string {
	return "Auto-reveal on " + t.Expiry.UTC().Format(descriptionTimeFormat)
}

// IsSatisfied decides whether cond currently allows an automatic reveal.
// Manual conditions never do.  A snapshot without a sample for the trigger
// asset does not satisfy a price trigger.  Time locks compare against
// snapshot.Now.
func IsSatisfied(cond Condition, snapshot Snapshot) bool {
	switch c := cond.(type) {
	case PriceTrigger:
		sample, ok := snapshot.Price(c.Asset)
		if !ok {
			return false
		}
		return sample.Price.GreaterThanOrEqual(c.Target)
	case TimeLock:
		return !snapshot.Now.Before(c.Expiry)
	}
	return false
}

// NewCondition builds a condition from its flattened representation.  Fields
// that do not belong to kind must be zero.
func NewCondition(kind, asset string, target decimal.Decimal, expiry time.Time) (Condition, error) {
	switch kind {
	case KindManual:
		if asset != "" || !target.IsZero() || !expiry.IsZero() {
			return nil, fmt.Errorf("manual condition takes no parameters")
		}
		return Manual{}, nil
	case KindPrice:
		if !expiry.IsZero() {
			return nil, fmt.Errorf("price condition takes no expiry")
		}
		if asset == "" {
			return nil, fmt.Errorf("price condition requires an asset")
		}
		if !target.IsPositive() {
			return nil, fmt.Errorf("price condition requires a positive "+
				"target: %v", target)
		}
		return PriceTrigger{Asset: strings.ToUpper(asset), Target: target}, nil
	case KindTime:
		if asset != "" || !target.IsZero() {
			return nil, fmt.Errorf("time condition takes no asset or " +
				"target")
		}
		if expiry.IsZero() {
			return nil, fmt.Errorf("time condition requires an expiry")
		}
		return TimeLock{Expiry: expiry.UTC()}, nil
	}
	return nil, fmt.Errorf("invalid condition kind: %v", kind)
}

// FormatAmount renders d with thousands separators, e.g. 120000 -> 120,000.
func FormatAmount(d decimal.Decimal) string {
	s := d.String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, c := range s {
		if i != 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + frac
}
