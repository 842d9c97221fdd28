// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an operation references an unknown
	// commitment id.
	ErrNotFound = errors.New("commitment not found")

	// ErrMismatch is returned when the provided secret does not hash to
	// the committed digest.
	ErrMismatch = errors.New("secret does not match commitment")

	// ErrTryAgainLater is a transient storage error.
	ErrTryAgainLater = errors.New("busy, try again later")
)

// CommitmentRecord is the flattened storage and dump representation of a
// commitment.  Unix nanoseconds are used for all times; zero means absent.
type CommitmentRecord struct {
	ID          string `json:"id" cbor:"1,keyasint"`
	Hash        string `json:"hash" cbor:"2,keyasint"`
	Description string `json:"description" cbor:"3,keyasint"`
	Status      int    `json:"status" cbor:"4,keyasint"`
	CreatedAt   int64  `json:"createdat" cbor:"5,keyasint"`

	ConditionKind   string `json:"conditionkind" cbor:"6,keyasint"`
	ConditionAsset  string `json:"conditionasset,omitempty" cbor:"7,keyasint,omitempty"`
	ConditionTarget string `json:"conditiontarget,omitempty" cbor:"8,keyasint,omitempty"`
	ConditionExpiry int64  `json:"conditionexpiry,omitempty" cbor:"9,keyasint,omitempty"`

	RevealedAt int64  `json:"revealedat,omitempty" cbor:"10,keyasint,omitempty"`
	Secret     string `json:"secret,omitempty" cbor:"11,keyasint,omitempty"`
	Proof      string `json:"proof,omitempty" cbor:"12,keyasint,omitempty"`
	Automatic  bool   `json:"automatic,omitempty" cbor:"13,keyasint,omitempty"`
}

// NewRecord flattens c.
func NewRecord(c commitment.Commitment) CommitmentRecord {
	r := CommitmentRecord{
		ID:            c.ID,
		Hash:          c.Hash,
		Description:   c.Description,
		Status:        int(c.Status),
		CreatedAt:     c.CreatedAt.UnixNano(),
		ConditionKind: c.Condition.Kind(),
	}
	switch cond := c.Condition.(type) {
	case commitment.PriceTrigger:
		r.ConditionAsset = cond.Asset
		r.ConditionTarget = cond.Target.String()
	case commitment.TimeLock:
		r.ConditionExpiry = cond.Expiry.UnixNano()
	}
	if c.Reveal != nil {
		r.RevealedAt = c.Reveal.RevealedAt.UnixNano()
		r.Secret = c.Reveal.Secret
		r.Proof = c.Reveal.Proof
		r.Automatic = c.Reveal.Automatic
	}
	return r
}

func unixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Commitment reassembles the record and validates its invariants.
func (r CommitmentRecord) Commitment() (*commitment.Commitment, error) {
	target := decimal.Zero
	if r.ConditionTarget != "" {
		var err error
		target, err = decimal.NewFromString(r.ConditionTarget)
		if err != nil {
			return nil, fmt.Errorf("%v: invalid target: %v", r.ID, err)
		}
	}
	cond, err := commitment.NewCondition(r.ConditionKind, r.ConditionAsset,
		target, unixNano(r.ConditionExpiry))
	if err != nil {
		return nil, fmt.Errorf("%v: %v", r.ID, err)
	}

	c := commitment.Commitment{
		ID:          r.ID,
		Hash:        r.Hash,
		Description: r.Description,
		Condition:   cond,
		Status:      commitment.Status(r.Status),
		CreatedAt:   unixNano(r.CreatedAt),
	}
	if r.RevealedAt != 0 {
		c.Reveal = &commitment.Reveal{
			RevealedAt: unixNano(r.RevealedAt),
			Secret:     r.Secret,
			Proof:      r.Proof,
			Automatic:  r.Automatic,
		}
	}
	if !c.Consistent() {
		return nil, fmt.Errorf("%v: status %v inconsistent with reveal",
			r.ID, c.Status)
	}
	return &c, nil
}

// Record types.
const (
	RecordTypeCommitment = "commitment"

	RecordTypeVersion = 1
)

// RecordType indicates what the next record is in a restore stream.  All
// records are dumped prefixed with a RecordType so that they can be simply
// replayed as a journal.
type RecordType struct {
	Version uint   `json:"version"` // Version of RecordType
	Type    string `json:"type"`    // Type or record
}

// Backend is the commitment store.  It exclusively owns all commitment
// records; implementations serialize mutations so that the Pending ->
// Revealed transition happens at most once per commitment.
type Backend interface {
	// Create stores a new pending commitment and returns its id.  The
	// digest format is not validated.
	Create(digest, description string, cond commitment.Condition) (string, error)

	// Get returns the commitment or ErrNotFound.
	Get(id string) (*commitment.Commitment, error)

	// List returns all commitments, newest first.
	List() ([]commitment.Commitment, error)

	// Pending returns all pending commitments.
	Pending() ([]commitment.Commitment, error)

	// Reveal discloses the secret of a pending commitment.  It returns
	// ErrNotFound for unknown ids and ErrMismatch when digestOf(secret)
	// differs from the committed hash.  Revealing a commitment that is not
	// pending is a no-op that returns the unchanged commitment.
	Reveal(id, secret string, digestOf commitment.DigestFunc) (*commitment.Commitment, error)

	// AutoReveal performs the reveal transition with a synthesized
	// payload and skips the digest check.  Not pending is a no-op.
	AutoReveal(id, payload, proof string) (*commitment.Commitment, error)

	// Close performs cleanup of the backend.
	Close()

	// Dump dumps database to the provided file descriptor. If the
	// human flag is set to true it pretty prints the database content
	// otherwise it dumps a JSON stream.
	Dump(*os.File, bool) error

	// Restore recreates the the database from the provided file
	// descriptor. The verbose flag is set to true to indicate that this
	// call may print to stdout. The provided string describes the target
	// location and is implementation specific.
	Restore(*os.File, bool, string) error

	// Fsck walks all records and verifies their integrity.  See
	// FsckOptions for the available knobs.
	Fsck(*FsckOptions) error
}
