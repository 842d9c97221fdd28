// Copyright (c) 2020-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/decred/dcrcommit/commitment"
)

const (
	FsckActionVersion = 1 // All structure versions

	FsckActionHeader    = "header"
	FsckActionDelete    = "delete"
	FsckActionNormalize = "normalize"
)

var (
	// ErrFsckCorrupt marks records that cannot be reassembled.  Fix deletes
	// them.
	ErrFsckCorrupt = errors.New("corrupt record")

	// ErrFsckHashCase marks upper case digests.  Fix lowercases them.
	ErrFsckHashCase = errors.New("digest not lower case")

	// ErrFsckHash marks digests that are not 64 hex characters.
	ErrFsckHash = errors.New("invalid digest")

	// ErrFsckSecret marks manual reveals whose secret does not hash to
	// the digest.
	ErrFsckSecret = errors.New("revealed secret does not match digest")

	// ErrFsckPayload marks automatic reveals without the placeholder
	// payload.
	ErrFsckPayload = errors.New("invalid auto-reveal payload")

	// ErrFsckProof marks reveals with an invalid proof label.
	ErrFsckProof = errors.New("invalid proof")
)

// FsckOptions provides generic options on how to handle an fsck. Sane defaults
// will be used in lieu of options being provided.
type FsckOptions struct {
	Verbose     bool // Normal verbosity
	PrintHashes bool // Prints every hash
	Fix         bool // Fix fixable errors

	File string // Path for results file
}

// FsckAction precedes every journal entry.
type FsckAction struct {
	Version   uint64 `json:"version"`   // Version of structure
	Timestamp int64  `json:"timestamp"` // Timestamp of action
	Action    string `json:"action"`    // Following JSON command
}

// FsckHeader starts a journal.
type FsckHeader struct {
	Version uint64 `json:"version"` // Version of structure
	Start   int64  `json:"start"`   // Start of fsck
	DryRun  bool   `json:"dryrun"`  // Dry run
}

// FsckRecordFix describes a deleted or normalized record.
type FsckRecordFix struct {
	Version uint64 `json:"version"` // Version of structure
	ID      string `json:"id"`      // Commitment id
	Hash    string `json:"hash"`    // Digest before the fix
	Reason  string `json:"reason"`  // Failed check
}

// FsckJournal records what fix occurred at what time.  A journal without a
// file discards everything.
type FsckJournal struct {
	f *os.File
}

// NewFsckJournal opens filename for appending and writes the header.  An
// empty filename returns a discarding journal.
func NewFsckJournal(filename string, dryRun bool) (*FsckJournal, error) {
	if filename == "" {
		return &FsckJournal{}, nil
	}
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_APPEND,
		0640)
	if err != nil {
		return nil, err
	}
	j := &FsckJournal{f: f}
	err = j.Record(FsckActionHeader, FsckHeader{
		Version: FsckActionVersion,
		Start:   time.Now().Unix(),
		DryRun:  dryRun,
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

// Record appends action and its payload.
func (j *FsckJournal) Record(action string, payload interface{}) error {
	if j.f == nil {
		return nil
	}
	e := json.NewEncoder(j.f)
	err := e.Encode(FsckAction{
		Version:   FsckActionVersion,
		Timestamp: time.Now().Unix(),
		Action:    action,
	})
	if err != nil {
		return err
	}
	return e.Encode(payload)
}

// Close closes the journal file.
func (j *FsckJournal) Close() error {
	if j.f == nil {
		return nil
	}
	return j.f.Close()
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// CheckRecord verifies the integrity of a stored record and returns the first
// failed check wrapped in one of the ErrFsck errors.
func CheckRecord(r CommitmentRecord) error {
	c, err := r.Commitment()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFsckCorrupt, err)
	}

	if len(c.Hash) != 64 || !isHex(c.Hash) {
		return fmt.Errorf("%w: %q", ErrFsckHash, c.Hash)
	}
	if strings.ToLower(c.Hash) != c.Hash {
		return fmt.Errorf("%w: %v", ErrFsckHashCase, c.Hash)
	}

	if c.Reveal == nil {
		return nil
	}
	if c.Reveal.Automatic {
		want := commitment.AutoRevealPayload(c.Condition)
		if c.Reveal.Secret != want {
			return fmt.Errorf("%w: %q", ErrFsckPayload,
				c.Reveal.Secret)
		}
	} else if commitment.Digest(c.Reveal.Secret) != c.Hash {
		return ErrFsckSecret
	}
	if !commitment.VerifyProof(c.Reveal.Proof, c.Hash) {
		return fmt.Errorf("%w: %q", ErrFsckProof, c.Reveal.Proof)
	}
	return nil
}

// FsckFix is the repair a check failure calls for.
type FsckFix int

const (
	FsckFixNone      FsckFix = iota // Report only
	FsckFixDelete                   // Remove the record
	FsckFixNormalize                // Lowercase the digest
)

// FixFor returns the repair for err as returned by CheckRecord.
func FixFor(err error) FsckFix {
	switch {
	case errors.Is(err, ErrFsckCorrupt):
		return FsckFixDelete
	case errors.Is(err, ErrFsckHashCase):
		return FsckFixNormalize
	}
	return FsckFixNone
}

// FsckRepairer applies fixes to the store being checked.
type FsckRepairer interface {
	// DeleteRecord removes the record with the given id.
	DeleteRecord(id string) error

	// NormalizeRecord overwrites the record with a lower case digest.
	NormalizeRecord(r CommitmentRecord) error
}

// FsckRecords checks every record and, if options.Fix is set, repairs the
// fixable ones through repairer.  Every problem is printed to stdout.  An
// error is returned when unrepaired problems remain.
func FsckRecords(options *FsckOptions, records []CommitmentRecord, repairer FsckRepairer) error {
	if options == nil {
		options = &FsckOptions{}
	}

	j, err := NewFsckJournal(options.File, !options.Fix)
	if err != nil {
		return err
	}
	defer j.Close()

	var failed, fixed int
	for _, r := range records {
		if options.PrintHashes {
			fmt.Printf("  %v %v\n", r.ID, r.Hash)
		}

		ferr := CheckRecord(r)
		if ferr == nil {
			continue
		}
		fmt.Printf("   *** ERROR %v: %v\n", r.ID, ferr)

		fix := FixFor(ferr)
		if fix == FsckFixNone || !options.Fix {
			failed++
			continue
		}

		var action string
		switch fix {
		case FsckFixDelete:
			action = FsckActionDelete
			err = repairer.DeleteRecord(r.ID)
		case FsckFixNormalize:
			action = FsckActionNormalize
			nr := r
			nr.Hash = strings.ToLower(r.Hash)
			err = repairer.NormalizeRecord(nr)
		}
		if err != nil {
			return fmt.Errorf("%v %v: %v", action, r.ID, err)
		}
		err = j.Record(action, FsckRecordFix{
			Version: FsckActionVersion,
			ID:      r.ID,
			Hash:    r.Hash,
			Reason:  ferr.Error(),
		})
		if err != nil {
			return err
		}
		if options.Verbose {
			fmt.Printf("   --- %v %v\n", action, r.ID)
		}
		fixed++
	}

	if options.Verbose {
		fmt.Printf("=== Checked %v commitments, fixed %v, failed %v\n",
			len(records), fixed, failed)
	}
	if failed != 0 {
		return fmt.Errorf("fsck failed: %v unrepaired commitments", failed)
	}
	return nil
}
