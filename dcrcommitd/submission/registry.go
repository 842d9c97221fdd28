// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package submission

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// maxFetches limits concurrent gateway requests while listing.
const maxFetches = 8

var (
	// ErrNotVerified is returned when the external identity check did not
	// succeed.  Nothing is registered in that case.
	ErrNotVerified = errors.New("submission not verified")

	// ErrInvalidCID is returned for an empty content identifier.
	ErrInvalidCID = errors.New("invalid content identifier")

	// ErrRegistrationDisabled is returned by Verify when no registrar is
	// configured.
	ErrRegistrationDisabled = errors.New("registration disabled")
)

// Registrar records a verified content identifier on chain.
type Registrar interface {
	Register(ctx context.Context, cid string) (*chainhash.Hash, error)
}

// Receipt is returned after a successful upload.
type Receipt struct {
	SubmissionID string
	CID          string
	URL          string
}

// Registration is a verified, registered submission.
type Registration struct {
	CID          string
	TxHash       chainhash.Hash
	RegisteredAt time.Time
}

// Verified is a registered submission together with its document, if the
// document could be fetched.
type Verified struct {
	ID          string
	CID         string
	TxHash      chainhash.Hash
	Submission  *Submission
	VerifiedAt  time.Time
	Description string
}

// Registry uploads submissions and keeps track of the registered ones.
type Registry struct {
	sync.RWMutex

	uploader  Uploader
	fetcher   Fetcher
	registrar Registrar
	url       func(string) string

	registrations []Registration
	byCID         map[string]int
	inflight      map[string]chan struct{} // Registrations in progress

	myNow func() time.Time // Override time.Now()
}

// NewRegistry returns a registry.  url maps a content identifier to its
// public link; nil selects GatewayURL.  A nil registrar disables
// registration.
func NewRegistry(u Uploader, f Fetcher, r Registrar, url func(string) string) *Registry {
	if url == nil {
		url = GatewayURL
	}
	return &Registry{
		uploader:  u,
		fetcher:   f,
		registrar: r,
		url:       url,
		byCID:     make(map[string]int),
		inflight:  make(map[string]chan struct{}),
		myNow:     time.Now,
	}
}

// Submit validates f and uploads it as an anonymous submission.
func (r *Registry) Submit(ctx context.Context, f FormData, walletAddress string) (*Receipt, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}

	s := New(f, walletAddress, r.myNow())
	cid, err := r.uploader.Upload(ctx, s)
	if err != nil {
		return nil, err
	}

	log.Infof("Submission %v uploaded: %v", s.Metadata.SubmissionID, cid)

	return &Receipt{
		SubmissionID: s.Metadata.SubmissionID,
		CID:          cid,
		URL:          r.url(cid),
	}, nil
}

// Verify registers cid when verified is true.  Registering an already
// registered cid returns the existing registration.  The registry lock is not
// held while the registrar runs; concurrent calls for the same cid wait for
// the one in flight.
func (r *Registry) Verify(ctx context.Context, cid string, verified bool) (*Registration, error) {
	cid = strings.TrimSpace(cid)
	if cid == "" {
		return nil, ErrInvalidCID
	}
	if !verified {
		log.Debugf("Verify %v: not verified", cid)
		return nil, ErrNotVerified
	}
	if r.registrar == nil {
		return nil, ErrRegistrationDisabled
	}

	var done chan struct{}
	for done == nil {
		r.Lock()
		if i, ok := r.byCID[cid]; ok {
			reg := r.registrations[i]
			r.Unlock()
			return &reg, nil
		}
		wait, ok := r.inflight[cid]
		if !ok {
			done = make(chan struct{})
			r.inflight[cid] = done
		}
		r.Unlock()

		if ok {
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	tx, err := r.registrar.Register(ctx, cid)

	r.Lock()
	defer r.Unlock()
	delete(r.inflight, cid)
	close(done)

	if err != nil {
		return nil, errors.Wrapf(err, "register %v", cid)
	}

	reg := Registration{
		CID:          cid,
		TxHash:       *tx,
		RegisteredAt: r.myNow().UTC(),
	}
	r.byCID[cid] = len(r.registrations)
	r.registrations = append(r.registrations, reg)

	log.Infof("Registered %v: %v", cid, tx)

	return &reg, nil
}

// Registrations returns all registrations in registration order.
func (r *Registry) Registrations() []Registration {
	r.RLock()
	defer r.RUnlock()

	regs := make([]Registration, len(r.registrations))
	copy(regs, r.registrations)
	return regs
}

// Submissions returns all registered submissions, newest first.  Documents
// are fetched concurrently; a document that cannot be fetched is still
// listed with a generic description.
func (r *Registry) Submissions(ctx context.Context) ([]Verified, error) {
	regs := r.Registrations()
	verified := make([]Verified, len(regs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetches)
	for i := range regs {
		i := i
		g.Go(func() error {
			reg := regs[i]
			v := Verified{
				ID:         "verified_" + prefix(reg.CID, 8),
				CID:        reg.CID,
				TxHash:     reg.TxHash,
				VerifiedAt: reg.RegisteredAt,
			}
			s, err := r.fetcher.Fetch(gctx, reg.CID)
			if err != nil {
				log.Warnf("Fetch %v: %v", reg.CID, err)
			} else {
				v.Submission = s
				t, err := time.Parse(TimestampFormat,
					s.Metadata.Timestamp)
				if err == nil {
					v.VerifiedAt = t.UTC()
				}
			}
			v.Description = Description(v.Submission)
			verified[i] = v

			// Only the caller's context aborts the listing.
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(verified, func(i, j int) bool {
		return verified[i].VerifiedAt.After(verified[j].VerifiedAt)
	})
	return verified, nil
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
