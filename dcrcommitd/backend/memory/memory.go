// Copyright (c) 2020-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package memory

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/backend"
)

var _ backend.Backend = (*Memory)(nil)

// Memory provides an implementation of the backend interface that keeps all
// commitments in memory for the lifetime of the process.
type Memory struct {
	sync.RWMutex

	commitments map[string]*commitment.Commitment // [id]Commitment

	myNow func() time.Time // Override time.Now()
}

// Create satisfies the backend interface.
func (m *Memory) Create(digest, description string, cond commitment.Condition) (string, error) {
	m.Lock()
	defer m.Unlock()

	id := commitment.NewID()
	for {
		if _, ok := m.commitments[id]; !ok {
			break
		}
		id = commitment.NewID()
	}

	m.commitments[id] = &commitment.Commitment{
		ID:          id,
		Hash:        digest,
		Description: description,
		Condition:   cond,
		Status:      commitment.StatusPending,
		CreatedAt:   m.myNow().UTC(),
	}
	return id, nil
}

// Get satisfies the backend interface.
func (m *Memory) Get(id string) (*commitment.Commitment, error) {
	m.RLock()
	defer m.RUnlock()

	c, ok := m.commitments[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	cc := c.Copy()
	return &cc, nil
}

func (m *Memory) filter(include func(*commitment.Commitment) bool) []commitment.Commitment {
	m.RLock()
	defer m.RUnlock()

	r := make([]commitment.Commitment, 0, len(m.commitments))
	for _, c := range m.commitments {
		if include(c) {
			r = append(r, c.Copy())
		}
	}
	sort.Slice(r, func(i, j int) bool {
		if r[i].CreatedAt.Equal(r[j].CreatedAt) {
			return r[i].ID < r[j].ID
		}
		return r[i].CreatedAt.After(r[j].CreatedAt)
	})
	return r
}

// List satisfies the backend interface.
func (m *Memory) List() ([]commitment.Commitment, error) {
	return m.filter(func(*commitment.Commitment) bool { return true }), nil
}

// Pending satisfies the backend interface.
func (m *Memory) Pending() ([]commitment.Commitment, error) {
	return m.filter(func(c *commitment.Commitment) bool {
		return c.IsPending()
	}), nil
}

// reveal performs the transition.
//
// This function must be called with the WRITE lock held.
func (m *Memory) reveal(c *commitment.Commitment, r commitment.Reveal) {
	c.Reveal = &r
	c.Status = commitment.StatusRevealed
}

// Reveal satisfies the backend interface.
func (m *Memory) Reveal(id, secret string, digestOf commitment.DigestFunc) (*commitment.Commitment, error) {
	m.Lock()
	defer m.Unlock()

	c, ok := m.commitments[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	if digestOf(secret) != c.Hash {
		return nil, backend.ErrMismatch
	}
	if c.IsPending() {
		now := m.myNow().UTC()
		m.reveal(c, commitment.Reveal{
			RevealedAt: now,
			Secret:     secret,
			Proof:      commitment.GenerateProof(secret, c.Hash, now),
		})
	}
	cc := c.Copy()
	return &cc, nil
}

// AutoReveal satisfies the backend interface.
func (m *Memory) AutoReveal(id, payload, proof string) (*commitment.Commitment, error) {
	m.Lock()
	defer m.Unlock()

	c, ok := m.commitments[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	if c.IsPending() {
		m.reveal(c, commitment.Reveal{
			RevealedAt: m.myNow().UTC(),
			Secret:     payload,
			Proof:      proof,
			Automatic:  true,
		})
	}
	cc := c.Copy()
	return &cc, nil
}

// Close satisfies the backend interface.
func (m *Memory) Close() {}

// Dump satisfies the backend interface.
func (m *Memory) Dump(f *os.File, human bool) error {
	cs, err := m.List()
	if err != nil {
		return err
	}
	for _, c := range cs {
		err := backend.DumpCommitment(f, human, backend.NewRecord(c))
		if err != nil {
			return err
		}
	}
	return nil
}

// Restore satisfies the backend interface.  Existing commitments with the
// same id are replaced.
func (m *Memory) Restore(f *os.File, verbose bool, location string) error {
	m.Lock()
	defer m.Unlock()

	return backend.ReadJournal(f, func(r backend.CommitmentRecord) error {
		c, err := r.Commitment()
		if err != nil {
			return err
		}
		m.commitments[c.ID] = c
		return nil
	})
}

// DeleteRecord satisfies the backend.FsckRepairer interface.
//
// This function must be called with the WRITE lock held.
func (m *Memory) DeleteRecord(id string) error {
	delete(m.commitments, id)
	return nil
}

// NormalizeRecord satisfies the backend.FsckRepairer interface.
//
// This function must be called with the WRITE lock held.
func (m *Memory) NormalizeRecord(r backend.CommitmentRecord) error {
	c, err := r.Commitment()
	if err != nil {
		return err
	}
	m.commitments[c.ID] = c
	return nil
}

// Fsck satisfies the backend interface.
func (m *Memory) Fsck(options *backend.FsckOptions) error {
	m.Lock()
	defer m.Unlock()

	rs := make([]backend.CommitmentRecord, 0, len(m.commitments))
	for _, c := range m.commitments {
		rs = append(rs, backend.NewRecord(*c))
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	return backend.FsckRecords(options, rs, m)
}

// Load inserts a fully formed commitment.  It is used to seed the store.
func (m *Memory) Load(c commitment.Commitment) error {
	if _, err := backend.NewRecord(c).Commitment(); err != nil {
		return err
	}

	m.Lock()
	defer m.Unlock()
	cc := c.Copy()
	m.commitments[c.ID] = &cc
	return nil
}

// New returns an empty in memory backend.
func New() *Memory {
	return &Memory{
		commitments: make(map[string]*commitment.Commitment),
		myNow:       time.Now,
	}
}
