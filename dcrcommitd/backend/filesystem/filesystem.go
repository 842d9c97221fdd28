// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/backend"
	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	commitmentsDBDir = "commitments"
	commitmentPrefix = "commitment/"
)

var (
	_ backend.Backend = (*FileSystem)(nil)

	errInvalidDB = errors.New("not a database") // Should not happen
)

// FileSystem is a leveldb backed implementation of a backend.  Every
// commitment is stored as a CBOR encoded record keyed by its id.
type FileSystem struct {
	sync.RWMutex

	root string      // Root directory
	db   *leveldb.DB // Commitments database [id]record

	// testing only entries
	myNow func() time.Time // Override time.Now()
}

func commitmentKey(id string) []byte {
	return []byte(commitmentPrefix + id)
}

// EncodeCommitmentRecord encodes given backend.CommitmentRecord to a []byte.
func EncodeCommitmentRecord(r backend.CommitmentRecord) ([]byte, error) {
	return cbor.Marshal(r)
}

// DecodeCommitmentRecord decodes given []byte payload to a
// backend.CommitmentRecord.
func DecodeCommitmentRecord(payload []byte) (*backend.CommitmentRecord, error) {
	var r backend.CommitmentRecord
	err := cbor.Unmarshal(payload, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// get returns the decoded commitment.
//
// This function must be called with the READ lock held.
func (fs *FileSystem) get(id string) (*commitment.Commitment, error) {
	payload, err := fs.db.Get(commitmentKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, backend.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	r, err := DecodeCommitmentRecord(payload)
	if err != nil {
		return nil, err
	}
	return r.Commitment()
}

// put encodes and stores c.
//
// This function must be called with the WRITE lock held.
func (fs *FileSystem) put(c commitment.Commitment) error {
	payload, err := EncodeCommitmentRecord(backend.NewRecord(c))
	if err != nil {
		return err
	}
	return fs.db.Put(commitmentKey(c.ID), payload, nil)
}

// iterate calls fn for every stored commitment.
//
// This function must be called with the READ lock held.
func (fs *FileSystem) iterate(fn func(*commitment.Commitment) error) error {
	iter := fs.db.NewIterator(util.BytesPrefix([]byte(commitmentPrefix)),
		nil)
	defer iter.Release()
	for iter.Next() {
		r, err := DecodeCommitmentRecord(iter.Value())
		if err != nil {
			return err
		}
		c, err := r.Commitment()
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Create satisfies the backend interface.
func (fs *FileSystem) Create(digest, description string, cond commitment.Condition) (string, error) {
	fs.Lock()
	defer fs.Unlock()

	id := commitment.NewID()
	for {
		found, err := fs.db.Has(commitmentKey(id), nil)
		if err != nil {
			return "", err
		}
		if !found {
			break
		}
		id = commitment.NewID()
	}

	c := commitment.Commitment{
		ID:          id,
		Hash:        digest,
		Description: description,
		Condition:   cond,
		Status:      commitment.StatusPending,
		CreatedAt:   fs.myNow().UTC(),
	}
	if err := fs.put(c); err != nil {
		return "", err
	}

	log.Debugf("Create %v: %v %v", id, digest, cond.Describe())

	return id, nil
}

// Get satisfies the backend interface.
func (fs *FileSystem) Get(id string) (*commitment.Commitment, error) {
	fs.RLock()
	defer fs.RUnlock()

	return fs.get(id)
}

func (fs *FileSystem) filter(include func(*commitment.Commitment) bool) ([]commitment.Commitment, error) {
	fs.RLock()
	defer fs.RUnlock()

	r := make([]commitment.Commitment, 0, 64)
	err := fs.iterate(func(c *commitment.Commitment) error {
		if include(c) {
			r = append(r, *c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(r, func(i, j int) bool {
		if r[i].CreatedAt.Equal(r[j].CreatedAt) {
			return r[i].ID < r[j].ID
		}
		return r[i].CreatedAt.After(r[j].CreatedAt)
	})
	return r, nil
}

// List satisfies the backend interface.
func (fs *FileSystem) List() ([]commitment.Commitment, error) {
	return fs.filter(func(*commitment.Commitment) bool { return true })
}

// Pending satisfies the backend interface.
func (fs *FileSystem) Pending() ([]commitment.Commitment, error) {
	return fs.filter(func(c *commitment.Commitment) bool {
		return c.IsPending()
	})
}

// Reveal satisfies the backend interface.
func (fs *FileSystem) Reveal(id, secret string, digestOf commitment.DigestFunc) (*commitment.Commitment, error) {
	// Lookup and update must be atomic.
	fs.Lock()
	defer fs.Unlock()

	c, err := fs.get(id)
	if err != nil {
		return nil, err
	}
	if digestOf(secret) != c.Hash {
		return nil, backend.ErrMismatch
	}
	if !c.IsPending() {
		return c, nil
	}

	now := fs.myNow().UTC()
	c.Status = commitment.StatusRevealed
	c.Reveal = &commitment.Reveal{
		RevealedAt: now,
		Secret:     secret,
		Proof:      commitment.GenerateProof(secret, c.Hash, now),
	}
	if err := fs.put(*c); err != nil {
		return nil, err
	}

	log.Debugf("Reveal %v", id)

	return c, nil
}

// AutoReveal satisfies the backend interface.
func (fs *FileSystem) AutoReveal(id, payload, proof string) (*commitment.Commitment, error) {
	fs.Lock()
	defer fs.Unlock()

	c, err := fs.get(id)
	if err != nil {
		return nil, err
	}
	if !c.IsPending() {
		return c, nil
	}

	c.Status = commitment.StatusRevealed
	c.Reveal = &commitment.Reveal{
		RevealedAt: fs.myNow().UTC(),
		Secret:     payload,
		Proof:      proof,
		Automatic:  true,
	}
	if err := fs.put(*c); err != nil {
		return nil, err
	}

	log.Debugf("AutoReveal %v", id)

	return c, nil
}

// Close is a required interface function.  In our case we close the
// commitments database.
//
// Close satisfies the backend interface.
func (fs *FileSystem) Close() {
	// Block until last command is complete.
	fs.Lock()
	defer fs.Unlock()
	defer log.Infof("Exiting")

	fs.db.Close()
}

// openDB opens the commitments database below root.
func openDB(root string, o *opt.Options) (*leveldb.DB, error) {
	path := filepath.Join(root, commitmentsDBDir)
	err := os.MkdirAll(path, 0700)
	if err != nil {
		return nil, err
	}
	return leveldb.OpenFile(path, o)
}

// internalNew creates the FileSystem context.  This is used by the test
// packages.
func internalNew(root string) (*FileSystem, error) {
	db, err := openDB(root, nil)
	if err != nil {
		return nil, err
	}

	return &FileSystem{
		root:  root,
		db:    db,
		myNow: time.Now,
	}, nil
}

// New creates a new backend instance.  The caller should issue a Close once
// the FileSystem backend is no longer needed.
func New(root string) (*FileSystem, error) {
	fs, err := internalNew(root)
	if err != nil {
		return nil, err
	}

	// Refuse to start on a corrupt database.
	start := time.Now()
	count := 0
	fs.RLock()
	err = fs.iterate(func(*commitment.Commitment) error {
		count++
		return nil
	})
	fs.RUnlock()
	if err != nil {
		fs.db.Close()
		return nil, err
	}

	log.Infof("Loaded %v commitments in %v", count, time.Since(start))

	return fs, nil
}
