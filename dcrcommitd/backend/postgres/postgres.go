// Copyright (c) 2020-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package postgres

import (
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/backend"
	_ "github.com/lib/pq"
)

const (
	// dbUser is the user used by the dump and restore tools.
	dbUser = "dcrcommit"

	dbSuffix = "_dcrcommit"
)

var _ backend.Backend = (*Postgres)(nil)

// Postgres is a postgreSQL implementation of a backend.  Every commitment is
// a row in the commitments table and reveals lock the row for the duration of
// the transition.
type Postgres struct {
	sync.RWMutex

	db *sql.DB // Postgres database

	// testing only entries
	myNow func() time.Time // Override time.Now()
}

func buildQueryString(rootCert, cert, key string) string {
	v := url.Values{}
	v.Set("sslmode", "require")
	v.Set("sslrootcert", filepath.Clean(rootCert))
	v.Set("sslcert", filepath.Join(cert))
	v.Set("sslkey", filepath.Join(key))
	return v.Encode()
}

// buildAddress returns the connection string for the network specific
// database.
func buildAddress(user, host, net, rootCert, cert, key string) (string, error) {
	dbName := net + dbSuffix
	h := "postgresql://" + user + "@" + host + "/" + dbName
	u, err := url.Parse(h)
	if err != nil {
		return "", fmt.Errorf("parse url '%v': %v", h, err)
	}
	return u.String() + "?" + buildQueryString(rootCert, cert, key), nil
}

// Create satisfies the backend interface.
func (pg *Postgres) Create(digest, description string, cond commitment.Condition) (string, error) {
	pg.Lock()
	defer pg.Unlock()

	id := commitment.NewID()
	for {
		exists, err := idExists(pg.db, id)
		if err != nil {
			return "", err
		}
		if !exists {
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
		CreatedAt:   pg.myNow().UTC(),
	}
	err := insertCommitment(pg.db, fromRecord(backend.NewRecord(c)))
	if err != nil {
		return "", err
	}

	log.Debugf("Create %v: %v %v", id, digest, cond.Describe())

	return id, nil
}

func (pg *Postgres) get(q queryer, id string, forUpdate bool) (*commitment.Commitment, error) {
	row, err := getCommitment(q, id, forUpdate)
	if err == sql.ErrNoRows {
		return nil, backend.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return row.record().Commitment()
}

// Get satisfies the backend interface.
func (pg *Postgres) Get(id string) (*commitment.Commitment, error) {
	pg.RLock()
	defer pg.RUnlock()

	return pg.get(pg.db, id, false)
}

func (pg *Postgres) list(status *int) ([]commitment.Commitment, error) {
	pg.RLock()
	defer pg.RUnlock()

	rows, err := getCommitments(pg.db, status)
	if err != nil {
		return nil, err
	}
	cs := make([]commitment.Commitment, 0, len(rows))
	for _, row := range rows {
		c, err := row.record().Commitment()
		if err != nil {
			return nil, err
		}
		cs = append(cs, *c)
	}
	return cs, nil
}

// List satisfies the backend interface.
func (pg *Postgres) List() ([]commitment.Commitment, error) {
	return pg.list(nil)
}

// Pending satisfies the backend interface.
func (pg *Postgres) Pending() ([]commitment.Commitment, error) {
	status := int(commitment.StatusPending)
	return pg.list(&status)
}

// transition runs fn on the locked row for id inside a transaction.  fn
// returns the updated commitment or nil when nothing has to be written.
func (pg *Postgres) transition(id string, fn func(*commitment.Commitment) (*commitment.Commitment, error)) (*commitment.Commitment, error) {
	pg.Lock()
	defer pg.Unlock()

	tx, err := pg.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		// Rollback is a no-op after a successful commit.
		_ = tx.Rollback()
	}()

	c, err := pg.get(tx, id, true)
	if err != nil {
		return nil, err
	}
	updated, err := fn(c)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return c, nil
	}
	err = updateReveal(tx, fromRecord(backend.NewRecord(*updated)))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// Reveal satisfies the backend interface.
func (pg *Postgres) Reveal(id, secret string, digestOf commitment.DigestFunc) (*commitment.Commitment, error) {
	c, err := pg.transition(id, func(c *commitment.Commitment) (*commitment.Commitment, error) {
		if digestOf(secret) != c.Hash {
			return nil, backend.ErrMismatch
		}
		if !c.IsPending() {
			return nil, nil
		}
		now := pg.myNow().UTC()
		c.Status = commitment.StatusRevealed
		c.Reveal = &commitment.Reveal{
			RevealedAt: now,
			Secret:     secret,
			Proof:      commitment.GenerateProof(secret, c.Hash, now),
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("Reveal %v", id)

	return c, nil
}

// AutoReveal satisfies the backend interface.
func (pg *Postgres) AutoReveal(id, payload, proof string) (*commitment.Commitment, error) {
	c, err := pg.transition(id, func(c *commitment.Commitment) (*commitment.Commitment, error) {
		if !c.IsPending() {
			return nil, nil
		}
		c.Status = commitment.StatusRevealed
		c.Reveal = &commitment.Reveal{
			RevealedAt: pg.myNow().UTC(),
			Secret:     payload,
			Proof:      proof,
			Automatic:  true,
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("AutoReveal %v", id)

	return c, nil
}

// Close performs cleanup of the backend.
func (pg *Postgres) Close() {
	// Block until last command is complete.
	pg.Lock()
	defer pg.Unlock()
	defer log.Infof("Exiting")

	pg.db.Close()
}

// internalNew creates the Postgres context and makes sure the schema exists.
func internalNew(user, host, net, rootCert, cert, key string) (*Postgres, error) {
	addr, err := buildAddress(user, host, net, rootCert, cert, key)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to database '%v': %v", addr, err)
	}

	return &Postgres{
		db:    db,
		myNow: time.Now,
	}, nil
}

// New creates a new backend instance.  The caller should issue a Close once
// the Postgres backend is no longer needed.
func New(user, host, net, rootCert, cert, key string) (*Postgres, error) {
	log.Tracef("New: %v %v %v %v %v %v", user, host, net, rootCert, cert,
		key)

	pg, err := internalNew(user, host, net, rootCert, cert, key)
	if err != nil {
		return nil, err
	}

	if err := pg.db.Ping(); err != nil {
		pg.db.Close()
		return nil, fmt.Errorf("ping database: %v", err)
	}
	if err := createTables(pg.db); err != nil {
		pg.db.Close()
		return nil, fmt.Errorf("create tables: %v", err)
	}

	return pg, nil
}
