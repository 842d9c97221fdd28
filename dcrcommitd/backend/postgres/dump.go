// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package postgres

import (
	"fmt"
	"os"

	"github.com/decred/dcrcommit/dcrcommitd/backend"
)

// NewDump connects to an existing database as dbUser for dumping and
// restoring.
func NewDump(host, net, rootCert, cert, key string) (*Postgres, error) {
	return New(dbUser, host, net, rootCert, cert, key)
}

// Dump satisfies the backend interface.
func (pg *Postgres) Dump(f *os.File, human bool) error {
	pg.RLock()
	defer pg.RUnlock()

	rows, err := getCommitments(pg.db, nil)
	if err != nil {
		return err
	}
	for _, row := range rows {
		err := backend.DumpCommitment(f, human, row.record())
		if err != nil {
			return err
		}
	}
	return nil
}

// Restore satisfies the backend interface.  All records are inserted in a
// single transaction.
func (pg *Postgres) Restore(f *os.File, verbose bool, location string) error {
	pg.Lock()
	defer pg.Unlock()

	if verbose {
		fmt.Printf("Restoring to: %v\n", location)
	}

	tx, err := pg.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	count := 0
	err = backend.ReadJournal(f, func(r backend.CommitmentRecord) error {
		count++
		return insertCommitment(tx, fromRecord(r))
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Restored %v commitments\n", count)
	}
	return nil
}
