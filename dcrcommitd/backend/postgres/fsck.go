// Copyright (c) 2020-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package postgres

import (
	"fmt"

	"github.com/decred/dcrcommit/dcrcommitd/backend"
)

// repairer applies fsck fixes inside a single transaction.
type repairer struct {
	q queryer
}

// DeleteRecord satisfies the backend.FsckRepairer interface.
func (r repairer) DeleteRecord(id string) error {
	return deleteCommitment(r.q, id)
}

// NormalizeRecord satisfies the backend.FsckRepairer interface.
func (r repairer) NormalizeRecord(cr backend.CommitmentRecord) error {
	return updateHash(r.q, cr.ID, cr.Hash)
}

// Fsck satisfies the backend interface.  All fixes are applied in a single
// transaction.
func (pg *Postgres) Fsck(options *backend.FsckOptions) error {
	pg.Lock()
	defer pg.Unlock()

	tx, err := pg.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := getCommitments(tx, nil)
	if err != nil {
		return err
	}
	if options != nil && options.Verbose {
		fmt.Printf("=== Checking %v commitments\n", len(rows))
	}
	rs := make([]backend.CommitmentRecord, 0, len(rows))
	for _, row := range rows {
		rs = append(rs, row.record())
	}

	ferr := backend.FsckRecords(options, rs, repairer{q: tx})
	if err := tx.Commit(); err != nil {
		return err
	}
	return ferr
}
