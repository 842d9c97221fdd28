// Copyright (c) 2020-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package postgres

import (
	"database/sql"

	"github.com/decred/dcrcommit/dcrcommitd/backend"
)

// Commitment mirrors a row of the commitments table.  Reveal columns are NULL
// until the commitment is revealed.
type Commitment struct {
	ID          string
	Hash        string
	Description string
	Status      int
	CreatedAt   int64

	ConditionKind   string
	ConditionAsset  sql.NullString
	ConditionTarget sql.NullString
	ConditionExpiry sql.NullInt64

	RevealedAt sql.NullInt64
	Secret     sql.NullString
	Proof      sql.NullString
	Automatic  bool
}

// record converts the row into the shared backend representation.
func (c Commitment) record() backend.CommitmentRecord {
	return backend.CommitmentRecord{
		ID:              c.ID,
		Hash:            c.Hash,
		Description:     c.Description,
		Status:          c.Status,
		CreatedAt:       c.CreatedAt,
		ConditionKind:   c.ConditionKind,
		ConditionAsset:  c.ConditionAsset.String,
		ConditionTarget: c.ConditionTarget.String,
		ConditionExpiry: c.ConditionExpiry.Int64,
		RevealedAt:      c.RevealedAt.Int64,
		Secret:          c.Secret.String,
		Proof:           c.Proof.String,
		Automatic:       c.Automatic,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(i int64) sql.NullInt64 {
	return sql.NullInt64{Int64: i, Valid: i != 0}
}

// fromRecord converts the shared backend representation into a row.
func fromRecord(r backend.CommitmentRecord) Commitment {
	return Commitment{
		ID:              r.ID,
		Hash:            r.Hash,
		Description:     r.Description,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt,
		ConditionKind:   r.ConditionKind,
		ConditionAsset:  nullString(r.ConditionAsset),
		ConditionTarget: nullString(r.ConditionTarget),
		ConditionExpiry: nullInt64(r.ConditionExpiry),
		RevealedAt:      nullInt64(r.RevealedAt),
		Secret:          nullString(r.Secret),
		Proof:           nullString(r.Proof),
		Automatic:       r.Automatic,
	}
}
