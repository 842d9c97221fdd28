// Copyright (c) 2020-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package postgres

import (
	"database/sql"
)

const tableCommitments = `
CREATE TABLE IF NOT EXISTS commitments (
	id               TEXT PRIMARY KEY,
	hash             TEXT NOT NULL,
	description      TEXT NOT NULL,
	status           SMALLINT NOT NULL,
	created_at       BIGINT NOT NULL,
	condition_kind   TEXT NOT NULL,
	condition_asset  TEXT,
	condition_target NUMERIC,
	condition_expiry BIGINT,
	revealed_at      BIGINT,
	revealed_secret  TEXT,
	proof            TEXT,
	automatic        BOOLEAN NOT NULL DEFAULT FALSE
)`

const selectColumns = `id, hash, description, status, created_at,
	condition_kind, condition_asset, condition_target::TEXT,
	condition_expiry, revealed_at, revealed_secret, proof, automatic`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCommitment(s scanner) (*Commitment, error) {
	var c Commitment
	err := s.Scan(&c.ID, &c.Hash, &c.Description, &c.Status, &c.CreatedAt,
		&c.ConditionKind, &c.ConditionAsset, &c.ConditionTarget,
		&c.ConditionExpiry, &c.RevealedAt, &c.Secret, &c.Proof,
		&c.Automatic)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// createTables creates the schema if it doesn't exist yet.
func createTables(q queryer) error {
	_, err := q.Exec(tableCommitments)
	return err
}

// insertCommitment inserts c.  It is used both for new commitments and when
// restoring a backup.
func insertCommitment(q queryer, c Commitment) error {
	query := `INSERT INTO commitments (id, hash, description, status,
				created_at, condition_kind, condition_asset,
				condition_target, condition_expiry, revealed_at,
				revealed_secret, proof, automatic)
				VALUES($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9, $10,
				$11, $12, $13)`

	_, err := q.Exec(query, c.ID, c.Hash, c.Description, c.Status,
		c.CreatedAt, c.ConditionKind, c.ConditionAsset,
		c.ConditionTarget, c.ConditionExpiry, c.RevealedAt, c.Secret,
		c.Proof, c.Automatic)
	return err
}

// idExists returns true if a commitment with the provided id exists.
func idExists(q queryer, id string) (bool, error) {
	var exists bool
	err := q.QueryRow(`SELECT EXISTS(SELECT 1 FROM commitments
				WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// getCommitment returns the row for id.  When forUpdate is set the row is
// locked until the surrounding transaction ends.
func getCommitment(q queryer, id string, forUpdate bool) (*Commitment, error) {
	query := `SELECT ` + selectColumns + ` FROM commitments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanCommitment(q.QueryRow(query, id))
}

// getCommitments returns all rows, newest first.  If pendingStatus is not
// nil only rows with that status are returned.
func getCommitments(q queryer, pendingStatus *int) ([]Commitment, error) {
	query := `SELECT ` + selectColumns + ` FROM commitments`
	args := []interface{}{}
	if pendingStatus != nil {
		query += ` WHERE status = $1`
		args = append(args, *pendingStatus)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cs []Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		cs = append(cs, *c)
	}
	return cs, rows.Err()
}

// updateReveal writes the reveal columns of c.
func updateReveal(q queryer, c Commitment) error {
	query := `UPDATE commitments SET status = $1, revealed_at = $2,
				revealed_secret = $3, proof = $4, automatic = $5
				WHERE id = $6`

	_, err := q.Exec(query, c.Status, c.RevealedAt, c.Secret, c.Proof,
		c.Automatic, c.ID)
	return err
}

// deleteCommitment removes the row for id.
func deleteCommitment(q queryer, id string) error {
	_, err := q.Exec(`DELETE FROM commitments WHERE id = $1`, id)
	return err
}

// updateHash overwrites the digest of the row for id.
func updateHash(q queryer, id, hash string) error {
	_, err := q.Exec(`UPDATE commitments SET hash = $1 WHERE id = $2`,
		hash, id)
	return err
}
