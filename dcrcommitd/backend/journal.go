// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/decred/dcrcommit/commitment"
)

const fStr = "20060102.150405"

func ts2str(ns int64) string {
	if ns == 0 {
		return "-"
	}
	return time.Unix(0, ns).UTC().Format(fStr)
}

// DumpCommitment writes a single record.  Human readable output is meant
// for operators; the JSON stream can be replayed with ReadJournal.
func DumpCommitment(w io.Writer, human bool, r CommitmentRecord) error {
	if human {
		fmt.Fprintf(w, "ID         : %v\n", r.ID)
		fmt.Fprintf(w, "Hash       : %v\n", r.Hash)
		fmt.Fprintf(w, "Description: %v\n", r.Description)
		fmt.Fprintf(w, "Status     : %v\n",
			commitment.Status(r.Status))
		fmt.Fprintf(w, "Created    : %v\n", ts2str(r.CreatedAt))
		switch r.ConditionKind {
		case commitment.KindPrice:
			fmt.Fprintf(w, "Condition  : %v >= %v\n",
				r.ConditionAsset, r.ConditionTarget)
		case commitment.KindTime:
			fmt.Fprintf(w, "Condition  : %v\n",
				ts2str(r.ConditionExpiry))
		default:
			fmt.Fprintf(w, "Condition  : %v\n", r.ConditionKind)
		}
		if r.RevealedAt != 0 {
			fmt.Fprintf(w, "Revealed   : %v (automatic %v)\n",
				ts2str(r.RevealedAt), r.Automatic)
			fmt.Fprintf(w, "Secret     : %v\n", r.Secret)
			fmt.Fprintf(w, "Proof      : %v\n", r.Proof)
		}
		fmt.Fprintf(w, "\n")
		return nil
	}

	e := json.NewEncoder(w)
	err := e.Encode(RecordType{
		Version: RecordTypeVersion,
		Type:    RecordTypeCommitment,
	})
	if err != nil {
		return err
	}
	return e.Encode(r)
}

// ReadJournal decodes a JSON stream written by DumpCommitment and calls fn
// for every commitment record in order.
func ReadJournal(r io.Reader, fn func(CommitmentRecord) error) error {
	d := json.NewDecoder(r)
	for {
		var rt RecordType
		err := d.Decode(&rt)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if rt.Version != RecordTypeVersion {
			return fmt.Errorf("unsupported record version: %v",
				rt.Version)
		}

		switch rt.Type {
		case RecordTypeCommitment:
			var cr CommitmentRecord
			if err := d.Decode(&cr); err != nil {
				return err
			}
			// Make sure the record is sane before handing it off.
			if _, err := cr.Commitment(); err != nil {
				return err
			}
			if err := fn(cr); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid record type: %v", rt.Type)
		}
	}
}
