// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package filesystem

import (
	"fmt"
	"strings"

	"github.com/decred/dcrcommit/dcrcommitd/backend"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// records returns every stored record.  Payloads that do not decode are
// returned as bare records carrying only the id so that the checker flags
// them as corrupt.
//
// This function must be called with the READ lock held.
func (fs *FileSystem) records() ([]backend.CommitmentRecord, error) {
	iter := fs.db.NewIterator(util.BytesPrefix([]byte(commitmentPrefix)),
		nil)
	defer iter.Release()

	var rs []backend.CommitmentRecord
	for iter.Next() {
		id := strings.TrimPrefix(string(iter.Key()), commitmentPrefix)
		r, err := DecodeCommitmentRecord(iter.Value())
		if err != nil {
			fmt.Printf("   *** ERROR %v: undecodable record: %v\n",
				id, err)
			rs = append(rs, backend.CommitmentRecord{ID: id})
			continue
		}
		if r.ID != id {
			fmt.Printf("   *** ERROR %v: record id %q\n", id, r.ID)
			r.ID = id
		}
		rs = append(rs, *r)
	}
	return rs, iter.Error()
}

// DeleteRecord satisfies the backend.FsckRepairer interface.
//
// This function must be called with the WRITE lock held.
func (fs *FileSystem) DeleteRecord(id string) error {
	return fs.db.Delete(commitmentKey(id), nil)
}

// NormalizeRecord satisfies the backend.FsckRepairer interface.
//
// This function must be called with the WRITE lock held.
func (fs *FileSystem) NormalizeRecord(r backend.CommitmentRecord) error {
	payload, err := EncodeCommitmentRecord(r)
	if err != nil {
		return err
	}
	return fs.db.Put(commitmentKey(r.ID), payload, nil)
}

// Fsck satisfies the backend interface.
func (fs *FileSystem) Fsck(options *backend.FsckOptions) error {
	fs.Lock()
	defer fs.Unlock()

	if options != nil && options.Verbose {
		fmt.Printf("=== Checking commitments in %v\n", fs.root)
	}

	rs, err := fs.records()
	if err != nil {
		return err
	}
	return backend.FsckRecords(options, rs, fs)
}
