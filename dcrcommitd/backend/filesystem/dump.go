// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/backend"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// NewDump opens an existing database for dumping.
func NewDump(root string) (*FileSystem, error) {
	// Stat path first so that we don't create a database for a non
	// existing root.  Leveldb WILL create a directory even if
	// ErrorIfMissing = true.
	path := filepath.Join(root, commitmentsDBDir)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, os.ErrNotExist
	}
	if !fi.Mode().IsDir() {
		return nil, errInvalidDB
	}
	db, err := openDB(root, &opt.Options{ErrorIfMissing: true})
	if err != nil {
		return nil, err
	}
	return &FileSystem{root: root, db: db, myNow: time.Now}, nil
}

// NewRestore creates a new database for restoring.  It refuses to overwrite
// an existing database.
func NewRestore(root string) (*FileSystem, error) {
	path := filepath.Join(root, commitmentsDBDir)
	_, err := os.Stat(path)
	if err == nil {
		return nil, os.ErrExist
	}
	db, err := openDB(root, &opt.Options{ErrorIfExist: true})
	if err != nil {
		return nil, err
	}
	return &FileSystem{root: root, db: db, myNow: time.Now}, nil
}

// Dump satisfies the backend interface.
func (fs *FileSystem) Dump(f *os.File, human bool) error {
	fs.RLock()
	defer fs.RUnlock()

	return fs.iterate(func(c *commitment.Commitment) error {
		return backend.DumpCommitment(f, human, backend.NewRecord(*c))
	})
}

// Restore satisfies the backend interface.
func (fs *FileSystem) Restore(f *os.File, verbose bool, location string) error {
	fs.Lock()
	defer fs.Unlock()

	if verbose {
		fmt.Printf("Restoring to: %v\n", location)
	}

	count := 0
	err := backend.ReadJournal(f, func(r backend.CommitmentRecord) error {
		payload, err := EncodeCommitmentRecord(r)
		if err != nil {
			return err
		}
		err = fs.db.Put(commitmentKey(r.ID), payload, nil)
		if err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Restored %v commitments\n", count)
	}
	return nil
}
