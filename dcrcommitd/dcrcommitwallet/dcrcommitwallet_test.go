// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dcrcommitwallet

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
)

func TestRegistrationScript(t *testing.T) {
	cid := "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	script, err := RegistrationScript(cid)
	if err != nil {
		t.Fatal(err)
	}
	if len(script) != 2+sha256.Size {
		t.Fatalf("invalid script length %v", len(script))
	}
	if script[0] != txscript.OP_RETURN || script[1] != txscript.OP_DATA_32 {
		t.Fatalf("invalid script %x", script)
	}
	digest := RegistrationDigest(cid)
	if !bytes.Equal(script[2:], digest[:]) {
		t.Fatalf("invalid payload %x", script[2:])
	}
}

func TestRegistrationTx(t *testing.T) {
	cid := "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
	script, err := RegistrationScript(cid)
	if err != nil {
		t.Fatal(err)
	}

	tx := wire.NewMsgTx()
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, 0,
		wire.TxTreeRegular), 0, nil))
	tx.AddTxOut(wire.NewTxOut(0, script))
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := registrationTx(buf.Bytes(), script)
	if err != nil {
		t.Fatal(err)
	}
	if got.TxHash() != tx.TxHash() {
		t.Fatalf("hash mismatch: got %v want %v", got.TxHash(),
			tx.TxHash())
	}

	other, err := RegistrationScript(cid + "x")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := registrationTx(buf.Bytes(), other); err == nil {
		t.Fatal("expected missing output error")
	}
	if _, err := registrationTx([]byte{0x01}, script); err == nil {
		t.Fatal("expected decode error")
	}
}
