// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrdata/api/types/v5"
)

// extractNullData32 returns the payload of an OP_RETURN script that carries
// a single 32 byte push.
func extractNullData32(script []byte) []byte {
	if len(script) == 2+sha256.Size &&
		script[0] == txscript.OP_RETURN &&
		script[1] == txscript.OP_DATA_32 {

		return script[2:]
	}

	return nil
}

// VerifyRegistration verifies that tx carries an OP_RETURN output committing
// to digest.  url is the dcrdata tx API prefix, for example
// https://dcrdata.decred.org/api/tx/.
func VerifyRegistration(url, tx string, digest []byte) error {
	u := url + tx + "/out"
	r, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("HTTP Get: %v", err)
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("invalid body: %v %v",
				r.StatusCode, body)
		}
		return fmt.Errorf("invalid dcrdata answer: %v %s",
			r.StatusCode, body)
	}

	var txOuts []types.TxOut
	if err := json.NewDecoder(r.Body).Decode(&txOuts); err != nil {
		return err
	}

	for _, v := range txOuts {
		if !types.IsNullDataScript(v.ScriptPubKeyDecoded.Type) {
			continue
		}
		script, err := hex.DecodeString(v.ScriptPubKeyDecoded.Hex)
		if err != nil {
			return fmt.Errorf("invalid dcrdata script: %v", err)
		}
		data := extractNullData32(script)
		if data == nil {
			continue
		}
		if bytes.Equal(data, digest) {
			return nil
		}
	}

	return fmt.Errorf("registration not found: tx %v digest %x", tx,
		digest)
}
