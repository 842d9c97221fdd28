// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// proofSuffix marks simulated proofs.  These are labels, not zero knowledge
// proofs.
const proofSuffix = "zkproof"

// DigestFunc maps a secret to its digest.
type DigestFunc func(secret string) string

// Digest returns the hex encoded SHA256 of secret.
func Digest(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// GenerateProof returns an opaque proof label binding secret to digest at
// the provided time.
func GenerateProof(secret, digest string, at time.Time) string {
	payload := secret + "-" + digest + "-" +
		strconv.FormatInt(at.UnixNano()/int64(time.Millisecond), 10)
	h := blake3.Sum256([]byte(payload))
	return hex.EncodeToString(h[:16]) + "..." + proofSuffix
}

// VerifyProof performs the same shallow check the proof label supports.
func VerifyProof(proof, digest string) bool {
	return strings.HasSuffix(proof, proofSuffix) &&
		len(digest) == sha256.Size*2
}

// NewID returns a fresh commitment identifier.
func NewID() string {
	return uuid.New().String()
}

// AutoRevealPayload is stored as the revealed secret when the sweeper reveals
// a commitment.  The original secret is never reconstructed.
func AutoRevealPayload(cond Condition) string {
	return "[Auto-revealed when " + cond.Describe() + "]"
}
