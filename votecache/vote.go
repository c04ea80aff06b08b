// Package votecache implements local vote issuance with a persisted
// monotone sequence per representative, plus the LRU-style votes
// cache replayed on incoming confirm requests.
package votecache

import (
	"crypto/ed25519"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// MaxHashesPerVote is the protocol cap on hashes one vote may carry.
const MaxHashesPerVote = 12

// Vote is one locally issued vote: a representative's signed statement
// over a batch of block hashes at a monotone sequence number.
type Vote struct {
	Account   blocks.Account
	Sequence  uint64
	Hashes    []blocks.Hash
	Signature blocks.Signature
}

// Digest returns the Blake2b-256 digest a vote's signature covers:
// the sequence number followed by every hash, in order.
func (v *Vote) Digest() blocks.Hash {
	h, _ := blake2b.New256(nil)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], v.Sequence)
	h.Write(seq[:])
	for _, bh := range v.Hashes {
		h.Write(bh[:])
	}
	var out blocks.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Sign installs the representative's signature over the vote digest.
func (v *Vote) Sign(priv ed25519.PrivateKey) {
	d := v.Digest()
	copy(v.Signature[:], ed25519.Sign(priv, d[:]))
}

// Verify reports whether the vote's signature verifies under its
// stated representative account.
func (v *Vote) Verify() bool {
	d := v.Digest()
	return ed25519.Verify(v.Account[:], d[:], v.Signature[:])
}
