package blocks

import "golang.org/x/crypto/blake2b"

// HashOf returns the Blake2b-256 digest of a block's hashable fields.
func HashOf(b Block) Hash {
	sum := blake2b.Sum256(b.Hashables())
	return Hash(sum)
}

// VerifyHash recomputes a block's hash and reports whether it matches h.
func VerifyHash(b Block, h Hash) bool {
	return HashOf(b) == h
}
