package blocks

import "crypto/ed25519"

// Sign signs a block's Hash with priv and installs the signature.
func Sign(b Block, priv ed25519.PrivateKey) {
	h := HashOf(b)
	sig := ed25519.Sign(priv, h[:])
	var s Signature
	copy(s[:], sig)
	b.SetSignature(s)
}

// VerifySignature reports whether the block's signature over its hash
// verifies under pub. Used for both ordinary account signers and the
// network epoch signer — the caller resolves
// which public key to pass.
func VerifySignature(b Block, pub Account) bool {
	h := HashOf(b)
	sig := b.Signature()
	return ed25519.Verify(pub[:], h[:], sig[:])
}
