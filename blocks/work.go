package blocks

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Details mirrors sideband.details: exactly one or
// none of IsSend/IsReceive/IsEpoch may be set, and Epoch is the
// normalized epoch index the block was applied at.
type Details struct {
	Epoch     uint8
	IsSend    bool
	IsReceive bool
	IsEpoch   bool
}

// Threshold holds the per-epoch base and reduced (receive) difficulty
// floors.
type Threshold struct {
	Base    uint64
	Receive uint64
}

// ThresholdFor resolves the precise 64-bit difficulty floor a block
// must clear given its epoch and derived details.
func ThresholdFor(epochThresholds []Threshold, d Details) uint64 {
	idx := int(d.Epoch)
	if idx < 0 || idx >= len(epochThresholds) {
		idx = len(epochThresholds) - 1
	}
	t := epochThresholds[idx]
	if d.IsReceive && !d.IsSend && !d.IsEpoch {
		return t.Receive
	}
	return t.Base
}

// Difficulty hashes work||root with Blake2b and returns the first
// eight output bytes as a little-endian uint64 magnitude: work proves
// knowledge of a nonce whose digest, combined with the block's root,
// clears a fixed per-epoch floor.
func Difficulty(w Work, root Hash) uint64 {
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], uint64(w))

	h, _ := blake2b.New(8, nil)
	h.Write(nonce[:])
	h.Write(root[:])
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// WorkValid reports whether w clears threshold for a block whose
// fork-detection root is root.
func WorkValid(w Work, root Hash, threshold uint64) bool {
	return Difficulty(w, root) >= threshold
}
