// Package sideband implements the per-block derived metadata codec.
// A sideband is never trusted from the wire: it is recomputed by the
// ledger on every application and stored only inside the block store,
// appended to the block's wire bytes.
package sideband

import (
	"encoding/binary"
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// Sideband is the derived metadata stored alongside a block. Details
// is only meaningful (and only persisted) for state blocks — legacy
// variants' operation is implied by their Type, so their Details stays
// the zero value.
type Sideband struct {
	Account   blocks.Account
	Successor blocks.Hash
	Balance   blocks.Amount
	Height    uint64
	Timestamp uint64
	Details   blocks.Details
}

const commonLen = 32 + 32 + 16 + 8 + 8 // account, successor, balance, height, timestamp
const detailsLen = 2                   // epoch byte + flags byte

// Encode serializes s for a block of type t. The layout is symmetric
// with Decode.
func Encode(t blocks.Type, s Sideband) []byte {
	out := make([]byte, 0, commonLen+detailsLen)
	out = append(out, s.Account[:]...)
	out = append(out, s.Successor[:]...)
	out = append(out, s.Balance[:]...)
	var h, ts [8]byte
	binary.BigEndian.PutUint64(h[:], s.Height)
	binary.BigEndian.PutUint64(ts[:], s.Timestamp)
	out = append(out, h[:]...)
	out = append(out, ts[:]...)
	if t == blocks.TypeState {
		out = append(out, s.Details.Epoch, encodeFlags(s.Details))
	}
	return out
}

// Decode parses a sideband previously produced by Encode for a block
// of type t.
func Decode(t blocks.Type, raw []byte) (Sideband, error) {
	want := commonLen
	if t == blocks.TypeState {
		want += detailsLen
	}
	if len(raw) != want {
		return Sideband{}, fmt.Errorf("sideband: bad length for %s: got %d want %d", t, len(raw), want)
	}
	var s Sideband
	off := 0
	copy(s.Account[:], raw[off:off+32])
	off += 32
	copy(s.Successor[:], raw[off:off+32])
	off += 32
	copy(s.Balance[:], raw[off:off+16])
	off += 16
	s.Height = binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	s.Timestamp = binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	if t == blocks.TypeState {
		s.Details.Epoch = raw[off]
		decodeFlags(raw[off+1], &s.Details)
	}
	return s, nil
}

func encodeFlags(d blocks.Details) byte {
	var f byte
	if d.IsSend {
		f |= 1 << 0
	}
	if d.IsReceive {
		f |= 1 << 1
	}
	if d.IsEpoch {
		f |= 1 << 2
	}
	return f
}

func decodeFlags(f byte, d *blocks.Details) {
	d.IsSend = f&(1<<0) != 0
	d.IsReceive = f&(1<<1) != 0
	d.IsEpoch = f&(1<<2) != 0
}

// Append concatenates a block's wire bytes with its encoded sideband,
// the only form a (block, sideband) pair is ever persisted in.
func Append(blockBytes []byte, t blocks.Type, s Sideband) []byte {
	out := make([]byte, len(blockBytes), len(blockBytes)+commonLen+detailsLen)
	copy(out, blockBytes)
	return append(out, Encode(t, s)...)
}

// Split separates previously-appended block bytes from their sideband
// suffix for a block of type t.
func Split(t blocks.Type, stored []byte) (blockBytes []byte, sb Sideband, err error) {
	sidebandLen := commonLen
	if t == blocks.TypeState {
		sidebandLen += detailsLen
	}
	if len(stored) < sidebandLen {
		return nil, Sideband{}, fmt.Errorf("sideband: stored record too short for %s", t)
	}
	cut := len(stored) - sidebandLen
	sb, err = Decode(t, stored[cut:])
	if err != nil {
		return nil, Sideband{}, err
	}
	return stored[:cut], sb, nil
}
