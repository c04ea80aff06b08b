package store

import (
	"encoding/binary"
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// VoteInfo is the vote-table value: the latest {sequence, hashes,
// signature} issued locally for a representative. Persisting it lets
// the vote generator's sequence number survive a restart without
// regressing.
type VoteInfo struct {
	Sequence  uint64
	Hashes    []blocks.Hash
	Signature blocks.Signature
}

func encodeVoteInfo(v VoteInfo) []byte {
	out := make([]byte, 0, 8+1+len(v.Hashes)*32+64)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], v.Sequence)
	out = append(out, seq[:]...)
	out = append(out, byte(len(v.Hashes)))
	for _, h := range v.Hashes {
		out = append(out, h[:]...)
	}
	out = append(out, v.Signature[:]...)
	return out
}

func decodeVoteInfo(raw []byte) (VoteInfo, error) {
	if len(raw) < 9 {
		return VoteInfo{}, fmt.Errorf("store: truncated vote_info")
	}
	var v VoteInfo
	v.Sequence = binary.BigEndian.Uint64(raw[0:8])
	n := int(raw[8])
	off := 9
	want := off + n*32 + 64
	if len(raw) != want {
		return VoteInfo{}, fmt.Errorf("store: bad vote_info length %d want %d", len(raw), want)
	}
	v.Hashes = make([]blocks.Hash, n)
	for i := 0; i < n; i++ {
		copy(v.Hashes[i][:], raw[off:off+32])
		off += 32
	}
	copy(v.Signature[:], raw[off:off+64])
	return v, nil
}

// GetVote returns the latest locally issued vote for representative.
func (r *ReadTx) GetVote(representative blocks.Account) (VoteInfo, bool, error) {
	v := r.bucket(bucketVote).Get(representative[:])
	if v == nil {
		return VoteInfo{}, false, nil
	}
	info, err := decodeVoteInfo(v)
	return info, err == nil, err
}

// PutVote persists the latest vote issued for representative. Callers
// (votecache) must only ever raise Sequence.
func (w *WriteTx) PutVote(representative blocks.Account, info VoteInfo) error {
	b, err := w.bucket(TableVote)
	if err != nil {
		return err
	}
	return b.Put(representative[:], encodeVoteInfo(info))
}
