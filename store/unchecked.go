package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// UncheckedInfo is the unchecked-table value:
// {block, signer_hint, arrival_time, verification_state}. block holds
// the full wire-encoded orphan block (no sideband — it hasn't been
// applied yet).
type UncheckedInfo struct {
	Block              []byte
	SignerHint         blocks.Account
	ArrivalTime        uint64
	VerificationState  uint8 // 0=unverified, 1=verified, 2=invalid-signature
}

func encodeUncheckedInfo(u UncheckedInfo) []byte {
	out := make([]byte, 0, 4+len(u.Block)+32+8+1)
	var blen [4]byte
	binary.BigEndian.PutUint32(blen[:], uint32(len(u.Block)))
	out = append(out, blen[:]...)
	out = append(out, u.Block...)
	out = append(out, u.SignerHint[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], u.ArrivalTime)
	out = append(out, ts[:]...)
	out = append(out, u.VerificationState)
	return out
}

func decodeUncheckedInfo(raw []byte) (UncheckedInfo, error) {
	if len(raw) < 4 {
		return UncheckedInfo{}, fmt.Errorf("store: truncated unchecked_info")
	}
	blen := binary.BigEndian.Uint32(raw[0:4])
	off := 4
	if len(raw) < off+int(blen)+32+8+1 {
		return UncheckedInfo{}, fmt.Errorf("store: truncated unchecked_info body")
	}
	var u UncheckedInfo
	u.Block = append([]byte(nil), raw[off:off+int(blen)]...)
	off += int(blen)
	copy(u.SignerHint[:], raw[off:off+32])
	off += 32
	u.ArrivalTime = binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	u.VerificationState = raw[off]
	return u, nil
}

// PutUnchecked inserts an orphan block keyed on its missing
// dependency hash, deduplicating on (dependency, blockHash).
func (w *WriteTx) PutUnchecked(dependency, blockHash blocks.Hash, info UncheckedInfo) error {
	b, err := w.bucket(TableUnchecked)
	if err != nil {
		return err
	}
	key := uncheckedKey(dependency, blockHash)
	existed := b.Get(key) != nil
	if err := b.Put(key, encodeUncheckedInfo(info)); err != nil {
		return err
	}
	if !existed {
		return w.addUncheckedCount(1)
	}
	return nil
}

// DelUnchecked removes a single unchecked entry.
func (w *WriteTx) DelUnchecked(dependency, blockHash blocks.Hash) error {
	b, err := w.bucket(TableUnchecked)
	if err != nil {
		return err
	}
	key := uncheckedKey(dependency, blockHash)
	if b.Get(key) == nil {
		return nil
	}
	if err := b.Delete(key); err != nil {
		return err
	}
	return w.addUncheckedCount(-1)
}

// ForEachUncheckedFor iterates every unchecked entry blocked on
// dependency, in ascending block-hash order, via a half-open
// key-range prefix scan.
func (r *ReadTx) ForEachUncheckedFor(dependency blocks.Hash, fn func(blockHash blocks.Hash, info UncheckedInfo) error) error {
	prefix := uncheckedPrefix(dependency)
	c := r.bucket(bucketUnchecked).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		_, blockHash, err := splitUncheckedKey(k)
		if err != nil {
			return err
		}
		info, err := decodeUncheckedInfo(v)
		if err != nil {
			return err
		}
		if err := fn(blockHash, info); err != nil {
			return err
		}
	}
	return nil
}

// ForEachUncheckedOlderThan iterates every unchecked entry whose
// arrival time is strictly before cutoff, across all dependencies,
// supporting the age-based cleanup sweep.
func (r *ReadTx) ForEachUncheckedOlderThan(cutoff uint64, fn func(dependency, blockHash blocks.Hash) error) error {
	return r.bucket(bucketUnchecked).ForEach(func(k, v []byte) error {
		info, err := decodeUncheckedInfo(v)
		if err != nil {
			return err
		}
		if info.ArrivalTime >= cutoff {
			return nil
		}
		dependency, blockHash, err := splitUncheckedKey(k)
		if err != nil {
			return err
		}
		return fn(dependency, blockHash)
	})
}

// CountUnchecked returns the number of rows in the unchecked table.
func (r *ReadTx) CountUnchecked() int {
	return r.bucket(bucketUnchecked).Stats().KeyN
}

// UncheckedEntry pairs a pending orphan's block hash with its stored info.
type UncheckedEntry struct {
	BlockHash blocks.Hash
	Info      UncheckedInfo
}

// TakeUncheckedFor removes and returns every unchecked entry blocked on
// dependency, so the block processor can requeue them for reprocessing
// now that dependency has been applied.
func (w *WriteTx) TakeUncheckedFor(dependency blocks.Hash) ([]UncheckedEntry, error) {
	b, err := w.bucket(TableUnchecked)
	if err != nil {
		return nil, err
	}
	prefix := uncheckedPrefix(dependency)
	var entries []UncheckedEntry
	var keys [][]byte
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		_, blockHash, err := splitUncheckedKey(k)
		if err != nil {
			return nil, err
		}
		info, err := decodeUncheckedInfo(v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, UncheckedEntry{BlockHash: blockHash, Info: info})
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return nil, err
		}
	}
	if len(keys) > 0 {
		if err := w.addUncheckedCount(-int64(len(keys))); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
