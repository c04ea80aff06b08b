package store

import (
	"bytes"
	"encoding/binary"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// PutOnlineWeightSample records a sampled online weight at timestamp
// ts. The quorum calculation that consumes these samples lives outside
// this module; only the table is maintained here.
func (w *WriteTx) PutOnlineWeightSample(ts uint64, weight blocks.Amount) error {
	b, err := w.bucket(TableOnlineWeight)
	if err != nil {
		return err
	}
	return b.Put(timestampKey(ts), weight[:])
}

// ForEachOnlineWeightSample iterates samples in ascending timestamp
// order.
func (r *ReadTx) ForEachOnlineWeightSample(fn func(ts uint64, weight blocks.Amount) error) error {
	return r.bucket(bucketOnlineWeight).ForEach(func(k, v []byte) error {
		var w blocks.Amount
		copy(w[:], v)
		return fn(decodeTimestampKey(k), w)
	})
}

// LatestOnlineWeightSample returns the newest sample via a reverse
// cursor scan.
func (r *ReadTx) LatestOnlineWeightSample() (ts uint64, weight blocks.Amount, ok bool) {
	c := r.bucket(bucketOnlineWeight).Cursor()
	k, v := c.Last()
	if k == nil {
		return 0, blocks.Amount{}, false
	}
	copy(weight[:], v)
	return decodeTimestampKey(k), weight, true
}

// TrimOnlineWeightSamplesBefore deletes every sample older than
// cutoff, bounding the table's size as the sampler keeps running.
func (w *WriteTx) TrimOnlineWeightSamplesBefore(cutoff uint64) error {
	b, err := w.bucket(TableOnlineWeight)
	if err != nil {
		return err
	}
	prefix := timestampKey(cutoff)
	c := b.Cursor()
	var toDelete [][]byte
	for k, _ := c.First(); k != nil && bytes.Compare(k, prefix) < 0; k, _ = c.Next() {
		toDelete = append(toDelete, append([]byte(nil), k...))
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func decodeTimestampKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}
