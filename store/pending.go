package store

import (
	"bytes"
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// PendingInfo is the pending-table value:
// {source_account, amount, epoch}. The key is pendingKey(destination,
// source_hash).
type PendingInfo struct {
	SourceAccount blocks.Account
	Amount        blocks.Amount
	Epoch         uint8
}

const pendingInfoLen = 32 + 16 + 1

func encodePendingInfo(p PendingInfo) []byte {
	out := make([]byte, pendingInfoLen)
	copy(out[0:32], p.SourceAccount[:])
	copy(out[32:48], p.Amount[:])
	out[48] = p.Epoch
	return out
}

func decodePendingInfo(raw []byte) (PendingInfo, error) {
	if len(raw) != pendingInfoLen {
		return PendingInfo{}, fmt.Errorf("store: bad pending_info length %d", len(raw))
	}
	var p PendingInfo
	copy(p.SourceAccount[:], raw[0:32])
	copy(p.Amount[:], raw[32:48])
	p.Epoch = raw[48]
	return p, nil
}

// GetPending looks up a pending entry keyed (destination, sourceHash).
func (r *ReadTx) GetPending(destination blocks.Account, sourceHash blocks.Hash) (PendingInfo, bool, error) {
	v := r.bucket(bucketPending).Get(pendingKey(destination, sourceHash))
	if v == nil {
		return PendingInfo{}, false, nil
	}
	p, err := decodePendingInfo(v)
	return p, err == nil, err
}

// GetPending (write-transaction variant) looks up a pending entry.
func (w *WriteTx) GetPending(destination blocks.Account, sourceHash blocks.Hash) (PendingInfo, bool, error) {
	b, err := w.bucket(TablePending)
	if err != nil {
		return PendingInfo{}, false, err
	}
	v := b.Get(pendingKey(destination, sourceHash))
	if v == nil {
		return PendingInfo{}, false, nil
	}
	p, err := decodePendingInfo(v)
	return p, err == nil, err
}

// PutPending inserts a pending entry (send application effect).
func (w *WriteTx) PutPending(destination blocks.Account, sourceHash blocks.Hash, info PendingInfo) error {
	b, err := w.bucket(TablePending)
	if err != nil {
		return err
	}
	return b.Put(pendingKey(destination, sourceHash), encodePendingInfo(info))
}

// DelPending removes a pending entry (receive application effect).
func (w *WriteTx) DelPending(destination blocks.Account, sourceHash blocks.Hash) error {
	b, err := w.bucket(TablePending)
	if err != nil {
		return err
	}
	return b.Delete(pendingKey(destination, sourceHash))
}

// ForEachPendingFor iterates every pending entry destined for account,
// in ascending source-hash order, by constructing the half-open
// key-range prefix over the destination account.
func (r *ReadTx) ForEachPendingFor(account blocks.Account, fn func(sourceHash blocks.Hash, info PendingInfo) error) error {
	prefix := pendingPrefix(account)
	c := r.bucket(bucketPending).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		_, source, err := splitPendingKey(k)
		if err != nil {
			return err
		}
		info, err := decodePendingInfo(v)
		if err != nil {
			return err
		}
		if err := fn(source, info); err != nil {
			return err
		}
	}
	return nil
}

// CountPending returns the number of rows in the pending table.
func (r *ReadTx) CountPending() int {
	return r.bucket(bucketPending).Stats().KeyN
}

