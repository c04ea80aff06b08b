package store

import (
	"encoding/binary"
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// ConfHeight is the confirmation_height-table value:
// {height, frontier_hash}.
type ConfHeight struct {
	Height       uint64
	FrontierHash blocks.Hash
}

const confHeightLen = 8 + 32

func encodeConfHeight(c ConfHeight) []byte {
	out := make([]byte, confHeightLen)
	binary.BigEndian.PutUint64(out[0:8], c.Height)
	copy(out[8:40], c.FrontierHash[:])
	return out
}

func decodeConfHeight(raw []byte) (ConfHeight, error) {
	if len(raw) != confHeightLen {
		return ConfHeight{}, fmt.Errorf("store: bad confirmation_height length %d", len(raw))
	}
	var c ConfHeight
	c.Height = binary.BigEndian.Uint64(raw[0:8])
	copy(c.FrontierHash[:], raw[8:40])
	return c, nil
}

// GetConfirmationHeight returns account's cemented height; an account
// that has never been seen reports zero.
func (r *ReadTx) GetConfirmationHeight(account blocks.Account) (ConfHeight, bool, error) {
	v := r.bucket(bucketConfirmHeight).Get(account[:])
	if v == nil {
		return ConfHeight{}, false, nil
	}
	c, err := decodeConfHeight(v)
	return c, err == nil, err
}

// GetConfirmationHeight (write-transaction variant).
func (w *WriteTx) GetConfirmationHeight(account blocks.Account) (ConfHeight, bool, error) {
	b, err := w.bucket(TableConfirmationHeight)
	if err != nil {
		return ConfHeight{}, false, err
	}
	v := b.Get(account[:])
	if v == nil {
		return ConfHeight{}, false, nil
	}
	c, err := decodeConfHeight(v)
	return c, err == nil, err
}

// PutConfirmationHeight writes account's cemented height. Callers
// must only ever raise it.
func (w *WriteTx) PutConfirmationHeight(account blocks.Account, c ConfHeight) error {
	b, err := w.bucket(TableConfirmationHeight)
	if err != nil {
		return err
	}
	return b.Put(account[:], encodeConfHeight(c))
}

// CementTo raises account's confirmation height to newHeight with the
// given frontier hash and adjusts the cached cemented-block counter by
// the resulting delta, keeping meta.cemented_count equal to the sum
// of all confirmation heights. A no-op if newHeight does not exceed
// the account's current height: confirmation heights never decrease.
func (w *WriteTx) CementTo(account blocks.Account, newHeight uint64, frontier blocks.Hash) error {
	old, _, err := w.GetConfirmationHeight(account)
	if err != nil {
		return err
	}
	if newHeight <= old.Height {
		return nil
	}
	if err := w.PutConfirmationHeight(account, ConfHeight{Height: newHeight, FrontierHash: frontier}); err != nil {
		return err
	}
	return w.addCementedCount(int64(newHeight - old.Height))
}

// ForEachConfirmationHeight iterates the table in ascending account
// order.
func (r *ReadTx) ForEachConfirmationHeight(fn func(account blocks.Account, c ConfHeight) error) error {
	return r.bucket(bucketConfirmHeight).ForEach(func(k, v []byte) error {
		var acct blocks.Account
		copy(acct[:], k)
		c, err := decodeConfHeight(v)
		if err != nil {
			return err
		}
		return fn(acct, c)
	})
}
