package store

import (
	"encoding/binary"
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
)

// AccountInfo is the accounts-table value: {head, representative,
// open_block, balance, modified_at, block_count, epoch}.
type AccountInfo struct {
	Head           blocks.Hash
	Representative blocks.Account
	OpenBlock      blocks.Hash
	Balance        blocks.Amount
	ModifiedAt     uint64
	BlockCount     uint64
	Epoch          uint8
}

const accountInfoLen = 32 + 32 + 32 + 16 + 8 + 8 + 1

func encodeAccountInfo(a AccountInfo) []byte {
	out := make([]byte, accountInfoLen)
	off := 0
	copy(out[off:off+32], a.Head[:])
	off += 32
	copy(out[off:off+32], a.Representative[:])
	off += 32
	copy(out[off:off+32], a.OpenBlock[:])
	off += 32
	copy(out[off:off+16], a.Balance[:])
	off += 16
	binary.BigEndian.PutUint64(out[off:off+8], a.ModifiedAt)
	off += 8
	binary.BigEndian.PutUint64(out[off:off+8], a.BlockCount)
	off += 8
	out[off] = a.Epoch
	return out
}

func decodeAccountInfo(raw []byte) (AccountInfo, error) {
	if len(raw) != accountInfoLen {
		return AccountInfo{}, fmt.Errorf("store: bad account_info length %d", len(raw))
	}
	var a AccountInfo
	off := 0
	copy(a.Head[:], raw[off:off+32])
	off += 32
	copy(a.Representative[:], raw[off:off+32])
	off += 32
	copy(a.OpenBlock[:], raw[off:off+32])
	off += 32
	copy(a.Balance[:], raw[off:off+16])
	off += 16
	a.ModifiedAt = binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	a.BlockCount = binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	a.Epoch = raw[off]
	return a, nil
}

// GetAccount reads an account's info, reporting ok=false if absent.
func (r *ReadTx) GetAccount(account blocks.Account) (info AccountInfo, ok bool, err error) {
	v := r.bucket(bucketAccounts).Get(account[:])
	if v == nil {
		return AccountInfo{}, false, nil
	}
	info, err = decodeAccountInfo(v)
	return info, err == nil, err
}

// GetAccount reads an account's info from within a write transaction
// (the ledger reads accounts it is about to mutate in the same tx).
func (w *WriteTx) GetAccount(account blocks.Account) (info AccountInfo, ok bool, err error) {
	b, err := w.bucket(TableAccounts)
	if err != nil {
		return AccountInfo{}, false, err
	}
	v := b.Get(account[:])
	if v == nil {
		return AccountInfo{}, false, nil
	}
	info, err = decodeAccountInfo(v)
	return info, err == nil, err
}

// PutAccount writes (or overwrites) an account's info.
func (w *WriteTx) PutAccount(account blocks.Account, info AccountInfo) error {
	b, err := w.bucket(TableAccounts)
	if err != nil {
		return err
	}
	existed := b.Get(account[:]) != nil
	if err := b.Put(account[:], encodeAccountInfo(info)); err != nil {
		return err
	}
	if !existed {
		return w.addAccountCount(1)
	}
	return nil
}

// DelAccount removes an account entirely (used during rollback of an
// account's open block).
func (w *WriteTx) DelAccount(account blocks.Account) error {
	b, err := w.bucket(TableAccounts)
	if err != nil {
		return err
	}
	if b.Get(account[:]) == nil {
		return nil
	}
	if err := b.Delete(account[:]); err != nil {
		return err
	}
	return w.addAccountCount(-1)
}

// ExistsAccount reports whether account has an entry.
func (r *ReadTx) ExistsAccount(account blocks.Account) bool {
	return r.bucket(bucketAccounts).Get(account[:]) != nil
}

// CountAccounts returns the number of rows in the accounts table,
// computed by a direct bucket scan (not the cached meta counter).
func (r *ReadTx) CountAccounts() int {
	return r.bucket(bucketAccounts).Stats().KeyN
}

// ForEachAccount iterates accounts in ascending key order.
func (r *ReadTx) ForEachAccount(fn func(account blocks.Account, info AccountInfo) error) error {
	return r.bucket(bucketAccounts).ForEach(func(k, v []byte) error {
		var acct blocks.Account
		copy(acct[:], k)
		info, err := decodeAccountInfo(v)
		if err != nil {
			return err
		}
		return fn(acct, info)
	})
}
