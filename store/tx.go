package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// ReadTx is a read-only, repeatable-read snapshot. A long-lived one
// started with Begin may be renewed with Renew to release bbolt's
// underlying mmap reference instead of holding one transaction open
// indefinitely.
type ReadTx struct {
	store *Store
	tx    *bolt.Tx
}

// WriteTx is the single-writer transaction kind. It declares, up
// front, the set of tables it may touch — bbolt already serializes all
// writers globally, so this isn't required for bbolt's own
// correctness; every table accessor rejects a table the transaction
// did not declare.
type WriteTx struct {
	store   *Store
	tx      *bolt.Tx
	allowed map[string]bool
}

// View runs fn inside a read-only transaction.
func (s *Store) View(fn func(*ReadTx) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&ReadTx{store: s, tx: tx})
	})
}

// Update runs fn inside a write transaction that may only touch the
// named tables. Table names are the exported Table* constants.
func (s *Store) Update(tables []string, fn func(*WriteTx) error) error {
	allowed := make(map[string]bool, len(tables))
	for _, t := range tables {
		allowed[t] = true
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&WriteTx{store: s, tx: tx, allowed: allowed})
	})
}

// Begin starts a long-lived read transaction the caller must Discard.
func (s *Store) Begin() (*ReadTx, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, err
	}
	return &ReadTx{store: s, tx: tx}, nil
}

// Renew discards the current snapshot and begins a fresh one,
// releasing bbolt's retained mmap reference to the previous snapshot.
func (r *ReadTx) Renew() error {
	if err := r.tx.Rollback(); err != nil {
		return err
	}
	tx, err := r.store.db.Begin(false)
	if err != nil {
		return err
	}
	r.tx = tx
	return nil
}

// Discard ends a long-lived read transaction started with Begin.
func (r *ReadTx) Discard() error {
	return r.tx.Rollback()
}

func (r *ReadTx) bucket(name []byte) *bolt.Bucket {
	return r.tx.Bucket(name)
}

// Table name constants, used by callers to build the WriteTx.Update
// table-declaration argument.
const (
	TableAccounts         = "accounts"
	TableBlocks           = "blocks"
	TablePending          = "pending"
	TableConfirmationHeight = "confirmation_height"
	TableUnchecked        = "unchecked"
	TableVote             = "vote"
	TableOnlineWeight     = "online_weight"
	TablePeers            = "peers"
	TableMeta             = "meta"
)

var tableBucket = map[string][]byte{
	TableAccounts:           bucketAccounts,
	TableBlocks:             bucketBlocks,
	TablePending:            bucketPending,
	TableConfirmationHeight: bucketConfirmHeight,
	TableUnchecked:          bucketUnchecked,
	TableVote:               bucketVote,
	TableOnlineWeight:       bucketOnlineWeight,
	TablePeers:              bucketPeers,
	TableMeta:               bucketMeta,
}

// bucket returns the bucket for table, failing if the transaction
// didn't declare it.
func (w *WriteTx) bucket(table string) (*bolt.Bucket, error) {
	if !w.allowed[table] {
		return nil, fmt.Errorf("store: write tx did not declare table %q", table)
	}
	name, ok := tableBucket[table]
	if !ok {
		return nil, fmt.Errorf("store: unknown table %q", table)
	}
	return w.tx.Bucket(name), nil
}
