package store

import (
	"encoding/binary"

	bolt "go.etcd.io/bbolt"
)

func getUint64(b *bolt.Bucket, key []byte) uint64 {
	v := b.Get(key)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func putUint64(b *bolt.Bucket, key []byte, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return b.Put(key, buf[:])
}

func getUint32(b *bolt.Bucket, key []byte) uint32 {
	v := b.Get(key)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v)
}

func putUint32(b *bolt.Bucket, key []byte, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return b.Put(key, buf[:])
}

// SchemaVersion returns the schema version recorded in meta, or 0 for
// a freshly created store that has never been versioned.
func (s *Store) SchemaVersion() (uint32, error) {
	var v uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		v = getUint32(tx.Bucket(bucketMeta), metaKeySchemaVersion)
		return nil
	})
	return v, err
}

// Counters holds the meta table's cached aggregate counts.
type Counters struct {
	BlockCount     uint64
	CementedCount  uint64
	AccountCount   uint64
	UncheckedCount uint64
}

// Counters reads the current cached counters.
func (s *Store) Counters() (Counters, error) {
	var c Counters
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		c.BlockCount = getUint64(b, metaKeyBlockCount)
		c.CementedCount = getUint64(b, metaKeyCementedCount)
		c.AccountCount = getUint64(b, metaKeyAccountCount)
		c.UncheckedCount = getUint64(b, metaKeyUncheckedCount)
		return nil
	})
	return c, err
}

func (w *WriteTx) metaBucket() (*bolt.Bucket, error) {
	return w.bucket(TableMeta)
}

func (w *WriteTx) addBlockCount(delta int64) error {
	b, err := w.metaBucket()
	if err != nil {
		return err
	}
	return putUint64(b, metaKeyBlockCount, addClamped(getUint64(b, metaKeyBlockCount), delta))
}

func (w *WriteTx) addCementedCount(delta int64) error {
	b, err := w.metaBucket()
	if err != nil {
		return err
	}
	return putUint64(b, metaKeyCementedCount, addClamped(getUint64(b, metaKeyCementedCount), delta))
}

func (w *WriteTx) addAccountCount(delta int64) error {
	b, err := w.metaBucket()
	if err != nil {
		return err
	}
	return putUint64(b, metaKeyAccountCount, addClamped(getUint64(b, metaKeyAccountCount), delta))
}

func (w *WriteTx) addUncheckedCount(delta int64) error {
	b, err := w.metaBucket()
	if err != nil {
		return err
	}
	return putUint64(b, metaKeyUncheckedCount, addClamped(getUint64(b, metaKeyUncheckedCount), delta))
}

func addClamped(v uint64, delta int64) uint64 {
	if delta < 0 && uint64(-delta) > v {
		return 0
	}
	return uint64(int64(v) + delta)
}
