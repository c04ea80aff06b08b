// Package store implements the ledger's transactional key/value layer
// on top of go.etcd.io/bbolt. Every logical table becomes one bbolt
// bucket; composite keys are big-endian byte concatenations so that
// bbolt's native lexicographic iteration order on keys doubles as the
// ordering prefix range scans rely on.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Options configures Open.
type Options struct {
	// Path is the bbolt file path.
	Path string
	// BackupBeforeUpgrade, when true, snapshots Path to a timestamped
	// file next to it before running any schema migration.
	BackupBeforeUpgrade bool
	// Timeout bounds how long Open waits for the bbolt file lock.
	Timeout time.Duration
}

// InitError is returned for conditions that prevent a store from being
// usable at all.
type InitError struct {
	Path    string
	Reason  string
	Version uint32
}

func (e *InitError) Error() string {
	if e.Version != 0 {
		return fmt.Sprintf("store: init %s: %s (version %d)", e.Path, e.Reason, e.Version)
	}
	return fmt.Sprintf("store: init %s: %s", e.Path, e.Reason)
}

// Store is the handle returned by Open. It is safe for concurrent use
// by multiple goroutines; bbolt itself serializes writers.
type Store struct {
	path   string
	db     *bolt.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the store at opts.Path, creates any
// missing buckets, and runs schema migrations up to CurrentSchemaVersion.
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Path == "" {
		return nil, &InitError{Reason: "path required"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, &InitError{Path: opts.Path, Reason: err.Error()}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	bdb, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, &InitError{Path: opts.Path, Reason: fmt.Sprintf("open bbolt: %v", err)}
	}

	s := &Store{path: opts.Path, db: bdb, logger: logger}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, &InitError{Path: opts.Path, Reason: err.Error()}
	}

	if err := s.migrate(opts.BackupBeforeUpgrade); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying bbolt file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the bbolt file path this store was opened from.
func (s *Store) Path() string { return s.path }
