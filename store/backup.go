package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// backupPath builds the "data_backup_<UTC>.<ext>" snapshot name.
func backupPath(dbPath string) string {
	ext := filepath.Ext(dbPath)
	dir := filepath.Dir(dbPath)
	ts := time.Now().UTC().Format("20060102T150405Z")
	return filepath.Join(dir, fmt.Sprintf("data_backup_%s%s", ts, ext))
}

// snapshotBeforeUpgrade copies the current bbolt file to a timestamped
// backup: write to a temp name in the same directory, fsync, rename,
// fsync the directory.
func snapshotBeforeUpgrade(dbPath string) error {
	src, err := os.Open(dbPath) // #nosec G304 -- dbPath is the operator-configured store path.
	if err != nil {
		return fmt.Errorf("store: backup: open source: %w", err)
	}
	defer src.Close()

	dst := backupPath(dbPath)
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("store: backup: open tmp: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return fmt.Errorf("store: backup: copy: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("store: backup: fsync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: backup: close tmp: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("store: backup: rename: %w", err)
	}

	dir, err := os.Open(filepath.Dir(dbPath))
	if err != nil {
		return fmt.Errorf("store: backup: open dir: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("store: backup: fsync dir: %w", err)
	}
	return nil
}
