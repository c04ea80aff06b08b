package store

import (
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/sideband"
)

// A stored block record is blocks.Marshal(block) with sideband.Encode
// appended; the wire protocol never carries sidebands, so they exist
// only here, recomputed on application. The block-type byte
// (wire preamble[1]) tells Split how many trailing sideband bytes to
// peel off before the remaining bytes are handed to blocks.Unmarshal.

// decodeStoredBlock splits a raw blocks bucket value into its block
// bytes, parsed Block, and Sideband.
func decodeStoredBlock(raw []byte) (blk blocks.Block, blockBytes []byte, sb sideband.Sideband, err error) {
	if len(raw) < 2 {
		return nil, nil, sideband.Sideband{}, fmt.Errorf("store: stored block record truncated")
	}
	t := blocks.Type(raw[1])
	blockBytes, sb, err = sideband.Split(t, raw)
	if err != nil {
		return nil, nil, sideband.Sideband{}, err
	}
	blk, err = blocks.Unmarshal(blockBytes)
	if err != nil {
		return nil, nil, sideband.Sideband{}, err
	}
	return blk, blockBytes, sb, nil
}

func encodeStoredBlock(blockBytes []byte, t blocks.Type, sb sideband.Sideband) []byte {
	return sideband.Append(blockBytes, t, sb)
}

// GetBlock returns the parsed block and its sideband for hash.
func (r *ReadTx) GetBlock(hash blocks.Hash) (blk blocks.Block, sb sideband.Sideband, ok bool, err error) {
	raw := r.bucket(bucketBlocks).Get(hash[:])
	if raw == nil {
		return nil, sideband.Sideband{}, false, nil
	}
	blk, _, sb, err = decodeStoredBlock(raw)
	if err != nil {
		return nil, sideband.Sideband{}, false, err
	}
	return blk, sb, true, nil
}

// GetSideband returns only the sideband for hash, without parsing the
// block body — the common case for chain walks.
func (r *ReadTx) GetSideband(hash blocks.Hash) (sb sideband.Sideband, ok bool, err error) {
	raw := r.bucket(bucketBlocks).Get(hash[:])
	if raw == nil {
		return sideband.Sideband{}, false, nil
	}
	_, _, sb, err = decodeStoredBlock(raw)
	return sb, err == nil, err
}

// ExistsBlock reports whether hash is present.
func (r *ReadTx) ExistsBlock(hash blocks.Hash) bool {
	return r.bucket(bucketBlocks).Get(hash[:]) != nil
}

// GetBlock (write-transaction variant) returns the parsed block and
// its sideband for hash.
func (w *WriteTx) GetBlock(hash blocks.Hash) (blk blocks.Block, sb sideband.Sideband, ok bool, err error) {
	b, err := w.bucket(TableBlocks)
	if err != nil {
		return nil, sideband.Sideband{}, false, err
	}
	raw := b.Get(hash[:])
	if raw == nil {
		return nil, sideband.Sideband{}, false, nil
	}
	blk, _, sb, err = decodeStoredBlock(raw)
	if err != nil {
		return nil, sideband.Sideband{}, false, err
	}
	return blk, sb, true, nil
}

// GetSideband (write-transaction variant) returns only the sideband.
func (w *WriteTx) GetSideband(hash blocks.Hash) (sb sideband.Sideband, ok bool, err error) {
	b, err := w.bucket(TableBlocks)
	if err != nil {
		return sideband.Sideband{}, false, err
	}
	raw := b.Get(hash[:])
	if raw == nil {
		return sideband.Sideband{}, false, nil
	}
	_, _, sb, err = decodeStoredBlock(raw)
	return sb, err == nil, err
}

// ExistsBlock (write-transaction variant) reports whether hash is present.
func (w *WriteTx) ExistsBlock(hash blocks.Hash) (bool, error) {
	b, err := w.bucket(TableBlocks)
	if err != nil {
		return false, err
	}
	return b.Get(hash[:]) != nil, nil
}

// PutBlock inserts a new block+sideband and bumps the cached block
// count. Callers (the ledger) are responsible for having already
// checked for "old" (ProcessResult) before calling this.
func (w *WriteTx) PutBlock(hash blocks.Hash, blockBytes []byte, t blocks.Type, sb sideband.Sideband) error {
	b, err := w.bucket(TableBlocks)
	if err != nil {
		return err
	}
	if err := b.Put(hash[:], encodeStoredBlock(blockBytes, t, sb)); err != nil {
		return err
	}
	return w.addBlockCount(1)
}

// PutSideband rewrites only the sideband half of an existing stored
// block record (used to stamp a block's successor once the next block
// on its chain is applied).
func (w *WriteTx) PutSideband(hash blocks.Hash, sb sideband.Sideband) error {
	b, err := w.bucket(TableBlocks)
	if err != nil {
		return err
	}
	raw := b.Get(hash[:])
	if raw == nil {
		return fmt.Errorf("store: put sideband: block %x not found", hash)
	}
	_, blockBytes, _, err := decodeStoredBlock(raw)
	if err != nil {
		return err
	}
	t := blocks.Type(raw[1])
	return b.Put(hash[:], encodeStoredBlock(blockBytes, t, sb))
}

// DelBlock removes a block entirely (rollback path).
func (w *WriteTx) DelBlock(hash blocks.Hash) error {
	b, err := w.bucket(TableBlocks)
	if err != nil {
		return err
	}
	if b.Get(hash[:]) == nil {
		return nil
	}
	if err := b.Delete(hash[:]); err != nil {
		return err
	}
	return w.addBlockCount(-1)
}

// CountBlocks returns the number of rows in the blocks table via a
// direct bucket scan.
func (r *ReadTx) CountBlocks() int {
	return r.bucket(bucketBlocks).Stats().KeyN
}
