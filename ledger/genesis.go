package ledger

import (
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/sideband"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
)

// GenesisTables is the table set SetupGenesis writes.
var GenesisTables = []string{
	store.TableAccounts, store.TableBlocks, store.TableConfirmationHeight, store.TableMeta,
}

// SetupGenesis installs the genesis open block directly: genesis has no
// pending entry to consume and no prior state to validate against, so
// it bypasses Process. The block is written with the full supply as its
// balance, the genesis account delegated to the block's representative, and confirmation
// height 1 — genesis is cemented by definition, which is also what
// anchors every later cementation walk (the walk stops at the deepest
// already-cemented ancestor). Idempotent: a store that already holds
// the block is left untouched.
func (l *Ledger) SetupGenesis(tx *store.WriteTx, gen *blocks.OpenBlock, amount blocks.Amount, now uint64) error {
	hash := blocks.HashOf(gen)
	exists, err := tx.ExistsBlock(hash)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if gen.Source != blocks.Hash(gen.AccountField) {
		return fmt.Errorf("ledger: genesis open block's source must be its own account")
	}

	raw, err := blocks.Marshal(gen)
	if err != nil {
		return err
	}
	sb := sideband.Sideband{
		Account:   gen.AccountField,
		Successor: blocks.ZeroHash,
		Balance:   amount,
		Height:    1,
		Timestamp: now,
	}
	if err := tx.PutBlock(hash, raw, blocks.TypeOpen, sb); err != nil {
		return err
	}
	info := store.AccountInfo{
		Head:           hash,
		Representative: gen.Representative,
		OpenBlock:      hash,
		Balance:        amount,
		ModifiedAt:     now,
		BlockCount:     1,
		Epoch:          0,
	}
	if err := tx.PutAccount(gen.AccountField, info); err != nil {
		return err
	}
	if err := tx.CementTo(gen.AccountField, 1, hash); err != nil {
		return err
	}
	l.cache.adjust(gen.Representative, amount, false)
	return nil
}
