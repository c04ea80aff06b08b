package ledger

import (
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
)

// RollbackError reports that a rollback could not proceed — most
// commonly because a descendant is cemented. Refusing before any
// mutation is a routine, recoverable condition, unlike an invariant
// violation detected mid-removal.
type RollbackError struct {
	Hash blocks.Hash
	Msg  string
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("ledger: rollback %x: %s", e.Hash, e.Msg)
}

// chainEntry is one block on the range being rolled back, in
// application (ascending height) order.
type chainEntry struct {
	hash blocks.Hash
	blk  blocks.Block
	det  blocks.Details
}

// Rollback removes hash and every descendant on its chain, returning
// the removed blocks in application order. It refuses
// (leaving state unchanged) if any block in the to-be-removed range is
// at or below the account's confirmation height, or if a removed
// send's pending entry was already consumed by a receive on another
// chain — cascading that cross-chain receive's own rollback is out of
// scope for this module, which excludes the election machinery that
// decides which side of such a conflict survives.
func (l *Ledger) Rollback(tx *store.WriteTx, hash blocks.Hash) ([]blocks.Block, error) {
	startSb, ok, err := tx.GetSideband(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &RollbackError{Hash: hash, Msg: "block not found"}
	}
	account := startSb.Account

	info, ok, err := tx.GetAccount(account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &RollbackError{Hash: hash, Msg: "account not found"}
	}

	ch, _, err := tx.GetConfirmationHeight(account)
	if err != nil {
		return nil, err
	}
	if startSb.Height <= ch.Height {
		return nil, &RollbackError{Hash: hash, Msg: "block is cemented"}
	}

	chain, err := collectChain(tx, hash)
	if err != nil {
		return nil, err
	}

	var newHead blocks.Hash
	var newBalance blocks.Amount
	var newRep blocks.Account
	var newBlockCount uint64
	var newEpoch uint8
	isOpen := hash == info.OpenBlock

	if !isOpen {
		prev := chain[0].blk.Previous()
		prevSb, ok, err := tx.GetSideband(prev)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("ledger: rollback: previous block %x of %x missing", prev, hash)
		}
		newHead = prev
		newBalance = prevSb.Balance
		newBlockCount = prevSb.Height
		newEpoch = prevSb.Details.Epoch
		rep, err := representativeAsOf(tx, prev)
		if err != nil {
			return nil, err
		}
		newRep = rep
	}

	// Remove descendant-first (reverse chain order), undoing each
	// block's application effects.
	for i := len(chain) - 1; i >= 0; i-- {
		if err := unapplyOne(tx, account, chain[i]); err != nil {
			return nil, err
		}
	}

	if isOpen {
		l.cache.adjust(info.Representative, info.Balance, true)
		if err := tx.DelAccount(account); err != nil {
			return nil, err
		}
	} else {
		if newRep != info.Representative {
			l.cache.adjust(info.Representative, info.Balance, true)
			l.cache.adjust(newRep, newBalance, false)
		} else if newBalance.Cmp(info.Balance) != 0 {
			if newBalance.Cmp(info.Balance) > 0 {
				delta, _ := newBalance.Sub(info.Balance)
				l.cache.adjust(newRep, delta, false)
			} else {
				delta, _ := info.Balance.Sub(newBalance)
				l.cache.adjust(newRep, delta, true)
			}
		}
		newInfo := store.AccountInfo{
			Head: newHead, Representative: newRep, OpenBlock: info.OpenBlock,
			Balance: newBalance, ModifiedAt: info.ModifiedAt, BlockCount: newBlockCount, Epoch: newEpoch,
		}
		if err := tx.PutAccount(account, newInfo); err != nil {
			return nil, err
		}
		prevSb, _, err := tx.GetSideband(newHead)
		if err != nil {
			return nil, err
		}
		if err := tx.PutSideband(newHead, stampSuccessor(prevSb, blocks.ZeroHash)); err != nil {
			return nil, err
		}
	}

	removed := make([]blocks.Block, len(chain))
	for i, e := range chain {
		removed[i] = e.blk
	}
	return removed, nil
}

// collectChain walks forward from hash to the account's head via
// successor pointers, in application order.
func collectChain(tx *store.WriteTx, hash blocks.Hash) ([]chainEntry, error) {
	var chain []chainEntry
	cur := hash
	for {
		blk, sb, ok, err := tx.GetBlock(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("ledger: rollback: block %x disappeared mid-walk", cur)
		}
		chain = append(chain, chainEntry{hash: cur, blk: blk, det: sb.Details})
		if sb.Successor == blocks.ZeroHash {
			return chain, nil
		}
		cur = sb.Successor
	}
}

// representativeOf returns the representative a block explicitly
// carries, if any (open/change/state variants).
func representativeOf(blk blocks.Block) (blocks.Account, bool) {
	switch b := blk.(type) {
	case *blocks.OpenBlock:
		return b.Representative, true
	case *blocks.ChangeBlock:
		return b.Representative, true
	case *blocks.StateBlock:
		return b.Representative, true
	default:
		return blocks.ZeroAccount, false
	}
}

// representativeAsOf walks backward from hash along Previous() until
// it finds the nearest representative-setting block (guaranteed to
// terminate at the chain's open block), returning the representative
// in effect at hash.
func representativeAsOf(tx *store.WriteTx, hash blocks.Hash) (blocks.Account, error) {
	cur := hash
	for {
		blk, _, ok, err := tx.GetBlock(cur)
		if err != nil {
			return blocks.ZeroAccount, err
		}
		if !ok {
			return blocks.ZeroAccount, fmt.Errorf("ledger: rollback: block %x missing during representative walk", cur)
		}
		if r, ok := representativeOf(blk); ok {
			return r, nil
		}
		cur = blk.Previous()
	}
}

// unapplyOne reverses the application effects of one block.
func unapplyOne(tx *store.WriteTx, account blocks.Account, e chainEntry) error {
	switch b := e.blk.(type) {
	case *blocks.SendBlock:
		if _, ok, err := tx.GetPending(b.Destination, e.hash); err != nil {
			return err
		} else if !ok {
			return &RollbackError{Hash: e.hash, Msg: "send's pending entry already consumed elsewhere"}
		}
		if err := tx.DelPending(b.Destination, e.hash); err != nil {
			return err
		}
	case *blocks.ReceiveBlock:
		if err := restorePendingFromSource(tx, account, b.Source); err != nil {
			return err
		}
	case *blocks.StateBlock:
		if e.det.IsSend {
			dest := blocks.Account(b.Link)
			if _, ok, err := tx.GetPending(dest, e.hash); err != nil {
				return err
			} else if !ok {
				return &RollbackError{Hash: e.hash, Msg: "send's pending entry already consumed elsewhere"}
			}
			if err := tx.DelPending(dest, e.hash); err != nil {
				return err
			}
		} else if e.det.IsReceive {
			if err := restorePendingFromSource(tx, account, b.Link); err != nil {
				return err
			}
		}
	}
	return tx.DelBlock(e.hash)
}

// restorePendingFromSource recreates the pending entry a receive
// consumed, recomputed from the still-present source block's
// sideband.
func restorePendingFromSource(tx *store.WriteTx, destination blocks.Account, source blocks.Hash) error {
	sourceBlk, sourceSb, ok, err := tx.GetBlock(source)
	if err != nil {
		return err
	}
	if !ok {
		return &RollbackError{Hash: source, Msg: "receive's source block missing"}
	}
	var prevBalance blocks.Amount
	if sourceBlk.Previous() != blocks.ZeroHash {
		prevSb, ok, err := tx.GetSideband(sourceBlk.Previous())
		if err != nil {
			return err
		}
		if ok {
			prevBalance = prevSb.Balance
		}
	}
	delta, err := prevBalance.Sub(sourceSb.Balance)
	if err != nil {
		return fmt.Errorf("ledger: rollback: source %x is not a send", source)
	}
	return tx.PutPending(destination, source, store.PendingInfo{
		SourceAccount: sourceSb.Account,
		Amount:        delta,
		Epoch:         sourceSb.Details.Epoch,
	})
}
