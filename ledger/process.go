package ledger

import (
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/sideband"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
)

// burnAccount is the designated zero/burn account.
var burnAccount blocks.Account

// Process validates blk against tx and, on success, applies it. now
// is the wall-clock timestamp stamped into the resulting sideband.
func (l *Ledger) Process(tx *store.WriteTx, blk blocks.Block, now uint64) (*Result, error) {
	hash := blocks.HashOf(blk)

	exists, err := tx.ExistsBlock(hash)
	if err != nil {
		return nil, err
	}
	if exists {
		return result(Old, ""), nil
	}

	switch b := blk.(type) {
	case *blocks.OpenBlock:
		return l.processOpen(tx, b, hash, now)
	case *blocks.SendBlock:
		return l.processLegacy(tx, b, hash, now, blocks.TypeSend)
	case *blocks.ReceiveBlock:
		return l.processLegacy(tx, b, hash, now, blocks.TypeReceive)
	case *blocks.ChangeBlock:
		return l.processLegacy(tx, b, hash, now, blocks.TypeChange)
	case *blocks.StateBlock:
		return l.processState(tx, b, hash, now)
	default:
		return nil, fmt.Errorf("ledger: process: unknown block type %T", blk)
	}
}

// verifyWork checks rule 2 against the resolved details.
func (l *Ledger) verifyWork(blk blocks.Block, details blocks.Details) *Result {
	threshold := blocks.ThresholdFor(l.cfg.Thresholds, details)
	if !blocks.WorkValid(blk.Work(), blk.Root(), threshold) {
		return result(InsufficientWork, "")
	}
	return nil
}

// processOpen validates and applies the open variant.
func (l *Ledger) processOpen(tx *store.WriteTx, b *blocks.OpenBlock, hash blocks.Hash, now uint64) (*Result, error) {
	if b.AccountField == burnAccount {
		return result(OpenedBurnAccount, ""), nil
	}
	if !blocks.VerifySignature(b, b.AccountField) {
		return result(BadSignature, ""), nil
	}

	_, exists, err := tx.GetAccount(b.AccountField)
	if err != nil {
		return nil, err
	}
	if exists {
		return result(Fork, "account already opened"), nil
	}

	pend, ok, err := tx.GetPending(b.AccountField, b.Source)
	if err != nil {
		return nil, err
	}
	if !ok {
		sourceExists, err := tx.ExistsBlock(b.Source)
		if err != nil {
			return nil, err
		}
		if !sourceExists {
			return result(GapSource, ""), nil
		}
		return result(Unreceivable, ""), nil
	}

	details := blocks.Details{Epoch: pend.Epoch, IsReceive: true}
	if r := l.verifyWork(b, details); r != nil {
		return r, nil
	}

	if err := tx.DelPending(b.AccountField, b.Source); err != nil {
		return nil, err
	}

	sb := sideband.Sideband{
		Account:   b.AccountField,
		Successor: blocks.ZeroHash,
		Balance:   pend.Amount,
		Height:    1,
		Timestamp: now,
		Details:   details,
	}
	raw, err := blocks.Marshal(b)
	if err != nil {
		return nil, err
	}
	if err := tx.PutBlock(hash, raw, blocks.TypeOpen, sb); err != nil {
		return nil, err
	}

	info := store.AccountInfo{
		Head:           hash,
		Representative: b.Representative,
		OpenBlock:      hash,
		Balance:        pend.Amount,
		ModifiedAt:     now,
		BlockCount:     1,
		Epoch:          pend.Epoch,
	}
	if err := tx.PutAccount(b.AccountField, info); err != nil {
		return nil, err
	}
	l.cache.adjust(b.Representative, pend.Amount, false)
	return result(Progress, ""), nil
}

// processLegacy validates and applies the send/receive/change
// variants, which all share the "must follow the account's current
// head" shape and derive their signer from chain ownership.
func (l *Ledger) processLegacy(tx *store.WriteTx, b blocks.Block, hash blocks.Hash, now uint64, t blocks.Type) (*Result, error) {
	prevBlk, prevSb, ok, err := tx.GetBlock(b.Previous())
	if err != nil {
		return nil, err
	}
	if !ok {
		return result(GapPrevious, ""), nil
	}
	account := prevSb.Account
	if _, isState := prevBlk.(*blocks.StateBlock); isState {
		return result(BlockPosition, "legacy block may not follow a state-block head"), nil
	}

	info, ok, err := tx.GetAccount(account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("ledger: account %x missing account_info for existing head", account)
	}
	if info.Head != b.Previous() {
		return result(Fork, "a different block already occupies this chain position"), nil
	}

	if !blocks.VerifySignature(b, account) {
		return result(BadSignature, ""), nil
	}

	var newBalance blocks.Amount
	var details blocks.Details
	var pendingToInsert *store.PendingInfo
	var pendingDest blocks.Account
	var pendingSrcHash blocks.Hash
	var newRep = info.Representative

	switch v := b.(type) {
	case *blocks.SendBlock:
		// v.Balance is the resulting (post-send) balance, not a delta.
		if v.Balance.Cmp(info.Balance) > 0 {
			return result(NegativeSpend, ""), nil
		}
		delta, err := info.Balance.Sub(v.Balance)
		if err != nil {
			return nil, err
		}
		newBalance = v.Balance
		details = blocks.Details{Epoch: info.Epoch, IsSend: true}
		pendingToInsert = &store.PendingInfo{SourceAccount: account, Amount: delta, Epoch: info.Epoch}
		pendingDest = v.Destination
		pendingSrcHash = hash
	case *blocks.ReceiveBlock:
		pend, ok, err := tx.GetPending(account, v.Source)
		if err != nil {
			return nil, err
		}
		if !ok {
			sourceExists, err := tx.ExistsBlock(v.Source)
			if err != nil {
				return nil, err
			}
			if !sourceExists {
				return result(GapSource, ""), nil
			}
			return result(Unreceivable, ""), nil
		}
		sum, err := info.Balance.Add(pend.Amount)
		if err != nil {
			return nil, err
		}
		newBalance = sum
		details = blocks.Details{Epoch: info.Epoch, IsReceive: true}
		if err := tx.DelPending(account, v.Source); err != nil {
			return nil, err
		}
	case *blocks.ChangeBlock:
		newBalance = info.Balance
		newRep = v.Representative
		details = blocks.Details{Epoch: info.Epoch}
	default:
		return nil, fmt.Errorf("ledger: processLegacy: unexpected type %T", b)
	}

	if r := l.verifyWork(b, details); r != nil {
		return r, nil
	}

	raw, err := blocks.Marshal(b)
	if err != nil {
		return nil, err
	}
	sb := sideband.Sideband{
		Account:   account,
		Successor: blocks.ZeroHash,
		Balance:   newBalance,
		Height:    prevSb.Height + 1,
		Timestamp: now,
		Details:   details,
	}
	if err := tx.PutBlock(hash, raw, t, sb); err != nil {
		return nil, err
	}
	if err := tx.PutSideband(b.Previous(), stampSuccessor(prevSb, hash)); err != nil {
		return nil, err
	}

	if pendingToInsert != nil {
		if err := tx.PutPending(pendingDest, pendingSrcHash, *pendingToInsert); err != nil {
			return nil, err
		}
	}

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

	info.Head = hash
	info.Representative = newRep
	info.Balance = newBalance
	info.ModifiedAt = now
	info.BlockCount = prevSb.Height + 1
	if err := tx.PutAccount(account, info); err != nil {
		return nil, err
	}
	return result(Progress, ""), nil
}

// processState validates and applies a state block, resolving Link's
// polymorphic meaning from the balance delta and the epoch-link set.
func (l *Ledger) processState(tx *store.WriteTx, b *blocks.StateBlock, hash blocks.Hash, now uint64) (*Result, error) {
	var info store.AccountInfo
	var hasPrev bool
	var prevHeight uint64
	var prevBalance blocks.Amount
	var prevEpoch uint8

	if b.PreviousField == blocks.ZeroHash {
		if b.AccountField == burnAccount {
			return result(OpenedBurnAccount, ""), nil
		}
		_, exists, err := tx.GetAccount(b.AccountField)
		if err != nil {
			return nil, err
		}
		if exists {
			return result(Fork, "account already opened"), nil
		}
		hasPrev = false
		prevHeight = 0
		prevBalance = blocks.Amount{}
		prevEpoch = 0
	} else {
		existing, exists, err := tx.GetAccount(b.AccountField)
		if err != nil {
			return nil, err
		}
		if !exists {
			return result(GapPrevious, ""), nil
		}
		if existing.Head != b.PreviousField {
			prevExists, err := tx.ExistsBlock(b.PreviousField)
			if err != nil {
				return nil, err
			}
			if !prevExists {
				return result(GapPrevious, ""), nil
			}
			return result(Fork, "a different block already occupies this chain position"), nil
		}
		info = existing
		hasPrev = true
		prevHeight = existing.BlockCount
		prevBalance = existing.Balance
		prevEpoch = existing.Epoch
	}

	// Resolve the operation implied by link + balance delta.
	epochTarget, isEpochLink := l.cfg.epochForLink(b.Link)
	cmp := b.Balance.Cmp(prevBalance)

	var details blocks.Details
	var signer blocks.Account
	var pendingDel *blocks.Hash
	var newEpoch = prevEpoch

	switch {
	case b.Link == blocks.ZeroHash:
		details = blocks.Details{Epoch: prevEpoch}
		signer = b.AccountField
	case isEpochLink && cmp == 0:
		if epochTarget <= prevEpoch {
			return result(BlockPosition, "epoch may not move backward or repeat"), nil
		}
		details = blocks.Details{Epoch: epochTarget, IsEpoch: true}
		signer = l.cfg.EpochSigner
		newEpoch = epochTarget
	case cmp < 0:
		details = blocks.Details{Epoch: prevEpoch, IsSend: true}
		signer = b.AccountField
	default:
		// Balance unchanged or increased with a non-epoch link: a
		// receive of Link. A zero delta can never match a pending
		// amount, so that shape resolves to gap_source, unreceivable,
		// or balance_mismatch below.
		pend, ok, err := tx.GetPending(b.AccountField, b.Link)
		if err != nil {
			return nil, err
		}
		if !ok {
			srcExists, err := tx.ExistsBlock(b.Link)
			if err != nil {
				return nil, err
			}
			if !srcExists {
				return result(GapSource, ""), nil
			}
			return result(Unreceivable, ""), nil
		}
		delta, err := b.Balance.Sub(prevBalance)
		if err != nil {
			return nil, err
		}
		if delta.Cmp(pend.Amount) != 0 {
			return result(BalanceMismatch, ""), nil
		}
		details = blocks.Details{Epoch: prevEpoch, IsReceive: true}
		signer = b.AccountField
		link := b.Link
		pendingDel = &link
	}

	if !blocks.VerifySignature(b, signer) {
		return result(BadSignature, ""), nil
	}
	if r := l.verifyWork(b, details); r != nil {
		return r, nil
	}

	if !hasPrev {
		height := uint64(1)
		raw, err := blocks.Marshal(b)
		if err != nil {
			return nil, err
		}
		sb := sideband.Sideband{Account: b.AccountField, Balance: b.Balance, Height: height, Timestamp: now, Details: details}
		if err := tx.PutBlock(hash, raw, blocks.TypeState, sb); err != nil {
			return nil, err
		}
		if pendingDel != nil {
			if err := tx.DelPending(b.AccountField, *pendingDel); err != nil {
				return nil, err
			}
		}
		newInfo := store.AccountInfo{
			Head: hash, Representative: b.Representative, OpenBlock: hash,
			Balance: b.Balance, ModifiedAt: now, BlockCount: height, Epoch: newEpoch,
		}
		if err := tx.PutAccount(b.AccountField, newInfo); err != nil {
			return nil, err
		}
		l.cache.adjust(b.Representative, b.Balance, false)
		return result(Progress, ""), nil
	}

	height := prevHeight + 1
	raw, err := blocks.Marshal(b)
	if err != nil {
		return nil, err
	}
	sb := sideband.Sideband{Account: b.AccountField, Balance: b.Balance, Height: height, Timestamp: now, Details: details}
	if err := tx.PutBlock(hash, raw, blocks.TypeState, sb); err != nil {
		return nil, err
	}
	if prevSb, ok, err := tx.GetSideband(b.PreviousField); err == nil && ok {
		if err := tx.PutSideband(b.PreviousField, stampSuccessor(prevSb, hash)); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if pendingDel != nil {
		if err := tx.DelPending(b.AccountField, *pendingDel); err != nil {
			return nil, err
		}
	}
	if details.IsSend {
		delta, err := prevBalance.Sub(b.Balance)
		if err != nil {
			return nil, err
		}
		if err := tx.PutPending(blocks.Account(b.Link), hash, store.PendingInfo{SourceAccount: b.AccountField, Amount: delta, Epoch: newEpoch}); err != nil {
			return nil, err
		}
	}

	if b.Representative != info.Representative {
		l.cache.adjust(info.Representative, prevBalance, true)
		l.cache.adjust(b.Representative, b.Balance, false)
	} else if b.Balance.Cmp(prevBalance) != 0 {
		if b.Balance.Cmp(prevBalance) > 0 {
			delta, _ := b.Balance.Sub(prevBalance)
			l.cache.adjust(b.Representative, delta, false)
		} else {
			delta, _ := prevBalance.Sub(b.Balance)
			l.cache.adjust(b.Representative, delta, true)
		}
	}

	info.Head = hash
	info.Representative = b.Representative
	info.Balance = b.Balance
	info.ModifiedAt = now
	info.BlockCount = height
	info.Epoch = newEpoch
	if err := tx.PutAccount(b.AccountField, info); err != nil {
		return nil, err
	}
	return result(Progress, ""), nil
}

func stampSuccessor(sb sideband.Sideband, successor blocks.Hash) sideband.Sideband {
	sb.Successor = successor
	return sb
}

