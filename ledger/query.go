package ledger

import (
	"fmt"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
)

// Latest returns account's head hash.
func (l *Ledger) Latest(tx *store.ReadTx, account blocks.Account) (blocks.Hash, bool, error) {
	info, ok, err := tx.GetAccount(account)
	if err != nil || !ok {
		return blocks.ZeroHash, false, err
	}
	return info.Head, true, nil
}

// Balance returns the post-application balance of the block at hash.
func (l *Ledger) Balance(tx *store.ReadTx, hash blocks.Hash) (blocks.Amount, bool, error) {
	sb, ok, err := tx.GetSideband(hash)
	if err != nil || !ok {
		return blocks.Amount{}, false, err
	}
	return sb.Balance, true, nil
}

// Amount returns the value moved by the block at hash: for a send,
// the amount debited; for a receive, the amount credited; zero for
// change/epoch blocks.
func (l *Ledger) Amount(tx *store.ReadTx, hash blocks.Hash) (blocks.Amount, error) {
	blk, sb, ok, err := tx.GetBlock(hash)
	if err != nil || !ok {
		return blocks.Amount{}, err
	}
	// Legacy sidebands carry no Details; their operation follows from the type.
	isSend, isReceive := sb.Details.IsSend, sb.Details.IsReceive
	switch blk.(type) {
	case *blocks.SendBlock:
		isSend = true
	case *blocks.ReceiveBlock, *blocks.OpenBlock:
		isReceive = true
	}
	if !isSend && !isReceive {
		return blocks.Amount{}, nil
	}
	prev := blk.Previous()
	if prev == blocks.ZeroHash {
		return sb.Balance, nil
	}
	prevSb, ok, err := tx.GetSideband(prev)
	if err != nil || !ok {
		return blocks.Amount{}, err
	}
	if sb.Balance.Cmp(prevSb.Balance) >= 0 {
		delta, err := sb.Balance.Sub(prevSb.Balance)
		return delta, err
	}
	delta, err := prevSb.Balance.Sub(sb.Balance)
	return delta, err
}

// Account resolves the signer who owns the block at hash.
func (l *Ledger) Account(tx *store.ReadTx, hash blocks.Hash) (blocks.Account, bool, error) {
	sb, ok, err := tx.GetSideband(hash)
	if err != nil || !ok {
		return blocks.ZeroAccount, false, err
	}
	return sb.Account, true, nil
}

// IsSend reports whether the state block at hash is a send.
func (l *Ledger) IsSend(tx *store.ReadTx, hash blocks.Hash) (bool, error) {
	sb, ok, err := tx.GetSideband(hash)
	if err != nil || !ok {
		return false, err
	}
	return sb.Details.IsSend, nil
}

// Representative returns account's current representative, read from
// its account info. It is keyed by account, not by block hash, and
// does not report the representative in effect at an earlier block.
func (l *Ledger) Representative(tx *store.ReadTx, account blocks.Account) (blocks.Account, bool, error) {
	info, ok, err := tx.GetAccount(account)
	if err != nil || !ok {
		return blocks.ZeroAccount, false, err
	}
	return info.Representative, true, nil
}

// Successor returns the hash of the next block on the same chain
// after qr's position, or zero if qr is the current head.
func (l *Ledger) Successor(tx *store.ReadTx, qr blocks.QualifiedRoot) (blocks.Hash, error) {
	sb, ok, err := tx.GetSideband(qr.Previous)
	if err != nil || !ok {
		return blocks.ZeroHash, err
	}
	return sb.Successor, nil
}

// BlockConfirmed reports whether hash's height is within its
// account's cemented prefix.
func (l *Ledger) BlockConfirmed(tx *store.ReadTx, hash blocks.Hash) (bool, error) {
	sb, ok, err := tx.GetSideband(hash)
	if err != nil || !ok {
		return false, err
	}
	ch, ok, err := tx.GetConfirmationHeight(sb.Account)
	if err != nil || !ok {
		return false, err
	}
	return sb.Height <= ch.Height, nil
}

// EpochCandidates returns up to cfg.EpochUpgradeBatchSize accounts
// whose epoch is below target, for an external upgrader (which holds
// the epoch signing key and a work pool, both outside this core) to
// issue upgrade blocks against. A batchSize of 0 falls back to the
// configured default.
func (l *Ledger) EpochCandidates(tx *store.ReadTx, target uint8, batchSize int) ([]blocks.Account, error) {
	if batchSize <= 0 {
		batchSize = l.cfg.EpochUpgradeBatchSize
	}
	if batchSize <= 0 {
		batchSize = 512
	}
	var out []blocks.Account
	err := tx.ForEachAccount(func(account blocks.Account, info store.AccountInfo) error {
		if len(out) >= batchSize {
			return errStopIteration
		}
		if info.Epoch < target {
			out = append(out, account)
		}
		return nil
	})
	if err != nil && err != errStopIteration {
		return nil, err
	}
	return out, nil
}

var errStopIteration = fmt.Errorf("stop iteration")

// IsEpochLink reports whether link is a recognized epoch-upgrade link.
func (l *Ledger) IsEpochLink(link blocks.Hash) bool {
	_, ok := l.cfg.epochForLink(link)
	return ok
}

// EpochSigner returns the account that must sign epoch-upgrade blocks.
func (l *Ledger) EpochSigner() blocks.Account { return l.cfg.EpochSigner }

// CanVote reports whether hash and its dependencies are confirmed
// enough to justify issuing a locally generated vote for it: the
// block itself must exist, and either it is already
// confirmed, or its previous block (if any) is confirmed — a vote is
// safe to cast for the current tip of an otherwise-settled chain.
func (l *Ledger) CanVote(tx *store.ReadTx, hash blocks.Hash) (bool, error) {
	sb, ok, err := tx.GetSideband(hash)
	if err != nil || !ok {
		return false, err
	}
	if sb.Height == 1 {
		return true, nil
	}
	blk, _, ok, err := tx.GetBlock(hash)
	if err != nil || !ok {
		return false, err
	}
	prevSb, ok, err := tx.GetSideband(blk.Previous())
	if err != nil || !ok {
		return false, err
	}
	ch, ok, err := tx.GetConfirmationHeight(sb.Account)
	if err != nil || !ok {
		return false, err
	}
	return prevSb.Height <= ch.Height, nil
}
