package ledger

import (
	"crypto/ed25519"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
)

var processTables = []string{
	store.TableAccounts, store.TableBlocks, store.TablePending,
	store.TableConfirmationHeight, store.TableUnchecked, store.TableMeta,
}

func maxAmount() blocks.Amount {
	var a blocks.Amount
	for i := range a {
		a[i] = 0xff
	}
	return a
}

func mustSub(t *testing.T, a, b blocks.Amount) blocks.Amount {
	t.Helper()
	out, err := a.Sub(b)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	return out
}

type keypair struct {
	account blocks.Account
	priv    ed25519.PrivateKey
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var acct blocks.Account
	copy(acct[:], pub)
	return keypair{account: acct, priv: priv}
}

type env struct {
	store   *store.Store
	ledger  *Ledger
	gen     keypair
	epoch   keypair
	genesis *blocks.OpenBlock
	genHash blocks.Hash
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(store.Options{Path: filepath.Join(t.TempDir(), "data.bbolt")}, testLogger())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	e := &env{store: s, gen: newKeypair(t), epoch: newKeypair(t)}

	cfg := Config{
		EpochSigner: e.epoch.account,
		EpochLinks:  []blocks.Hash{{}, {0xe1}, {0xe2}},
		Thresholds:  []blocks.Threshold{{}, {}, {}},
		MaxEpoch:    2,
	}
	l, err := New(s, cfg, testLogger())
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	e.ledger = l

	e.genesis = &blocks.OpenBlock{
		Source:         blocks.Hash(e.gen.account),
		Representative: e.gen.account,
		AccountField:   e.gen.account,
	}
	blocks.Sign(e.genesis, e.gen.priv)
	e.genHash = blocks.HashOf(e.genesis)
	if err := s.Update(GenesisTables, func(tx *store.WriteTx) error {
		return l.SetupGenesis(tx, e.genesis, maxAmount(), 1)
	}); err != nil {
		t.Fatalf("SetupGenesis: %v", err)
	}
	return e
}

func (e *env) process(t *testing.T, blk blocks.Block) ResultCode {
	t.Helper()
	var code ResultCode
	if err := e.store.Update(processTables, func(tx *store.WriteTx) error {
		res, err := e.ledger.Process(tx, blk, 2)
		if err != nil {
			return err
		}
		code = res.Code
		return nil
	}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	return code
}

func (e *env) mustProgress(t *testing.T, blk blocks.Block) blocks.Hash {
	t.Helper()
	if code := e.process(t, blk); code != Progress {
		t.Fatalf("expected progress, got %s", code)
	}
	return blocks.HashOf(blk)
}

func (e *env) accountInfo(t *testing.T, account blocks.Account) (store.AccountInfo, bool) {
	t.Helper()
	var info store.AccountInfo
	var ok bool
	if err := e.store.View(func(tx *store.ReadTx) error {
		var err error
		info, ok, err = tx.GetAccount(account)
		return err
	}); err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return info, ok
}

func (e *env) pendingCount(t *testing.T) int {
	t.Helper()
	var n int
	if err := e.store.View(func(tx *store.ReadTx) error {
		n = tx.CountPending()
		return nil
	}); err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	return n
}

// S1: a send followed by the destination's open moves 100 raw between
// accounts and leaves no pending entry behind.
func TestSendReceiveAcrossTwoAccounts(t *testing.T) {
	e := newEnv(t)
	k1 := newKeypair(t)

	send := &blocks.SendBlock{
		PreviousField: e.genHash,
		Destination:   k1.account,
		Balance:       mustSub(t, maxAmount(), blocks.AmountFromUint64(100)),
	}
	blocks.Sign(send, e.gen.priv)
	sendHash := e.mustProgress(t, send)

	open := &blocks.OpenBlock{
		Source:         sendHash,
		Representative: e.gen.account,
		AccountField:   k1.account,
	}
	blocks.Sign(open, k1.priv)
	e.mustProgress(t, open)

	genInfo, _ := e.accountInfo(t, e.gen.account)
	if genInfo.Balance.Cmp(mustSub(t, maxAmount(), blocks.AmountFromUint64(100))) != 0 {
		t.Fatalf("genesis balance wrong after send")
	}
	k1Info, _ := e.accountInfo(t, k1.account)
	if k1Info.Balance.Cmp(blocks.AmountFromUint64(100)) != 0 {
		t.Fatalf("destination balance wrong after open")
	}
	if n := e.pendingCount(t); n != 0 {
		t.Fatalf("expected no pending entries, got %d", n)
	}
	if e.ledger.Cache().BlockCount() != 3 {
		t.Fatalf("expected block_count 3, got %d", e.ledger.Cache().BlockCount())
	}
}

// S2: a second send re-using genesis's head as previous is a fork and
// leaves the ledger unchanged.
func TestForkRejection(t *testing.T) {
	e := newEnv(t)
	k1, k2 := newKeypair(t), newKeypair(t)
	balance := mustSub(t, maxAmount(), blocks.AmountFromUint64(100))

	first := &blocks.SendBlock{PreviousField: e.genHash, Destination: k1.account, Balance: balance}
	blocks.Sign(first, e.gen.priv)
	e.mustProgress(t, first)

	second := &blocks.SendBlock{PreviousField: e.genHash, Destination: k2.account, Balance: balance}
	blocks.Sign(second, e.gen.priv)
	if code := e.process(t, second); code != Fork {
		t.Fatalf("expected fork, got %s", code)
	}

	genInfo, _ := e.accountInfo(t, e.gen.account)
	if genInfo.Head != blocks.HashOf(first) {
		t.Fatalf("fork mutated the chain head")
	}
	if e.ledger.Cache().BlockCount() != 2 {
		t.Fatalf("fork changed block count")
	}
}

// Processing the same block twice returns progress then old, with no
// state change on the second call.
func TestProcessTwiceIsOld(t *testing.T) {
	e := newEnv(t)
	k1 := newKeypair(t)
	send := &blocks.SendBlock{
		PreviousField: e.genHash,
		Destination:   k1.account,
		Balance:       mustSub(t, maxAmount(), blocks.AmountFromUint64(1)),
	}
	blocks.Sign(send, e.gen.priv)

	e.mustProgress(t, send)
	before, _ := e.accountInfo(t, e.gen.account)
	if code := e.process(t, send); code != Old {
		t.Fatalf("expected old, got %s", code)
	}
	after, _ := e.accountInfo(t, e.gen.account)
	if before != after {
		t.Fatalf("second process mutated account state")
	}
}

// S3: an epoch-upgrade state block signed by the epoch signer advances
// the account epoch without moving balance or weight.
func TestEpochUpgrade(t *testing.T) {
	e := newEnv(t)
	weightBefore := e.ledger.Cache().RepWeight(e.gen.account)

	epoch := &blocks.StateBlock{
		AccountField:   e.gen.account,
		PreviousField:  e.genHash,
		Representative: e.gen.account,
		Balance:        maxAmount(),
		Link:           blocks.Hash{0xe1},
	}
	blocks.Sign(epoch, e.epoch.priv)
	hash := e.mustProgress(t, epoch)

	info, _ := e.accountInfo(t, e.gen.account)
	if info.Epoch != 1 {
		t.Fatalf("expected epoch 1, got %d", info.Epoch)
	}
	if got := e.ledger.Cache().RepWeight(e.gen.account); got.Cmp(weightBefore) != 0 {
		t.Fatalf("epoch upgrade changed rep weight")
	}
	if err := e.store.View(func(tx *store.ReadTx) error {
		sb, ok, err := tx.GetSideband(hash)
		if err != nil || !ok {
			t.Fatalf("epoch block sideband missing")
		}
		if !sb.Details.IsEpoch || sb.Details.IsSend || sb.Details.IsReceive {
			t.Fatalf("epoch sideband details wrong: %+v", sb.Details)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

// An epoch block signed by the account itself (not the epoch signer)
// must be rejected.
func TestEpochUpgradeRequiresEpochSigner(t *testing.T) {
	e := newEnv(t)
	epoch := &blocks.StateBlock{
		AccountField:   e.gen.account,
		PreviousField:  e.genHash,
		Representative: e.gen.account,
		Balance:        maxAmount(),
		Link:           blocks.Hash{0xe1},
	}
	blocks.Sign(epoch, e.gen.priv)
	if code := e.process(t, epoch); code != BadSignature {
		t.Fatalf("expected bad_signature, got %s", code)
	}
}

// S4: a state receive whose link was never a send to this account is
// unreceivable and mutates nothing.
func TestReceiveRequiresPending(t *testing.T) {
	e := newEnv(t)
	k1 := newKeypair(t)

	send := &blocks.SendBlock{
		PreviousField: e.genHash,
		Destination:   k1.account,
		Balance:       mustSub(t, maxAmount(), blocks.AmountFromUint64(100)),
	}
	blocks.Sign(send, e.gen.priv)
	sendHash := e.mustProgress(t, send)
	open := &blocks.OpenBlock{Source: sendHash, Representative: e.gen.account, AccountField: k1.account}
	blocks.Sign(open, k1.priv)
	openHash := e.mustProgress(t, open)

	countBefore := e.ledger.Cache().BlockCount()
	// genesis's hash exists in blocks but is not a pending send to k1.
	bogus := &blocks.StateBlock{
		AccountField:   k1.account,
		PreviousField:  openHash,
		Representative: e.gen.account,
		Balance:        blocks.AmountFromUint64(105),
		Link:           e.genHash,
	}
	blocks.Sign(bogus, k1.priv)
	if code := e.process(t, bogus); code != Unreceivable {
		t.Fatalf("expected unreceivable, got %s", code)
	}
	if e.ledger.Cache().BlockCount() != countBefore {
		t.Fatalf("unreceivable block mutated the store")
	}
}

// A zero-delta state block whose link is neither zero nor an epoch
// link resolves through the receive path: gap_source when the link
// points nowhere, unreceivable when it points at a block that is not a
// pending send to this account, and balance_mismatch when a pending
// entry exists but the zero delta cannot match its amount.
func TestZeroDeltaNonEpochLinkResolvesAsReceive(t *testing.T) {
	e := newEnv(t)
	k1 := newKeypair(t)

	send := &blocks.SendBlock{
		PreviousField: e.genHash,
		Destination:   k1.account,
		Balance:       mustSub(t, maxAmount(), blocks.AmountFromUint64(100)),
	}
	blocks.Sign(send, e.gen.priv)
	sendHash := e.mustProgress(t, send)
	open := &blocks.OpenBlock{Source: sendHash, Representative: e.gen.account, AccountField: k1.account}
	blocks.Sign(open, k1.priv)
	openHash := e.mustProgress(t, open)

	countBefore := e.ledger.Cache().BlockCount()
	zeroDelta := func(link blocks.Hash) *blocks.StateBlock {
		b := &blocks.StateBlock{
			AccountField:   k1.account,
			PreviousField:  openHash,
			Representative: e.gen.account,
			Balance:        blocks.AmountFromUint64(100),
			Link:           link,
		}
		blocks.Sign(b, k1.priv)
		return b
	}

	if code := e.process(t, zeroDelta(blocks.Hash{0xab, 0xcd})); code != GapSource {
		t.Fatalf("expected gap_source for an unknown link, got %s", code)
	}
	if code := e.process(t, zeroDelta(e.genHash)); code != Unreceivable {
		t.Fatalf("expected unreceivable for a non-pending link, got %s", code)
	}

	// A second send parks a pending entry for k1; the zero delta still
	// cannot match its amount.
	send2 := &blocks.SendBlock{
		PreviousField: sendHash,
		Destination:   k1.account,
		Balance:       mustSub(t, maxAmount(), blocks.AmountFromUint64(150)),
	}
	blocks.Sign(send2, e.gen.priv)
	send2Hash := e.mustProgress(t, send2)
	if code := e.process(t, zeroDelta(send2Hash)); code != BalanceMismatch {
		t.Fatalf("expected balance_mismatch for a zero delta against a pending entry, got %s", code)
	}

	if got := e.ledger.Cache().BlockCount(); got != countBefore+1 { // +1 for send2 only
		t.Fatalf("rejected zero-delta blocks mutated the store: %d vs %d", got, countBefore+1)
	}
}

// A send moving more than the account holds is a negative spend.
func TestNegativeSpend(t *testing.T) {
	e := newEnv(t)
	k1 := newKeypair(t)
	small := mustSub(t, maxAmount(), blocks.AmountFromUint64(100))

	send := &blocks.SendBlock{PreviousField: e.genHash, Destination: k1.account, Balance: small}
	blocks.Sign(send, e.gen.priv)
	sendHash := e.mustProgress(t, send)

	overdraw := &blocks.SendBlock{PreviousField: sendHash, Destination: k1.account, Balance: maxAmount()}
	blocks.Sign(overdraw, e.gen.priv)
	if code := e.process(t, overdraw); code != NegativeSpend {
		t.Fatalf("expected negative_spend, got %s", code)
	}
}

// Legacy variants may not extend a chain whose head is a state block.
func TestLegacyAfterStateHeadIsBlockPosition(t *testing.T) {
	e := newEnv(t)
	k1 := newKeypair(t)

	state := &blocks.StateBlock{
		AccountField:   e.gen.account,
		PreviousField:  e.genHash,
		Representative: e.gen.account,
		Balance:        mustSub(t, maxAmount(), blocks.AmountFromUint64(7)),
		Link:           blocks.Hash(k1.account),
	}
	blocks.Sign(state, e.gen.priv)
	stateHash := e.mustProgress(t, state)

	legacy := &blocks.ChangeBlock{PreviousField: stateHash, Representative: k1.account}
	blocks.Sign(legacy, e.gen.priv)
	if code := e.process(t, legacy); code != BlockPosition {
		t.Fatalf("expected block_position, got %s", code)
	}
}

// buildSendChain appends n sends to genesis, each to a fresh
// destination, returning the blocks in application order.
func buildSendChain(t *testing.T, e *env, n int) []*blocks.SendBlock {
	t.Helper()
	sends := make([]*blocks.SendBlock, 0, n)
	prev := e.genHash
	balance := maxAmount()
	for i := 0; i < n; i++ {
		dest := newKeypair(t)
		balance = mustSub(t, balance, blocks.AmountFromUint64(1))
		send := &blocks.SendBlock{PreviousField: prev, Destination: dest.account, Balance: balance}
		blocks.Sign(send, e.gen.priv)
		prev = e.mustProgress(t, send)
		sends = append(sends, send)
	}
	return sends
}

// S5: rolling back the second of ten chained blocks removes it and
// every descendant, restores their pending entries to absence, and
// re-processing the removed blocks in order restores identical state.
func TestRollbackCascadeAndReplay(t *testing.T) {
	e := newEnv(t)
	sends := buildSendChain(t, e, 10)

	if n := e.pendingCount(t); n != 10 {
		t.Fatalf("expected 10 pending entries, got %d", n)
	}
	infoBefore, _ := e.accountInfo(t, e.gen.account)
	weightBefore := e.ledger.Cache().RepWeight(e.gen.account)

	var removed []blocks.Block
	if err := e.store.Update(processTables, func(tx *store.WriteTx) error {
		var err error
		removed, err = e.ledger.Rollback(tx, blocks.HashOf(sends[1]))
		return err
	}); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if len(removed) != 9 {
		t.Fatalf("expected 9 removed blocks, got %d", len(removed))
	}

	info, _ := e.accountInfo(t, e.gen.account)
	if info.BlockCount != 2 {
		t.Fatalf("expected block_count 2 after rollback, got %d", info.BlockCount)
	}
	if info.Head != blocks.HashOf(sends[0]) {
		t.Fatalf("head not restored to first send")
	}
	if n := e.pendingCount(t); n != 1 {
		t.Fatalf("expected 1 pending entry after rollback, got %d", n)
	}

	// Replaying the removed blocks in application order restores the
	// exact pre-rollback state.
	for _, blk := range removed {
		e.mustProgress(t, blk)
	}
	infoAfter, _ := e.accountInfo(t, e.gen.account)
	if infoBefore.Head != infoAfter.Head || infoBefore.BlockCount != infoAfter.BlockCount ||
		infoBefore.Balance != infoAfter.Balance || infoBefore.Epoch != infoAfter.Epoch {
		t.Fatalf("replay did not restore account state: %+v vs %+v", infoBefore, infoAfter)
	}
	if n := e.pendingCount(t); n != 10 {
		t.Fatalf("expected 10 pending entries after replay, got %d", n)
	}
	if got := e.ledger.Cache().RepWeight(e.gen.account); got.Cmp(weightBefore) != 0 {
		t.Fatalf("replay did not restore rep weight")
	}
}

// Rollback must refuse to remove cemented blocks and leave state
// unchanged.
func TestRollbackRefusesCemented(t *testing.T) {
	e := newEnv(t)
	sends := buildSendChain(t, e, 5)

	// Cement through the third send (height 4 on the genesis chain).
	if err := e.store.Update(processTables, func(tx *store.WriteTx) error {
		return tx.CementTo(e.gen.account, 4, blocks.HashOf(sends[2]))
	}); err != nil {
		t.Fatalf("CementTo: %v", err)
	}

	before, _ := e.accountInfo(t, e.gen.account)
	err := e.store.Update(processTables, func(tx *store.WriteTx) error {
		_, err := e.ledger.Rollback(tx, blocks.HashOf(sends[1]))
		return err
	})
	if err == nil {
		t.Fatalf("expected rollback of cemented block to fail")
	}
	after, _ := e.accountInfo(t, e.gen.account)
	if before != after {
		t.Fatalf("failed rollback mutated account state")
	}

	// Rolling back above the cemented prefix still works.
	if err := e.store.Update(processTables, func(tx *store.WriteTx) error {
		removed, err := e.ledger.Rollback(tx, blocks.HashOf(sends[3]))
		if err != nil {
			return err
		}
		if len(removed) != 2 {
			t.Fatalf("expected 2 removed blocks, got %d", len(removed))
		}
		return nil
	}); err != nil {
		t.Fatalf("Rollback above cemented prefix: %v", err)
	}
}

// A legacy receive claims its pending entry and a change block moves
// weight between representatives.
func TestLegacyReceiveAndChange(t *testing.T) {
	e := newEnv(t)
	k1 := newKeypair(t)
	rep2 := newKeypair(t)

	send1 := &blocks.SendBlock{
		PreviousField: e.genHash,
		Destination:   k1.account,
		Balance:       mustSub(t, maxAmount(), blocks.AmountFromUint64(10)),
	}
	blocks.Sign(send1, e.gen.priv)
	send1Hash := e.mustProgress(t, send1)

	send2 := &blocks.SendBlock{
		PreviousField: send1Hash,
		Destination:   k1.account,
		Balance:       mustSub(t, maxAmount(), blocks.AmountFromUint64(30)),
	}
	blocks.Sign(send2, e.gen.priv)
	send2Hash := e.mustProgress(t, send2)

	open := &blocks.OpenBlock{Source: send1Hash, Representative: e.gen.account, AccountField: k1.account}
	blocks.Sign(open, k1.priv)
	openHash := e.mustProgress(t, open)

	recv := &blocks.ReceiveBlock{PreviousField: openHash, Source: send2Hash}
	blocks.Sign(recv, k1.priv)
	recvHash := e.mustProgress(t, recv)

	k1Info, _ := e.accountInfo(t, k1.account)
	if k1Info.Balance.Cmp(blocks.AmountFromUint64(30)) != 0 {
		t.Fatalf("expected balance 30 after receive, got wrong value")
	}

	change := &blocks.ChangeBlock{PreviousField: recvHash, Representative: rep2.account}
	blocks.Sign(change, k1.priv)
	e.mustProgress(t, change)

	if got := e.ledger.Cache().RepWeight(rep2.account); got.Cmp(blocks.AmountFromUint64(30)) != 0 {
		t.Fatalf("change block did not move weight to new representative")
	}
}

// A block whose work digest cannot clear its epoch threshold is
// rejected with insufficient_work.
func TestWorkThresholdEnforced(t *testing.T) {
	l := &Ledger{cfg: Config{
		Thresholds: []blocks.Threshold{{Base: ^uint64(0), Receive: ^uint64(0)}},
	}}
	blk := &blocks.ChangeBlock{PreviousField: blocks.Hash{1}, Representative: blocks.Account{2}}
	blk.SetWork(12345)
	r := l.verifyWork(blk, blocks.Details{})
	if r == nil || r.Code != InsufficientWork {
		t.Fatalf("expected insufficient_work against a maximal threshold, got %v", r)
	}
}

// BlockConfirmed and CanVote track the cemented prefix.
func TestBlockConfirmedAndCanVote(t *testing.T) {
	e := newEnv(t)
	sends := buildSendChain(t, e, 3)

	if err := e.store.Update(processTables, func(tx *store.WriteTx) error {
		return tx.CementTo(e.gen.account, 3, blocks.HashOf(sends[1]))
	}); err != nil {
		t.Fatalf("CementTo: %v", err)
	}

	if err := e.store.View(func(tx *store.ReadTx) error {
		confirmed, err := e.ledger.BlockConfirmed(tx, blocks.HashOf(sends[1]))
		if err != nil || !confirmed {
			t.Fatalf("expected sends[1] confirmed (err=%v)", err)
		}
		confirmed, err = e.ledger.BlockConfirmed(tx, blocks.HashOf(sends[2]))
		if err != nil || confirmed {
			t.Fatalf("expected sends[2] unconfirmed (err=%v)", err)
		}
		// sends[2] sits directly on the cemented frontier: votable.
		ok, err := e.ledger.CanVote(tx, blocks.HashOf(sends[2]))
		if err != nil || !ok {
			t.Fatalf("expected sends[2] votable (err=%v)", err)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}
