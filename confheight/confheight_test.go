package confheight

import (
	"crypto/ed25519"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/config"
	"github.com/FutureHeadCoin/futurehead-node-sub001/ledger"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
	"github.com/FutureHeadCoin/futurehead-node-sub001/writequeue"
)

var processTables = []string{
	store.TableAccounts, store.TableBlocks, store.TablePending,
	store.TableConfirmationHeight, store.TableUnchecked, store.TableMeta,
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func maxAmount() blocks.Amount {
	var a blocks.Amount
	for i := range a {
		a[i] = 0xff
	}
	return a
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
	ledger  *ledger.Ledger
	wq      *writequeue.Queue
	gen     keypair
	genHash blocks.Hash
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(store.Options{Path: filepath.Join(t.TempDir(), "data.bbolt")}, testLogger())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	e := &env{store: s, wq: writequeue.New(), gen: newKeypair(t)}
	l, err := ledger.New(s, ledger.Config{
		EpochLinks: []blocks.Hash{{}, {0xe1}},
		Thresholds: []blocks.Threshold{{}, {}},
		MaxEpoch:   1,
	}, testLogger())
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	e.ledger = l

	genesis := &blocks.OpenBlock{
		Source:         blocks.Hash(e.gen.account),
		Representative: e.gen.account,
		AccountField:   e.gen.account,
	}
	blocks.Sign(genesis, e.gen.priv)
	e.genHash = blocks.HashOf(genesis)
	if err := s.Update(ledger.GenesisTables, func(tx *store.WriteTx) error {
		return l.SetupGenesis(tx, genesis, maxAmount(), 1)
	}); err != nil {
		t.Fatalf("SetupGenesis: %v", err)
	}
	return e
}

func (e *env) mustProgress(t *testing.T, blk blocks.Block) blocks.Hash {
	t.Helper()
	if err := e.store.Update(processTables, func(tx *store.WriteTx) error {
		res, err := e.ledger.Process(tx, blk, 2)
		if err != nil {
			return err
		}
		if !res.IsProgress() {
			t.Fatalf("expected progress for %s, got %s", blk.Type(), res.Code)
		}
		return nil
	}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	return blocks.HashOf(blk)
}

// buildCrossChain builds the S6 topology: GEN→K1→K2→K3 via
// send/open pairs, then a final send from K3 back to GEN and a receive
// on GEN consuming it. Returns the final receive hash and the
// participating accounts with their expected block counts.
func buildCrossChain(t *testing.T, e *env) (blocks.Hash, map[blocks.Account]uint64) {
	t.Helper()
	expect := make(map[blocks.Account]uint64)

	prev := e.genHash
	from := e.gen
	fromBalance := maxAmount()
	hops := []keypair{newKeypair(t), newKeypair(t), newKeypair(t)}
	hopAmount := blocks.AmountFromUint64(100)

	for _, hop := range hops {
		newBalance, err := fromBalance.Sub(hopAmount)
		if err != nil {
			t.Fatalf("Sub: %v", err)
		}
		send := &blocks.SendBlock{PreviousField: prev, Destination: hop.account, Balance: newBalance}
		blocks.Sign(send, from.priv)
		sendHash := e.mustProgress(t, send)
		expect[from.account]++

		open := &blocks.OpenBlock{Source: sendHash, Representative: e.gen.account, AccountField: hop.account}
		blocks.Sign(open, hop.priv)
		prev = e.mustProgress(t, open)
		expect[hop.account]++

		from = hop
		fromBalance = hopAmount
	}

	// K3 sends everything back to GEN; GEN receives it.
	finalSend := &blocks.SendBlock{PreviousField: prev, Destination: e.gen.account, Balance: blocks.Amount{}}
	blocks.Sign(finalSend, from.priv)
	finalSendHash := e.mustProgress(t, finalSend)
	expect[from.account]++

	var genInfo store.AccountInfo
	if err := e.store.View(func(tx *store.ReadTx) error {
		info, ok, err := tx.GetAccount(e.gen.account)
		if err != nil || !ok {
			t.Fatalf("genesis account missing")
		}
		genInfo = info
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	recv := &blocks.ReceiveBlock{PreviousField: genInfo.Head, Source: finalSendHash}
	blocks.Sign(recv, e.gen.priv)
	recvHash := e.mustProgress(t, recv)
	expect[e.gen.account]++ // the receive; genesis's send was counted in the loop

	return recvHash, expect
}

func runCrossChainCementation(t *testing.T, mode config.ConfHeightMode) {
	e := newEnv(t)
	recvHash, expectNew := buildCrossChain(t, e)

	var mu sync.Mutex
	cemented := 0
	p := New(e.store, e.wq, Config{
		Mode:           mode,
		BatchWriteSize: 3, // small batches exercise multi-transaction commits
	}, Callbacks{
		OnCemented: func(hash blocks.Hash, account blocks.Account) {
			mu.Lock()
			cemented++
			mu.Unlock()
		},
	}, testLogger())
	p.Start()
	defer p.Stop()

	p.Add(recvHash)
	p.Flush()

	var wantNew uint64
	for _, n := range expectNew {
		wantNew += n
	}
	mu.Lock()
	got := cemented
	mu.Unlock()
	if uint64(got) != wantNew {
		t.Fatalf("expected %d cemented callbacks, got %d", wantNew, got)
	}

	if err := e.store.View(func(tx *store.ReadTx) error {
		return tx.ForEachAccount(func(account blocks.Account, info store.AccountInfo) error {
			ch, _, err := tx.GetConfirmationHeight(account)
			if err != nil {
				return err
			}
			if ch.Height != info.BlockCount {
				t.Fatalf("account %x: confirmation height %d != block count %d", account, ch.Height, info.BlockCount)
			}
			if ch.FrontierHash != info.Head {
				t.Fatalf("account %x: cemented frontier is not the head", account)
			}
			return nil
		})
	}); err != nil {
		t.Fatal(err)
	}

	counters, err := e.store.Counters()
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if counters.CementedCount != wantNew+1 { // +1 for the pre-cemented genesis
		t.Fatalf("expected cemented_count %d, got %d", wantNew+1, counters.CementedCount)
	}
}

// S6, bounded strategy: the walk crosses every receive link and cements
// each participating account fully.
func TestCrossChainCementationBounded(t *testing.T) {
	runCrossChainCementation(t, config.ConfHeightBounded)
}

// S6, unbounded strategy: same cascade via the plan-then-commit path.
func TestCrossChainCementationUnbounded(t *testing.T) {
	runCrossChainCementation(t, config.ConfHeightUnbounded)
}

func TestAlreadyCementedCallback(t *testing.T) {
	e := newEnv(t)

	var mu sync.Mutex
	var already []blocks.Hash
	p := New(e.store, e.wq, Config{Mode: config.ConfHeightBounded}, Callbacks{
		OnAlreadyCemented: func(hash blocks.Hash) {
			mu.Lock()
			already = append(already, hash)
			mu.Unlock()
		},
	}, testLogger())
	p.Start()
	defer p.Stop()

	// Genesis is cemented at setup; asking again must only fire the
	// already-cemented stream.
	p.Add(e.genHash)
	p.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(already) != 1 || already[0] != e.genHash {
		t.Fatalf("expected one already-cemented callback for genesis, got %v", already)
	}
}

func TestPauseDefersNewWalks(t *testing.T) {
	e := newEnv(t)
	recvHash, _ := buildCrossChain(t, e)

	p := New(e.store, e.wq, Config{Mode: config.ConfHeightBounded}, Callbacks{}, testLogger())
	p.Start()
	defer p.Stop()

	p.Pause()
	p.Add(recvHash)
	time.Sleep(50 * time.Millisecond)
	if _, active := p.Current(); active {
		t.Fatalf("paused processor started a walk")
	}
	p.Unpause()
	p.Flush()

	if err := e.store.View(func(tx *store.ReadTx) error {
		sb, ok, err := tx.GetSideband(recvHash)
		if err != nil || !ok {
			t.Fatalf("receive sideband missing")
		}
		ch, _, err := tx.GetConfirmationHeight(sb.Account)
		if err != nil {
			return err
		}
		if ch.Height < sb.Height {
			t.Fatalf("unpause did not resume cementation")
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestScannerFeedsBackloggedFrontiers(t *testing.T) {
	e := newEnv(t)
	buildCrossChain(t, e)

	p := New(e.store, e.wq, Config{Mode: config.ConfHeightBounded}, Callbacks{}, testLogger())
	sc := NewScanner(e.store, p, ScannerConfig{
		Mode:         config.FrontiersConfirmationAlways,
		MaxFrontiers: 10,
	}, testLogger())

	var mu sync.Mutex
	var submitted []blocks.Hash
	sc.Submit = func(h blocks.Hash) {
		mu.Lock()
		submitted = append(submitted, h)
		mu.Unlock()
	}

	if err := sc.Sweep(); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	// Genesis plus three hop accounts all carry uncemented blocks.
	if len(submitted) != 4 {
		t.Fatalf("expected 4 backlogged frontiers, got %d", len(submitted))
	}
}
