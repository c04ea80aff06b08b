package node

import (
	"crypto/ed25519"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/config"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
	"github.com/FutureHeadCoin/futurehead-node-sub001/votecache"
)

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

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Network = "test"
	cfg.DataDir = t.TempDir()
	cfg.BlockProcessorBatchMaxTime = 50 * time.Millisecond
	cfg.VoteGeneratorDelay = 10 * time.Millisecond
	cfg.FrontiersConfirmation = config.FrontiersConfirmationDisabled
	return cfg
}

// End-to-end smoke: seed genesis, process a send through the full
// pipeline, confirm it, and observe both event streams.
func TestNodeLifecycle(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var genAcct blocks.Account
	copy(genAcct[:], pub)

	var mu sync.Mutex
	events := map[string]int{}
	obs := Observers{
		Block: func(status string, hash blocks.Hash, account blocks.Account) {
			mu.Lock()
			events[status]++
			mu.Unlock()
		},
	}

	rep := votecache.LocalRep{Account: genAcct, Key: priv}
	n, err := New(testConfig(t), LedgerConfigFor("test"), []votecache.LocalRep{rep}, obs, testLogger())
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	n.Start()
	defer n.Stop()

	genesis := &blocks.OpenBlock{
		Source:         blocks.Hash(genAcct),
		Representative: genAcct,
		AccountField:   genAcct,
	}
	blocks.Sign(genesis, priv)
	if err := n.SeedGenesis(genesis, maxAmount()); err != nil {
		t.Fatalf("SeedGenesis: %v", err)
	}

	destPub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var dest blocks.Account
	copy(dest[:], destPub)
	balance, err := maxAmount().Sub(blocks.AmountFromUint64(10))
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	send := &blocks.SendBlock{PreviousField: blocks.HashOf(genesis), Destination: dest, Balance: balance}
	blocks.Sign(send, priv)
	sendHash := blocks.HashOf(send)

	// Submitted as a wire-origin block so the recent-arrival observer
	// path fires.
	n.ProcessBlock(send, false)
	waitFor(t, n, sendHash)

	n.ConfirmBlock(sendHash)
	n.ConfHeight.Flush()

	if err := n.Store.View(func(tx *store.ReadTx) error {
		confirmed, err := n.Ledger.BlockConfirmed(tx, sendHash)
		if err != nil {
			return err
		}
		if !confirmed {
			t.Fatalf("send not confirmed after ConfirmBlock")
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if events["applied"] == 0 {
		t.Fatalf("no applied event observed")
	}
	if events["confirmed"] == 0 {
		t.Fatalf("no confirmed event observed")
	}
}

// A forced fork resolution must evict the displaced block's votes from
// the cache, so a stale vote is never replayed for a hash the ledger
// no longer holds.
func TestForcedRollbackEvictsVoteCache(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var genAcct blocks.Account
	copy(genAcct[:], pub)

	n, err := New(testConfig(t), LedgerConfigFor("test"), nil, Observers{}, testLogger())
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	n.Start()
	defer n.Stop()

	genesis := &blocks.OpenBlock{
		Source:         blocks.Hash(genAcct),
		Representative: genAcct,
		AccountField:   genAcct,
	}
	blocks.Sign(genesis, priv)
	if err := n.SeedGenesis(genesis, maxAmount()); err != nil {
		t.Fatalf("SeedGenesis: %v", err)
	}

	newDest := func() blocks.Account {
		destPub, _, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		var dest blocks.Account
		copy(dest[:], destPub)
		return dest
	}
	balance, err := maxAmount().Sub(blocks.AmountFromUint64(10))
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	original := &blocks.SendBlock{PreviousField: blocks.HashOf(genesis), Destination: newDest(), Balance: balance}
	blocks.Sign(original, priv)
	originalHash := blocks.HashOf(original)

	n.ProcessBlock(original, true)
	waitFor(t, n, originalHash)

	// A vote for the original lands in the cache, as if replayed from a
	// confirm request.
	v := &votecache.Vote{Account: genAcct, Sequence: 1, Hashes: []blocks.Hash{originalHash}}
	n.VoteCache.Add(v)
	if n.VoteCache.Votes(originalHash) == nil {
		t.Fatalf("vote not cached")
	}

	competitor := &blocks.SendBlock{PreviousField: blocks.HashOf(genesis), Destination: newDest(), Balance: balance}
	blocks.Sign(competitor, priv)
	n.Processor.Force(competitor)
	waitFor(t, n, blocks.HashOf(competitor))

	deadline := time.Now().Add(5 * time.Second)
	for n.VoteCache.Votes(originalHash) != nil {
		if time.Now().After(deadline) {
			t.Fatalf("rolled-back block's votes never evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitFor(t *testing.T, n *Node, hash blocks.Hash) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n.Processor.Flush()
		var ok bool
		if err := n.Store.View(func(tx *store.ReadTx) error {
			ok = tx.ExistsBlock(hash)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("block %x never applied", hash)
}

func TestSampleOnlineWeight(t *testing.T) {
	n, err := New(testConfig(t), LedgerConfigFor("test"), nil, Observers{}, testLogger())
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	n.Start()
	defer n.Stop()

	if err := n.SampleOnlineWeight(blocks.AmountFromUint64(42), time.Hour); err != nil {
		t.Fatalf("SampleOnlineWeight: %v", err)
	}
	var samples int
	if err := n.Store.View(func(tx *store.ReadTx) error {
		return tx.ForEachOnlineWeightSample(func(ts uint64, w blocks.Amount) error {
			samples++
			if w.Cmp(blocks.AmountFromUint64(42)) != 0 {
				t.Fatalf("sample weight mismatch")
			}
			return nil
		})
	}); err != nil {
		t.Fatal(err)
	}
	if samples != 1 {
		t.Fatalf("expected 1 sample, got %d", samples)
	}
}
