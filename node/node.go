// Package node wires the core together: it opens the store, constructs
// the ledger, write queue, verifier, block processor, confirmation-
// height processor, and vote generator, starts their workers, and
// exposes outbound collaborator seams so an outer binary can attach
// RPC, wallet, and network layers without this core depending on them.
package node

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blockprocessor"
	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/confheight"
	"github.com/FutureHeadCoin/futurehead-node-sub001/config"
	"github.com/FutureHeadCoin/futurehead-node-sub001/ledger"
	"github.com/FutureHeadCoin/futurehead-node-sub001/sigverify"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
	"github.com/FutureHeadCoin/futurehead-node-sub001/votecache"
	"github.com/FutureHeadCoin/futurehead-node-sub001/writequeue"
)

// StoreFileName is the bbolt file created under the data directory.
const StoreFileName = "data.bbolt"

// Observers are the outbound collaborator interfaces. Nil fields are
// simply not called.
type Observers struct {
	// Block fires post-commit with "applied" for a block that arrived
	// from the wire within the recent-arrival window, and with
	// "confirmed" when a block is cemented.
	Block func(status string, hash blocks.Hash, account blocks.Account)
	// AccountBalance fires when an account's confirmed balance changes
	// or a new pending entry appears.
	AccountBalance func(account blocks.Account, isPending bool)
	// FloodBlock is best-effort gossip for a freshly applied block.
	FloodBlock func(blk blocks.Block)
	// ProcessFork is called when the ledger reports a fork.
	ProcessFork func(blk blocks.Block, arrivalTime uint64)
	// ElectionInsert starts/joins an election for a freshly applied block.
	ElectionInsert func(blk blocks.Block)
	// WorkGenerate delegates proof-of-work generation (out of scope for
	// the core, which only validates work).
	WorkGenerate func(root blocks.Hash, threshold uint64) (blocks.Work, bool)
	// VoteBroadcast receives every locally generated vote.
	VoteBroadcast func(v *votecache.Vote)
	// IsLocalAccount reports wallet ownership, used by the priority
	// frontier scanner's local track.
	IsLocalAccount func(account blocks.Account) bool
}

// Node owns every long-lived core component.
type Node struct {
	cfg    config.Config
	logger *slog.Logger

	Store      *store.Store
	Ledger     *ledger.Ledger
	WriteQueue *writequeue.Queue
	Verifier   *sigverify.Batcher
	Processor  *blockprocessor.Processor
	ConfHeight *confheight.Processor
	Scanner    *confheight.Scanner
	VoteCache  *votecache.Cache
	VoteGen    *votecache.Generator

	observers Observers

	mu      sync.Mutex
	cancel  context.CancelFunc
	bg      sync.WaitGroup
	started bool
}

// New opens the store and constructs (but does not start) every core
// component.
func New(cfg config.Config, ledgerCfg ledger.Config, reps []votecache.LocalRep, obs Observers, logger *slog.Logger) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.Open(store.Options{
		Path:                filepath.Join(cfg.DataDir, StoreFileName),
		BackupBeforeUpgrade: cfg.BackupBeforeUpgrade,
	}, logger)
	if err != nil {
		return nil, err
	}

	l, err := ledger.New(s, ledgerCfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	wq := writequeue.New()
	verifier := sigverify.New(sigverify.Config{
		Workers:   sigverify.DefaultConfig().Workers,
		QueueSize: cfg.BlockProcessorVerificationSize,
	}, logger)

	n := &Node{
		cfg:        cfg,
		logger:     logger,
		Store:      s,
		Ledger:     l,
		WriteQueue: wq,
		Verifier:   verifier,
		observers:  obs,
	}

	n.VoteCache = votecache.NewCache(cfg.VoteCacheMax, len(reps))
	gen, err := votecache.NewGenerator(s, wq, n.VoteCache, votecache.GeneratorConfig{
		Delay:     cfg.VoteGeneratorDelay,
		Threshold: cfg.VoteGeneratorThreshold,
	}, reps, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	gen.Broadcast = func(v *votecache.Vote) {
		if obs.VoteBroadcast != nil {
			obs.VoteBroadcast(v)
		}
	}
	gen.CanVote = n.canVote
	n.VoteGen = gen

	n.ConfHeight = confheight.New(s, wq, confheight.ConfigFrom(cfg), confheight.Callbacks{
		OnCemented: func(hash blocks.Hash, account blocks.Account) {
			if obs.Block != nil {
				obs.Block("confirmed", hash, account)
			}
			if obs.AccountBalance != nil {
				obs.AccountBalance(account, false)
			}
		},
		OnAlreadyCemented: func(hash blocks.Hash) {},
	}, logger)

	n.Processor = blockprocessor.New(s, l, wq, verifier, blockprocessor.Config{
		BatchSize:    cfg.BlockProcessorBatchSize,
		BatchMaxTime: cfg.BlockProcessorBatchMaxTime,
		FullSize:     cfg.BlockProcessorFullSize,
	}, blockprocessor.Collaborators{
		OnProgress: func(hash blocks.Hash, blk blocks.Block, recent bool) {
			if obs.Block != nil {
				sb := sidebandAccount(n, hash)
				obs.Block("applied", hash, sb)
			}
			if obs.ElectionInsert != nil {
				obs.ElectionInsert(blk)
			}
			if recent && obs.FloodBlock != nil {
				obs.FloodBlock(blk)
			}
			n.VoteGen.Add(hash)
		},
		OnFork: func(hash blocks.Hash, attempted blocks.Block) {
			if obs.ProcessFork != nil {
				obs.ProcessFork(attempted, uint64(time.Now().Unix()))
			}
		},
		OnOld: func(hash blocks.Hash, blk blocks.Block, localOrigin bool) {
			if localOrigin && obs.FloodBlock != nil {
				obs.FloodBlock(blk)
			}
		},
		OnRollback: n.VoteCache.Evict,
	}, logger)

	n.Scanner = confheight.NewScanner(s, n.ConfHeight, confheight.ScannerConfig{
		Mode:                 cfg.FrontiersConfirmation,
		MaxPriorityFrontiers: cfg.MaxPriorityCementableFrontiers,
	}, logger)
	n.Scanner.IsLocal = obs.IsLocalAccount

	return n, nil
}

func sidebandAccount(n *Node, hash blocks.Hash) blocks.Account {
	var account blocks.Account
	_ = n.Store.View(func(tx *store.ReadTx) error {
		if sb, ok, err := tx.GetSideband(hash); err == nil && ok {
			account = sb.Account
		}
		return nil
	})
	return account
}

func (n *Node) canVote(hash blocks.Hash) bool {
	var ok bool
	_ = n.Store.View(func(tx *store.ReadTx) error {
		var err error
		ok, err = n.Ledger.CanVote(tx, hash)
		return err
	})
	return ok
}

// SeedGenesis installs the genesis block unless the store already
// holds that block.
func (n *Node) SeedGenesis(gen *blocks.OpenBlock, amount blocks.Amount) error {
	n.WriteQueue.Acquire(writequeue.ClassProcessBatch)
	defer n.WriteQueue.Release()
	return n.Store.Update(ledger.GenesisTables, func(tx *store.WriteTx) error {
		return n.Ledger.SetupGenesis(tx, gen, amount, uint64(time.Now().Unix()))
	})
}

// Start launches every worker goroutine.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return
	}
	n.started = true

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	// Stale endpoints from a previous run are useless to the external
	// connection layer; start from a clean peers table.
	n.WriteQueue.Acquire(writequeue.ClassTesting)
	if err := n.Store.Update([]string{store.TablePeers}, func(tx *store.WriteTx) error {
		return tx.ClearPeers()
	}); err != nil {
		n.logger.Error("peer table clear failed", slog.Any("error", err))
	}
	n.WriteQueue.Release()

	n.Processor.Start()
	n.ConfHeight.Start()
	n.VoteGen.Start()

	n.bg.Add(1)
	go func() {
		defer n.bg.Done()
		n.Processor.RunUncheckedCleanup(ctx, blockprocessor.CleanupConfig{
			Enabled:    n.cfg.UncheckedCleanupEnabled,
			CutoffTime: n.cfg.UncheckedCutoffTime,
		})
	}()
	n.bg.Add(1)
	go func() {
		defer n.bg.Done()
		n.Scanner.Run(ctx)
	}()

	n.logger.Info("node started", slog.String("network", n.cfg.Network), slog.String("data_dir", n.cfg.DataDir))
}

// Stop shuts every worker down in dependency order and closes the store.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return
	}
	n.started = false

	n.cancel()
	n.bg.Wait()

	n.Processor.Stop()
	n.ConfHeight.Stop()
	n.VoteGen.Stop()
	n.Verifier.Close()

	if err := n.Store.Close(); err != nil {
		n.logger.Error("store close failed", slog.Any("error", err))
	}
	n.logger.Info("node stopped")
}

// ProcessBlock submits a block through the normal processing path.
func (n *Node) ProcessBlock(blk blocks.Block, localOrigin bool) {
	n.Processor.Add(blockprocessor.Item{
		Block:       blk,
		ArrivalTime: uint64(time.Now().Unix()),
		LocalOrigin: localOrigin,
	})
}

// ConfirmBlock designates hash as confirmed — by explicit call,
// election win, or vote quorum, all equivalent from here — and hands
// it to the confirmation-height processor.
func (n *Node) ConfirmBlock(hash blocks.Hash) {
	n.ConfHeight.Add(hash)
}

// SampleOnlineWeight records one online-weight sample and trims
// samples older than the retention window. The quorum calculation
// that consumes the samples is external.
func (n *Node) SampleOnlineWeight(weight blocks.Amount, retention time.Duration) error {
	now := uint64(time.Now().Unix())
	n.WriteQueue.Acquire(writequeue.ClassTesting)
	defer n.WriteQueue.Release()
	return n.Store.Update([]string{store.TableOnlineWeight}, func(tx *store.WriteTx) error {
		if err := tx.PutOnlineWeightSample(now, weight); err != nil {
			return err
		}
		if retention > 0 {
			return tx.TrimOnlineWeightSamplesBefore(now - uint64(retention/time.Second))
		}
		return nil
	})
}
