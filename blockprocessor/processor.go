// Package blockprocessor implements the single-writer block queue: it
// batches signature verification, applies blocks through the ledger,
// buffers unchecked dependents, and stages post-commit events.
package blockprocessor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/ledger"
	"github.com/FutureHeadCoin/futurehead-node-sub001/sigverify"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
	"github.com/FutureHeadCoin/futurehead-node-sub001/writequeue"
)

// Item is one block submitted for processing.
type Item struct {
	Block       blocks.Block
	SignerHint  blocks.Account // best-effort peer/signer hint carried into unchecked bookkeeping
	ArrivalTime uint64
	LocalOrigin bool // true for blocks originating locally rather than received from a peer
}

// Collaborators are the external subsystems the processor notifies on
// specific outcomes. Election, network flood, and websocket broadcast
// all live outside this module; these function fields are the seams an
// outer binary wires them through. A nil field is simply not called.
type Collaborators struct {
	OnFork     func(hash blocks.Hash, attempted blocks.Block)
	OnOld      func(hash blocks.Hash, blk blocks.Block, localOrigin bool)
	OnProgress func(hash blocks.Hash, blk blocks.Block, recentArrival bool)
	// OnRollback fires once per block removed by a forced fork
	// resolution; the vote cache hangs its eviction here so a stale
	// vote is never replayed for a hash the ledger no longer holds.
	OnRollback func(hash blocks.Hash)
}

func (c Collaborators) fork(hash blocks.Hash, blk blocks.Block) {
	if c.OnFork != nil {
		c.OnFork(hash, blk)
	}
}

func (c Collaborators) old(hash blocks.Hash, blk blocks.Block, local bool) {
	if c.OnOld != nil {
		c.OnOld(hash, blk, local)
	}
}

func (c Collaborators) progress(hash blocks.Hash, blk blocks.Block, recent bool) {
	if c.OnProgress != nil {
		c.OnProgress(hash, blk, recent)
	}
}

func (c Collaborators) rollback(hash blocks.Hash) {
	if c.OnRollback != nil {
		c.OnRollback(hash)
	}
}

type queuedItem struct {
	item    Item
	forced  bool
	verdict *sigverify.Result // nil unless Block is a state block routed through C5
}

// Config sizes and tunes the processor.
type Config struct {
	BatchSize    int
	BatchMaxTime time.Duration
	FullSize     int
	RecentWindow time.Duration
	Now          func() uint64
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    256,
		BatchMaxTime: 500 * time.Millisecond,
		FullSize:     65536,
		RecentWindow: 5 * time.Second,
		Now:          func() uint64 { return uint64(time.Now().Unix()) },
	}
}

var processingTables = []string{
	store.TableAccounts, store.TableBlocks, store.TablePending,
	store.TableConfirmationHeight, store.TableUnchecked, store.TableMeta,
}

// Processor is the single-writer block-application queue.
type Processor struct {
	store    *store.Store
	ledger   *ledger.Ledger
	wq       *writequeue.Queue
	verifier *sigverify.Batcher
	cfg      Config
	collab   Collaborators
	logger   *slog.Logger

	mu           sync.Mutex
	cond         *sync.Cond
	queue        []queuedItem
	forced       []queuedItem
	verifPending int
	inFlight     int // popped but not yet committed
	stopped      bool
	running      bool

	doneCh chan struct{}
}

// New constructs a Processor. verifier may be nil only in tests that
// never submit state blocks.
func New(s *store.Store, l *ledger.Ledger, wq *writequeue.Queue, verifier *sigverify.Batcher, cfg Config, collab Collaborators, logger *slog.Logger) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.BatchMaxTime <= 0 {
		cfg.BatchMaxTime = DefaultConfig().BatchMaxTime
	}
	if cfg.FullSize <= 0 {
		cfg.FullSize = DefaultConfig().FullSize
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultConfig().RecentWindow
	}
	if cfg.Now == nil {
		cfg.Now = DefaultConfig().Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{store: s, ledger: l, wq: wq, verifier: verifier, cfg: cfg, collab: collab, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the dedicated processing loop.
func (p *Processor) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopped = false
	p.doneCh = make(chan struct{})
	p.mu.Unlock()
	go p.run()
}

// Stop signals the loop to exit once any in-flight batch finishes.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cond.Broadcast()
	done := p.doneCh
	p.mu.Unlock()
	<-done
}

// Add enqueues a block for normal processing. State-type blocks are
// routed through the batched verifier first; other variants enter the
// deque directly since legacy send/receive/change/open blocks resolve
// their signer from chain state the ledger alone can read.
func (p *Processor) Add(item Item) {
	if sb, ok := item.Block.(*blocks.StateBlock); ok && p.verifier != nil {
		p.mu.Lock()
		p.verifPending++
		p.mu.Unlock()
		go p.verifyThenQueue(sb, item)
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, queuedItem{item: item})
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Force overrides fork resolution for blk: if a different, uncemented
// block occupies the same chain position, it and its descendants are
// rolled back before blk is applied.
func (p *Processor) Force(blk blocks.Block) {
	p.mu.Lock()
	p.forced = append(p.forced, queuedItem{
		item:   Item{Block: blk, ArrivalTime: p.cfg.Now(), LocalOrigin: true},
		forced: true,
	})
	p.cond.Broadcast()
	p.mu.Unlock()
}

// verifyThenQueue submits a state block's dual-signer candidates to
// the batched verifier and, once a verdict is available, enters it
// into the main deque. The account key is tried before the epoch
// signer; either order distinguishes an epoch block from a mis-signed
// state block.
func (p *Processor) verifyThenQueue(sb *blocks.StateBlock, item Item) {
	hash := blocks.HashOf(sb)
	sig := sb.Signature()
	candidates := [][]byte{append([]byte(nil), sb.AccountField[:]...)}
	if epochSigner := p.ledger.EpochSigner(); epochSigner != sb.AccountField {
		candidates = append(candidates, append([]byte(nil), epochSigner[:]...))
	}
	res, err := p.verifier.VerifyOne(context.Background(), sigverify.Item{
		Message:    hash[:],
		Signature:  sig[:],
		Candidates: candidates,
	})
	if err != nil {
		p.logger.Error("signature verification failed", slog.Any("error", err), slog.Any("hash", hash))
	}
	p.mu.Lock()
	p.verifPending--
	p.queue = append(p.queue, queuedItem{item: item, verdict: &res})
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Processor) run() {
	defer close(p.doneCh)
	for {
		p.mu.Lock()
		for !p.stopped && len(p.queue) == 0 && len(p.forced) == 0 {
			p.cond.Wait()
		}
		if p.stopped {
			p.running = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		p.runBatch()
	}
}

// popNext returns the next item to process, forced items preferred.
func (p *Processor) popNext() (queuedItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.forced) > 0 {
		qi := p.forced[0]
		p.forced = p.forced[1:]
		p.inFlight++
		return qi, true
	}
	if len(p.queue) > 0 {
		qi := p.queue[0]
		p.queue = p.queue[1:]
		p.inFlight++
		return qi, true
	}
	return queuedItem{}, false
}

func (p *Processor) requeue(item Item) {
	p.mu.Lock()
	p.queue = append(p.queue, queuedItem{item: item})
	p.mu.Unlock()
}

// runBatch is one iteration of the processing loop: acquire the write
// lock, process up to BatchSize items
// or BatchMaxTime (whichever first) while no higher-priority writer
// is pending, commit, release, then run staged post-commit events.
func (p *Processor) runBatch() {
	p.wq.Acquire(writequeue.ClassProcessBatch)

	var events []func()
	err := p.store.Update(processingTables, func(tx *store.WriteTx) error {
		deadline := time.Now().Add(p.cfg.BatchMaxTime)
		count := 0
		for count < p.cfg.BatchSize && time.Now().Before(deadline) {
			if p.wq.AnyHigherPriorityWaiting(writequeue.ClassProcessBatch) {
				break
			}
			qi, ok := p.popNext()
			if !ok {
				break
			}
			ev, err := p.processOne(tx, qi)
			if err != nil {
				return err
			}
			if ev != nil {
				events = append(events, ev)
			}
			count++
		}
		return nil
	})
	p.wq.Release()

	if err != nil {
		p.logger.Error("block processor batch failed", slog.Any("error", err))
	} else {
		for _, ev := range events {
			ev()
		}
	}
	p.mu.Lock()
	p.inFlight = 0
	p.cond.Broadcast()
	p.mu.Unlock()
}

// processOne validates and applies one queued item inside tx,
// returning a post-commit event to run after the transaction lands.
func (p *Processor) processOne(tx *store.WriteTx, qi queuedItem) (func(), error) {
	item := qi.item
	blk := item.Block
	hash := blocks.HashOf(blk)

	var rolledBack []blocks.Hash
	if qi.forced {
		var err error
		rolledBack, err = p.resolveForcedFork(tx, blk)
		if err != nil {
			return nil, err
		}
	}

	var ev func()
	var err error
	if qi.verdict != nil && !anyVerified(qi.verdict.Verdicts) {
		ev, err = p.handleResult(tx, item, hash, ledger.BadSignature)
	} else {
		var res *ledger.Result
		res, err = p.ledger.Process(tx, blk, item.ArrivalTime)
		if err == nil {
			ev, err = p.handleResult(tx, item, hash, res.Code)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(rolledBack) == 0 {
		return ev, nil
	}
	inner := ev
	return func() {
		for _, h := range rolledBack {
			p.collab.rollback(h)
		}
		if inner != nil {
			inner()
		}
	}, nil
}

func anyVerified(verdicts []bool) bool {
	for _, v := range verdicts {
		if v {
			return true
		}
	}
	return false
}

// handleResult dispatches on a ledger.ProcessResult code.
func (p *Processor) handleResult(tx *store.WriteTx, item Item, hash blocks.Hash, code ledger.ResultCode) (func(), error) {
	blk := item.Block
	switch code {
	case ledger.Progress:
		if err := p.requeueUncheckedDependents(tx, hash); err != nil {
			return nil, err
		}
		recent := !item.LocalOrigin && item.ArrivalTime != 0 &&
			time.Now().Unix()-int64(item.ArrivalTime) < int64(p.cfg.RecentWindow/time.Second)
		if recent {
			return func() { p.collab.progress(hash, blk, true) }, nil
		}
		return nil, nil

	case ledger.GapPrevious, ledger.GapSource:
		missing := missingDependency(blk, code)
		if missing == blocks.ZeroHash {
			return nil, nil
		}
		raw, err := blocks.Marshal(blk)
		if err != nil {
			return nil, err
		}
		if err := tx.PutUnchecked(missing, hash, store.UncheckedInfo{
			Block:             raw,
			SignerHint:        item.SignerHint,
			ArrivalTime:       item.ArrivalTime,
			VerificationState: 0,
		}); err != nil {
			return nil, err
		}
		return nil, nil

	case ledger.Fork:
		return func() { p.collab.fork(hash, blk) }, nil

	case ledger.Old:
		return func() { p.collab.old(hash, blk, item.LocalOrigin) }, nil

	case ledger.BadSignature:
		// Kept in unchecked self-keyed on its own hash so nothing
		// naturally requeues it — it never becomes applicable on its
		// own — but a legitimate sibling taking the same chain
		// position can still be applied, and the age-based cleanup
		// sweep eventually reclaims the entry.
		raw, err := blocks.Marshal(blk)
		if err != nil {
			return nil, err
		}
		if err := tx.PutUnchecked(hash, hash, store.UncheckedInfo{
			Block:             raw,
			SignerHint:        item.SignerHint,
			ArrivalTime:       item.ArrivalTime,
			VerificationState: 2,
		}); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		// NegativeSpend, Unreceivable, OpenedBurnAccount,
		// BalanceMismatch, RepresentativeMismatch, BlockPosition,
		// InsufficientWork: dropped.
		return nil, nil
	}
}

func missingDependency(blk blocks.Block, code ledger.ResultCode) blocks.Hash {
	if code == ledger.GapPrevious {
		return blk.Previous()
	}
	switch b := blk.(type) {
	case *blocks.OpenBlock:
		return b.Source
	case *blocks.ReceiveBlock:
		return b.Source
	case *blocks.StateBlock:
		return b.Link
	default:
		return blocks.ZeroHash
	}
}

// requeueUncheckedDependents moves every unchecked entry blocked on
// hash back onto the main deque now that hash has been applied.
func (p *Processor) requeueUncheckedDependents(tx *store.WriteTx, hash blocks.Hash) error {
	entries, err := tx.TakeUncheckedFor(hash)
	if err != nil {
		return err
	}
	for _, e := range entries {
		blk, err := blocks.Unmarshal(e.Info.Block)
		if err != nil {
			p.logger.Warn("dropping unparseable unchecked entry", slog.Any("error", err))
			continue
		}
		p.requeue(Item{
			Block:       blk,
			SignerHint:  e.Info.SignerHint,
			ArrivalTime: e.Info.ArrivalTime,
		})
	}
	return nil
}

// resolveForcedFork implements the Force override: if blk's chain
// position is already occupied by a different, uncemented block, that
// block and its descendants are rolled back first. It returns the
// hashes of the removed blocks so the caller can notify the rollback
// collaborator after commit.
func (p *Processor) resolveForcedFork(tx *store.WriteTx, blk blocks.Block) ([]blocks.Hash, error) {
	prev := blk.Previous()
	if prev == blocks.ZeroHash {
		return nil, nil
	}
	prevSb, ok, err := tx.GetSideband(prev)
	if err != nil || !ok {
		return nil, nil
	}
	occupant := prevSb.Successor
	if occupant == blocks.ZeroHash || occupant == blocks.HashOf(blk) {
		return nil, nil
	}
	occupantSb, ok, err := tx.GetSideband(occupant)
	if err != nil || !ok {
		return nil, nil
	}
	ch, ok, err := tx.GetConfirmationHeight(occupantSb.Account)
	if err != nil {
		return nil, err
	}
	if ok && occupantSb.Height <= ch.Height {
		return nil, nil // occupant is cemented; force() cannot displace it
	}
	removed, err := p.ledger.Rollback(tx, occupant)
	if err != nil {
		return nil, err
	}
	hashes := make([]blocks.Hash, len(removed))
	for i, r := range removed {
		hashes[i] = blocks.HashOf(r)
	}
	return hashes, nil
}

// Size is the saturation metric:
// queue_depth + verification_pending + forced_pending.
func (p *Processor) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) + len(p.forced) + p.verifPending
}

func (p *Processor) idleLocked() bool {
	return len(p.queue) == 0 && len(p.forced) == 0 && p.verifPending == 0 && p.inFlight == 0
}

// Full reports whether Size has reached cfg.FullSize.
func (p *Processor) Full() bool { return p.Size() >= p.cfg.FullSize }

// HalfFull reports whether Size has reached half of cfg.FullSize.
func (p *Processor) HalfFull() bool { return p.Size() >= p.cfg.FullSize/2 }

// Flush blocks until the processor is idle: no queued, forced,
// in-flight-verification, or popped-but-uncommitted items remain.
func (p *Processor) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.idleLocked() {
		p.cond.Wait()
	}
}
