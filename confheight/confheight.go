// Package confheight implements the cementation pipeline, in bounded
// and unbounded strategies: it walks an account chain backward from a
// newly-confirmed block to the existing cemented frontier, recursing
// into other accounts through receive→source links, and raises
// confirmation_height along the way.
//
// Both strategies share one dependency-stack walk and differ in where
// the walk runs relative to the write lock: the bounded strategy walks
// and cements inside the write transaction, committing at most
// BatchWriteSize cementations per transaction and yielding to
// higher-priority writers between batches; the unbounded strategy
// walks the entire cascade under a read transaction, accumulating
// pending write entries in memory, then commits them all under the
// write lock, re-verifying each block still exists at write time.
// Both walk back one hash at a time with an explicit stack rather
// than recursion, so deep chains cannot exhaust the goroutine stack.
package confheight

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/config"
	"github.com/FutureHeadCoin/futurehead-node-sub001/sideband"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
	"github.com/FutureHeadCoin/futurehead-node-sub001/writequeue"
)

// Callbacks are the outbound notifications the processor fires after each
// transaction commits, never while holding the write lock.
// OnCemented fires once per newly cemented block, in cement order.
type Callbacks struct {
	OnCemented        func(hash blocks.Hash, account blocks.Account)
	OnAlreadyCemented func(hash blocks.Hash)
}

func (c Callbacks) cemented(hash blocks.Hash, account blocks.Account) {
	if c.OnCemented != nil {
		c.OnCemented(hash, account)
	}
}

func (c Callbacks) alreadyCemented(hash blocks.Hash) {
	if c.OnAlreadyCemented != nil {
		c.OnAlreadyCemented(hash)
	}
}

// Config mirrors the config.Config fields governing C7/C8.
type Config struct {
	Mode            config.ConfHeightMode
	UnboundedCutoff uint64
	BatchWriteSize  uint64
	BatchMinTime    time.Duration
}

func ConfigFrom(c config.Config) Config {
	return Config{
		Mode:            c.ConfHeightProcessorMode,
		UnboundedCutoff: c.ConfHeightUnboundedCutoff,
		BatchWriteSize:  c.ConfHeightBatchWriteSize,
		BatchMinTime:    c.ConfHeightBatchMinTime,
	}
}

var tables = []string{store.TableBlocks, store.TableConfirmationHeight, store.TableMeta}

// Processor is the single consumer of cementation requests.
type Processor struct {
	store  *store.Store
	wq     *writequeue.Queue
	cfg    Config
	cb     Callbacks
	logger *slog.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	input       []blocks.Hash
	paused      bool
	current     *blocks.Hash
	lastBatchAt time.Time
	stopped     bool
	running     bool
	doneCh      chan struct{}
}

func New(s *store.Store, wq *writequeue.Queue, cfg Config, cb Callbacks, logger *slog.Logger) *Processor {
	if cfg.BatchWriteSize == 0 {
		cfg.BatchWriteSize = 16384
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{store: s, wq: wq, cfg: cfg, cb: cb, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutine.
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

// Stop signals the worker to exit after finishing any in-flight walk.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	done := p.doneCh
	p.cond.Broadcast()
	p.mu.Unlock()
	<-done
}

// Add enqueues hash for cementation.
func (p *Processor) Add(hash blocks.Hash) {
	p.mu.Lock()
	p.input = append(p.input, hash)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Pause stops new walks from starting; any walk already in flight
// runs to completion.
func (p *Processor) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Processor) Unpause() {
	p.mu.Lock()
	p.paused = false
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Current reports the hash the active walk is positioned at, if any.
func (p *Processor) Current() (blocks.Hash, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return blocks.ZeroHash, false
	}
	return *p.current, true
}

// Flush blocks until the input queue drains and no walk is in flight.
func (p *Processor) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.input) > 0 || p.current != nil {
		p.cond.Wait()
	}
}

func (p *Processor) run() {
	defer close(p.doneCh)
	for {
		p.mu.Lock()
		for !p.stopped && (p.paused || len(p.input) == 0) {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		if p.paused {
			p.mu.Unlock()
			continue
		}
		hash := p.input[0]
		p.input = p.input[1:]
		p.current = &hash
		p.mu.Unlock()

		if err := p.processHash(hash); err != nil {
			p.logger.Error("confirmation height walk failed", slog.Any("error", err), slog.String("hash", fmt.Sprintf("%x", hash)))
		}

		p.mu.Lock()
		p.current = nil
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// frame is one chain the walk still owes cementations on; cur is the
// highest block of that chain the walk is responsible for.
type frame struct {
	account blocks.Account
	cur     blocks.Hash
}

type cementedEvent struct {
	hash    blocks.Hash
	account blocks.Account
}

// processHash resolves one top-level cementation request: it first
// checks whether the hash is already cemented (no write lock needed),
// then picks bounded or unbounded mode and drains the resulting
// dependency stack.
func (p *Processor) processHash(hash blocks.Hash) error {
	var account blocks.Account
	var targetHeight, curHeight uint64
	if err := p.store.View(func(tx *store.ReadTx) error {
		sb, ok, err := tx.GetSideband(hash)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("confheight: block %x not found", hash)
		}
		account = sb.Account
		targetHeight = sb.Height
		ch, _, err := tx.GetConfirmationHeight(account)
		if err != nil {
			return err
		}
		curHeight = ch.Height
		return nil
	}); err != nil {
		return err
	}
	if targetHeight <= curHeight {
		p.cb.alreadyCemented(hash)
		return nil
	}

	mode := p.cfg.Mode
	if mode == config.ConfHeightAutomatic {
		if targetHeight-curHeight < p.cfg.UnboundedCutoff {
			mode = config.ConfHeightBounded
		} else {
			mode = config.ConfHeightUnbounded
		}
	}

	if mode == config.ConfHeightUnbounded {
		return p.processUnbounded(frame{account: account, cur: hash})
	}
	return p.processBounded(frame{account: account, cur: hash})
}

// processBounded walks and cements inside the write
// transaction, at most BatchWriteSize cementations per transaction,
// yielding the write lock between batches and whenever a
// higher-priority writer (block processing) is waiting.
func (p *Processor) processBounded(top frame) error {
	stack := []frame{top}
	for len(stack) > 0 {
		if p.cfg.BatchMinTime > 0 {
			if wait := p.cfg.BatchMinTime - time.Since(p.lastBatchAt); wait > 0 {
				time.Sleep(wait)
			}
		}

		p.wq.Acquire(writequeue.ClassConfirmationHeight)
		var events []cementedEvent
		err := p.store.Update(tables, func(tx *store.WriteTx) error {
			var werr error
			stack, events, werr = cementBatch(tx, stack, p.cfg.BatchWriteSize, p.wq)
			return werr
		})
		p.wq.Release()
		p.lastBatchAt = time.Now()
		if err != nil {
			return err
		}

		for _, e := range events {
			p.cb.cemented(e.hash, e.account)
		}
	}
	return nil
}

// cementBatch advances stack until either it empties, maxSteps blocks
// have been cemented, or a higher-priority writer is waiting. For the
// top frame it walks the chain backward from frame.cur to the cemented
// frontier collecting the contiguous run of uncemented ancestors; a
// receive anywhere in the run whose source chain is itself uncemented
// suspends this frame and pushes the source's frame instead. Only
// once the run reaches the frontier is it cemented,
// lowest block first, so an ancestor is always cemented before any
// block that depends on it.
func cementBatch(tx *store.WriteTx, stack []frame, maxSteps uint64, wq *writequeue.Queue) ([]frame, []cementedEvent, error) {
	var events []cementedEvent
	for len(stack) > 0 {
		if maxSteps > 0 && uint64(len(events)) >= maxSteps {
			break
		}
		if wq.AnyHigherPriorityWaiting(writequeue.ClassConfirmationHeight) && len(events) > 0 {
			break
		}

		top := stack[len(stack)-1]
		ch, _, err := tx.GetConfirmationHeight(top.account)
		if err != nil {
			return stack, events, err
		}
		topSb, ok, err := tx.GetSideband(top.cur)
		if err != nil {
			return stack, events, err
		}
		if !ok {
			return stack, events, fmt.Errorf("confheight: block %x missing mid-walk", top.cur)
		}
		if topSb.Height <= ch.Height {
			stack = stack[:len(stack)-1]
			continue
		}

		// Collect the run top.cur .. frontier+1 (top-down order).
		run := make([]blocks.Hash, 0, topSb.Height-ch.Height)
		cur := top.cur
		pushed := false
		for {
			blk, sb, ok, err := tx.GetBlock(cur)
			if err != nil {
				return stack, events, err
			}
			if !ok {
				return stack, events, fmt.Errorf("confheight: block %x missing mid-walk", cur)
			}
			if dep, isReceive := receiveSource(blk, sb); isReceive {
				depSb, depOk, err := tx.GetSideband(dep)
				if err != nil {
					return stack, events, err
				}
				if !depOk {
					return stack, events, fmt.Errorf("confheight: source %x of receive %x missing", dep, cur)
				}
				depCh, _, err := tx.GetConfirmationHeight(depSb.Account)
				if err != nil {
					return stack, events, err
				}
				if depSb.Height > depCh.Height {
					stack = append(stack, frame{account: depSb.Account, cur: dep})
					pushed = true
					break
				}
			}
			run = append(run, cur)
			if sb.Height == ch.Height+1 {
				break
			}
			cur = blk.Previous()
		}
		if pushed {
			continue
		}

		// Cement the lowest n blocks of the run, within this batch's
		// remaining budget.
		n := len(run)
		if maxSteps > 0 {
			if remaining := int(maxSteps) - len(events); n > remaining {
				n = remaining
			}
		}
		if n == 0 {
			break
		}
		newHeight := ch.Height + uint64(n)
		frontier := run[len(run)-n]
		if err := tx.CementTo(top.account, newHeight, frontier); err != nil {
			return stack, events, err
		}
		for i := len(run) - 1; i >= len(run)-n; i-- {
			events = append(events, cementedEvent{hash: run[i], account: top.account})
		}
		if n == len(run) {
			stack = stack[:len(stack)-1]
		}
	}
	return stack, events, nil
}

// pendingWrite is one account's accumulated cementation, built in
// memory by the unbounded walk before any disk write. hashes holds
// the newly cemented blocks bottom-up.
type pendingWrite struct {
	account   blocks.Account
	newHeight uint64
	frontier  blocks.Hash
	hashes    []blocks.Hash
}

// processUnbounded plans the entire cascade under a
// read transaction, then commit every pending write under the write
// lock. Commit re-verifies each planned block still exists; a block
// rolled back between planning and commit aborts the whole batch.
func (p *Processor) processUnbounded(top frame) error {
	var writes []pendingWrite
	if err := p.store.View(func(tx *store.ReadTx) error {
		var err error
		writes, err = planCascade(tx, top)
		return err
	}); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	return p.commitPending(writes)
}

// planCascade runs the dependency-stack walk read-only, accumulating
// one pendingWrite per completed frame, in dependency order (a
// receive's source chain always precedes the chain that receives from
// it). planned tracks heights this cascade will raise but has not yet
// written, so a later frame on the same account sees the effective
// frontier.
func planCascade(tx *store.ReadTx, top frame) ([]pendingWrite, error) {
	var writes []pendingWrite
	planned := make(map[blocks.Account]uint64)

	effectiveHeight := func(account blocks.Account) (uint64, error) {
		ch, _, err := tx.GetConfirmationHeight(account)
		if err != nil {
			return 0, err
		}
		if h, ok := planned[account]; ok && h > ch.Height {
			return h, nil
		}
		return ch.Height, nil
	}

	stack := []frame{top}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		base, err := effectiveHeight(cur.account)
		if err != nil {
			return nil, err
		}
		curSb, ok, err := tx.GetSideband(cur.cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("confheight: block %x missing mid-walk", cur.cur)
		}
		if curSb.Height <= base {
			stack = stack[:len(stack)-1]
			continue
		}

		run := make([]blocks.Hash, 0, curSb.Height-base)
		walk := cur.cur
		pushed := false
		for {
			blk, sb, ok, err := tx.GetBlock(walk)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("confheight: block %x missing mid-walk", walk)
			}
			if dep, isReceive := receiveSource(blk, sb); isReceive {
				depSb, depOk, err := tx.GetSideband(dep)
				if err != nil {
					return nil, err
				}
				if !depOk {
					return nil, fmt.Errorf("confheight: source %x of receive %x missing", dep, walk)
				}
				depBase, err := effectiveHeight(depSb.Account)
				if err != nil {
					return nil, err
				}
				if depSb.Height > depBase {
					stack = append(stack, frame{account: depSb.Account, cur: dep})
					pushed = true
					break
				}
			}
			run = append(run, walk)
			if sb.Height == base+1 {
				break
			}
			walk = blk.Previous()
		}
		if pushed {
			continue
		}

		// Frame complete: record it bottom-up and mark its planned height.
		hashes := make([]blocks.Hash, 0, len(run))
		for i := len(run) - 1; i >= 0; i-- {
			hashes = append(hashes, run[i])
		}
		writes = append(writes, pendingWrite{
			account:   cur.account,
			newHeight: base + uint64(len(run)),
			frontier:  run[0],
			hashes:    hashes,
		})
		planned[cur.account] = base + uint64(len(run))
		stack = stack[:len(stack)-1]
	}
	return writes, nil
}

// commitPending applies planned writes under the write lock, chunked
// by BatchWriteSize cementations per transaction but never splitting
// dependency order. Every planned block is re-verified to still exist
// and to still belong to the account the plan recorded — nothing is
// cemented that the walk itself did not reach.
func (p *Processor) commitPending(writes []pendingWrite) error {
	i := 0
	for i < len(writes) {
		p.wq.Acquire(writequeue.ClassConfirmationHeight)
		var events []cementedEvent
		err := p.store.Update(tables, func(tx *store.WriteTx) error {
			var steps uint64
			for i < len(writes) && (steps == 0 || steps < p.cfg.BatchWriteSize) {
				w := writes[i]
				for _, h := range w.hashes {
					sb, ok, err := tx.GetSideband(h)
					if err != nil {
						return err
					}
					if !ok || sb.Account != w.account {
						return fmt.Errorf("confheight: planned block %x disappeared before commit", h)
					}
				}
				if err := tx.CementTo(w.account, w.newHeight, w.frontier); err != nil {
					return err
				}
				for _, h := range w.hashes {
					events = append(events, cementedEvent{hash: h, account: w.account})
				}
				steps += uint64(len(w.hashes))
				i++
			}
			return nil
		})
		p.wq.Release()
		p.lastBatchAt = time.Now()
		if err != nil {
			return err
		}
		for _, e := range events {
			p.cb.cemented(e.hash, e.account)
		}
	}
	return nil
}

// receiveSource reports the source-block hash a receive-type block
// depends on. Legacy open/receive blocks are always receives; state
// blocks only when their sideband details say so.
func receiveSource(blk blocks.Block, sb sideband.Sideband) (blocks.Hash, bool) {
	switch b := blk.(type) {
	case *blocks.OpenBlock:
		return b.Source, true
	case *blocks.ReceiveBlock:
		return b.Source, true
	case *blocks.StateBlock:
		if sb.Details.IsReceive {
			return b.Link, true
		}
	}
	return blocks.ZeroHash, false
}
