package votecache

import (
	"crypto/ed25519"
	"log/slog"
	"sync"
	"time"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
	"github.com/FutureHeadCoin/futurehead-node-sub001/writequeue"
)

// LocalRep is one representative this node votes as. The private key
// is supplied by the external wallet; this core only uses it to sign
// votes.
type LocalRep struct {
	Account blocks.Account
	Key     ed25519.PrivateKey
}

// GeneratorConfig tunes request batching.
type GeneratorConfig struct {
	// Delay is how long a pending request may wait for company before
	// a vote is generated anyway.
	Delay time.Duration
	// Threshold is the batch size that triggers immediate generation
	// without waiting out the delay.
	Threshold int
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{Delay: 100 * time.Millisecond, Threshold: 3}
}

// Generator batches vote requests into multi-hash votes, one per local
// representative, with a per-representative sequence number persisted
// in the vote table so restarts never regress it.
type Generator struct {
	store  *store.Store
	wq     *writequeue.Queue
	cache  *Cache
	cfg    GeneratorConfig
	reps   []LocalRep
	logger *slog.Logger

	// Broadcast receives every generated vote; nil drops them (the
	// network flood collaborator is external).
	Broadcast func(*Vote)
	// CanVote, when non-nil, gates each requested hash (wired to
	// ledger.CanVote by the node).
	CanVote func(blocks.Hash) bool

	mu      sync.Mutex
	cond    *sync.Cond
	pending []blocks.Hash
	seqs    map[blocks.Account]uint64
	busy    bool
	stopped bool
	running bool
	doneCh  chan struct{}
}

// NewGenerator loads each representative's persisted sequence and
// returns a generator ready to Start.
func NewGenerator(s *store.Store, wq *writequeue.Queue, cache *Cache, cfg GeneratorConfig, reps []LocalRep, logger *slog.Logger) (*Generator, error) {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultGeneratorConfig().Delay
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultGeneratorConfig().Threshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{store: s, wq: wq, cache: cache, cfg: cfg, reps: reps, logger: logger, seqs: make(map[blocks.Account]uint64)}
	g.cond = sync.NewCond(&g.mu)
	if err := s.View(func(tx *store.ReadTx) error {
		for _, rep := range reps {
			info, ok, err := tx.GetVote(rep.Account)
			if err != nil {
				return err
			}
			if ok {
				g.seqs[rep.Account] = info.Sequence
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// Start launches the batching timer goroutine.
func (g *Generator) Start() {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	g.running = true
	g.stopped = false
	g.doneCh = make(chan struct{})
	g.mu.Unlock()
	go g.run()
}

// Stop signals the loop to exit once the current batch (if any)
// finishes; pending requests that never reached a batch are dropped.
func (g *Generator) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	done := g.doneCh
	g.cond.Broadcast()
	g.mu.Unlock()
	<-done
}

// Add requests a vote for hash.
func (g *Generator) Add(hash blocks.Hash) {
	if g.CanVote != nil && !g.CanVote(hash) {
		return
	}
	g.mu.Lock()
	g.pending = append(g.pending, hash)
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Flush blocks until every pending request has been voted on.
func (g *Generator) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for len(g.pending) > 0 || g.busy {
		g.cond.Wait()
	}
}

func (g *Generator) run() {
	defer close(g.doneCh)
	for {
		g.mu.Lock()
		for !g.stopped && len(g.pending) == 0 {
			g.cond.Wait()
		}
		if g.stopped {
			g.mu.Unlock()
			return
		}
		firstAt := time.Now()
		g.mu.Unlock()

		// Let the batch fill until Threshold or Delay, whichever first.
		for {
			g.mu.Lock()
			n := len(g.pending)
			g.mu.Unlock()
			if n >= g.cfg.Threshold || time.Since(firstAt) >= g.cfg.Delay {
				break
			}
			time.Sleep(g.cfg.Delay / 10)
		}

		g.mu.Lock()
		n := len(g.pending)
		if n > MaxHashesPerVote {
			n = MaxHashesPerVote
		}
		batch := make([]blocks.Hash, n)
		copy(batch, g.pending[:n])
		g.pending = g.pending[n:]
		g.busy = true
		g.mu.Unlock()

		if err := g.generate(batch); err != nil {
			g.logger.Error("vote generation failed", slog.Any("error", err))
		}

		g.mu.Lock()
		g.busy = false
		g.cond.Broadcast()
		g.mu.Unlock()
	}
}

// generate issues one vote per local representative covering batch,
// persisting each new sequence number before the vote is released.
func (g *Generator) generate(batch []blocks.Hash) error {
	if len(g.reps) == 0 {
		return nil
	}
	votes := make([]*Vote, 0, len(g.reps))
	for _, rep := range g.reps {
		g.mu.Lock()
		seq := g.seqs[rep.Account] + 1
		g.mu.Unlock()
		v := &Vote{Account: rep.Account, Sequence: seq, Hashes: batch}
		v.Sign(rep.Key)
		votes = append(votes, v)
	}

	g.wq.Acquire(writequeue.ClassVoteGenerator)
	err := g.store.Update([]string{store.TableVote}, func(tx *store.WriteTx) error {
		for _, v := range votes {
			if err := tx.PutVote(v.Account, store.VoteInfo{
				Sequence:  v.Sequence,
				Hashes:    v.Hashes,
				Signature: v.Signature,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	g.wq.Release()
	if err != nil {
		return err
	}
	g.mu.Lock()
	for _, v := range votes {
		g.seqs[v.Account] = v.Sequence
	}
	g.mu.Unlock()

	for _, v := range votes {
		if g.cache != nil {
			g.cache.Add(v)
		}
		if g.Broadcast != nil {
			g.Broadcast(v)
		}
	}
	return nil
}

// Sequence reports the current persisted sequence for rep; zero if rep
// has never voted.
func (g *Generator) Sequence(rep blocks.Account) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seqs[rep]
}
