package ledger

import (
	"log/slog"
	"sync"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
)

// Config holds the network-wide constants the ledger needs to
// validate blocks: the epoch signer, the per-epoch link constants
// that mark an upgrade, and the per-epoch work thresholds.
type Config struct {
	// EpochSigner verifies every epoch-upgrade block, regardless of
	// which epoch it upgrades to.
	EpochSigner blocks.Account
	// EpochLinks[e] is the link constant that upgrades an account to
	// epoch e. EpochLinks[0] is unused (epoch_0 is the baseline every
	// account starts at; there is no link that upgrades "to" it).
	EpochLinks []blocks.Hash
	// Thresholds[e] is the base/receive work floor for epoch e
	// (blocks.ThresholdFor).
	Thresholds []blocks.Threshold
	// MaxEpoch is the highest normalized epoch index this binary
	// understands.
	MaxEpoch uint8
	// EpochUpgradeBatchSize is the default cap on how many accounts
	// EpochCandidates returns when its batchSize argument is <= 0.
	EpochUpgradeBatchSize int
}

// epochForLink returns the epoch a link upgrades to, and whether link
// is a recognized epoch link at all.
func (c Config) epochForLink(link blocks.Hash) (epoch uint8, ok bool) {
	for e := 1; e < len(c.EpochLinks); e++ {
		if c.EpochLinks[e] != blocks.ZeroHash && c.EpochLinks[e] == link {
			return uint8(e), true
		}
	}
	return 0, false
}

// Cache holds the read-only counters and representative-weight table.
// Representative weights have no on-disk table of their own: Ledger
// rebuilds them by scanning accounts on open and mutates them under
// the same write transaction that changes a delegated balance or
// representative. The aggregate counters are the meta table's, which
// every store mutation maintains inside its own write transaction.
type Cache struct {
	mu         sync.RWMutex
	repWeights map[blocks.Account]blocks.Amount
	store      *store.Store
}

func newCache(s *store.Store) *Cache {
	return &Cache{repWeights: make(map[blocks.Account]blocks.Amount), store: s}
}

// Counters returns one consistent snapshot of the cached aggregate
// counts: block_count, cemented_count, account_count, unchecked_count.
func (c *Cache) Counters() (store.Counters, error) {
	return c.store.Counters()
}

// BlockCount returns the cached total number of stored blocks.
func (c *Cache) BlockCount() uint64 {
	n, _ := c.store.Counters()
	return n.BlockCount
}

// CementedCount returns the cached Σ confirmation_height over accounts.
func (c *Cache) CementedCount() uint64 {
	n, _ := c.store.Counters()
	return n.CementedCount
}

// AccountCount returns the cached number of opened accounts.
func (c *Cache) AccountCount() uint64 {
	n, _ := c.store.Counters()
	return n.AccountCount
}

// UncheckedCount returns the cached number of unchecked entries.
func (c *Cache) UncheckedCount() uint64 {
	n, _ := c.store.Counters()
	return n.UncheckedCount
}

// RepWeight returns the total balance currently delegated to rep.
func (c *Cache) RepWeight(rep blocks.Account) blocks.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repWeights[rep]
}

// RepWeights returns a snapshot copy of the full table.
func (c *Cache) RepWeights() map[blocks.Account]blocks.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[blocks.Account]blocks.Amount, len(c.repWeights))
	for k, v := range c.repWeights {
		out[k] = v
	}
	return out
}

func (c *Cache) adjust(rep blocks.Account, delta blocks.Amount, negative bool) {
	if delta.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.repWeights[rep]
	var next blocks.Amount
	var err error
	if negative {
		next, err = cur.Sub(delta)
		if err != nil {
			next = blocks.Amount{} // weights only ever track what the ledger itself credited; underflow here is a bug.
		}
	} else {
		next, err = cur.Add(delta)
		if err != nil {
			next = cur
		}
	}
	if next.IsZero() {
		delete(c.repWeights, rep)
	} else {
		c.repWeights[rep] = next
	}
}

// Ledger is the handle for pure validate/apply/rollback/query
// functions over an explicit store transaction, plus the in-process
// Cache.
type Ledger struct {
	cfg    Config
	cache  *Cache
	logger *slog.Logger
}

// New constructs a Ledger and rebuilds its rep-weight cache by
// scanning s's accounts table (called once at node startup, after
// store.Open).
func New(s *store.Store, cfg Config, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{cfg: cfg, cache: newCache(s), logger: logger}
	if err := s.View(func(tx *store.ReadTx) error {
		return tx.ForEachAccount(func(_ blocks.Account, info store.AccountInfo) error {
			l.cache.adjust(info.Representative, info.Balance, false)
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return l, nil
}

// Cache exposes the read-only counters/rep_weights view.
func (l *Ledger) Cache() *Cache { return l.cache }
