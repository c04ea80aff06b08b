package blockprocessor

import (
	"context"
	"log/slog"
	"time"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
	"github.com/FutureHeadCoin/futurehead-node-sub001/writequeue"
)

// CleanupConfig tunes the unchecked-aging sweep.
type CleanupConfig struct {
	Enabled    bool
	Interval   time.Duration
	CutoffTime time.Duration
}

func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:    true,
		Interval:   time.Hour,
		CutoffTime: 4 * 24 * time.Hour,
	}
}

// RunUncheckedCleanup runs a ticker loop that deletes unchecked
// entries older than cfg.CutoffTime. The deletion path is optional —
// bootstrap traces may intentionally retain unchecked entries — and
// when disabled this returns immediately. Blocks until ctx is
// cancelled.
func (p *Processor) RunUncheckedCleanup(ctx context.Context, cfg CleanupConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCleanupConfig().Interval
	}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.sweepUnchecked(cfg.CutoffTime); err != nil {
				p.logger.Error("unchecked cleanup sweep failed", slog.Any("error", err))
			}
		}
	}
}

func (p *Processor) sweepUnchecked(cutoffAge time.Duration) error {
	cutoff := uint64(time.Now().Add(-cutoffAge).Unix())

	var stale []staleEntry
	if err := p.store.View(func(tx *store.ReadTx) error {
		return tx.ForEachUncheckedOlderThan(cutoff, func(dependency, blockHash blocks.Hash) error {
			stale = append(stale, staleEntry{dependency: dependency, blockHash: blockHash})
			return nil
		})
	}); err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	p.wq.Acquire(writequeue.ClassTesting)
	defer p.wq.Release()
	return p.store.Update([]string{store.TableUnchecked, store.TableMeta}, func(tx *store.WriteTx) error {
		for _, e := range stale {
			if err := tx.DelUnchecked(e.dependency, e.blockHash); err != nil {
				return err
			}
		}
		return nil
	})
}

type staleEntry struct {
	dependency blocks.Hash
	blockHash  blocks.Hash
}
