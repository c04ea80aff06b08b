package confheight

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/config"
	"github.com/FutureHeadCoin/futurehead-node-sub001/store"
)

// ScannerConfig tunes the priority frontier scanner.
type ScannerConfig struct {
	Mode     config.FrontiersConfirmation
	Interval time.Duration
	// MaxFrontiers caps how many ordinary frontiers one sweep hands to
	// the processor.
	MaxFrontiers int
	// MaxPriorityFrontiers caps the separate track for accounts whose
	// private key is held locally.
	MaxPriorityFrontiers int
}

func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Mode:                 config.FrontiersConfirmationAutomatic,
		Interval:             30 * time.Second,
		MaxFrontiers:         1024,
		MaxPriorityFrontiers: 100,
	}
}

// Scanner is the background driver that lets long-dormant unconfirmed
// chains reach the confirmation-height processor without an explicit
// request.
type Scanner struct {
	store  *store.Store
	proc   *Processor
	cfg    ScannerConfig
	logger *slog.Logger

	// IsLocal reports whether an account's private key is held by the
	// local wallet (an external collaborator); nil means no local
	// accounts.
	IsLocal func(blocks.Account) bool
	// Submit receives each selected frontier head. Defaults to
	// proc.Add; a caller may replace it before Run.
	Submit func(blocks.Hash)
}

func NewScanner(s *store.Store, proc *Processor, cfg ScannerConfig, logger *slog.Logger) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultScannerConfig().Interval
	}
	if cfg.MaxFrontiers <= 0 {
		cfg.MaxFrontiers = DefaultScannerConfig().MaxFrontiers
	}
	if logger == nil {
		logger = slog.Default()
	}
	sc := &Scanner{store: s, proc: proc, cfg: cfg, logger: logger}
	sc.Submit = proc.Add
	return sc
}

// Run blocks until ctx is cancelled, sweeping once per Interval. With
// Mode disabled it returns immediately.
func (s *Scanner) Run(ctx context.Context) {
	if s.cfg.Mode == config.FrontiersConfirmationDisabled {
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(); err != nil {
				s.logger.Error("frontier scan failed", slog.Any("error", err))
			}
		}
	}
}

type frontierCandidate struct {
	head       blocks.Hash
	uncemented uint64
}

// Sweep performs one scan: every account whose block_count exceeds its
// confirmation height is a candidate, prioritized by uncemented-block
// count, with locally held accounts on their own bounded track.
func (s *Scanner) Sweep() error {
	var ordinary, local []frontierCandidate
	if err := s.store.View(func(tx *store.ReadTx) error {
		return tx.ForEachAccount(func(account blocks.Account, info store.AccountInfo) error {
			ch, _, err := tx.GetConfirmationHeight(account)
			if err != nil {
				return err
			}
			if info.BlockCount <= ch.Height {
				return nil
			}
			c := frontierCandidate{head: info.Head, uncemented: info.BlockCount - ch.Height}
			if s.IsLocal != nil && s.IsLocal(account) {
				local = append(local, c)
			} else {
				ordinary = append(ordinary, c)
			}
			return nil
		})
	}); err != nil {
		return err
	}

	sort.Slice(ordinary, func(i, j int) bool { return ordinary[i].uncemented > ordinary[j].uncemented })
	sort.Slice(local, func(i, j int) bool { return local[i].uncemented > local[j].uncemented })

	if s.cfg.MaxPriorityFrontiers > 0 && len(local) > s.cfg.MaxPriorityFrontiers {
		local = local[:s.cfg.MaxPriorityFrontiers]
	}
	if len(ordinary) > s.cfg.MaxFrontiers {
		ordinary = ordinary[:s.cfg.MaxFrontiers]
	}

	for _, c := range local {
		s.Submit(c.head)
	}
	for _, c := range ordinary {
		s.Submit(c.head)
	}
	return nil
}
