// Package config holds the node's tunables, assembled by Default and
// checked by Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConfHeightMode selects the bounded or unbounded cementation
// strategy, or automatic per-hash selection between them.
type ConfHeightMode string

const (
	ConfHeightBounded   ConfHeightMode = "bounded"
	ConfHeightUnbounded ConfHeightMode = "unbounded"
	ConfHeightAutomatic ConfHeightMode = "automatic"
)

// FrontiersConfirmation controls whether the priority-frontier
// scanner drives elections on uncemented accounts.
type FrontiersConfirmation string

const (
	FrontiersConfirmationDisabled  FrontiersConfirmation = "disabled"
	FrontiersConfirmationAutomatic FrontiersConfirmation = "automatic"
	FrontiersConfirmationAlways    FrontiersConfirmation = "always"
)

// Config collects every option that affects core behavior.
type Config struct {
	Network string
	DataDir string

	FrontiersConfirmation FrontiersConfirmation

	ConfHeightProcessorMode    ConfHeightMode
	ConfHeightUnboundedCutoff  uint64 // automatic-mode boundary; storage-dependent, so a tunable rather than a constant.
	ConfHeightBatchWriteSize   uint64
	ConfHeightBatchMinTime     time.Duration
	MaxPriorityCementableFrontiers int

	BlockProcessorBatchSize        int
	BlockProcessorBatchMaxTime     time.Duration
	BlockProcessorVerificationSize int
	BlockProcessorFullSize         int

	UncheckedCutoffTime time.Duration
	UncheckedCleanupEnabled bool

	MaxWorkGenerateMultiplier uint64

	VoteGeneratorDelay     time.Duration
	VoteGeneratorThreshold int
	VoteCacheMax           int

	OnlineWeightMinimum uint64
	OnlineWeightQuorum  uint64

	BackupBeforeUpgrade bool

	ReceiveMinimum uint64

	UseMemoryPools bool

	ActiveElectionsSize     int
	ConfirmationHistorySize int

	LogLevel string
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir is the home-directory fallback used when no data
// directory is configured.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".futurehead"
	}
	return filepath.Join(home, ".futurehead")
}

// Default returns the baseline configuration; components are wired
// against these values unless a caller overrides specific fields.
func Default() Config {
	return Config{
		Network: "live",
		DataDir: DefaultDataDir(),

		FrontiersConfirmation: FrontiersConfirmationAutomatic,

		ConfHeightProcessorMode:        ConfHeightAutomatic,
		ConfHeightUnboundedCutoff:      20000,
		ConfHeightBatchWriteSize:       16384,
		ConfHeightBatchMinTime:         50 * time.Millisecond,
		MaxPriorityCementableFrontiers: 100,

		BlockProcessorBatchSize:        256,
		BlockProcessorBatchMaxTime:     500 * time.Millisecond,
		BlockProcessorVerificationSize: 256,
		BlockProcessorFullSize:         65536,

		UncheckedCutoffTime:     4 * 24 * time.Hour,
		UncheckedCleanupEnabled: true,

		MaxWorkGenerateMultiplier: 64,

		VoteGeneratorDelay:     100 * time.Millisecond,
		VoteGeneratorThreshold: 3,
		VoteCacheMax:           65536,

		OnlineWeightMinimum: 0,
		OnlineWeightQuorum:  0,

		BackupBeforeUpgrade: true,

		ReceiveMinimum: 0,

		UseMemoryPools: true,

		ActiveElectionsSize:     5000,
		ConfirmationHistorySize: 2048,

		LogLevel: "info",
	}
}

// Validate checks the network name, data directory, the two mode
// enums, the confirmation-height batch write size, the block-processor
// batch/verification/full sizes, the work multiplier, the vote
// generator threshold and the log level (case-insensitive). Durations,
// cutoffs and cache sizes are not checked.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("config: network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("config: data_dir is required")
	}
	switch cfg.FrontiersConfirmation {
	case FrontiersConfirmationDisabled, FrontiersConfirmationAutomatic, FrontiersConfirmationAlways:
	default:
		return fmt.Errorf("config: invalid frontiers_confirmation %q", cfg.FrontiersConfirmation)
	}
	switch cfg.ConfHeightProcessorMode {
	case ConfHeightBounded, ConfHeightUnbounded, ConfHeightAutomatic:
	default:
		return fmt.Errorf("config: invalid confirmation_height_processor_mode %q", cfg.ConfHeightProcessorMode)
	}
	if cfg.ConfHeightBatchWriteSize == 0 {
		return errors.New("config: conf_height_batch_write_size must be > 0")
	}
	if cfg.BlockProcessorBatchSize <= 0 {
		return errors.New("config: block_processor_batch_size must be > 0")
	}
	if cfg.BlockProcessorVerificationSize <= 0 {
		return errors.New("config: block_processor_verification_size must be > 0")
	}
	if cfg.BlockProcessorFullSize <= 0 {
		return errors.New("config: block_processor_full_size must be > 0")
	}
	if cfg.MaxWorkGenerateMultiplier == 0 {
		return errors.New("config: max_work_generate_multiplier must be > 0")
	}
	if cfg.VoteGeneratorThreshold <= 0 {
		return errors.New("config: vote_generator_threshold must be > 0")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("config: invalid log_level %q", cfg.LogLevel)
	}
	return nil
}
