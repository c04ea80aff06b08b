// Command ledger-noded runs the ledger core standalone: it opens the
// store, starts the processing workers, and waits for a signal. RPC,
// wallet, and network layers attach through node.Observers; this
// binary wires none of them, making it a pure storage/confirmation
// daemon.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/FutureHeadCoin/futurehead-node-sub001/config"
	"github.com/FutureHeadCoin/futurehead-node-sub001/node"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := config.Default()
	cfg := defaults

	fs := flag.NewFlagSet("ledger-noded", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (test/beta/live)")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar((*string)(&cfg.ConfHeightProcessorMode), "confirmation-height-mode", string(defaults.ConfHeightProcessorMode), "bounded|unbounded|automatic")
	fs.BoolVar(&cfg.BackupBeforeUpgrade, "backup-before-upgrade", defaults.BackupBeforeUpgrade, "snapshot the store before schema migration")
	dryRun := fs.Bool("dry-run", false, "validate config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := config.Validate(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}
	if *dryRun {
		_, _ = fmt.Fprintf(stdout, "config ok: network=%s datadir=%s\n", cfg.Network, cfg.DataDir)
		return 0
	}

	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	n, err := node.New(cfg, node.LedgerConfigFor(cfg.Network), nil, node.Observers{}, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "node init failed: %v\n", err)
		return 1
	}
	n.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", slog.String("signal", sig.String()))
	n.Stop()
	return 0
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
