package node

import (
	"github.com/FutureHeadCoin/futurehead-node-sub001/blocks"
	"github.com/FutureHeadCoin/futurehead-node-sub001/ledger"
)

// Per-network work floors. The test network's floors are deliberately
// trivial so fixtures don't grind proof-of-work; beta and live share
// the production floors; receive operations get a reduced floor from
// epoch 2 on, while epochs 0 and 1 use the base floor for receives.
const (
	liveBaseThreshold    = 0xfffffff800000000
	liveReceiveThreshold = 0xfffffe0000000000
	testThreshold        = 0x0000000000000000
)

// epochLink builds the designated link constant for an epoch upgrade:
// an ASCII banner padded with zeros, impossible to collide with a real
// block hash or account.
func epochLink(banner string) blocks.Hash {
	var h blocks.Hash
	copy(h[:], banner)
	return h
}

// LedgerConfigFor returns the immutable per-network ledger parameters.
// The epoch signer is left zero here; the embedding binary installs it
// alongside its genesis key material, since both are network identity
// rather than code.
func LedgerConfigFor(network string) ledger.Config {
	cfg := ledger.Config{
		EpochLinks: []blocks.Hash{
			{}, // epoch_0: no upgrade link
			epochLink("epoch v1 block"),
			epochLink("epoch v2 block"),
		},
		MaxEpoch:              2,
		EpochUpgradeBatchSize: 512,
	}
	switch network {
	case "test":
		cfg.Thresholds = []blocks.Threshold{
			{Base: testThreshold, Receive: testThreshold},
			{Base: testThreshold, Receive: testThreshold},
			{Base: testThreshold, Receive: testThreshold},
		}
	default:
		cfg.Thresholds = []blocks.Threshold{
			{Base: liveBaseThreshold, Receive: liveBaseThreshold},
			{Base: liveBaseThreshold, Receive: liveBaseThreshold},
			{Base: liveBaseThreshold, Receive: liveReceiveThreshold},
		}
	}
	return cfg
}
