// File: internal/chain/chain.go
package chain

import (
	"context"

	"github.com/artematbio/bio-whale-monitor/internal/models"
)

// Client is a chain adapter. Implementations fetch raw token movements for
// one monitored wallet starting at a block (or slot) watermark and report
// the chain tip observed during the fetch. Adapters never dedup and never
// touch storage; overlapping windows are expected and resolved downstream.
type Client interface {
	// Chain returns the chain this adapter serves.
	Chain() models.Chain

	// FetchTransfers returns raw outgoing token movements for the wallet
	// with block number >= fromBlock, plus the chain tip observed during
	// the fetch. A partial window must be reported as an error so the
	// caller does not advance its watermark past unfetched blocks.
	FetchTransfers(ctx context.Context, address string, fromBlock uint64) ([]models.RawEvent, uint64, error)

	// HealthCheck verifies the RPC endpoint is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
