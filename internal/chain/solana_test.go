// File: internal/chain/solana_test.go
package chain

import (
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
)

var (
	solWallet = solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	solDest   = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	usdcMint  = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	wsolMint  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

func solTestTokens() []config.TokenConfig {
	return []config.TokenConfig{
		{Symbol: "WSOL", Chain: "solana", Address: wsolMint.String(), Decimals: 9},
		{Symbol: "USDC", Chain: "solana", Address: usdcMint.String(), Decimals: 6},
	}
}

func solBalance(mint solana.PublicKey, owner solana.PublicKey, amount string) rpc.TokenBalance {
	o := owner
	return rpc.TokenBalance{
		Mint:          mint,
		Owner:         &o,
		UiTokenAmount: &rpc.UiTokenAmount{Amount: amount},
	}
}

func TestNewSolanaClientFiltersTokens(t *testing.T) {
	client := NewSolanaClient(&config.SolanaConfig{RPCURL: "http://localhost:8899"}, ethTestTokens())

	assert.Equal(t, models.ChainSolana, client.Chain())
	require.Len(t, client.tokens, 1, "ethereum tokens must not be monitored on solana")
	_, ok := client.tokens["bioJ9JTqW62MLz7UKHU69gtKhPpGi1BQhccj2kmSvUJ"]
	assert.True(t, ok)
}

func TestTransfersFromMetaOutgoing(t *testing.T) {
	client := NewSolanaClient(&config.SolanaConfig{RPCURL: "http://localhost:8899"}, solTestTokens())

	meta := &rpc.TransactionMeta{
		PreTokenBalances: []rpc.TokenBalance{
			solBalance(usdcMint, solWallet, "5000000"),
			solBalance(usdcMint, solDest, "0"),
		},
		PostTokenBalances: []rpc.TokenBalance{
			solBalance(usdcMint, solWallet, "2000000"),
			solBalance(usdcMint, solDest, "3000000"),
		},
	}

	blockTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := client.transfersFromMeta("sig1", 340000000, blockTime, meta, solWallet)

	require.Len(t, events, 1)
	assert.Equal(t, models.ChainSolana, events[0].Chain)
	assert.Equal(t, "sig1", events[0].TxSignature)
	assert.Equal(t, uint(0), events[0].LogIndex)
	assert.Equal(t, solWallet.String(), events[0].FromAddress)
	assert.Equal(t, solDest.String(), events[0].ToAddress)
	assert.Equal(t, "USDC", events[0].TokenSymbol)
	assert.Equal(t, "3000000", events[0].AmountRaw)
	assert.Equal(t, uint64(340000000), events[0].BlockNumber)
	assert.Equal(t, blockTime, events[0].BlockTime)
}

func TestTransfersFromMetaIncomingIgnored(t *testing.T) {
	client := NewSolanaClient(&config.SolanaConfig{RPCURL: "http://localhost:8899"}, solTestTokens())

	meta := &rpc.TransactionMeta{
		PreTokenBalances:  []rpc.TokenBalance{solBalance(usdcMint, solWallet, "0")},
		PostTokenBalances: []rpc.TokenBalance{solBalance(usdcMint, solWallet, "1000000")},
	}

	events := client.transfersFromMeta("sig2", 340000001, time.Now().UTC(), meta, solWallet)
	assert.Empty(t, events, "inbound transfers are not whale outflows")
}

func TestTransfersFromMetaStableLogIndexAcrossPolls(t *testing.T) {
	client := NewSolanaClient(&config.SolanaConfig{RPCURL: "http://localhost:8899"}, solTestTokens())

	// One transaction draining both monitored mints. The logIndex assigned
	// to each mint feeds the dedup key, so refetching the same transaction
	// must pair mints and indexes identically every time.
	meta := &rpc.TransactionMeta{
		PreTokenBalances: []rpc.TokenBalance{
			solBalance(usdcMint, solWallet, "9000000"),
			solBalance(wsolMint, solWallet, "4000000000"),
		},
		PostTokenBalances: []rpc.TokenBalance{
			solBalance(usdcMint, solWallet, "1000000"),
			solBalance(wsolMint, solWallet, "1000000000"),
		},
	}

	blockTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := client.transfersFromMeta("sig3", 340000002, blockTime, meta, solWallet)
	require.Len(t, first, 2)
	assert.Equal(t, usdcMint.String(), first[0].TokenAddress)
	assert.Equal(t, uint(0), first[0].LogIndex)
	assert.Equal(t, wsolMint.String(), first[1].TokenAddress)
	assert.Equal(t, uint(1), first[1].LogIndex)

	for i := 0; i < 50; i++ {
		again := client.transfersFromMeta("sig3", 340000002, blockTime, meta, solWallet)
		require.Len(t, again, 2, "attempt %d", i)
		for j := range first {
			assert.Equal(t, first[j].TokenAddress, again[j].TokenAddress,
				fmt.Sprintf("attempt %d: mint/index pairing drifted", i))
			assert.Equal(t, first[j].LogIndex, again[j].LogIndex)
			assert.Equal(t, first[j].AmountRaw, again[j].AmountRaw)
		}
	}
}
