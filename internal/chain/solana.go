// File: internal/chain/solana.go
package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// SolanaClient fetches SPL token transfers for monitored wallets. The
// chain has no log filter API, so the adapter walks recent signatures for
// the wallet and diffs pre/post token balances of monitored mints. Slots
// play the role of block numbers in the watermark.
type SolanaClient struct {
	cfg    *config.SolanaConfig
	tokens map[string]config.TokenConfig // mint address -> token
	client *rpc.Client
	logger *logrus.Logger
}

// solanaPayload is stored alongside each raw event for audit
type solanaPayload struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Mint      string `json:"mint"`
}

// NewSolanaClient creates a Solana adapter monitoring the given tokens.
// Tokens configured for other chains are ignored.
func NewSolanaClient(cfg *config.SolanaConfig, tokens []config.TokenConfig) *SolanaClient {
	monitored := make(map[string]config.TokenConfig)
	for _, t := range tokens {
		if t.Chain != string(models.ChainSolana) {
			continue
		}
		monitored[t.Address] = t
	}

	return &SolanaClient{
		cfg:    cfg,
		tokens: monitored,
		client: rpc.New(cfg.RPCURL),
		logger: utils.GetLogger(),
	}
}

// Chain returns the chain this adapter serves
func (c *SolanaClient) Chain() models.Chain {
	return models.ChainSolana
}

// FetchTransfers returns outgoing transfers of monitored mints from the
// wallet with slot >= fromBlock, plus the observed tip slot.
func (c *SolanaClient) FetchTransfers(ctx context.Context, address string, fromBlock uint64) ([]models.RawEvent, uint64, error) {
	wallet, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid Solana address", err.Error())
	}

	tip, err := c.client.GetSlot(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, 0, utils.NewAppError(utils.ErrCodeConnection, "Failed to get slot", err.Error())
	}

	if len(c.tokens) == 0 {
		return nil, tip, nil
	}

	limit := c.cfg.SignatureLimit
	if limit <= 0 {
		limit = 100
	}

	sigs, err := c.client.GetSignaturesForAddressWithOpts(ctx, wallet, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return nil, 0, utils.NewAppError(utils.ErrCodeConnection, "Failed to get signatures", err.Error())
	}

	var events []models.RawEvent
	for _, sig := range sigs {
		if sig.Slot < fromBlock || sig.Err != nil {
			continue
		}

		txEvents, err := c.fetchTransactionTransfers(ctx, wallet, sig)
		if err != nil {
			// A transfer the adapter cannot fetch must not be silently
			// skipped, or the watermark would advance past it.
			return nil, 0, err
		}
		events = append(events, txEvents...)
	}

	return events, tip, nil
}

// fetchTransactionTransfers extracts monitored-mint outflows from one transaction
func (c *SolanaClient) fetchTransactionTransfers(ctx context.Context, wallet solana.PublicKey, sig *rpc.TransactionSignature) ([]models.RawEvent, error) {
	maxVersion := uint64(0)
	tx, err := c.client.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to get transaction", err.Error())
	}
	if tx == nil || tx.Meta == nil {
		return nil, nil
	}

	blockTime := time.Now().UTC()
	if tx.BlockTime != nil {
		blockTime = tx.BlockTime.Time().UTC()
	}

	events := c.transfersFromMeta(sig.Signature.String(), tx.Slot, blockTime, tx.Meta, wallet)

	if len(events) > 0 {
		c.logger.WithFields(logrus.Fields{
			"signature": sig.Signature.String(),
			"transfers": len(events),
		}).Debug("Parsed Solana token transfers")
	}

	return events, nil
}

// transfersFromMeta diffs pre/post token balances of monitored mints and
// builds an event per outgoing wallet delta. Mints are visited in sorted
// order so a transaction always yields the same logIndex for the same
// mint; the dedup key depends on that pairing being stable across polls.
func (c *SolanaClient) transfersFromMeta(signature string, slot uint64, blockTime time.Time, meta *rpc.TransactionMeta, wallet solana.PublicKey) []models.RawEvent {
	type balanceKey struct {
		mint  string
		owner string
	}
	deltas := make(map[balanceKey]*big.Int)

	apply := func(balances []rpc.TokenBalance, sign int64) {
		for _, b := range balances {
			if b.Owner == nil || b.UiTokenAmount == nil {
				continue
			}
			amount, ok := new(big.Int).SetString(b.UiTokenAmount.Amount, 10)
			if !ok {
				continue
			}
			key := balanceKey{mint: b.Mint.String(), owner: b.Owner.String()}
			if deltas[key] == nil {
				deltas[key] = new(big.Int)
			}
			deltas[key].Add(deltas[key], new(big.Int).Mul(amount, big.NewInt(sign)))
		}
	}
	apply(meta.PreTokenBalances, -1)
	apply(meta.PostTokenBalances, 1)

	mints := make([]string, 0, len(c.tokens))
	for mint := range c.tokens {
		mints = append(mints, mint)
	}
	sort.Strings(mints)

	var events []models.RawEvent
	logIndex := uint(0)
	walletStr := wallet.String()

	for _, mint := range mints {
		token := c.tokens[mint]
		walletDelta := deltas[balanceKey{mint: mint, owner: walletStr}]
		if walletDelta == nil || walletDelta.Sign() >= 0 {
			continue
		}

		// Counterparty is the owner whose balance of this mint grew the most.
		toAddress := "unknown"
		largest := new(big.Int)
		for key, delta := range deltas {
			if key.mint == mint && key.owner != walletStr && delta.Cmp(largest) > 0 {
				largest = delta
				toAddress = key.owner
			}
		}

		payload, _ := json.Marshal(solanaPayload{
			Signature: signature,
			Slot:      slot,
			Mint:      mint,
		})

		events = append(events, models.RawEvent{
			Chain:        models.ChainSolana,
			TxSignature:  signature,
			LogIndex:     logIndex,
			FromAddress:  walletStr,
			ToAddress:    toAddress,
			TokenAddress: mint,
			TokenSymbol:  token.Symbol,
			AmountRaw:    new(big.Int).Neg(walletDelta).String(),
			Decimals:     token.Decimals,
			Kind:         models.EventKindTransfer,
			BlockNumber:  slot,
			BlockTime:    blockTime,
			Payload:      payload,
		})
		logIndex++
	}

	return events
}

// HealthCheck verifies the RPC endpoint is reachable
func (c *SolanaClient) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := c.client.GetHealth(checkCtx); err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Solana health check failed", err.Error())
	}
	return nil
}

// Close releases the underlying connection
func (c *SolanaClient) Close() error {
	return c.client.Close()
}
