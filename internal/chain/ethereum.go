// File: internal/chain/ethereum.go
package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// transferTopic is the ERC-20 Transfer(address,address,uint256) event signature
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EthereumClient fetches ERC-20 transfers via eth_getLogs. The connection is
// dialed lazily and re-dialed after a failed request.
type EthereumClient struct {
	cfg    *config.EthereumConfig
	tokens map[common.Address]config.TokenConfig
	logger *logrus.Logger

	mu     sync.Mutex
	client *ethclient.Client
}

// NewEthereumClient creates an Ethereum adapter monitoring the given tokens.
// Tokens configured for other chains are ignored.
func NewEthereumClient(cfg *config.EthereumConfig, tokens []config.TokenConfig) *EthereumClient {
	monitored := make(map[common.Address]config.TokenConfig)
	for _, t := range tokens {
		if t.Chain != string(models.ChainEthereum) {
			continue
		}
		monitored[common.HexToAddress(t.Address)] = t
	}

	return &EthereumClient{
		cfg:    cfg,
		tokens: monitored,
		logger: utils.GetLogger(),
	}
}

// Chain returns the chain this adapter serves
func (c *EthereumClient) Chain() models.Chain {
	return models.ChainEthereum
}

// getClient returns the current connection, dialing if necessary
func (c *EthereumClient) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, c.cfg.RPCURL)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to Ethereum node", err.Error())
	}

	c.client = client
	c.logger.WithField("url", c.cfg.RPCURL).Info("Connected to Ethereum node")
	return client, nil
}

// dropClient discards the connection so the next call re-dials
func (c *EthereumClient) dropClient() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

// FetchTransfers returns outgoing transfers of monitored tokens from the
// wallet with block number >= fromBlock, plus the observed chain tip.
func (c *EthereumClient) FetchTransfers(ctx context.Context, address string, fromBlock uint64) ([]models.RawEvent, uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, 0, err
	}

	tip, err := client.BlockNumber(ctx)
	if err != nil {
		c.dropClient()
		return nil, 0, utils.NewAppError(utils.ErrCodeConnection, "Failed to get latest block", err.Error())
	}

	if len(c.tokens) == 0 || fromBlock > tip {
		return nil, tip, nil
	}

	tokenAddrs := make([]common.Address, 0, len(c.tokens))
	for addr := range c.tokens {
		tokenAddrs = append(tokenAddrs, addr)
	}
	walletTopic := common.BytesToHash(common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32))

	var events []models.RawEvent
	blockTimes := make(map[uint64]time.Time)

	// eth_getLogs is chunked so a long catch-up window does not exceed
	// provider limits on block range.
	batch := c.cfg.LogBatchBlocks
	if batch == 0 {
		batch = 2000
	}

	for start := fromBlock; start <= tip; start += batch {
		end := start + batch - 1
		if end > tip {
			end = tip
		}

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: tokenAddrs,
			Topics:    [][]common.Hash{{transferTopic}, {walletTopic}},
		}

		logs, err := client.FilterLogs(ctx, query)
		if err != nil {
			c.dropClient()
			return nil, 0, utils.NewAppError(utils.ErrCodeConnection, "Failed to filter transfer logs", err.Error())
		}

		for _, lg := range logs {
			event, err := c.parseTransferLog(ctx, client, lg, blockTimes)
			if err != nil {
				// A transient failure means the log could not be read, not
				// that it is malformed. The whole fetch must fail so the
				// watermark does not advance past the transfer.
				if utils.IsTransient(err) {
					c.dropClient()
					return nil, 0, err
				}
				c.logger.WithFields(logrus.Fields{
					"tx":    lg.TxHash.Hex(),
					"error": err,
				}).Warn("Skipping malformed transfer log")
				continue
			}
			events = append(events, *event)
		}
	}

	return events, tip, nil
}

// parseTransferLog converts one Transfer log into a raw event
func (c *EthereumClient) parseTransferLog(ctx context.Context, client *ethclient.Client, lg types.Log, blockTimes map[uint64]time.Time) (*models.RawEvent, error) {
	if len(lg.Topics) < 3 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Transfer log missing indexed topics", lg.TxHash.Hex())
	}

	token, ok := c.tokens[lg.Address]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Log from unmonitored contract", lg.Address.Hex())
	}

	blockTime, ok := blockTimes[lg.BlockNumber]
	if !ok {
		header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to get block header", err.Error())
		}
		blockTime = time.Unix(int64(header.Time), 0).UTC()
		blockTimes[lg.BlockNumber] = blockTime
	}

	amount := new(big.Int).SetBytes(lg.Data)
	payload, _ := json.Marshal(lg)

	return &models.RawEvent{
		Chain:        models.ChainEthereum,
		TxSignature:  lg.TxHash.Hex(),
		LogIndex:     lg.Index,
		FromAddress:  strings.ToLower(common.HexToAddress(lg.Topics[1].Hex()).Hex()),
		ToAddress:    strings.ToLower(common.HexToAddress(lg.Topics[2].Hex()).Hex()),
		TokenAddress: strings.ToLower(lg.Address.Hex()),
		TokenSymbol:  token.Symbol,
		AmountRaw:    amount.String(),
		Decimals:     token.Decimals,
		Kind:         models.EventKindTransfer,
		BlockNumber:  lg.BlockNumber,
		BlockTime:    blockTime,
		Payload:      payload,
	}, nil
}

// HealthCheck verifies the RPC endpoint is reachable
func (c *EthereumClient) HealthCheck(ctx context.Context) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := client.BlockNumber(checkCtx); err != nil {
		c.dropClient()
		return utils.NewAppError(utils.ErrCodeConnection, "Ethereum health check failed", err.Error())
	}
	return nil
}

// Close releases the underlying connection
func (c *EthereumClient) Close() error {
	c.dropClient()
	return nil
}
