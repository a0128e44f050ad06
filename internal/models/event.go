package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifies the blockchain an event originated from
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainSolana   Chain = "solana"
)

// EventKind classifies the on-chain movement
type EventKind string

const (
	EventKindTransfer        EventKind = "transfer"
	EventKindSwap            EventKind = "swap"
	EventKindAddLiquidity    EventKind = "add_liquidity"
	EventKindRemoveLiquidity EventKind = "remove_liquidity"
)

// RawEvent is a chain-specific movement as reported by a chain adapter,
// before normalization. AmountRaw is the unscaled integer amount; Decimals
// tells the normalizer how to scale it.
type RawEvent struct {
	Chain        Chain           `json:"chain"`
	TxSignature  string          `json:"tx_signature"`
	LogIndex     uint            `json:"log_index"`
	FromAddress  string          `json:"from_address"`
	ToAddress    string          `json:"to_address"`
	TokenAddress string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	AmountRaw    string          `json:"amount_raw"`
	Decimals     int32           `json:"decimals"`
	Kind         EventKind       `json:"kind"`
	BlockNumber  uint64          `json:"block_number"`
	BlockTime    time.Time       `json:"block_time"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// TransferEvent is the canonical representation of one on-chain movement.
// ID is derived deterministically from (chain, tx signature, log index) and
// is the sole deduplication key. Rows are append-only once stored.
type TransferEvent struct {
	ID          string           `json:"id" db:"id"`
	Chain       Chain            `json:"chain" db:"chain"`
	DAOName     string           `json:"dao_name" db:"dao_name"`
	FromAddress string           `json:"from_address" db:"from_address"`
	ToAddress   string           `json:"to_address" db:"to_address"`
	TokenSymbol string           `json:"token_symbol" db:"token_symbol"`
	TokenAmount decimal.Decimal  `json:"token_amount" db:"token_amount"`
	USDValue    *decimal.Decimal `json:"usd_value,omitempty" db:"usd_value"`
	Kind        EventKind        `json:"event_kind" db:"event_kind"`
	BlockNumber uint64           `json:"block_number" db:"block_number"`
	BlockTime   time.Time        `json:"block_time" db:"block_time"`
	ObservedAt  time.Time        `json:"observed_at" db:"observed_at"`
	RawPayload  json.RawMessage  `json:"raw_payload,omitempty" db:"raw_payload"`
}

// EventFilter for querying stored events
type EventFilter struct {
	Chain       *Chain     `json:"chain,omitempty"`
	DAOName     *string    `json:"dao_name,omitempty"`
	TokenSymbol *string    `json:"token_symbol,omitempty"`
	FromBlock   *uint64    `json:"from_block,omitempty"`
	ToBlock     *uint64    `json:"to_block,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}
