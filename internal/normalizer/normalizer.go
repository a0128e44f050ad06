// File: internal/normalizer/normalizer.go
package normalizer

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// Normalizer converts raw chain events into canonical transfer events. It
// is pure: no I/O, no clock dependence beyond stamping observed_at, so the
// same raw event always normalizes to the same ID.
type Normalizer struct {
	tokens map[string]config.TokenConfig // chain|token address -> token
}

// New creates a normalizer for the monitored token set
func New(tokens []config.TokenConfig) *Normalizer {
	monitored := make(map[string]config.TokenConfig)
	for _, t := range tokens {
		monitored[t.Chain+"|"+utils.NormalizeAddress(t.Address)] = t
	}
	return &Normalizer{tokens: monitored}
}

// Normalize converts one raw event into a canonical transfer event for the
// named wallet. It returns nil when the event touches a token that is not
// monitored; such events are dropped before storage.
func (n *Normalizer) Normalize(raw *models.RawEvent, daoName string) (*models.TransferEvent, error) {
	key := string(raw.Chain) + "|" + utils.NormalizeAddress(raw.TokenAddress)
	token, ok := n.tokens[key]
	if !ok {
		return nil, nil
	}

	amountRaw, err := decimal.NewFromString(raw.AmountRaw)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid raw amount", raw.AmountRaw)
	}

	decimals := raw.Decimals
	if decimals == 0 {
		decimals = token.Decimals
	}

	kind := raw.Kind
	if kind == "" {
		kind = models.EventKindTransfer
	}

	return &models.TransferEvent{
		ID:          utils.CreateEventID(string(raw.Chain), raw.TxSignature, raw.LogIndex),
		Chain:       raw.Chain,
		DAOName:     daoName,
		FromAddress: utils.NormalizeAddress(raw.FromAddress),
		ToAddress:   utils.NormalizeAddress(raw.ToAddress),
		TokenSymbol: token.Symbol,
		TokenAmount: amountRaw.Shift(-decimals),
		Kind:        kind,
		BlockNumber: raw.BlockNumber,
		BlockTime:   raw.BlockTime.UTC(),
		ObservedAt:  time.Now().UTC(),
		RawPayload:  raw.Payload,
	}, nil
}
