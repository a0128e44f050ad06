// File: internal/evaluator/evaluator.go
package evaluator

import (
	"github.com/shopspring/decimal"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
)

// Evaluator decides whether a transfer is large enough to alert on and how
// severe the alert is. The USD threshold governs when a price is known; the
// per-token amount floor is the fallback when no price can be resolved, so
// a price API outage degrades alerting rather than silencing it.
type Evaluator struct {
	usdThreshold decimal.Decimal
	amountFloors map[string]decimal.Decimal // chain|symbol -> token amount floor
}

// Verdict is the outcome of evaluating one transfer
type Verdict struct {
	Triggered bool
	Severity  models.Severity
	// Multiple is how many times over the governing threshold the transfer
	// is, used for the severity step and shown in alert messages.
	Multiple decimal.Decimal
}

// New creates an evaluator from the configured thresholds
func New(thresholds *config.ThresholdConfig, tokens []config.TokenConfig) *Evaluator {
	floors := make(map[string]decimal.Decimal)
	for _, t := range tokens {
		if t.AmountThreshold > 0 {
			floors[t.Chain+"|"+t.Symbol] = decimal.NewFromFloat(t.AmountThreshold)
		}
	}
	return &Evaluator{
		usdThreshold: decimal.NewFromFloat(thresholds.USDAmount),
		amountFloors: floors,
	}
}

// Evaluate classifies one normalized transfer. A transfer alerts when it
// crosses either threshold: the USD threshold when a price is known, or the
// token amount floor. Only events under both return Triggered=false.
func (e *Evaluator) Evaluate(event *models.TransferEvent) Verdict {
	if event.USDValue != nil && e.usdThreshold.IsPositive() {
		if v := e.verdictFor(*event.USDValue, e.usdThreshold); v.Triggered {
			return v
		}
	}

	floor, ok := e.amountFloors[string(event.Chain)+"|"+event.TokenSymbol]
	if !ok || !floor.IsPositive() {
		return Verdict{}
	}
	return e.verdictFor(event.TokenAmount, floor)
}

// verdictFor applies the severity step function to a value and threshold
func (e *Evaluator) verdictFor(value, threshold decimal.Decimal) Verdict {
	if value.LessThan(threshold) {
		return Verdict{}
	}

	multiple := value.Div(threshold)
	severity := models.SeverityInfo
	switch {
	case multiple.GreaterThanOrEqual(decimal.NewFromInt(10)):
		severity = models.SeverityCritical
	case multiple.GreaterThanOrEqual(decimal.NewFromInt(5)):
		severity = models.SeverityWarning
	}

	return Verdict{
		Triggered: true,
		Severity:  severity,
		Multiple:  multiple,
	}
}
