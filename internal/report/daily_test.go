// File: internal/report/daily_test.go
package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
)

func TestNextReportTime(t *testing.T) {
	r := &DailyReporter{config: &config.ReportConfig{HourUTC: 9}}

	// Before today's report hour: report today.
	now := time.Date(2025, 6, 1, 7, 30, 0, 0, time.UTC)
	next := r.nextReportTime(now)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), next)

	// After it: report tomorrow.
	now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	next = r.nextReportTime(now)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), next)

	// Exactly at the report hour rolls to tomorrow, not an immediate resend.
	now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	next = r.nextReportTime(now)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestFormatSummary(t *testing.T) {
	summary := &models.DailySummary{
		From:          time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		To:            time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		TotalEvents:   5,
		TotalAlerts:   2,
		FailedAlerts:  1,
		TotalUSDMoved: decimal.RequireFromString("1250000.50"),
		EventsByDAO:   map[string]int64{"VitaDAO": 3, "Molecule": 2},
		USDByDAO: map[string]decimal.Decimal{
			"VitaDAO":  decimal.NewFromInt(1000000),
			"Molecule": decimal.RequireFromString("250000.50"),
		},
	}

	text := formatSummary(summary)
	assert.Contains(t, text, "*Events:* 5")
	assert.Contains(t, text, "*Alerts:* 2 (1 failed)")
	assert.Contains(t, text, "$1250000.50")
	assert.Contains(t, text, "VitaDAO: 3 events ($1000000.00)")
	assert.Contains(t, text, "Molecule: 2 events ($250000.50)")

	// DAO order is deterministic.
	assert.Less(t, strings.Index(text, "Molecule"), strings.Index(text, "VitaDAO"))
}

func TestFormatSummaryEmpty(t *testing.T) {
	summary := &models.DailySummary{
		From:          time.Now().UTC().Add(-24 * time.Hour),
		To:            time.Now().UTC(),
		TotalUSDMoved: decimal.Zero,
	}

	text := formatSummary(summary)
	assert.Contains(t, text, "No treasury activity")
	assert.NotContains(t, text, "failed")
}
