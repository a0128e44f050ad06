// File: internal/storage/sqlite_test.go
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

func newTestStorage(t *testing.T, claimTTL time.Duration) *SQLiteStorage {
	t.Helper()
	utils.InitLogger("error", "text", "stdout", "")

	store := NewSQLiteStorage(&StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:   10,
		MaxIdleTime:      time.Minute,
		ClaimTTL:         claimTTL,
	})
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

func testEvent(id string) *models.TransferEvent {
	usd := decimal.NewFromInt(250000)
	return &models.TransferEvent{
		ID:          id,
		Chain:       models.ChainEthereum,
		DAOName:     "VitaDAO",
		FromAddress: "0x1111111111111111111111111111111111111111",
		ToAddress:   "0x2222222222222222222222222222222222222222",
		TokenSymbol: "VITA",
		TokenAmount: decimal.NewFromInt(1500000),
		USDValue:    &usd,
		Kind:        models.EventKindTransfer,
		BlockNumber: 18000000,
		BlockTime:   time.Now().UTC().Truncate(time.Second),
		ObservedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestInsertEventDedup(t *testing.T) {
	store := newTestStorage(t, 0)
	ctx := context.Background()

	event := testEvent(utils.CreateEventID("ethereum", "0xabc", 3))

	inserted, err := store.InsertEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, inserted, "first observation should insert")

	inserted, err = store.InsertEvent(ctx, event)
	require.NoError(t, err)
	assert.False(t, inserted, "re-observation must be dropped, not error")

	count, err := store.GetEventCount(ctx, models.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, event.DAOName, got.DAOName)
	assert.True(t, event.TokenAmount.Equal(got.TokenAmount))
	require.NotNil(t, got.USDValue)
	assert.True(t, event.USDValue.Equal(*got.USDValue))
}

func TestGetEventsFilter(t *testing.T) {
	store := newTestStorage(t, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		event := testEvent(utils.CreateEventID("ethereum", fmt.Sprintf("0xtx%d", i), 0))
		event.BlockNumber = uint64(100 + i)
		if i%2 == 1 {
			event.DAOName = "Molecule"
		}
		_, err := store.InsertEvent(ctx, event)
		require.NoError(t, err)
	}

	dao := "Molecule"
	events, err := store.GetEvents(ctx, models.EventFilter{DAOName: &dao})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = store.GetEvents(ctx, models.EventFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestTryClaimAlertAtMostOnce(t *testing.T) {
	store := newTestStorage(t, 15*time.Minute)
	ctx := context.Background()

	event := testEvent(utils.CreateEventID("ethereum", "0xclaim", 0))
	_, err := store.InsertEvent(ctx, event)
	require.NoError(t, err)

	claimed, alert, err := store.TryClaimAlert(ctx, event.ID, models.SeverityWarning)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NotNil(t, alert)
	assert.Equal(t, models.DeliveryStatusPending, alert.DeliveryStatus)

	// A second claim on a fresh pending alert must lose.
	claimed, _, err = store.TryClaimAlert(ctx, event.ID, models.SeverityWarning)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestTryClaimAlertConcurrent(t *testing.T) {
	store := newTestStorage(t, 15*time.Minute)
	ctx := context.Background()

	event := testEvent(utils.CreateEventID("ethereum", "0xrace", 7))
	_, err := store.InsertEvent(ctx, event)
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	wins := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, alert, err := store.TryClaimAlert(ctx, event.ID, models.SeverityInfo)
			if err == nil && claimed {
				wins <- alert.AlertID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for id := range wins {
		winners = append(winners, id)
	}
	assert.Len(t, winners, 1, "exactly one concurrent claim must win")
}

func TestClaimReclaimAfterTTL(t *testing.T) {
	store := newTestStorage(t, 50*time.Millisecond)
	ctx := context.Background()

	event := testEvent(utils.CreateEventID("solana", "sig1", 0))
	_, err := store.InsertEvent(ctx, event)
	require.NoError(t, err)

	claimed, first, err := store.TryClaimAlert(ctx, event.ID, models.SeverityCritical)
	require.NoError(t, err)
	require.True(t, claimed)

	// Crashed dispatcher scenario: the claim stays pending past the TTL
	// and a new claim takes it over.
	time.Sleep(80 * time.Millisecond)

	claimed, second, err := store.TryClaimAlert(ctx, event.ID, models.SeverityCritical)
	require.NoError(t, err)
	assert.True(t, claimed, "stale pending claim should be reclaimable")
	assert.NotEqual(t, first.AlertID, second.AlertID)

	alert, err := store.GetAlertByEventID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, second.AlertID, alert.AlertID)
}

func TestSentAlertNeverReclaimed(t *testing.T) {
	store := newTestStorage(t, 50*time.Millisecond)
	ctx := context.Background()

	event := testEvent(utils.CreateEventID("ethereum", "0xsent", 0))
	_, err := store.InsertEvent(ctx, event)
	require.NoError(t, err)

	claimed, alert, err := store.TryClaimAlert(ctx, event.ID, models.SeverityInfo)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.MarkAlertSent(ctx, alert.AlertID))

	time.Sleep(80 * time.Millisecond)

	claimed, _, err = store.TryClaimAlert(ctx, event.ID, models.SeverityInfo)
	require.NoError(t, err)
	assert.False(t, claimed, "sent alerts must never be claimed again")

	got, err := store.GetAlertByEventID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusSent, got.DeliveryStatus)
	assert.NotNil(t, got.DispatchedAt)
}

func TestAlertAttemptsAndFailure(t *testing.T) {
	store := newTestStorage(t, 0)
	ctx := context.Background()

	event := testEvent(utils.CreateEventID("ethereum", "0xfail", 0))
	_, err := store.InsertEvent(ctx, event)
	require.NoError(t, err)

	claimed, alert, err := store.TryClaimAlert(ctx, event.ID, models.SeverityWarning)
	require.NoError(t, err)
	require.True(t, claimed)

	errMsg := "telegram timeout"
	require.NoError(t, store.RecordAlertAttempt(ctx, alert.AlertID, &errMsg))
	require.NoError(t, store.RecordAlertAttempt(ctx, alert.AlertID, &errMsg))
	require.NoError(t, store.MarkAlertFailed(ctx, alert.AlertID, errMsg))

	got, err := store.GetAlertByEventID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, got.DeliveryStatus)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, errMsg, *got.LastError)

	failed, err := store.GetAlertsByStatus(ctx, models.DeliveryStatusFailed, 10)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestCursorMonotonic(t *testing.T) {
	store := newTestStorage(t, 0)
	ctx := context.Background()

	addr := "0x3333333333333333333333333333333333333333"

	cursor, err := store.GetCursor(ctx, models.ChainEthereum, addr)
	require.NoError(t, err)
	assert.Nil(t, cursor, "unknown pair has no cursor")

	require.NoError(t, store.AdvanceCursor(ctx, models.ChainEthereum, addr, 100))

	cursor, err = store.GetCursor(ctx, models.ChainEthereum, addr)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, uint64(100), cursor.LastSeenBlock)
	assert.NotNil(t, cursor.LastSuccessAt)

	// A stale advance must not move the watermark backwards.
	require.NoError(t, store.AdvanceCursor(ctx, models.ChainEthereum, addr, 90))

	cursor, err = store.GetCursor(ctx, models.ChainEthereum, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cursor.LastSeenBlock)

	require.NoError(t, store.AdvanceCursor(ctx, models.ChainEthereum, addr, 150))

	cursor, err = store.GetCursor(ctx, models.ChainEthereum, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), cursor.LastSeenBlock)
}

func TestCursorFailureTracking(t *testing.T) {
	store := newTestStorage(t, 0)
	ctx := context.Background()

	addr := "So11111111111111111111111111111111111111112"

	require.NoError(t, store.RecordPollFailure(ctx, models.ChainSolana, addr))
	require.NoError(t, store.RecordPollFailure(ctx, models.ChainSolana, addr))

	cursor, err := store.GetCursor(ctx, models.ChainSolana, addr)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, 2, cursor.ConsecutiveFailures)
	assert.Nil(t, cursor.LastSuccessAt)

	// Success resets the failure streak.
	require.NoError(t, store.AdvanceCursor(ctx, models.ChainSolana, addr, 250000000))

	cursor, err = store.GetCursor(ctx, models.ChainSolana, addr)
	require.NoError(t, err)
	assert.Equal(t, 0, cursor.ConsecutiveFailures)
	assert.NotNil(t, cursor.LastSuccessAt)
}

func TestResetCursorOverride(t *testing.T) {
	store := newTestStorage(t, 0)
	ctx := context.Background()

	addr := "0x4444444444444444444444444444444444444444"
	require.NoError(t, store.AdvanceCursor(ctx, models.ChainEthereum, addr, 500))

	// Operator reset may move the watermark backwards.
	require.NoError(t, store.ResetCursor(ctx, models.ChainEthereum, addr, 100))

	cursor, err := store.GetCursor(ctx, models.ChainEthereum, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cursor.LastSeenBlock)
}

func TestTokenPriceRoundTrip(t *testing.T) {
	store := newTestStorage(t, 0)
	ctx := context.Background()

	price, err := store.GetLatestTokenPrice(ctx, models.ChainEthereum, "VITA")
	require.NoError(t, err)
	assert.Nil(t, price)

	older := &models.TokenPrice{
		TokenSymbol: "VITA",
		Chain:       models.ChainEthereum,
		PriceUSD:    decimal.RequireFromString("1.21"),
		FetchedAt:   time.Now().UTC().Add(-time.Hour),
	}
	newer := &models.TokenPrice{
		TokenSymbol: "VITA",
		Chain:       models.ChainEthereum,
		PriceUSD:    decimal.RequireFromString("1.34"),
		FetchedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.SaveTokenPrice(ctx, older))
	require.NoError(t, store.SaveTokenPrice(ctx, newer))

	price, err = store.GetLatestTokenPrice(ctx, models.ChainEthereum, "VITA")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, newer.PriceUSD.Equal(price.PriceUSD))
}

func TestDailySummary(t *testing.T) {
	store := newTestStorage(t, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := testEvent(utils.CreateEventID("ethereum", fmt.Sprintf("0xday%d", i), 0))
		if i == 2 {
			event.DAOName = "Molecule"
			big := decimal.NewFromInt(900000)
			event.USDValue = &big
		}
		_, err := store.InsertEvent(ctx, event)
		require.NoError(t, err)
	}

	to := time.Now().UTC().Add(time.Minute)
	from := to.Add(-24 * time.Hour)

	summary, err := store.GetDailySummary(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalEvents)
	assert.Equal(t, int64(2), summary.EventsByDAO["VitaDAO"])
	assert.Equal(t, int64(1), summary.EventsByDAO["Molecule"])
	assert.True(t, summary.TotalUSDMoved.Equal(decimal.NewFromInt(1400000)))
	assert.NotEmpty(t, summary.LargestEventID)
}

func TestStorageStats(t *testing.T) {
	store := newTestStorage(t, 0)
	ctx := context.Background()

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEvents)

	event := testEvent(utils.CreateEventID("ethereum", "0xstats", 0))
	_, err = store.InsertEvent(ctx, event)
	require.NoError(t, err)

	claimed, alert, err := store.TryClaimAlert(ctx, event.ID, models.SeverityInfo)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.MarkAlertSent(ctx, alert.AlertID))

	stats, err = store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.TotalAlerts)
	assert.Equal(t, int64(1), stats.SentAlerts)
	assert.NotNil(t, stats.OldestEvent)
}
