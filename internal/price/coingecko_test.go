// File: internal/price/coingecko_test.go
package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/internal/storage"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

var testTokens = []config.TokenConfig{
	{Symbol: "VITA", Chain: "ethereum", Address: "0x81f8", Decimals: 18, CoingeckoID: "vitadao"},
	{Symbol: "NOID", Chain: "ethereum", Address: "0x1234", Decimals: 18},
}

func newPriceService(t *testing.T, baseURL string, store storage.Storage) *CoingeckoService {
	t.Helper()
	utils.InitLogger("error", "text", "stdout", "")
	return NewCoingeckoService(&config.PriceConfig{
		BaseURL:        baseURL,
		CacheTTL:       5 * time.Minute,
		RequestTimeout: 5 * time.Second,
	}, testTokens, store)
}

func newPriceStorage(t *testing.T) storage.Storage {
	t.Helper()
	store := storage.NewSQLiteStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:   5,
	})
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetUSDPrice(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "vitadao", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Write([]byte(`{"vitadao":{"usd":1.42}}`))
	}))
	defer server.Close()

	svc := newPriceService(t, server.URL, nil)
	ctx := context.Background()

	price, err := svc.GetUSDPrice(ctx, models.ChainEthereum, "VITA")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.RequireFromString("1.42")))

	// Second lookup inside the cache TTL never hits the API.
	_, err = svc.GetUSDPrice(ctx, models.ChainEthereum, "VITA")
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestGetUSDPriceUnknownToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unmonitored tokens must not reach the API")
	}))
	defer server.Close()

	svc := newPriceService(t, server.URL, nil)

	price, err := svc.GetUSDPrice(context.Background(), models.ChainEthereum, "WAT")
	require.NoError(t, err)
	assert.Nil(t, price)

	// Monitored but without a CoinGecko mapping.
	price, err = svc.GetUSDPrice(context.Background(), models.ChainEthereum, "NOID")
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestGetUSDPricePersistsToStorage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"vitadao":{"usd":2.00}}`))
	}))
	defer server.Close()

	store := newPriceStorage(t)
	svc := newPriceService(t, server.URL, store)

	_, err := svc.GetUSDPrice(context.Background(), models.ChainEthereum, "VITA")
	require.NoError(t, err)

	stored, err := store.GetLatestTokenPrice(context.Background(), models.ChainEthereum, "VITA")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.PriceUSD.Equal(decimal.NewFromInt(2)))
}

func TestGetUSDPriceStoredFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	store := newPriceStorage(t)
	require.NoError(t, store.SaveTokenPrice(context.Background(), &models.TokenPrice{
		TokenSymbol: "VITA",
		Chain:       models.ChainEthereum,
		PriceUSD:    decimal.RequireFromString("1.10"),
		FetchedAt:   time.Now().UTC().Add(-time.Hour),
	}))

	svc := newPriceService(t, server.URL, store)

	price, err := svc.GetUSDPrice(context.Background(), models.ChainEthereum, "VITA")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(decimal.RequireFromString("1.10")))
}

func TestGetUSDPriceStaleFallbackRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	store := newPriceStorage(t)
	require.NoError(t, store.SaveTokenPrice(context.Background(), &models.TokenPrice{
		TokenSymbol: "VITA",
		Chain:       models.ChainEthereum,
		PriceUSD:    decimal.RequireFromString("1.10"),
		FetchedAt:   time.Now().UTC().Add(-48 * time.Hour),
	}))

	svc := newPriceService(t, server.URL, store)

	price, err := svc.GetUSDPrice(context.Background(), models.ChainEthereum, "VITA")
	require.NoError(t, err)
	assert.Nil(t, price, "prices older than a day are not trustworthy")
}

func TestGetUSDPriceMissingCoinInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	svc := newPriceService(t, server.URL, nil)

	price, err := svc.GetUSDPrice(context.Background(), models.ChainEthereum, "VITA")
	require.NoError(t, err)
	assert.Nil(t, price)
}
