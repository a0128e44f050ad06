// File: internal/price/coingecko.go
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/internal/storage"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// Service resolves USD prices for monitored tokens. Prices are best effort:
// a lookup failure degrades to the last stored price and finally to nil, it
// never blocks event processing.
type Service interface {
	// GetUSDPrice returns the current USD price for a token, or nil when no
	// price can be resolved.
	GetUSDPrice(ctx context.Context, chain models.Chain, symbol string) (*decimal.Decimal, error)
}

// cacheEntry is one cached price. A nil price caches a recent miss so a
// down API is not hammered every event.
type cacheEntry struct {
	price     *decimal.Decimal
	fetchedAt time.Time
}

// CoingeckoService implements Service against the CoinGecko simple price API
type CoingeckoService struct {
	config  *config.PriceConfig
	tokens  map[string]config.TokenConfig // chain|symbol -> token
	storage storage.Storage
	client  *http.Client
	logger  *logrus.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCoingeckoService creates a new price service
func NewCoingeckoService(cfg *config.PriceConfig, tokens []config.TokenConfig, store storage.Storage) *CoingeckoService {
	monitored := make(map[string]config.TokenConfig)
	for _, t := range tokens {
		monitored[t.Chain+"|"+t.Symbol] = t
	}

	return &CoingeckoService{
		config:  cfg,
		tokens:  monitored,
		storage: store,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:  utils.GetLogger(),
		cache:   make(map[string]cacheEntry),
	}
}

// GetUSDPrice returns the current USD price for a token, or nil when no
// price can be resolved
func (s *CoingeckoService) GetUSDPrice(ctx context.Context, chain models.Chain, symbol string) (*decimal.Decimal, error) {
	key := string(chain) + "|" + symbol

	token, ok := s.tokens[key]
	if !ok || token.CoingeckoID == "" {
		return nil, nil
	}

	s.mu.Lock()
	entry, cached := s.cache[key]
	s.mu.Unlock()
	if cached && time.Since(entry.fetchedAt) < s.config.CacheTTL {
		return entry.price, nil
	}

	price, err := s.fetchPrice(ctx, token.CoingeckoID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"token": symbol,
			"error": err,
		}).Warn("Price lookup failed, falling back to stored price")
		return s.storedFallback(ctx, chain, symbol)
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{price: price, fetchedAt: time.Now()}
	s.mu.Unlock()

	if price != nil && s.storage != nil {
		record := &models.TokenPrice{
			TokenSymbol: symbol,
			Chain:       chain,
			PriceUSD:    *price,
			FetchedAt:   time.Now().UTC(),
		}
		if err := s.storage.SaveTokenPrice(ctx, record); err != nil {
			s.logger.WithField("token", symbol).Warn("Failed to persist token price")
		}
	}

	return price, nil
}

// fetchPrice queries the simple price endpoint for one coin ID
func (s *CoingeckoService) fetchPrice(ctx context.Context, coinID string) (*decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		strings.TrimRight(s.config.BaseURL, "/"), url.QueryEscape(coinID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodePrice, "Failed to create price request", err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodePrice, "Price request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, utils.NewAppError(utils.ErrCodePrice,
			fmt.Sprintf("Price API returned status %d", resp.StatusCode), string(body))
	}

	// {"coin-id": {"usd": 1.23}}
	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, utils.NewAppError(utils.ErrCodePrice, "Failed to decode price response", err.Error())
	}

	usd, ok := payload[coinID]["usd"]
	if !ok {
		return nil, nil
	}

	price, err := decimal.NewFromString(usd.String())
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodePrice, "Invalid price value", usd.String())
	}
	return &price, nil
}

// storedFallback returns the last persisted price if it is recent enough
// to still be meaningful, otherwise nil.
func (s *CoingeckoService) storedFallback(ctx context.Context, chain models.Chain, symbol string) (*decimal.Decimal, error) {
	if s.storage == nil {
		return nil, nil
	}

	stored, err := s.storage.GetLatestTokenPrice(ctx, chain, symbol)
	if err != nil || stored == nil {
		return nil, nil
	}
	if time.Since(stored.FetchedAt) > 24*time.Hour {
		return nil, nil
	}

	price := stored.PriceUSD
	return &price, nil
}
