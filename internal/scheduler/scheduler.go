// File: internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/artematbio/bio-whale-monitor/internal/chain"
	"github.com/artematbio/bio-whale-monitor/internal/config"
	"github.com/artematbio/bio-whale-monitor/internal/dispatcher"
	"github.com/artematbio/bio-whale-monitor/internal/evaluator"
	"github.com/artematbio/bio-whale-monitor/internal/metrics"
	"github.com/artematbio/bio-whale-monitor/internal/models"
	"github.com/artematbio/bio-whale-monitor/internal/normalizer"
	"github.com/artematbio/bio-whale-monitor/internal/price"
	"github.com/artematbio/bio-whale-monitor/internal/storage"
	"github.com/artematbio/bio-whale-monitor/pkg/utils"
)

// Scheduler runs one polling worker per monitored (chain, wallet) pair.
// Workers are independent: a stalled RPC endpoint on one chain never blocks
// pairs on the other. Each cycle re-reads an overlap window behind the
// cursor, so missed events get a second look and dedup in storage absorbs
// the re-observations.
type Scheduler struct {
	config     *config.SchedulerConfig
	wallets    []config.WalletConfig
	clients    map[models.Chain]chain.Client
	storage    storage.Storage
	normalizer *normalizer.Normalizer
	price      price.Service
	evaluator  *evaluator.Evaluator
	dispatcher *dispatcher.Dispatcher
	metrics    *metrics.Manager
	logger     *logrus.Logger

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	stats    *SchedulerStats
}

// SchedulerStats provides scheduler statistics
type SchedulerStats struct {
	StartTime       time.Time  `json:"start_time"`
	IsRunning       bool       `json:"is_running"`
	PairsMonitored  int        `json:"pairs_monitored"`
	CyclesCompleted uint64     `json:"cycles_completed"`
	CyclesFailed    uint64     `json:"cycles_failed"`
	EventsObserved  uint64     `json:"events_observed"`
	EventsInserted  uint64     `json:"events_inserted"`
	Duplicates      uint64     `json:"duplicates"`
	AlertsTriggered uint64     `json:"alerts_triggered"`
	LastError       *string    `json:"last_error,omitempty"`
	LastErrorTime   *time.Time `json:"last_error_time,omitempty"`
}

// NewScheduler creates a new poll scheduler
func NewScheduler(
	cfg *config.SchedulerConfig,
	wallets []config.WalletConfig,
	clients map[models.Chain]chain.Client,
	store storage.Storage,
	norm *normalizer.Normalizer,
	priceService price.Service,
	eval *evaluator.Evaluator,
	disp *dispatcher.Dispatcher,
	metricsManager *metrics.Manager,
) *Scheduler {
	return &Scheduler{
		config:     cfg,
		wallets:    wallets,
		clients:    clients,
		storage:    store,
		normalizer: norm,
		price:      priceService,
		evaluator:  eval,
		dispatcher: disp,
		metrics:    metricsManager,
		logger:     utils.GetLogger(),
		stopChan:   make(chan struct{}),
		stats:      &SchedulerStats{},
	}
}

// Start launches one worker per monitored pair
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Scheduler already running", "")
	}

	s.logger.WithField("pairs", len(s.wallets)).Info("Starting poll scheduler")
	s.running = true
	s.stats.StartTime = time.Now()
	s.stats.IsRunning = true
	s.stats.PairsMonitored = len(s.wallets)

	for i, wallet := range s.wallets {
		client, ok := s.clients[models.Chain(wallet.Chain)]
		if !ok {
			s.logger.WithFields(logrus.Fields{
				"chain":   wallet.Chain,
				"address": wallet.Address,
			}).Error("No chain adapter configured for wallet, skipping")
			continue
		}

		s.wg.Add(1)
		go s.runWorker(ctx, wallet, client, i)
	}

	return nil
}

// Stop stops all workers and waits for in-flight cycles to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stats.IsRunning = false
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("Poll scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// runWorker is the per-pair polling loop. Start times are staggered so all
// pairs do not hit the RPC endpoints at once.
func (s *Scheduler) runWorker(ctx context.Context, wallet config.WalletConfig, client chain.Client, index int) {
	defer s.wg.Done()

	log := s.logger.WithFields(logrus.Fields{
		"chain":   wallet.Chain,
		"address": wallet.Address,
		"dao":     wallet.DAOName,
	})

	if s.config.StartStagger > 0 {
		select {
		case <-time.After(time.Duration(index) * s.config.StartStagger):
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}

	log.Info("Poll worker started")
	failures := 0

	for {
		err := s.pollPair(ctx, wallet, client)
		if err != nil {
			failures++
			s.recordCycleError(err)
			log.WithFields(logrus.Fields{
				"error":    err,
				"failures": failures,
			}).Warn("Poll cycle failed")
		} else {
			failures = 0
		}

		delay := s.config.PollInterval
		if failures > 0 {
			delay = backoffDelay(s.config.BackoffBase, s.config.BackoffMax, failures)
		}

		select {
		case <-time.After(delay):
		case <-s.stopChan:
			log.Info("Poll worker stopped")
			return
		case <-ctx.Done():
			log.Info("Poll worker stopped")
			return
		}
	}
}

// pollPair runs one poll cycle for a pair. The cursor only advances when
// the whole cycle succeeded; any fetch or storage error leaves it in place
// so the next cycle re-reads the same window.
func (s *Scheduler) pollPair(ctx context.Context, wallet config.WalletConfig, client chain.Client) error {
	cycleCtx := ctx
	if s.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.config.CycleTimeout)
		defer cancel()
	}

	start := time.Now()
	chainName := wallet.Chain

	cursor, err := s.storage.GetCursor(cycleCtx, models.Chain(chainName), wallet.Address)
	if err != nil {
		return err
	}

	// First cycle for a pair observes the tip only: no historical backfill,
	// monitoring starts from now.
	fromBlock := uint64(math.MaxUint64)
	if cursor != nil {
		fromBlock = 0
		if cursor.LastSeenBlock+1 > s.config.OverlapBlocks {
			fromBlock = cursor.LastSeenBlock + 1 - s.config.OverlapBlocks
		}
	}

	events, tip, err := client.FetchTransfers(cycleCtx, wallet.Address, fromBlock)
	if err != nil {
		if ferr := s.storage.RecordPollFailure(cycleCtx, models.Chain(chainName), wallet.Address); ferr != nil {
			s.logger.WithField("address", wallet.Address).Warn("Failed to record poll failure")
		}
		if s.metrics != nil {
			s.metrics.GetPrometheusMetrics().RecordPollCycle(chainName, wallet.Address, "error", time.Since(start))
		}
		return err
	}

	s.addStat(func(st *SchedulerStats) { st.EventsObserved += uint64(len(events)) })
	if s.metrics != nil {
		s.metrics.GetPrometheusMetrics().RecordEventsObserved(chainName, len(events))
	}

	for i := range events {
		if err := s.processRawEvent(cycleCtx, wallet, &events[i]); err != nil {
			// Storage errors abort the cycle before the cursor moves past
			// the unprocessed events.
			if ferr := s.storage.RecordPollFailure(cycleCtx, models.Chain(chainName), wallet.Address); ferr != nil {
				s.logger.WithField("address", wallet.Address).Warn("Failed to record poll failure")
			}
			if s.metrics != nil {
				s.metrics.GetPrometheusMetrics().RecordPollCycle(chainName, wallet.Address, "error", time.Since(start))
			}
			return err
		}
	}

	if err := s.storage.AdvanceCursor(cycleCtx, models.Chain(chainName), wallet.Address, tip); err != nil {
		return err
	}

	s.addStat(func(st *SchedulerStats) { st.CyclesCompleted++ })
	if s.metrics != nil {
		pm := s.metrics.GetPrometheusMetrics()
		pm.RecordPollCycle(chainName, wallet.Address, "success", time.Since(start))
		pm.UpdateCursor(chainName, wallet.Address, tip)
		pm.UpdatePairFailures(chainName, wallet.Address, 0)
	}
	return nil
}

// processRawEvent runs one raw event through the pipeline: normalize,
// price, dedup insert, evaluate, dispatch. Returns an error only for
// storage failures; everything else degrades per event.
func (s *Scheduler) processRawEvent(ctx context.Context, wallet config.WalletConfig, raw *models.RawEvent) error {
	event, err := s.normalizer.Normalize(raw, wallet.DAOName)
	if err != nil {
		// Malformed raw events never become valid on retry.
		s.logger.WithFields(logrus.Fields{
			"tx":    raw.TxSignature,
			"error": err,
		}).Warn("Dropping unnormalizable event")
		return nil
	}
	if event == nil {
		return nil
	}

	if usdPrice, perr := s.price.GetUSDPrice(ctx, event.Chain, event.TokenSymbol); perr == nil && usdPrice != nil {
		usd := event.TokenAmount.Mul(*usdPrice)
		event.USDValue = &usd
	}

	inserted, err := s.storage.InsertEvent(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		s.addStat(func(st *SchedulerStats) { st.Duplicates++ })
		if s.metrics != nil {
			s.metrics.GetPrometheusMetrics().RecordEventDuplicate(string(event.Chain))
		}
		return nil
	}

	s.addStat(func(st *SchedulerStats) { st.EventsInserted++ })
	if s.metrics != nil {
		s.metrics.GetPrometheusMetrics().RecordEventInserted(string(event.Chain), event.TokenSymbol)
	}

	verdict := s.evaluator.Evaluate(event)
	if !verdict.Triggered {
		return nil
	}

	s.addStat(func(st *SchedulerStats) { st.AlertsTriggered++ })
	claimStart := time.Now()

	dispatched, err := s.dispatcher.Dispatch(ctx, event, verdict)
	if err != nil {
		// Delivery failures are owned by the alert record machinery; the
		// poll cycle itself succeeded in observing and storing the event.
		s.logger.WithFields(logrus.Fields{
			"event_id": event.ID,
			"error":    err,
		}).Error("Alert dispatch failed")
		if s.metrics != nil && dispatched {
			s.metrics.GetPrometheusMetrics().RecordAlertFailed(string(verdict.Severity))
		}
		return nil
	}
	if dispatched && s.metrics != nil {
		pm := s.metrics.GetPrometheusMetrics()
		pm.RecordAlertClaimed(string(verdict.Severity))
		pm.RecordAlertSent(string(verdict.Severity), time.Since(claimStart))
	}
	return nil
}

// Health returns the per-pair health signal
func (s *Scheduler) Health(ctx context.Context) ([]models.PairHealth, error) {
	cursors, err := s.storage.GetCursors(ctx)
	if err != nil {
		return nil, err
	}

	byPair := make(map[string]*models.PollCursor, len(cursors))
	for _, c := range cursors {
		byPair[string(c.Chain)+"|"+c.Address] = c
	}

	staleAfter := 5 * s.config.PollInterval
	health := make([]models.PairHealth, 0, len(s.wallets))
	for _, w := range s.wallets {
		ph := models.PairHealth{
			Chain:   models.Chain(w.Chain),
			Address: w.Address,
			Healthy: true,
		}
		if c, ok := byPair[w.Chain+"|"+w.Address]; ok {
			ph.LastSuccessAt = c.LastSuccessAt
			ph.ConsecutiveFailures = c.ConsecutiveFailures
			if c.ConsecutiveFailures >= 3 {
				ph.Healthy = false
			}
			if c.LastSuccessAt != nil && time.Since(*c.LastSuccessAt) > staleAfter {
				ph.Healthy = false
			}
			if s.metrics != nil {
				s.metrics.GetPrometheusMetrics().UpdatePairFailures(w.Chain, w.Address, c.ConsecutiveFailures)
			}
		}
		health = append(health, ph)
	}
	return health, nil
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() *SchedulerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statsCopy := *s.stats
	return &statsCopy
}

func (s *Scheduler) addStat(update func(*SchedulerStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(s.stats)
}

func (s *Scheduler) recordCycleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.CyclesFailed++
	errStr := err.Error()
	now := time.Now()
	s.stats.LastError = &errStr
	s.stats.LastErrorTime = &now
}
