package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var ErrRunInProgress = errors.New("scheduler run already in progress")

const EventDealProcessed = "premium-alert:processed"

// EventPublisher fans scheduler events out to live listeners.
type EventPublisher interface {
	Publish(event string, payload any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, any) {}

type DealProcessedEvent struct {
	DealID       string    `json:"dealId"`
	Category     string    `json:"category"`
	AlertsQueued int       `json:"alertsQueued"`
	Timestamp    time.Time `json:"timestamp"`
}

type SchedulerOptions struct {
	Interval      time.Duration
	MinScore      int
	Window        time.Duration
	Limit         int
	SeenCacheSize int
	// Tables maps a listing category to the table its rows live in.
	Tables map[string]string
}

type RunResult struct {
	DealsFound     int `json:"dealsFound"`
	DealsProcessed int `json:"dealsProcessed"`
	AlertsQueued   int `json:"alertsQueued"`
}

type SchedulerStatus struct {
	Running           bool       `json:"isRunning"`
	InProgress        bool       `json:"inProgress"`
	Interval          string     `json:"interval"`
	RunsCompleted     int64      `json:"runsCompleted"`
	TotalAlertsQueued int64      `json:"totalAlertsQueued"`
	Errors            int64      `json:"errors"`
	LastRun           *time.Time `json:"lastRun"`
	ProcessedDeals    int        `json:"processedDealsCount"`
}

// AlertScheduler polls the listing tables for fresh high-score deals and hands each unseen
// one to the alerting manager.
type AlertScheduler struct {
	alerting  *AlertingManager
	listings  domain.ListingSource
	publisher EventPublisher
	logger    *zap.Logger
	opts      SchedulerOptions
	now       func() time.Time

	seen       *lru.Cache[string, struct{}]
	inProgress atomic.Bool
	running    atomic.Bool

	mu                sync.Mutex
	runsCompleted     int64
	totalAlertsQueued int64
	runErrors         int64
	lastRun           *time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewAlertScheduler(alerting *AlertingManager, listings domain.ListingSource, publisher EventPublisher, logger *zap.Logger, opts SchedulerOptions) (*AlertScheduler, error) {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.SeenCacheSize <= 0 {
		opts.SeenCacheSize = 10000
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	seen, err := lru.New[string, struct{}](opts.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}
	return &AlertScheduler{
		alerting:  alerting,
		listings:  listings,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		seen:      seen,
		stopChan:  make(chan struct{}),
	}, nil
}

// SetClock replaces the time source.
func (s *AlertScheduler) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AlertScheduler) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("alert scheduler already running")
		return
	}
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("alert scheduler started", zap.Duration("interval", s.opts.Interval))
}

// Stop prevents future ticks and waits for the loop to exit. A run in flight completes.
func (s *AlertScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	if s.running.CompareAndSwap(true, false) {
		s.logger.Info("alert scheduler stopped")
	}
}

func (s *AlertScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					s.logger.Debug("skipping scheduler tick, previous run still in progress")
					continue
				}
				s.logger.Error("scheduler run failed", zap.Error(err))
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ForceRun triggers a run outside the ticker.
func (s *AlertScheduler) ForceRun(ctx context.Context) (RunResult, error) {
	return s.Run(ctx)
}

// Run performs one poll. Overlapping calls get ErrRunInProgress. A failing table is
// skipped; a failing deal aborts the rest of the run.
func (s *AlertScheduler) Run(ctx context.Context) (RunResult, error) {
	if !s.inProgress.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer s.inProgress.Store(false)

	started := s.now()
	s.mu.Lock()
	s.lastRun = &started
	s.mu.Unlock()

	deals := s.findHotDeals(ctx, started)
	result := RunResult{DealsFound: len(deals)}

	for _, deal := range deals {
		if s.seen.Contains(seenKey(deal)) {
			continue
		}
		queued, err := s.processDeal(ctx, deal)
		if err != nil {
			s.mu.Lock()
			s.runErrors++
			s.mu.Unlock()
			return result, err
		}
		result.DealsProcessed++
		result.AlertsQueued += queued
	}

	s.mu.Lock()
	s.runsCompleted++
	s.mu.Unlock()

	if result.DealsProcessed > 0 {
		s.logger.Info("scheduler run complete",
			zap.Int("deals_found", result.DealsFound),
			zap.Int("deals_processed", result.DealsProcessed),
			zap.Int("alerts_queued", result.AlertsQueued),
			zap.Duration("took", s.now().Sub(started)),
		)
	}
	return result, nil
}

// ProcessDeal pushes a single deal through fan-out outside the poll and marks it seen.
func (s *AlertScheduler) ProcessDeal(ctx context.Context, deal domain.Deal) (DealResult, error) {
	if err := deal.Validate(); err != nil {
		return DealResult{}, err
	}
	result, err := s.alerting.ProcessDeal(ctx, deal)
	if err != nil {
		return result, err
	}
	s.markProcessed(deal, result.Queued)
	return result, nil
}

func (s *AlertScheduler) processDeal(ctx context.Context, deal domain.Deal) (int, error) {
	result, err := s.alerting.ProcessDeal(ctx, deal)
	if err != nil {
		return 0, fmt.Errorf("process deal %s: %w", deal.ID, err)
	}
	s.markProcessed(deal, result.Queued)
	return result.Queued, nil
}

func (s *AlertScheduler) markProcessed(deal domain.Deal, queued int) {
	s.seen.Add(seenKey(deal), struct{}{})
	s.mu.Lock()
	s.totalAlertsQueued += int64(queued)
	s.mu.Unlock()
	s.publisher.Publish(EventDealProcessed, DealProcessedEvent{
		DealID:       deal.ID,
		Category:     deal.Category,
		AlertsQueued: queued,
		Timestamp:    s.now(),
	})
}

func (s *AlertScheduler) findHotDeals(ctx context.Context, now time.Time) []domain.Deal {
	categories := make([]string, 0, len(s.opts.Tables))
	for category := range s.opts.Tables {
		categories = append(categories, category)
	}
	slices.Sort(categories)

	var deals []domain.Deal
	for _, category := range categories {
		table := s.opts.Tables[category]
		found, err := s.listings.FindHotDeals(ctx, domain.HotDealQuery{
			Table:    table,
			Category: category,
			MinScore: s.opts.MinScore,
			Since:    now.Add(-s.opts.Window),
			Limit:    s.opts.Limit,
		})
		if err != nil {
			s.logger.Warn("failed to query listing table", zap.String("table", table), zap.String("category", category), zap.Error(err))
			continue
		}
		deals = append(deals, found...)
	}
	return deals
}

func seenKey(deal domain.Deal) string {
	return deal.Category + ":" + deal.ID
}

func (s *AlertScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SchedulerStatus{
		Running:           s.running.Load(),
		InProgress:        s.inProgress.Load(),
		Interval:          s.opts.Interval.String(),
		RunsCompleted:     s.runsCompleted,
		TotalAlertsQueued: s.totalAlertsQueued,
		Errors:            s.runErrors,
		ProcessedDeals:    s.seen.Len(),
	}
	if s.lastRun != nil {
		lastRun := *s.lastRun
		status.LastRun = &lastRun
	}
	return status
}
