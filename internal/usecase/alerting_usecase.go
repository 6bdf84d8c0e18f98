package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	immediateDeliveryTimeout = 30 * time.Second
	maxResponseBodyLen       = 2000
	defaultBatchSize         = 100
	defaultHistoryLimit      = 50
	defaultPendingLimit      = 20
	maxHistoryLimit          = 200
)

type AlertingOptions struct {
	BatchSize   int
	Pacing      time.Duration
	Location    *time.Location
	FrontendURL string
}

type DealResult struct {
	Queued int `json:"queued"`
	Errors int `json:"errors"`
}

type QueueResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// AlertingManager fans matched deals out into the delivery queue and drains it through the
// channel senders.
type AlertingManager struct {
	prefs     domain.PreferenceRepository
	watchlist domain.WatchlistRepository
	queue     domain.QueueRepository
	logs      domain.DeliveryLogRepository
	senders   map[domain.Channel]domain.ChannelSender
	logger    *zap.Logger
	opts      AlertingOptions
	now       func() time.Time

	inflight sync.WaitGroup
}

func NewAlertingManager(
	prefs domain.PreferenceRepository,
	watchlist domain.WatchlistRepository,
	queue domain.QueueRepository,
	logs domain.DeliveryLogRepository,
	senders []domain.ChannelSender,
	logger *zap.Logger,
	opts AlertingOptions,
) *AlertingManager {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	bySender := make(map[domain.Channel]domain.ChannelSender, len(senders))
	for _, sender := range senders {
		bySender[sender.Channel()] = sender
	}
	return &AlertingManager{
		prefs:     prefs,
		watchlist: watchlist,
		queue:     queue,
		logs:      logs,
		senders:   bySender,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (m *AlertingManager) SetClock(now func() time.Time) {
	m.now = now
}

// Wait blocks until every immediate delivery started so far has finished.
func (m *AlertingManager) Wait() {
	m.inflight.Wait()
}

// QueueAlert enqueues one item per enabled channel when deal matches the user's settings.
// A missing preferences row, a failed match, quiet hours and zero enabled channels all
// return nil without an error.
func (m *AlertingManager) QueueAlert(ctx context.Context, userID string, deal domain.Deal) ([]domain.QueueItem, error) {
	prefs, err := m.prefs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.logger.Debug("no alert preferences", zap.String("user_id", userID))
			return nil, nil
		}
		return nil, fmt.Errorf("load preferences for user %s: %w", userID, err)
	}

	watchlist, err := m.watchlist.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load watchlist for user %s: %w", userID, err)
	}

	if !Matches(deal, prefs, watchlist) {
		m.logger.Debug("deal does not match criteria", zap.String("user_id", userID), zap.String("deal_id", deal.ID))
		return nil, nil
	}

	now := m.now()
	if IsQuietHours(prefs, now.In(m.opts.Location)) {
		m.logger.Debug("skipping alert during quiet hours", zap.String("user_id", userID), zap.String("deal_id", deal.ID))
		return nil, nil
	}

	channels := prefs.EnabledChannels()
	if len(channels) == 0 {
		m.logger.Debug("no enabled channels", zap.String("user_id", userID))
		return nil, nil
	}

	delayMinutes := max(prefs.AlertDelayMinutes, 0)
	scheduledAt := now.Add(time.Duration(delayMinutes) * time.Minute)
	status := domain.StatusPending
	if delayMinutes == 0 {
		status = domain.StatusReady
	}

	queued := make([]domain.QueueItem, 0, len(channels))
	for _, channel := range channels {
		item := domain.QueueItem{
			UserID:       userID,
			PreferenceID: prefs.ID,
			DealID:       deal.ID,
			Deal:         deal,
			Channel:      channel,
			ScheduledAt:  scheduledAt,
			Status:       status,
		}
		created, err := m.queue.Enqueue(ctx, &item)
		if err != nil {
			m.logger.Error("failed to queue alert", zap.String("user_id", userID), zap.String("deal_id", deal.ID), zap.String("channel", string(channel)), zap.Error(err))
			continue
		}
		if !created {
			m.logger.Debug("alert already queued", zap.String("user_id", userID), zap.String("deal_id", deal.ID), zap.String("channel", string(channel)))
			continue
		}
		queued = append(queued, item)
		m.logger.Info("queued alert",
			zap.String("user_id", userID),
			zap.String("deal_id", deal.ID),
			zap.String("channel", string(channel)),
			zap.Time("scheduled_at", scheduledAt),
		)
	}

	if delayMinutes == 0 {
		for _, item := range queued {
			m.dispatchNow(ctx, item)
		}
	}

	return queued, nil
}

func (m *AlertingManager) dispatchNow(ctx context.Context, item domain.QueueItem) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), immediateDeliveryTimeout)
		defer cancel()
		if err := m.Deliver(deliverCtx, item); err != nil {
			m.logger.Warn("immediate delivery failed", zap.String("queue_id", item.ID.String()), zap.Error(err))
		}
	}()
}

// ProcessDeal queues deal for every user with at least one channel enabled. Per-user
// failures are counted; only failing to list the users is returned as an error.
func (m *AlertingManager) ProcessDeal(ctx context.Context, deal domain.Deal) (DealResult, error) {
	if err := deal.Validate(); err != nil {
		return DealResult{}, err
	}
	m.logger.Info("processing deal for alerts", zap.String("deal_id", deal.ID), zap.String("category", deal.Category))

	prefs, err := m.prefs.ListWithAlertsEnabled(ctx)
	if err != nil {
		m.logger.Error("failed to fetch preferences", zap.Error(err))
		return DealResult{Errors: 1}, fmt.Errorf("list users with alerts enabled: %w", err)
	}

	var result DealResult
	for _, pref := range prefs {
		items, err := m.QueueAlert(ctx, pref.UserID, deal)
		if err != nil {
			m.logger.Error("failed to queue for user", zap.String("user_id", pref.UserID), zap.String("deal_id", deal.ID), zap.Error(err))
			result.Errors++
			continue
		}
		result.Queued += len(items)
	}

	m.logger.Info("deal processed", zap.String("deal_id", deal.ID), zap.Int("queued", result.Queued), zap.Int("errors", result.Errors))
	return result, nil
}

// Deliver sends one queue item and records the outcome on the queue row and in the
// delivery log. The returned error is the delivery failure, if any.
func (m *AlertingManager) Deliver(ctx context.Context, item domain.QueueItem) error {
	start := time.Now()
	result, terminal, sendErr := m.send(ctx, item)
	latency := time.Since(start)

	if sendErr == nil {
		if err := m.queue.MarkDelivered(ctx, item.ID, m.now()); err != nil {
			m.logger.Error("failed to mark alert delivered", zap.String("queue_id", item.ID.String()), zap.Error(err))
		}
		m.appendLog(ctx, item, domain.ResponseCodeDelivered, responseBody(result), latency)
		m.logger.Info("delivered alert", zap.String("queue_id", item.ID.String()), zap.String("channel", string(item.Channel)), zap.Duration("latency", latency))
		return nil
	}

	reason := truncate(sendErr.Error(), maxResponseBodyLen)
	if err := m.queue.MarkFailed(ctx, item.ID, reason, terminal); err != nil {
		m.logger.Error("failed to mark alert failed", zap.String("queue_id", item.ID.String()), zap.Error(err))
	}
	m.appendLog(ctx, item, domain.ResponseCodeFailed, reason, latency)
	m.logger.Error("failed to deliver alert",
		zap.String("queue_id", item.ID.String()),
		zap.String("channel", string(item.Channel)),
		zap.Bool("terminal", terminal),
		zap.Error(sendErr),
	)
	return sendErr
}

// send reports terminal=true for failures a retry cannot fix: a dangling preference
// reference, a malformed snapshot or an unknown channel.
func (m *AlertingManager) send(ctx context.Context, item domain.QueueItem) (*domain.DeliveryResult, bool, error) {
	prefs, err := m.prefs.GetByID(ctx, item.PreferenceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, true, fmt.Errorf("preferences %s: %w", item.PreferenceID, domain.ErrPreferencesNotFound)
		}
		return nil, false, fmt.Errorf("load preferences %s: %w", item.PreferenceID, err)
	}
	if err := item.Deal.Validate(); err != nil {
		return nil, true, fmt.Errorf("deal snapshot: %w", err)
	}
	sender, ok := m.senders[item.Channel]
	if !ok {
		return nil, true, fmt.Errorf("%w: %s", domain.ErrUnknownChannel, item.Channel)
	}
	result, err := sender.Send(ctx, prefs.Destination(), item.Deal)
	return result, false, err
}

func (m *AlertingManager) appendLog(ctx context.Context, item domain.QueueItem, code int, body string, latency time.Duration) {
	entry := &domain.DeliveryLogEntry{
		QueueID:             item.ID,
		UserID:              item.UserID,
		DealID:              item.DealID,
		Channel:             item.Channel,
		ResponseCode:        code,
		ResponseBody:        truncate(body, maxResponseBodyLen),
		LatencyMS:           latency.Milliseconds(),
		DealBrand:           item.Deal.Brand,
		DealCategory:        item.Deal.Category,
		DealPrice:           item.Deal.Price,
		DealScore:           item.Deal.DealScore,
		DealDiscountPercent: item.Deal.DiscountPercent,
		DeliveredAt:         m.now(),
	}
	if err := m.logs.Append(ctx, entry); err != nil {
		m.logger.Error("failed to log delivery", zap.String("queue_id", item.ID.String()), zap.Error(err))
	}
}

func responseBody(result *domain.DeliveryResult) string {
	if result == nil {
		return ""
	}
	data, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(data)
}

// truncate caps value at limit bytes without splitting a rune and drops invalid UTF-8.
func truncate(value string, limit int) string {
	value = strings.ToValidUTF8(value, "")
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

// ProcessQueue delivers due items oldest schedule first, pausing between deliveries to
// stay under channel rate limits.
func (m *AlertingManager) ProcessQueue(ctx context.Context) (QueueResult, error) {
	items, err := m.queue.ListDue(ctx, m.now(), m.opts.BatchSize)
	if err != nil {
		m.logger.Error("failed to fetch pending alerts", zap.Error(err))
		return QueueResult{Errors: 1}, fmt.Errorf("list due alerts: %w", err)
	}
	if len(items) == 0 {
		return QueueResult{}, nil
	}

	m.logger.Info("processing pending alerts", zap.Int("count", len(items)))

	var result QueueResult
	for i, item := range items {
		if err := m.Deliver(ctx, item); err != nil {
			result.Errors++
		} else {
			result.Processed++
		}

		if m.opts.Pacing > 0 && i < len(items)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(m.opts.Pacing):
			}
		}
	}

	m.logger.Info("queue processing complete", zap.Int("delivered", result.Processed), zap.Int("failed", result.Errors))
	return result, nil
}

// Cleanup purges terminal queue rows created before now-olderThan.
func (m *AlertingManager) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := m.now().Add(-olderThan)
	deleted, err := m.queue.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup queue: %w", err)
	}
	if deleted > 0 {
		m.logger.Info("cleaned up old queue entries", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}

type UserStats struct {
	Today     int            `json:"today"`
	ThisWeek  int            `json:"thisWeek"`
	Pending   int64          `json:"pending"`
	ByChannel map[string]int `json:"byChannel"`
}

// GetUserStats counts successful deliveries since local midnight and over the last week.
func (m *AlertingManager) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	now := m.now().In(m.opts.Location)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.opts.Location)
	weekStart := todayStart.AddDate(0, 0, -7)

	entries, err := m.logs.ListByUserSince(ctx, userID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("list deliveries for user %s: %w", userID, err)
	}

	stats := &UserStats{ByChannel: make(map[string]int)}
	for _, entry := range entries {
		if !entry.Succeeded() {
			continue
		}
		stats.ThisWeek++
		if !entry.DeliveredAt.Before(todayStart) {
			stats.Today++
		}
		stats.ByChannel[string(entry.Channel)]++
	}

	pending, err := m.queue.CountPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count pending for user %s: %w", userID, err)
	}
	stats.Pending = pending
	return stats, nil
}

type GlobalStats struct {
	TotalUsers     int64 `json:"totalUsers"`
	TotalDelivered int64 `json:"totalDelivered"`
	PendingQueue   int64 `json:"pendingQueue"`
}

func (m *AlertingManager) GetGlobalStats(ctx context.Context) (*GlobalStats, error) {
	users, err := m.prefs.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count preferences: %w", err)
	}
	delivered, err := m.logs.CountDelivered(ctx)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	pending, err := m.queue.CountPending(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}
	return &GlobalStats{TotalUsers: users, TotalDelivered: delivered, PendingQueue: pending}, nil
}

// History returns delivery attempts newest first. limit defaults to 50 and is capped at 200.
func (m *AlertingManager) History(ctx context.Context, userID string, limit int) ([]domain.DeliveryLogEntry, error) {
	return m.logs.ListRecentByUser(ctx, userID, clampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
}

// Pending returns undelivered queue rows, earliest schedule first.
func (m *AlertingManager) Pending(ctx context.Context, userID string, limit int) ([]domain.QueueItem, error) {
	return m.queue.ListPendingByUser(ctx, userID, clampLimit(limit, defaultPendingLimit, maxHistoryLimit))
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// TestChannel sends a sample deal straight through one sender, skipping matching and the
// queue. override may adjust the sample before sending.
func (m *AlertingManager) TestChannel(ctx context.Context, userID string, channel domain.Channel, override func(*domain.Deal)) (*domain.DeliveryResult, error) {
	prefs, err := m.prefs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPreferencesNotFound
		}
		return nil, fmt.Errorf("load preferences for user %s: %w", userID, err)
	}

	sender, ok := m.senders[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownChannel, channel)
	}

	deal := SampleDeal(m.opts.FrontendURL)
	if override != nil {
		override(&deal)
	}

	m.logger.Info("sending test alert", zap.String("user_id", userID), zap.String("channel", string(channel)))
	return sender.Send(ctx, prefs.Destination(), deal)
}

// SampleDeal is the fixed deal used by TestChannel.
func SampleDeal(frontendURL string) domain.Deal {
	originalPrice := decimal.NewFromInt(1499)
	discount := 33.0
	score := 85
	return domain.Deal{
		ID:              "test-deal",
		Category:        "watches",
		Brand:           "TestBrand",
		Model:           "TestModel",
		Title:           "Test Deal Alert",
		Price:           decimal.NewFromInt(999),
		OriginalPrice:   &originalPrice,
		DiscountPercent: &discount,
		DealScore:       &score,
		Source:          "The Hub",
		URL:             frontendURL,
	}
}
