package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/NasaVasa/hubalerts/internal/infra/channel"
	"github.com/NasaVasa/hubalerts/internal/infra/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSender struct {
	channel domain.Channel

	mu    sync.Mutex
	err   error
	sent  []domain.Deal
	dests []domain.Destination
}

func (s *fakeSender) Channel() domain.Channel { return s.channel }

func (s *fakeSender) Send(ctx context.Context, destination domain.Destination, deal domain.Deal) (*domain.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, deal)
	s.dests = append(s.dests, destination)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.DeliveryResult{StatusCode: 200, ID: "msg-1"}, nil
}

func (s *fakeSender) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type harness struct {
	clock     *fakeClock
	prefs     *memory.PreferenceStore
	watchlist *memory.WatchlistStore
	queue     *memory.QueueStore
	logs      *memory.DeliveryLogStore
	senders   map[domain.Channel]*fakeSender
	manager   *AlertingManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:     &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
		prefs:     memory.NewPreferenceStore(),
		watchlist: memory.NewWatchlistStore(),
		queue:     memory.NewQueueStore(),
		logs:      memory.NewDeliveryLogStore(),
		senders:   make(map[domain.Channel]*fakeSender),
	}
	h.queue.SetClock(h.clock.Now)

	senders := make([]domain.ChannelSender, 0, len(domain.AllChannels))
	for _, channel := range domain.AllChannels {
		sender := &fakeSender{channel: channel}
		h.senders[channel] = sender
		senders = append(senders, sender)
	}

	h.manager = NewAlertingManager(h.prefs, h.watchlist, h.queue, h.logs, senders, zap.NewNop(), AlertingOptions{
		BatchSize:   100,
		Location:    time.UTC,
		FrontendURL: "https://thehub.app",
	})
	h.manager.SetClock(h.clock.Now)
	return h
}

func (h *harness) saveUser(t *testing.T, userID string, tier domain.Tier, mutate func(p *domain.AlertPreference)) *domain.AlertPreference {
	t.Helper()
	pref := domain.NewAlertPreference(userID)
	pref.ApplyTier(tier)
	pref.EmailEnabled = true
	pref.EmailAddress = userID + "@example.com"
	if mutate != nil {
		mutate(pref)
	}
	require.NoError(t, h.prefs.Save(context.Background(), pref))
	return pref
}

func TestQueueAlertFreeTierIsDelayed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "free-user", domain.TierFree, nil)

	items, err := h.manager.QueueAlert(ctx, "free-user", rolexDeal())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.StatusPending, items[0].Status)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), items[0].ScheduledAt)

	h.manager.Wait()
	assert.Equal(t, 0, h.senders[domain.ChannelEmail].Count())

	result, err := h.manager.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueResult{}, result)

	h.clock.Advance(16 * time.Minute)
	result, err = h.manager.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueResult{Processed: 1}, result)
	assert.Equal(t, 1, h.senders[domain.ChannelEmail].Count())

	stored, ok := h.queue.Get(items[0].ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusDelivered, stored.Status)
	require.NotNil(t, stored.DeliveredAt)

	logs := h.logs.All()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ResponseCodeDelivered, logs[0].ResponseCode)
	assert.Equal(t, "Rolex", logs[0].DealBrand)
	assert.True(t, decimal.NewFromInt(8500).Equal(logs[0].DealPrice))
}

func TestQueueAlertPaidTierDeliversImmediately(t *testing.T) {
	for _, tier := range []domain.Tier{domain.TierPro, domain.TierPremium, domain.TierEnterprise} {
		t.Run(string(tier), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.saveUser(t, "paid-user", tier, func(p *domain.AlertPreference) {
				p.TelegramEnabled = true
				p.TelegramChatID = "12345"
			})

			items, err := h.manager.QueueAlert(ctx, "paid-user", rolexDeal())
			require.NoError(t, err)
			require.Len(t, items, 2)
			for _, item := range items {
				assert.Equal(t, domain.StatusReady, item.Status)
				assert.Equal(t, h.clock.Now(), item.ScheduledAt)
			}
			assert.Equal(t, domain.ChannelEmail, items[0].Channel)
			assert.Equal(t, domain.ChannelTelegram, items[1].Channel)

			h.manager.Wait()
			assert.Equal(t, 1, h.senders[domain.ChannelEmail].Count())
			assert.Equal(t, 1, h.senders[domain.ChannelTelegram].Count())
			for _, item := range h.queue.All() {
				assert.Equal(t, domain.StatusDelivered, item.Status)
			}
		})
	}
}

func TestQueueAlertZeroDelayIsNotReplacedByDefault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "pro-user", domain.TierPro, nil)

	pref, err := h.prefs.GetByUserID(ctx, "pro-user")
	require.NoError(t, err)
	assert.Equal(t, 0, pref.AlertDelayMinutes)

	items, err := h.manager.QueueAlert(ctx, "pro-user", rolexDeal())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].ScheduledAt.After(h.clock.Now()))
	h.manager.Wait()
}

func TestQueueAlertSkips(t *testing.T) {
	t.Run("no preferences", func(t *testing.T) {
		h := newHarness(t)
		items, err := h.manager.QueueAlert(context.Background(), "ghost", rolexDeal())
		require.NoError(t, err)
		assert.Nil(t, items)
	})

	t.Run("quiet hours", func(t *testing.T) {
		h := newHarness(t)
		h.clock.now = time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
		h.saveUser(t, "sleeper", domain.TierPro, func(p *domain.AlertPreference) {
			p.QuietHoursStart = "22:00"
			p.QuietHoursEnd = "06:00"
		})
		items, err := h.manager.QueueAlert(context.Background(), "sleeper", rolexDeal())
		require.NoError(t, err)
		assert.Nil(t, items)
		assert.Empty(t, h.queue.All())
	})

	t.Run("no match", func(t *testing.T) {
		h := newHarness(t)
		h.saveUser(t, "picky", domain.TierPro, func(p *domain.AlertPreference) {
			p.MinDealScore = intPtr(80)
		})
		deal := rolexDeal()
		deal.DealScore = intPtr(75)
		items, err := h.manager.QueueAlert(context.Background(), "picky", deal)
		require.NoError(t, err)
		assert.Nil(t, items)
	})

	t.Run("toggle without destination", func(t *testing.T) {
		h := newHarness(t)
		h.saveUser(t, "half", domain.TierPro, func(p *domain.AlertPreference) {
			p.EmailAddress = ""
			p.DiscordEnabled = true
		})
		items, err := h.manager.QueueAlert(context.Background(), "half", rolexDeal())
		require.NoError(t, err)
		assert.Nil(t, items)
	})
}

func TestQueueAlertDuplicateIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "u1", domain.TierFree, nil)

	first, err := h.manager.QueueAlert(ctx, "u1", rolexDeal())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := h.manager.QueueAlert(ctx, "u1", rolexDeal())
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, h.queue.All(), 1)
}

func TestProcessDealCountsAcrossUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "a", domain.TierFree, nil)
	h.saveUser(t, "b", domain.TierFree, func(p *domain.AlertPreference) {
		p.DiscordEnabled = true
		p.DiscordWebhookURL = "https://discord.com/api/webhooks/1/abc"
	})
	h.saveUser(t, "c", domain.TierFree, func(p *domain.AlertPreference) {
		p.Categories = []string{"cars"}
	})
	h.saveUser(t, "off", domain.TierFree, func(p *domain.AlertPreference) {
		p.EmailEnabled = false
	})

	result, err := h.manager.ProcessDeal(ctx, rolexDeal())
	require.NoError(t, err)
	assert.Equal(t, DealResult{Queued: 3}, result)

	_, err = h.manager.ProcessDeal(ctx, domain.Deal{})
	assert.ErrorIs(t, err, domain.ErrInvalidDeal)
}

func TestProcessDealHighScoreThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "hi", domain.TierFree, func(p *domain.AlertPreference) {
		p.MinDealScore = intPtr(80)
	})

	for score := 70; score <= 90; score += 5 {
		deal := rolexDeal()
		deal.ID = "score-" + decimal.NewFromInt(int64(score)).String()
		deal.DealScore = intPtr(score)
		result, err := h.manager.ProcessDeal(ctx, deal)
		require.NoError(t, err)
		if score >= 80 {
			assert.Equal(t, 1, result.Queued, score)
		} else {
			assert.Equal(t, 0, result.Queued, score)
		}
	}
}

func TestProcessQueueRetriesUpToCap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "u1", domain.TierFree, nil)
	h.senders[domain.ChannelEmail].SetErr(errors.New("provider down"))

	items, err := h.manager.QueueAlert(ctx, "u1", rolexDeal())
	require.NoError(t, err)
	require.Len(t, items, 1)
	h.clock.Advance(20 * time.Minute)

	for attempt := 1; attempt <= domain.MaxDeliveryAttempts; attempt++ {
		result, err := h.manager.ProcessQueue(ctx)
		require.NoError(t, err)
		assert.Equal(t, QueueResult{Errors: 1}, result)

		stored, _ := h.queue.Get(items[0].ID)
		assert.Equal(t, domain.StatusFailed, stored.Status)
		assert.Equal(t, attempt, stored.RetryCount)
		assert.Equal(t, "provider down", stored.DeliveryError)
	}

	result, err := h.manager.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueResult{}, result)
	assert.Equal(t, domain.MaxDeliveryAttempts, h.senders[domain.ChannelEmail].Count())

	logs := h.logs.All()
	require.Len(t, logs, domain.MaxDeliveryAttempts)
	for _, entry := range logs {
		assert.Equal(t, domain.ResponseCodeFailed, entry.ResponseCode)
		assert.Equal(t, "provider down", entry.ResponseBody)
	}
}

func TestFailedDeliveryBodyIsCapped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "u1", domain.TierFree, nil)
	h.senders[domain.ChannelEmail].SetErr(errors.New("x" + strings.Repeat("é", 1500)))

	items, err := h.manager.QueueAlert(ctx, "u1", rolexDeal())
	require.NoError(t, err)
	require.Len(t, items, 1)
	h.clock.Advance(20 * time.Minute)

	_, err = h.manager.ProcessQueue(ctx)
	require.NoError(t, err)

	logs := h.logs.All()
	require.Len(t, logs, 1)
	assert.LessOrEqual(t, len(logs[0].ResponseBody), maxResponseBodyLen)
	assert.True(t, utf8.ValidString(logs[0].ResponseBody))
	assert.True(t, strings.HasPrefix(logs[0].ResponseBody, "xé"))

	stored, _ := h.queue.Get(items[0].ID)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, logs[0].ResponseBody, stored.DeliveryError)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "aé", truncate("aé", 3))
	assert.Equal(t, "ok", truncate("o\xffk", 10))
	assert.Len(t, truncate(strings.Repeat("a", 5000), maxResponseBodyLen), maxResponseBodyLen)
}

// A Discord webhook answering 500 is retried on each sweep until the cap, with one
// failed log row per attempt.
func TestProcessQueueDiscordServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	h := newHarness(t)
	ctx := context.Background()
	discord := channel.NewDiscordSender(server.Client(), zap.NewNop())
	h.manager = NewAlertingManager(h.prefs, h.watchlist, h.queue, h.logs, []domain.ChannelSender{discord}, zap.NewNop(), AlertingOptions{
		BatchSize: 100,
		Location:  time.UTC,
	})
	h.manager.SetClock(h.clock.Now)
	h.saveUser(t, "u1", domain.TierFree, func(p *domain.AlertPreference) {
		p.EmailEnabled = false
		p.DiscordEnabled = true
		p.DiscordWebhookURL = server.URL
	})

	items, err := h.manager.QueueAlert(ctx, "u1", rolexDeal())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.ChannelDiscord, items[0].Channel)
	h.clock.Advance(20 * time.Minute)

	result, err := h.manager.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueResult{Errors: 1}, result)

	stored, _ := h.queue.Get(items[0].ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.DeliveryError, "500")

	logs := h.logs.All()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ResponseCodeFailed, logs[0].ResponseCode)
	assert.Equal(t, domain.ChannelDiscord, logs[0].Channel)
	assert.Contains(t, logs[0].ResponseBody, "internal error")

	for attempt := 2; attempt <= domain.MaxDeliveryAttempts; attempt++ {
		result, err = h.manager.ProcessQueue(ctx)
		require.NoError(t, err)
		assert.Equal(t, QueueResult{Errors: 1}, result)
		stored, _ = h.queue.Get(items[0].ID)
		assert.Equal(t, attempt, stored.RetryCount)
	}

	result, err = h.manager.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueResult{}, result)
	assert.EqualValues(t, domain.MaxDeliveryAttempts, calls.Load())
	assert.Len(t, h.logs.All(), domain.MaxDeliveryAttempts)
}

func TestProcessQueueRecoversAfterFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "u1", domain.TierFree, nil)
	h.senders[domain.ChannelEmail].SetErr(errors.New("timeout"))

	items, err := h.manager.QueueAlert(ctx, "u1", rolexDeal())
	require.NoError(t, err)
	h.clock.Advance(20 * time.Minute)

	_, err = h.manager.ProcessQueue(ctx)
	require.NoError(t, err)

	h.senders[domain.ChannelEmail].SetErr(nil)
	result, err := h.manager.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueResult{Processed: 1}, result)

	stored, _ := h.queue.Get(items[0].ID)
	assert.Equal(t, domain.StatusDelivered, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestDeliverDanglingPreferenceIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "gone", domain.TierFree, nil)

	items, err := h.manager.QueueAlert(ctx, "gone", rolexDeal())
	require.NoError(t, err)
	require.Len(t, items, 1)

	h.prefs.Delete(ctx, "gone")
	h.clock.Advance(20 * time.Minute)

	result, err := h.manager.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueResult{Errors: 1}, result)

	stored, _ := h.queue.Get(items[0].ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, domain.MaxDeliveryAttempts, stored.RetryCount)
	assert.Contains(t, stored.DeliveryError, domain.ErrPreferencesNotFound.Error())

	result, err = h.manager.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueResult{}, result)
	assert.Equal(t, 0, h.senders[domain.ChannelEmail].Count())
}

func TestDeliverUnknownChannelIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pref := h.saveUser(t, "u1", domain.TierFree, nil)

	item := domain.QueueItem{
		UserID:       "u1",
		PreferenceID: pref.ID,
		DealID:       "d1",
		Deal:         rolexDeal(),
		Channel:      domain.Channel("sms"),
		ScheduledAt:  h.clock.Now(),
		Status:       domain.StatusReady,
	}
	_, err := h.queue.Enqueue(ctx, &item)
	require.NoError(t, err)

	err = h.manager.Deliver(ctx, item)
	assert.ErrorIs(t, err, domain.ErrUnknownChannel)

	stored, _ := h.queue.Get(item.ID)
	assert.Equal(t, domain.MaxDeliveryAttempts, stored.RetryCount)
}

func TestGetUserStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "u1", domain.TierPro, func(p *domain.AlertPreference) {
		p.DiscordEnabled = true
		p.DiscordWebhookURL = "https://discord.com/api/webhooks/1/abc"
	})

	_, err := h.manager.QueueAlert(ctx, "u1", rolexDeal())
	require.NoError(t, err)
	h.manager.Wait()

	old := rolexDeal()
	old.ID = "d-old"
	h.clock.Advance(-48 * time.Hour)
	_, err = h.manager.QueueAlert(ctx, "u1", old)
	require.NoError(t, err)
	h.manager.Wait()
	h.clock.Advance(48 * time.Hour)

	h.senders[domain.ChannelEmail].SetErr(errors.New("bounce"))
	failing := rolexDeal()
	failing.ID = "d-fail"
	_, err = h.manager.QueueAlert(ctx, "u1", failing)
	require.NoError(t, err)
	h.manager.Wait()

	require.NoError(t, h.prefs.Save(ctx, func() *domain.AlertPreference {
		p, _ := h.prefs.GetByUserID(ctx, "u1")
		p.ApplyTier(domain.TierFree)
		return p
	}()))
	pending := rolexDeal()
	pending.ID = "d-pending"
	_, err = h.manager.QueueAlert(ctx, "u1", pending)
	require.NoError(t, err)

	stats, err := h.manager.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Today)
	assert.Equal(t, 5, stats.ThisWeek)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, map[string]int{"email": 2, "discord": 3}, stats.ByChannel)

	global, err := h.manager.GetGlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &GlobalStats{TotalUsers: 1, TotalDelivered: 5, PendingQueue: 2}, global)

	history, err := h.manager.History(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "d-fail", history[0].DealID)

	queued, err := h.manager.Pending(ctx, "u1", 20)
	require.NoError(t, err)
	assert.Len(t, queued, 2)
}

func TestCleanupRemovesOldTerminalRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.saveUser(t, "u1", domain.TierPro, nil)

	_, err := h.manager.QueueAlert(ctx, "u1", rolexDeal())
	require.NoError(t, err)
	h.manager.Wait()

	h.saveUser(t, "u2", domain.TierFree, nil)
	_, err = h.manager.QueueAlert(ctx, "u2", rolexDeal())
	require.NoError(t, err)

	h.clock.Advance(31 * 24 * time.Hour)
	deleted, err := h.manager.Cleanup(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining := h.queue.All()
	require.Len(t, remaining, 1)
	assert.Equal(t, "u2", remaining[0].UserID)
}

func TestTestChannel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.manager.TestChannel(ctx, "nobody", domain.ChannelEmail, nil)
	assert.ErrorIs(t, err, domain.ErrPreferencesNotFound)

	h.saveUser(t, "u1", domain.TierFree, nil)

	_, err = h.manager.TestChannel(ctx, "u1", domain.Channel("pager"), nil)
	assert.ErrorIs(t, err, domain.ErrUnknownChannel)

	result, err := h.manager.TestChannel(ctx, "u1", domain.ChannelEmail, func(d *domain.Deal) {
		d.Brand = "Omega"
	})
	require.NoError(t, err)
	assert.Equal(t, 200, result.StatusCode)

	sender := h.senders[domain.ChannelEmail]
	require.Equal(t, 1, sender.Count())
	assert.Equal(t, "Omega", sender.sent[0].Brand)
	assert.Equal(t, "test-deal", sender.sent[0].ID)
	assert.Equal(t, "u1@example.com", sender.dests[0].EmailAddress)
	assert.Empty(t, h.queue.All())
	assert.Empty(t, h.logs.All())
}

func TestSampleDeal(t *testing.T) {
	deal := SampleDeal("https://thehub.app")
	assert.Equal(t, "test-deal", deal.ID)
	assert.Equal(t, 85, deal.Score())
	assert.Equal(t, 33.0, deal.Discount())
	assert.True(t, decimal.NewFromInt(999).Equal(deal.Price))
	assert.Equal(t, domain.ScoreTierHigh, deal.Tier())
}
