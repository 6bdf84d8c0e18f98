package httpapi

import (
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type preferenceView struct {
	ID     *uuid.UUID `json:"id"`
	UserID string     `json:"user_id"`

	EmailEnabled bool   `json:"email_enabled"`
	EmailAddress string `json:"email_address"`

	TelegramEnabled     bool   `json:"telegram_enabled"`
	TelegramChatID      string `json:"telegram_chat_id"`
	TelegramBotTokenSet bool   `json:"telegram_bot_token_set"`

	DiscordEnabled    bool   `json:"discord_enabled"`
	DiscordWebhookURL string `json:"discord_webhook_url"`

	WebhookEnabled bool              `json:"custom_webhook_enabled"`
	WebhookURL     string            `json:"custom_webhook_url"`
	WebhookHeaders map[string]string `json:"custom_webhook_headers"`

	Categories         []string         `json:"categories"`
	Brands             []string         `json:"brands"`
	MinPrice           *decimal.Decimal `json:"min_price"`
	MaxPrice           *decimal.Decimal `json:"max_price"`
	MinDealScore       *int             `json:"min_deal_score"`
	MinDiscountPercent *float64         `json:"min_discount_percent"`

	QuietHoursStart string `json:"quiet_hours_start"`
	QuietHoursEnd   string `json:"quiet_hours_end"`

	Tier              domain.Tier `json:"tier"`
	AlertDelayMinutes int         `json:"alert_delay_minutes"`

	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func newPreferenceView(p *domain.AlertPreference) preferenceView {
	view := preferenceView{
		UserID:              p.UserID,
		EmailEnabled:        p.EmailEnabled,
		EmailAddress:        p.EmailAddress,
		TelegramEnabled:     p.TelegramEnabled,
		TelegramChatID:      p.TelegramChatID,
		TelegramBotTokenSet: p.TelegramBotToken != "",
		DiscordEnabled:      p.DiscordEnabled,
		DiscordWebhookURL:   p.DiscordWebhookURL,
		WebhookEnabled:      p.WebhookEnabled,
		WebhookURL:          p.WebhookURL,
		WebhookHeaders:      p.WebhookHeaders,
		Categories:          nonNil(p.Categories),
		Brands:              nonNil(p.Brands),
		MinPrice:            p.MinPrice,
		MaxPrice:            p.MaxPrice,
		MinDealScore:        p.MinDealScore,
		MinDiscountPercent:  p.MinDiscountPercent,
		QuietHoursStart:     p.QuietHoursStart,
		QuietHoursEnd:       p.QuietHoursEnd,
		Tier:                p.Tier,
		AlertDelayMinutes:   p.AlertDelayMinutes,
		CreatedAt:           timePtr(p.CreatedAt),
		UpdatedAt:           timePtr(p.UpdatedAt),
	}
	if p.ID != uuid.Nil {
		id := p.ID
		view.ID = &id
	}
	return view
}

type watchlistView struct {
	ID             uuid.UUID        `json:"id"`
	Brand          string           `json:"brand"`
	Category       string           `json:"category"`
	MinDealScore   int              `json:"min_deal_score"`
	MaxPrice       *decimal.Decimal `json:"max_price"`
	NotifyAllDeals bool             `json:"notify_all_deals"`
	CreatedAt      *time.Time       `json:"created_at"`
}

func newWatchlistView(e domain.BrandWatchlistEntry) watchlistView {
	return watchlistView{
		ID:             e.ID,
		Brand:          e.Brand,
		Category:       e.Category,
		MinDealScore:   e.MinDealScore,
		MaxPrice:       e.MaxPrice,
		NotifyAllDeals: e.NotifyAllDeals,
		CreatedAt:      timePtr(e.CreatedAt),
	}
}

type historyView struct {
	ID                  uuid.UUID       `json:"id"`
	QueueID             uuid.UUID       `json:"queue_id"`
	DealID              string          `json:"deal_id"`
	Channel             domain.Channel  `json:"channel"`
	Success             bool            `json:"success"`
	ResponseCode        int             `json:"response_code"`
	LatencyMS           int64           `json:"latency_ms"`
	DealBrand           string          `json:"deal_brand"`
	DealCategory        string          `json:"deal_category"`
	DealPrice           decimal.Decimal `json:"deal_price"`
	DealScore           *int            `json:"deal_score"`
	DealDiscountPercent *float64        `json:"deal_discount_percent"`
	DeliveredAt         time.Time       `json:"delivered_at"`
}

func newHistoryView(e domain.DeliveryLogEntry) historyView {
	return historyView{
		ID:                  e.ID,
		QueueID:             e.QueueID,
		DealID:              e.DealID,
		Channel:             e.Channel,
		Success:             e.Succeeded(),
		ResponseCode:        e.ResponseCode,
		LatencyMS:           e.LatencyMS,
		DealBrand:           e.DealBrand,
		DealCategory:        e.DealCategory,
		DealPrice:           e.DealPrice,
		DealScore:           e.DealScore,
		DealDiscountPercent: e.DealDiscountPercent,
		DeliveredAt:         e.DeliveredAt,
	}
}

type pendingView struct {
	ID          uuid.UUID             `json:"id"`
	DealID      string                `json:"deal_id"`
	Channel     domain.Channel        `json:"delivery_channel"`
	Status      domain.DeliveryStatus `json:"delivery_status"`
	ScheduledAt time.Time             `json:"scheduled_at"`
	RetryCount  int                   `json:"retry_count"`
	Deal        domain.Deal           `json:"deal_data"`
}

func newPendingView(item domain.QueueItem) pendingView {
	return pendingView{
		ID:          item.ID,
		DealID:      item.DealID,
		Channel:     item.Channel,
		Status:      item.Status,
		ScheduledAt: item.ScheduledAt,
		RetryCount:  item.RetryCount,
		Deal:        item.Deal,
	}
}

func mapViews[T, V any](items []T, view func(T) V) []V {
	out := make([]V, 0, len(items))
	for _, item := range items {
		out = append(out, view(item))
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
