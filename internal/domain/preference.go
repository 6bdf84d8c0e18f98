package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AlertPreference struct {
	ID     uuid.UUID
	UserID string

	EmailEnabled bool
	EmailAddress string

	TelegramEnabled  bool
	TelegramChatID   string
	TelegramBotToken string

	DiscordEnabled    bool
	DiscordWebhookURL string

	WebhookEnabled bool
	WebhookURL     string
	WebhookHeaders map[string]string

	Categories         []string
	Brands             []string
	MinPrice           *decimal.Decimal
	MaxPrice           *decimal.Decimal
	MinDealScore       *int
	MinDiscountPercent *float64

	QuietHoursStart string
	QuietHoursEnd   string

	Tier              Tier
	AlertDelayMinutes int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAlertPreference returns the defaults used when a user has never saved settings.
func NewAlertPreference(userID string) *AlertPreference {
	return &AlertPreference{
		UserID:            userID,
		Tier:              TierFree,
		AlertDelayMinutes: TierFree.AlertDelayMinutes(),
	}
}

// EnabledChannels lists channels whose toggle is on and whose destination is populated,
// in fixed email, telegram, discord, webhook order.
func (p *AlertPreference) EnabledChannels() []Channel {
	channels := make([]Channel, 0, 4)
	if p.EmailEnabled && p.EmailAddress != "" {
		channels = append(channels, ChannelEmail)
	}
	if p.TelegramEnabled && p.TelegramChatID != "" {
		channels = append(channels, ChannelTelegram)
	}
	if p.DiscordEnabled && p.DiscordWebhookURL != "" {
		channels = append(channels, ChannelDiscord)
	}
	if p.WebhookEnabled && p.WebhookURL != "" {
		channels = append(channels, ChannelWebhook)
	}
	return channels
}

func (p *AlertPreference) AnyChannelEnabled() bool {
	return p.EmailEnabled || p.TelegramEnabled || p.DiscordEnabled || p.WebhookEnabled
}

func (p *AlertPreference) Destination() Destination {
	return Destination{
		EmailAddress:      p.EmailAddress,
		TelegramChatID:    p.TelegramChatID,
		TelegramBotToken:  p.TelegramBotToken,
		DiscordWebhookURL: p.DiscordWebhookURL,
		WebhookURL:        p.WebhookURL,
		WebhookHeaders:    p.WebhookHeaders,
	}
}

// ApplyTier sets the tier and re-derives the alert delay from it.
func (p *AlertPreference) ApplyTier(tier Tier) {
	p.Tier = tier.Normalize()
	p.AlertDelayMinutes = p.Tier.AlertDelayMinutes()
}

type BrandWatchlistEntry struct {
	ID             uuid.UUID
	UserID         string
	Brand          string
	Category       string
	MinDealScore   int
	MaxPrice       *decimal.Decimal
	NotifyAllDeals bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const DefaultWatchlistMinDealScore = 70
