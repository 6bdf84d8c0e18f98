package db

import (
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type preferenceModel struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID string    `gorm:"uniqueIndex;not null"`

	EmailEnabled bool `gorm:"not null"`
	EmailAddress string

	TelegramEnabled  bool `gorm:"not null"`
	TelegramChatID   string
	TelegramBotToken string

	DiscordEnabled    bool   `gorm:"not null"`
	DiscordWebhookURL string `gorm:"column:discord_webhook_url"`

	CustomWebhookEnabled bool                                  `gorm:"not null"`
	CustomWebhookURL     string                                `gorm:"column:custom_webhook_url"`
	CustomWebhookHeaders datatypes.JSONType[map[string]string] `gorm:"type:jsonb"`

	Categories         pq.StringArray      `gorm:"type:text[]"`
	Brands             pq.StringArray      `gorm:"type:text[]"`
	MinPrice           decimal.NullDecimal `gorm:"type:numeric"`
	MaxPrice           decimal.NullDecimal `gorm:"type:numeric"`
	MinDealScore       *int
	MinDiscountPercent *float64 `gorm:"type:numeric"`

	QuietHoursStart *string `gorm:"type:time"`
	QuietHoursEnd   *string `gorm:"type:time"`

	Tier              string `gorm:"not null"`
	AlertDelayMinutes int    `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (preferenceModel) TableName() string { return "user_alert_preferences" }

type watchlistModel struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"`
	UserID         string              `gorm:"not null;uniqueIndex:idx_watchlist_user_brand_category,priority:1"`
	Brand          string              `gorm:"not null;uniqueIndex:idx_watchlist_user_brand_category,priority:2"`
	Category       string              `gorm:"not null;uniqueIndex:idx_watchlist_user_brand_category,priority:3"`
	MinDealScore   int                 `gorm:"not null"`
	MaxPrice       decimal.NullDecimal `gorm:"type:numeric"`
	NotifyAllDeals bool                `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (watchlistModel) TableName() string { return "user_brand_watchlist" }

type queueModel struct {
	ID              uuid.UUID                       `gorm:"type:uuid;primaryKey"`
	UserID          string                          `gorm:"not null;uniqueIndex:idx_alert_queue_user_deal_channel,priority:1"`
	PreferenceID    uuid.UUID                       `gorm:"type:uuid;not null"`
	DealID          string                          `gorm:"not null;uniqueIndex:idx_alert_queue_user_deal_channel,priority:2"`
	DealData        datatypes.JSONType[domain.Deal] `gorm:"type:jsonb;not null"`
	DeliveryChannel string                          `gorm:"not null;uniqueIndex:idx_alert_queue_user_deal_channel,priority:3"`
	ScheduledAt     time.Time                       `gorm:"not null;index:idx_alert_queue_due,priority:2"`
	DeliveryStatus  string                          `gorm:"not null;index:idx_alert_queue_due,priority:1"`
	DeliveredAt     *time.Time
	DeliveryError   string
	RetryCount      int `gorm:"not null"`
	CreatedAt       time.Time
}

func (queueModel) TableName() string { return "alert_queue" }

type deliveryLogModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	QueueID             uuid.UUID `gorm:"type:uuid;index"`
	UserID              string    `gorm:"not null;index:idx_delivery_log_user_time,priority:1"`
	DealID              string
	Channel             string `gorm:"not null"`
	ResponseCode        int    `gorm:"not null"`
	ResponseBody        string
	LatencyMS           int64               `gorm:"column:latency_ms"`
	DealBrand           string
	DealCategory        string
	DealPrice           decimal.NullDecimal `gorm:"type:numeric"`
	DealScore           *int
	DealDiscountPercent *float64  `gorm:"type:numeric"`
	DeliveredAt         time.Time `gorm:"not null;index:idx_delivery_log_user_time,priority:2"`
}

func (deliveryLogModel) TableName() string { return "alert_delivery_log" }

func nullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*value)
}

func decimalPtr(value decimal.NullDecimal) *decimal.Decimal {
	if !value.Valid {
		return nil
	}
	d := value.Decimal
	return &d
}

func nullString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func mapPreferenceToModel(pref domain.AlertPreference) preferenceModel {
	return preferenceModel{
		ID:                   pref.ID,
		UserID:               pref.UserID,
		EmailEnabled:         pref.EmailEnabled,
		EmailAddress:         pref.EmailAddress,
		TelegramEnabled:      pref.TelegramEnabled,
		TelegramChatID:       pref.TelegramChatID,
		TelegramBotToken:     pref.TelegramBotToken,
		DiscordEnabled:       pref.DiscordEnabled,
		DiscordWebhookURL:    pref.DiscordWebhookURL,
		CustomWebhookEnabled: pref.WebhookEnabled,
		CustomWebhookURL:     pref.WebhookURL,
		CustomWebhookHeaders: datatypes.NewJSONType(pref.WebhookHeaders),
		Categories:           pq.StringArray(pref.Categories),
		Brands:               pq.StringArray(pref.Brands),
		MinPrice:             nullDecimal(pref.MinPrice),
		MaxPrice:             nullDecimal(pref.MaxPrice),
		MinDealScore:         pref.MinDealScore,
		MinDiscountPercent:   pref.MinDiscountPercent,
		QuietHoursStart:      nullString(pref.QuietHoursStart),
		QuietHoursEnd:        nullString(pref.QuietHoursEnd),
		Tier:                 string(pref.Tier),
		AlertDelayMinutes:    pref.AlertDelayMinutes,
		CreatedAt:            pref.CreatedAt,
		UpdatedAt:            pref.UpdatedAt,
	}
}

func mapPreferenceToDomain(model preferenceModel) *domain.AlertPreference {
	return &domain.AlertPreference{
		ID:                 model.ID,
		UserID:             model.UserID,
		EmailEnabled:       model.EmailEnabled,
		EmailAddress:       model.EmailAddress,
		TelegramEnabled:    model.TelegramEnabled,
		TelegramChatID:     model.TelegramChatID,
		TelegramBotToken:   model.TelegramBotToken,
		DiscordEnabled:     model.DiscordEnabled,
		DiscordWebhookURL:  model.DiscordWebhookURL,
		WebhookEnabled:     model.CustomWebhookEnabled,
		WebhookURL:         model.CustomWebhookURL,
		WebhookHeaders:     model.CustomWebhookHeaders.Data(),
		Categories:         []string(model.Categories),
		Brands:             []string(model.Brands),
		MinPrice:           decimalPtr(model.MinPrice),
		MaxPrice:           decimalPtr(model.MaxPrice),
		MinDealScore:       model.MinDealScore,
		MinDiscountPercent: model.MinDiscountPercent,
		QuietHoursStart:    derefString(model.QuietHoursStart),
		QuietHoursEnd:      derefString(model.QuietHoursEnd),
		Tier:               domain.Tier(model.Tier).Normalize(),
		AlertDelayMinutes:  model.AlertDelayMinutes,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

func mapWatchlistToModel(entry domain.BrandWatchlistEntry) watchlistModel {
	return watchlistModel{
		ID:             entry.ID,
		UserID:         entry.UserID,
		Brand:          entry.Brand,
		Category:       entry.Category,
		MinDealScore:   entry.MinDealScore,
		MaxPrice:       nullDecimal(entry.MaxPrice),
		NotifyAllDeals: entry.NotifyAllDeals,
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.UpdatedAt,
	}
}

func mapWatchlistToDomain(model watchlistModel) domain.BrandWatchlistEntry {
	return domain.BrandWatchlistEntry{
		ID:             model.ID,
		UserID:         model.UserID,
		Brand:          model.Brand,
		Category:       model.Category,
		MinDealScore:   model.MinDealScore,
		MaxPrice:       decimalPtr(model.MaxPrice),
		NotifyAllDeals: model.NotifyAllDeals,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func mapQueueToModel(item domain.QueueItem) queueModel {
	return queueModel{
		ID:              item.ID,
		UserID:          item.UserID,
		PreferenceID:    item.PreferenceID,
		DealID:          item.DealID,
		DealData:        datatypes.NewJSONType(item.Deal),
		DeliveryChannel: string(item.Channel),
		ScheduledAt:     item.ScheduledAt,
		DeliveryStatus:  string(item.Status),
		DeliveredAt:     item.DeliveredAt,
		DeliveryError:   item.DeliveryError,
		RetryCount:      item.RetryCount,
		CreatedAt:       item.CreatedAt,
	}
}

func mapQueueToDomain(model queueModel) domain.QueueItem {
	return domain.QueueItem{
		ID:            model.ID,
		UserID:        model.UserID,
		PreferenceID:  model.PreferenceID,
		DealID:        model.DealID,
		Deal:          model.DealData.Data(),
		Channel:       domain.Channel(model.DeliveryChannel),
		ScheduledAt:   model.ScheduledAt,
		Status:        domain.DeliveryStatus(model.DeliveryStatus),
		DeliveredAt:   model.DeliveredAt,
		DeliveryError: model.DeliveryError,
		RetryCount:    model.RetryCount,
		CreatedAt:     model.CreatedAt,
	}
}

func mapQueueItemsToDomain(models []queueModel) []domain.QueueItem {
	items := make([]domain.QueueItem, 0, len(models))
	for _, model := range models {
		items = append(items, mapQueueToDomain(model))
	}
	return items
}

func mapDeliveryLogToModel(entry domain.DeliveryLogEntry) deliveryLogModel {
	return deliveryLogModel{
		ID:                  entry.ID,
		QueueID:             entry.QueueID,
		UserID:              entry.UserID,
		DealID:              entry.DealID,
		Channel:             string(entry.Channel),
		ResponseCode:        entry.ResponseCode,
		ResponseBody:        entry.ResponseBody,
		LatencyMS:           entry.LatencyMS,
		DealBrand:           entry.DealBrand,
		DealCategory:        entry.DealCategory,
		DealPrice:           decimal.NewNullDecimal(entry.DealPrice),
		DealScore:           entry.DealScore,
		DealDiscountPercent: entry.DealDiscountPercent,
		DeliveredAt:         entry.DeliveredAt,
	}
}

func mapDeliveryLogsToDomain(models []deliveryLogModel) []domain.DeliveryLogEntry {
	entries := make([]domain.DeliveryLogEntry, 0, len(models))
	for _, model := range models {
		entries = append(entries, domain.DeliveryLogEntry{
			ID:                  model.ID,
			QueueID:             model.QueueID,
			UserID:              model.UserID,
			DealID:              model.DealID,
			Channel:             domain.Channel(model.Channel),
			ResponseCode:        model.ResponseCode,
			ResponseBody:        model.ResponseBody,
			LatencyMS:           model.LatencyMS,
			DealBrand:           model.DealBrand,
			DealCategory:        model.DealCategory,
			DealPrice:           model.DealPrice.Decimal,
			DealScore:           model.DealScore,
			DealDiscountPercent: model.DealDiscountPercent,
			DeliveredAt:         model.DeliveredAt,
		})
	}
	return entries
}
