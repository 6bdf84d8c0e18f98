package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
	ChannelDiscord  Channel = "discord"
	ChannelWebhook  Channel = "webhook"
)

var AllChannels = []Channel{ChannelEmail, ChannelTelegram, ChannelDiscord, ChannelWebhook}

func ParseChannel(value string) (Channel, error) {
	for _, channel := range AllChannels {
		if string(channel) == value {
			return channel, nil
		}
	}
	return "", ErrUnknownChannel
}

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusReady     DeliveryStatus = "ready"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusExpired   DeliveryStatus = "expired"
)

// MaxDeliveryAttempts caps automatic retries. Items at the cap stay failed.
const MaxDeliveryAttempts = 3

// RetryableStatuses are picked up by the queue processor once due.
var RetryableStatuses = []DeliveryStatus{StatusPending, StatusReady, StatusFailed}

// TerminalStatuses are eligible for retention cleanup.
var TerminalStatuses = []DeliveryStatus{StatusDelivered, StatusFailed, StatusExpired}

type QueueItem struct {
	ID            uuid.UUID
	UserID        string
	PreferenceID  uuid.UUID
	DealID        string
	Deal          Deal
	Channel       Channel
	ScheduledAt   time.Time
	Status        DeliveryStatus
	DeliveredAt   *time.Time
	DeliveryError string
	RetryCount    int
	CreatedAt     time.Time
}

// Due reports whether the processor may pick the item at now.
func (q QueueItem) Due(now time.Time) bool {
	if q.RetryCount >= MaxDeliveryAttempts {
		return false
	}
	if q.ScheduledAt.After(now) {
		return false
	}
	for _, status := range RetryableStatuses {
		if q.Status == status {
			return true
		}
	}
	return false
}

type DeliveryLogEntry struct {
	ID           uuid.UUID
	QueueID      uuid.UUID
	UserID       string
	DealID       string
	Channel      Channel
	ResponseCode int
	ResponseBody string
	LatencyMS    int64

	DealBrand           string
	DealCategory        string
	DealPrice           decimal.Decimal
	DealScore           *int
	DealDiscountPercent *float64

	DeliveredAt time.Time
}

const (
	ResponseCodeDelivered = 200
	ResponseCodeFailed    = 500
)

// Succeeded reports whether the attempt was a successful delivery.
func (e DeliveryLogEntry) Succeeded() bool {
	return e.ResponseCode == ResponseCodeDelivered
}
