package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PreferenceRepository interface {
	GetByUserID(ctx context.Context, userID string) (*AlertPreference, error)
	GetByID(ctx context.Context, id uuid.UUID) (*AlertPreference, error)
	Save(ctx context.Context, pref *AlertPreference) error
	ListWithAlertsEnabled(ctx context.Context) ([]AlertPreference, error)
	Count(ctx context.Context) (int64, error)
}

type WatchlistRepository interface {
	ListByUser(ctx context.Context, userID string) ([]BrandWatchlistEntry, error)
	Upsert(ctx context.Context, entry *BrandWatchlistEntry) error
	Delete(ctx context.Context, userID, brand, category string) error
}

type QueueRepository interface {
	// Enqueue inserts the item and reports false when the (user, deal, channel)
	// triple is already queued.
	Enqueue(ctx context.Context, item *QueueItem) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]QueueItem, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
	// MarkFailed increments retry_count, or pins it to MaxDeliveryAttempts when terminal.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, terminal bool) error
	ListPendingByUser(ctx context.Context, userID string, limit int) ([]QueueItem, error)
	// CountPending counts undelivered rows; an empty userID counts all users.
	CountPending(ctx context.Context, userID string) (int64, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type DeliveryLogRepository interface {
	Append(ctx context.Context, entry *DeliveryLogEntry) error
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]DeliveryLogEntry, error)
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]DeliveryLogEntry, error)
	CountDelivered(ctx context.Context) (int64, error)
}

// ListingSource reads scored rows from one upstream listing table.
type ListingSource interface {
	FindHotDeals(ctx context.Context, query HotDealQuery) ([]Deal, error)
}

type HotDealQuery struct {
	Table    string
	Category string
	MinScore int
	Since    time.Time
	Limit    int
}
