package db

import (
	"context"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue relies on the (user_id, deal_id, delivery_channel) unique index; a conflicting
// insert affects no rows and reports false.
func (r *QueueRepository) Enqueue(ctx context.Context, item *domain.QueueItem) (bool, error) {
	model := mapQueueToModel(*item)
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	item.ID = model.ID
	item.CreatedAt = model.CreatedAt
	return true, nil
}

func (r *QueueRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error) {
	var models []queueModel
	query := r.db.WithContext(ctx).
		Where("delivery_status IN ? AND scheduled_at <= ? AND retry_count < ?", statusStrings(domain.RetryableStatuses), now, domain.MaxDeliveryAttempts).
		Order("scheduled_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return mapQueueItemsToDomain(models), nil
}

func (r *QueueRepository) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"delivery_status": string(domain.StatusDelivered),
		"delivered_at":    deliveredAt,
		"delivery_error":  "",
	})
}

func (r *QueueRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, terminal bool) error {
	retryCount := gorm.Expr("retry_count + 1")
	if terminal {
		retryCount = gorm.Expr("?", domain.MaxDeliveryAttempts)
	}
	return r.update(ctx, id, map[string]interface{}{
		"delivery_status": string(domain.StatusFailed),
		"delivery_error":  reason,
		"retry_count":     retryCount,
	})
}

func (r *QueueRepository) update(ctx context.Context, id uuid.UUID, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&queueModel{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *QueueRepository) ListPendingByUser(ctx context.Context, userID string, limit int) ([]domain.QueueItem, error) {
	var models []queueModel
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND delivery_status IN ?", userID, undeliveredStatuses()).
		Order("scheduled_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return mapQueueItemsToDomain(models), nil
}

func (r *QueueRepository) CountPending(ctx context.Context, userID string) (int64, error) {
	query := r.db.WithContext(ctx).Model(&queueModel{}).Where("delivery_status IN ?", undeliveredStatuses())
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *QueueRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("delivery_status IN ? AND created_at < ?", statusStrings(domain.TerminalStatuses), cutoff).
		Delete(&queueModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func undeliveredStatuses() []string {
	return []string{string(domain.StatusPending), string(domain.StatusReady)}
}

func statusStrings(statuses []domain.DeliveryStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
