package db

import (
	"context"
	"time"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeliveryLogRepository struct {
	db *gorm.DB
}

func NewDeliveryLogRepository(db *gorm.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

func (r *DeliveryLogRepository) Append(ctx context.Context, entry *domain.DeliveryLogEntry) error {
	model := mapDeliveryLogToModel(*entry)
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	entry.ID = model.ID
	return nil
}

func (r *DeliveryLogRepository) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]domain.DeliveryLogEntry, error) {
	var models []deliveryLogModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND delivered_at >= ?", userID, since).
		Order("delivered_at").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return mapDeliveryLogsToDomain(models), nil
}

func (r *DeliveryLogRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]domain.DeliveryLogEntry, error) {
	var models []deliveryLogModel
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("delivered_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return mapDeliveryLogsToDomain(models), nil
}

func (r *DeliveryLogRepository) CountDelivered(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&deliveryLogModel{}).
		Where("response_code = ?", domain.ResponseCodeDelivered).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
