package db

import (
	"context"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WatchlistRepository struct {
	db *gorm.DB
}

func NewWatchlistRepository(db *gorm.DB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

func (r *WatchlistRepository) ListByUser(ctx context.Context, userID string) ([]domain.BrandWatchlistEntry, error) {
	var models []watchlistModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("brand, category").Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.BrandWatchlistEntry, 0, len(models))
	for _, model := range models {
		entries = append(entries, mapWatchlistToDomain(model))
	}
	return entries, nil
}

func (r *WatchlistRepository) Upsert(ctx context.Context, entry *domain.BrandWatchlistEntry) error {
	model := mapWatchlistToModel(*entry)
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "brand"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"min_deal_score", "max_price", "notify_all_deals", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return err
	}

	var stored watchlistModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND brand = ? AND category = ?", entry.UserID, entry.Brand, entry.Category).
		First(&stored).Error; err != nil {
		return err
	}
	*entry = mapWatchlistToDomain(stored)
	return nil
}

func (r *WatchlistRepository) Delete(ctx context.Context, userID, brand, category string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND brand = ? AND category = ?", userID, brand, category).
		Delete(&watchlistModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
