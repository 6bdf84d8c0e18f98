package db

import (
	"context"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListingRepository reads the scraper-owned listing tables. Their columns differ per
// category, so rows are read as maps and normalized.
type ListingRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewListingRepository(db *gorm.DB, logger *zap.Logger) *ListingRepository {
	return &ListingRepository{db: db, logger: logger}
}

func (r *ListingRepository) FindHotDeals(ctx context.Context, q domain.HotDealQuery) ([]domain.Deal, error) {
	var rows []map[string]interface{}
	query := r.db.WithContext(ctx).
		Table(q.Table).
		Where("deal_score >= ? AND created_at >= ?", q.MinScore, q.Since).
		Order("deal_score DESC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	deals := make([]domain.Deal, 0, len(rows))
	for _, row := range rows {
		deal, ok := normalizeListing(row, q.Category)
		if !ok {
			r.logger.Warn("skipping malformed listing row", zap.String("table", q.Table))
			continue
		}
		deals = append(deals, deal)
	}
	return deals, nil
}
