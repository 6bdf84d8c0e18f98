package db

import (
	"context"
	"errors"

	"github.com/NasaVasa/hubalerts/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func (r *PreferenceRepository) GetByUserID(ctx context.Context, userID string) (*domain.AlertPreference, error) {
	var model preferenceModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return mapPreferenceToDomain(model), nil
}

func (r *PreferenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.AlertPreference, error) {
	var model preferenceModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return mapPreferenceToDomain(model), nil
}

// Save upserts on user_id and reloads the row so pref carries the stored id.
func (r *PreferenceRepository) Save(ctx context.Context, pref *domain.AlertPreference) error {
	model := mapPreferenceToModel(*pref)
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&model).Error
	if err != nil {
		return err
	}

	var stored preferenceModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", pref.UserID).First(&stored).Error; err != nil {
		return err
	}
	*pref = *mapPreferenceToDomain(stored)
	return nil
}

func (r *PreferenceRepository) ListWithAlertsEnabled(ctx context.Context) ([]domain.AlertPreference, error) {
	var models []preferenceModel
	if err := r.db.WithContext(ctx).
		Where("email_enabled OR telegram_enabled OR discord_enabled OR custom_webhook_enabled").
		Order("user_id").
		Find(&models).Error; err != nil {
		return nil, err
	}
	prefs := make([]domain.AlertPreference, 0, len(models))
	for _, model := range models {
		prefs = append(prefs, *mapPreferenceToDomain(model))
	}
	return prefs, nil
}

func (r *PreferenceRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&preferenceModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
