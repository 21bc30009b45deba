package repository

import (
	"context"

	"haven/internal/models"

	"gorm.io/gorm"
)

type RewardSettingsRepository struct {
	db *gorm.DB
}

func NewRewardSettingsRepository(db *gorm.DB) *RewardSettingsRepository {
	return &RewardSettingsRepository{db: db}
}

// GetActive returns the active settings row, or ErrNotFound.
func (r *RewardSettingsRepository) GetActive(ctx context.Context) (*models.RewardSettings, error) {
	var s models.RewardSettings
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id DESC").First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Activate deactivates every existing row and inserts s as the only active one.
func (r *RewardSettingsRepository) Activate(ctx context.Context, s *models.RewardSettings) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.RewardSettings{}).Where("is_active = ?", true).Update("is_active", false).Error
		if err != nil {
			return err
		}
		s.ID = 0
		s.IsActive = true
		return tx.Create(s).Error
	})
}

func (r *RewardSettingsRepository) History(ctx context.Context, limit int) ([]models.RewardSettings, error) {
	var list []models.RewardSettings
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}
