package repository

import (
	"context"

	"haven/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RegionRepository struct {
	db *gorm.DB
}

func NewRegionRepository(db *gorm.DB) *RegionRepository {
	return &RegionRepository{db: db}
}

func (r *RegionRepository) GetCurrency(ctx context.Context, countryCode string) (*models.RegionCurrency, error) {
	var rc models.RegionCurrency
	err := r.db.WithContext(ctx).Where("country_code = ?", countryCode).First(&rc).Error
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *RegionRepository) UpsertCurrency(ctx context.Context, rc *models.RegionCurrency) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "country_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"currency", "exchange_rate", "updated_at"}),
	}).Create(rc).Error
}

func (r *RegionRepository) ListCurrencies(ctx context.Context) ([]models.RegionCurrency, error) {
	var list []models.RegionCurrency
	err := r.db.WithContext(ctx).Order("country_code").Find(&list).Error
	return list, err
}
