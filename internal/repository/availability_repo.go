package repository

import (
	"context"
	"errors"
	"time"

	"haven/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AvailabilityRepository persists the volunteer-controlled availability fields.
// It never writes current_active_sessions; see SessionRepository.
type AvailabilityRepository struct {
	db *gorm.DB
}

func NewAvailabilityRepository(db *gorm.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) GetByVolunteerID(ctx context.Context, volunteerID uint) (*models.VolunteerAvailability, error) {
	var a models.VolunteerAvailability
	err := r.db.WithContext(ctx).Preload("Regions").Where("volunteer_id = ?", volunteerID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetOrInit returns the stored availability or an unsaved offline record.
func (r *AvailabilityRepository) GetOrInit(ctx context.Context, volunteerID uint) (*models.VolunteerAvailability, error) {
	a, err := r.GetByVolunteerID(ctx, volunteerID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &models.VolunteerAvailability{VolunteerID: volunteerID, MaxConcurrentSessions: 1}, nil
}

// Save upserts a and, when regions is non-nil, replaces the preferred regions.
// The capacity counter is never written here; lowering max_concurrent_sessions
// below it returns ErrCapacityBelowActive.
func (r *AvailabilityRepository) Save(ctx context.Context, a *models.VolunteerAvailability, regions []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a.Normalize()
		if a.ID == 0 {
			if err := tx.Omit("Regions", "current_active_sessions").Create(a).Error; err != nil {
				return err
			}
		} else {
			var current models.VolunteerAvailability
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id", "current_active_sessions").First(&current, a.ID).Error; err != nil {
				return err
			}
			if a.MaxConcurrentSessions < current.CurrentActiveSessions {
				return ErrCapacityBelowActive
			}
			a.CurrentActiveSessions = current.CurrentActiveSessions
			err := tx.Session(&gorm.Session{SkipHooks: true}).Model(&models.VolunteerAvailability{}).
				Where("id = ?", a.ID).
				Updates(map[string]interface{}{
					"is_online":               a.IsOnline,
					"is_available":            a.IsAvailable,
					"status_message":          a.StatusMessage,
					"country_code":            a.CountryCode,
					"serves_global":           a.ServesGlobal,
					"max_concurrent_sessions": a.MaxConcurrentSessions,
					"last_active":             a.LastActive,
				}).Error
			if err != nil {
				return err
			}
		}
		if regions == nil {
			return nil
		}
		if err := tx.Where("volunteer_id = ?", a.VolunteerID).Delete(&models.VolunteerRegion{}).Error; err != nil {
			return err
		}
		a.Regions = make([]models.VolunteerRegion, 0, len(regions))
		for _, code := range regions {
			a.Regions = append(a.Regions, models.VolunteerRegion{VolunteerID: a.VolunteerID, CountryCode: code})
		}
		if len(a.Regions) == 0 {
			return nil
		}
		return tx.Create(&a.Regions).Error
	})
}

// Touch records a heartbeat.
func (r *AvailabilityRepository) Touch(ctx context.Context, volunteerID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.VolunteerAvailability{}).
		Where("volunteer_id = ?", volunteerID).
		UpdateColumn("last_active", at)
	return res.RowsAffected > 0, res.Error
}
