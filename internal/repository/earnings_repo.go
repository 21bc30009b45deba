package repository

import (
	"context"

	"haven/internal/domain"
	"haven/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionTotals are the frozen reward figures of an ended session.
type SessionTotals struct {
	DurationSeconds int64
	Points          int64
	Amount          float64
}

type EarningsRepository struct {
	db *gorm.DB
}

func NewEarningsRepository(db *gorm.DB) *EarningsRepository {
	return &EarningsRepository{db: db}
}

// Finalize freezes totals on the session and upserts the earnings row keyed by
// session_id. Re-running with the same totals leaves one identical row; the
// payment status of an existing row is never touched.
func (r *EarningsRepository) Finalize(ctx context.Context, s *models.ChatSession, t SessionTotals) (*models.VolunteerEarnings, error) {
	var out *models.VolunteerEarnings
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.ChatSession{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
			"reward_points":    t.Points,
			"reward_amount":    t.Amount,
			"session_duration": t.DurationSeconds,
		}).Error
		if err != nil {
			return err
		}
		if s.VolunteerID == nil {
			return nil
		}
		e := models.VolunteerEarnings{
			SessionID:     s.ID,
			VolunteerID:   *s.VolunteerID,
			TimeSpent:     t.DurationSeconds,
			PointsEarned:  t.Points,
			AmountEarned:  t.Amount,
			PaymentStatus: domain.PaymentStatusPending,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"volunteer_id", "time_spent", "points_earned", "amount_earned", "updated_at"}),
		}).Create(&e).Error
		if err != nil {
			return err
		}
		var stored models.VolunteerEarnings
		if err := tx.Where("session_id = ?", s.ID).First(&stored).Error; err != nil {
			return err
		}
		out = &stored
		return nil
	})
	return out, err
}

func (r *EarningsRepository) GetBySessionID(ctx context.Context, sessionID uint) (*models.VolunteerEarnings, error) {
	var e models.VolunteerEarnings
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EarningsSummary aggregates a volunteer's earnings rows.
type EarningsSummary struct {
	Sessions      int64   `json:"sessions"`
	TimeSpent     int64   `json:"time_spent"`
	PointsEarned  int64   `json:"points_earned"`
	AmountEarned  float64 `json:"amount_earned"`
	PendingAmount float64 `json:"pending_amount"`
}

func (r *EarningsRepository) ListByVolunteer(ctx context.Context, volunteerID uint, limit, offset int) ([]models.VolunteerEarnings, error) {
	var list []models.VolunteerEarnings
	err := r.db.WithContext(ctx).Where("volunteer_id = ?", volunteerID).
		Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *EarningsRepository) SummaryByVolunteer(ctx context.Context, volunteerID uint) (*EarningsSummary, error) {
	var s EarningsSummary
	err := r.db.WithContext(ctx).Model(&models.VolunteerEarnings{}).
		Select(`COUNT(*) AS sessions,
			COALESCE(SUM(time_spent), 0) AS time_spent,
			COALESCE(SUM(points_earned), 0) AS points_earned,
			COALESCE(SUM(amount_earned), 0) AS amount_earned,
			COALESCE(SUM(CASE WHEN payment_status = ? THEN amount_earned ELSE 0 END), 0) AS pending_amount`, domain.PaymentStatusPending).
		Where("volunteer_id = ?", volunteerID).
		Scan(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkPaid flips a pending earnings row to paid.
func (r *EarningsRepository) MarkPaid(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.VolunteerEarnings{}).
		Where("id = ? AND payment_status = ?", id, domain.PaymentStatusPending).
		Update("payment_status", domain.PaymentStatusPaid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
