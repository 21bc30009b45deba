package repository

import (
	"context"
	"errors"
	"time"

	"haven/internal/domain"
	"haven/internal/models"

	"gorm.io/gorm"
)

// SessionRepository owns chat_sessions, session_participants and the
// volunteer capacity counter. Every transition that touches the counter does so
// in the same transaction as the roster change.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) GetByID(ctx context.Context, id uint) (*models.ChatSession, error) {
	var s models.ChatSession
	err := r.db.WithContext(ctx).Preload("Participants").First(&s, id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) List(ctx context.Context, f SessionFilter) ([]models.ChatSession, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.ChatSession{}).Scopes(f.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.ChatSession
	err := r.db.WithContext(ctx).Scopes(f.scope, f.page).Order("created_at DESC, id DESC").Find(&list).Error
	return list, total, err
}

// OpenSessionFor returns the seeker's waiting or active session, if any.
func (r *SessionRepository) OpenSessionFor(ctx context.Context, seekerID uint) (*models.ChatSession, error) {
	var s models.ChatSession
	err := r.db.WithContext(ctx).
		Where("seeker_id = ? AND status IN ?", seekerID, []string{domain.SessionStatusWaiting, domain.SessionStatusActive}).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts s with its seeker participant and, when volunteerID is set,
// claims one unit of that volunteer's capacity and adds the volunteer row.
func (r *SessionRepository) Create(ctx context.Context, s *models.ChatSession, volunteerID *uint, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		err := tx.Model(&models.ChatSession{}).
			Where("seeker_id = ? AND status IN ?", s.SeekerID, []string{domain.SessionStatusWaiting, domain.SessionStatusActive}).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrOpenSessionExists
		}

		seeker := s.SeekerID
		s.OpenSeekerID = &seeker
		s.StartedAt = now
		s.VolunteerID = volunteerID
		if volunteerID != nil {
			s.Status = domain.SessionStatusActive
		} else {
			s.Status = domain.SessionStatusWaiting
		}
		if err := tx.Omit("Participants").Create(s).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrOpenSessionExists
			}
			return err
		}

		rows := []models.SessionParticipant{{
			SessionID: s.ID, UserID: s.SeekerID, Role: domain.ParticipantSeeker, IsActive: true, JoinedAt: now,
		}}
		if volunteerID != nil {
			if err := claimCapacity(tx, *volunteerID); err != nil {
				return err
			}
			rows = append(rows, models.SessionParticipant{
				SessionID: s.ID, UserID: *volunteerID, Role: domain.ParticipantVolunteer, IsActive: true, JoinedAt: now,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		s.Participants = rows
		return nil
	})
}

// Assign moves a waiting session to active under volunteerID. started_at is
// reset so accrual counts from the moment the volunteer joins.
func (r *SessionRepository) Assign(ctx context.Context, sessionID, volunteerID uint, matchedBy string, now time.Time) (*models.ChatSession, error) {
	var out models.ChatSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ChatSession{}).
			Where("id = ? AND status = ?", sessionID, domain.SessionStatusWaiting).
			Updates(map[string]interface{}{
				"status":       domain.SessionStatusActive,
				"volunteer_id": volunteerID,
				"matched_by":   matchedBy,
				"started_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotWaiting
		}
		if err := claimCapacity(tx, volunteerID); err != nil {
			return err
		}
		p := models.SessionParticipant{
			SessionID: sessionID, UserID: volunteerID, Role: domain.ParticipantVolunteer, IsActive: true, JoinedAt: now,
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		return tx.Preload("Participants").First(&out, sessionID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// End transitions the session to ended, deactivates the roster and releases
// volunteer capacity. ended reports whether this call performed the transition;
// a session that was already ended is returned unchanged with ended=false.
func (r *SessionRepository) End(ctx context.Context, sessionID uint, autoTerminated bool, now time.Time) (s *models.ChatSession, ended bool, err error) {
	var out models.ChatSession
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":         domain.SessionStatusEnded,
			"ended_at":       now,
			"open_seeker_id": nil,
		}
		if autoTerminated {
			updates["auto_terminated"] = true
		}
		res := tx.Model(&models.ChatSession{}).
			Where("id = ? AND status <> ?", sessionID, domain.SessionStatusEnded).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		ended = res.RowsAffected > 0

		if ended {
			var volunteers []uint
			err := tx.Model(&models.SessionParticipant{}).
				Where("session_id = ? AND role = ? AND is_active = ?", sessionID, domain.ParticipantVolunteer, true).
				Pluck("user_id", &volunteers).Error
			if err != nil {
				return err
			}
			err = tx.Model(&models.SessionParticipant{}).
				Where("session_id = ? AND is_active = ?", sessionID, true).
				Updates(map[string]interface{}{"is_active": false, "left_at": now}).Error
			if err != nil {
				return err
			}
			for _, v := range volunteers {
				if err := releaseCapacity(tx, v); err != nil {
					return err
				}
			}
		}
		return tx.Preload("Participants").First(&out, sessionID).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &out, ended, nil
}

// Continue records the volunteer's choice to keep going past the free tier.
func (r *SessionRepository) Continue(ctx context.Context, sessionID, volunteerID uint) error {
	res := r.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("id = ? AND status = ? AND volunteer_id = ?", sessionID, domain.SessionStatusActive, volunteerID).
		Updates(map[string]interface{}{"continued_after_limit": true, "auto_terminated": false})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotActive
	}
	return nil
}

// MarkLimitReached flags an active, non-continued session whose free tier ran out.
func (r *SessionRepository) MarkLimitReached(ctx context.Context, sessionID uint) error {
	return r.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("id = ? AND status = ? AND continued_after_limit = ?", sessionID, domain.SessionStatusActive, false).
		Update("auto_terminated", true).Error
}

// claimCapacity increments the counter only while the volunteer is online,
// available and below max. Zero rows affected means the claim lost.
func claimCapacity(tx *gorm.DB, volunteerID uint) error {
	res := tx.Model(&models.VolunteerAvailability{}).
		Where("volunteer_id = ? AND is_online = ? AND is_available = ? AND current_active_sessions < max_concurrent_sessions",
			volunteerID, true, true).
		UpdateColumn("current_active_sessions", gorm.Expr("current_active_sessions + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVolunteerUnavailable
	}
	return nil
}

func releaseCapacity(tx *gorm.DB, volunteerID uint) error {
	return tx.Model(&models.VolunteerAvailability{}).
		Where("volunteer_id = ?", volunteerID).
		UpdateColumn("current_active_sessions",
			gorm.Expr("CASE WHEN current_active_sessions > 0 THEN current_active_sessions - 1 ELSE 0 END")).Error
}
