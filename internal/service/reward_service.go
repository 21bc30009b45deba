package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"haven/internal/domain"
	"haven/internal/models"
	"haven/internal/repository"
	"haven/internal/reward"
)

// SettingsProvider yields the reward settings for one computation.
type SettingsProvider interface {
	Current(ctx context.Context) reward.Settings
}

// StoredSettings reads the active reward_settings row on every call and falls
// back to static defaults when the row is absent or unreadable.
type StoredSettings struct {
	repo     *repository.RewardSettingsRepository
	fallback reward.Settings
}

func NewStoredSettings(repo *repository.RewardSettingsRepository, fallback reward.Settings) *StoredSettings {
	return &StoredSettings{repo: repo, fallback: fallback}
}

func (p *StoredSettings) Current(ctx context.Context) reward.Settings {
	m, err := p.repo.GetActive(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[Reward] settings read failed, using defaults: %v", err)
		}
		return p.fallback
	}
	return reward.FromModel(m, p.fallback)
}

// Snapshot is the live reward view of one session.
type Snapshot struct {
	SessionID uint   `json:"session_id"`
	Status    string `json:"status"`
	reward.Accrual
	Currency             string          `json:"currency"`
	ExchangeRate         float64         `json:"exchange_rate"`
	LocalAmount          float64         `json:"local_amount"`
	ContinuedAfterLimit  bool            `json:"continued_after_limit"`
	AutoTerminated       bool            `json:"auto_terminated"`
	LimitReached         bool            `json:"limit_reached"`
	ShouldAutoTerminate  bool            `json:"should_auto_terminate"`
	FreeMinutesRemaining float64         `json:"free_minutes_remaining"`
	LimitAt              *time.Time      `json:"limit_at,omitempty"`
	Settings             reward.Settings `json:"settings"`
}

// FinalizeResult is what finalize froze.
type FinalizeResult struct {
	Totals   repository.SessionTotals  `json:"-"`
	Accrual  reward.Accrual            `json:"accrual"`
	Earnings *models.VolunteerEarnings `json:"earnings,omitempty"`
}

type RewardService struct {
	settings SettingsProvider
	sessions *repository.SessionRepository
	earnings *repository.EarningsRepository
	admin    *repository.RewardSettingsRepository
	users    *repository.UserRepository
	now      func() time.Time
}

func NewRewardService(settings SettingsProvider, sessions *repository.SessionRepository, earnings *repository.EarningsRepository,
	admin *repository.RewardSettingsRepository, users *repository.UserRepository) *RewardService {
	return &RewardService{settings: settings, sessions: sessions, earnings: earnings, admin: admin, users: users, now: time.Now}
}

func (s *RewardService) Settings(ctx context.Context) reward.Settings {
	return s.settings.Current(ctx)
}

// effectiveNow freezes the clock at ended_at for ended sessions.
func effectiveNow(sess *models.ChatSession, now time.Time) time.Time {
	if sess.EndedAt != nil {
		return *sess.EndedAt
	}
	return now
}

// accrue returns zero for sessions that never had a volunteer.
func accrue(sess *models.ChatSession, st reward.Settings, now time.Time) reward.Accrual {
	if sess.VolunteerID == nil {
		return reward.Accrual{Multiplier: reward.RateMultiplier(sess, st)}
	}
	return reward.Compute(sess, st, effectiveNow(sess, now))
}

// Snapshot computes the live totals of sess with st at now. It never writes.
func (s *RewardService) Snapshot(sess *models.ChatSession, st reward.Settings, now time.Time) *Snapshot {
	acc := accrue(sess, st, now)
	snap := &Snapshot{
		SessionID:           sess.ID,
		Status:              sess.Status,
		Accrual:             acc,
		Currency:            sess.Currency,
		ExchangeRate:        sess.ExchangeRate,
		ContinuedAfterLimit: sess.ContinuedAfterLimit,
		AutoTerminated:      sess.AutoTerminated,
		ShouldAutoTerminate: reward.ShouldAutoTerminate(sess, st, now),
		Settings:            st,
	}
	if snap.Currency == "" {
		snap.Currency = domain.DefaultCurrency
	}
	if snap.ExchangeRate <= 0 {
		snap.ExchangeRate = 1
	}
	snap.LocalAmount = math.Round(acc.Amount*snap.ExchangeRate*100) / 100
	if sess.VolunteerID != nil && !sess.ContinuedAfterLimit {
		limit := reward.LimitAt(sess, st)
		snap.LimitAt = &limit
		snap.FreeMinutesRemaining = math.Max(0, st.MaxFreeMinutes-acc.ElapsedMinutes)
		snap.LimitReached = sess.IsActive() && acc.ElapsedMinutes >= st.MaxFreeMinutes
	}
	return snap
}

// FinalizeSession recomputes the final totals of a loaded session and stores
// them. Ended sessions are computed at ended_at, so repeated calls store
// identical rows.
func (s *RewardService) FinalizeSession(ctx context.Context, sess *models.ChatSession) (*FinalizeResult, error) {
	st := s.settings.Current(ctx)
	acc := accrue(sess, st, s.now())
	totals := repository.SessionTotals{DurationSeconds: acc.ElapsedSeconds, Points: acc.Points, Amount: acc.Amount}
	e, err := s.earnings.Finalize(ctx, sess, totals)
	if err != nil {
		return nil, fmt.Errorf("finalize session %d: %w", sess.ID, err)
	}
	log.Printf("[Reward] finalized session=%d points=%d amount=%.2f duration=%ds", sess.ID, acc.Points, acc.Amount, acc.ElapsedSeconds)
	return &FinalizeResult{Totals: totals, Accrual: acc, Earnings: e}, nil
}

// EarningsPage is a volunteer's earnings history with totals.
type EarningsPage struct {
	Summary  *repository.EarningsSummary `json:"summary"`
	Earnings []models.VolunteerEarnings  `json:"earnings"`
}

func (s *RewardService) Earnings(ctx context.Context, p Principal, limit, offset int) (*EarningsPage, error) {
	u, err := loadCaller(ctx, s.users, p)
	if err != nil {
		return nil, err
	}
	if !u.IsVolunteer() {
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	list, err := s.earnings.ListByVolunteer(ctx, u.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	sum, err := s.earnings.SummaryByVolunteer(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &EarningsPage{Summary: sum, Earnings: list}, nil
}

// UpdateSettings replaces the active reward settings.
func (s *RewardService) UpdateSettings(ctx context.Context, st reward.Settings) (*models.RewardSettings, error) {
	switch {
	case st.PointsPerMinute <= 0:
		return nil, invalid("points_per_minute must be positive")
	case st.PointsToDollarRate <= 0:
		return nil, invalid("points_to_dollar_rate must be positive")
	case st.MaxFreeMinutes <= 0:
		return nil, invalid("max_free_minutes must be positive")
	case st.ContinuationRateMultiplier < 1:
		return nil, invalid("continuation_rate_multiplier must be at least 1")
	}
	m := &models.RewardSettings{
		PointsPerMinute:            st.PointsPerMinute,
		PointsToDollarRate:         st.PointsToDollarRate,
		MaxFreeMinutes:             st.MaxFreeMinutes,
		ContinuationRateMultiplier: st.ContinuationRateMultiplier,
	}
	if err := s.admin.Activate(ctx, m); err != nil {
		return nil, err
	}
	log.Printf("[Reward] settings updated id=%d ppm=%.2f rate=%.4f free=%.1f mult=%.2f",
		m.ID, m.PointsPerMinute, m.PointsToDollarRate, m.MaxFreeMinutes, m.ContinuationRateMultiplier)
	return m, nil
}

func (s *RewardService) SettingsHistory(ctx context.Context, limit int) ([]models.RewardSettings, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.admin.History(ctx, limit)
}
