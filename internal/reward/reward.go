// Package reward computes live volunteer reward accrual for a session.
// Everything here is a pure function of the session, the settings and the clock.
package reward

import (
	"math"
	"time"

	"haven/internal/domain"
	"haven/internal/models"
)

// Settings is the reward configuration in effect for one computation.
type Settings struct {
	PointsPerMinute            float64 `json:"points_per_minute"`
	PointsToDollarRate         float64 `json:"points_to_dollar_rate"`
	MaxFreeMinutes             float64 `json:"max_free_minutes"`
	ContinuationRateMultiplier float64 `json:"continuation_rate_multiplier"`
}

// DefaultSettings are applied when no active settings row exists.
func DefaultSettings() Settings {
	return Settings{
		PointsPerMinute:            40,
		PointsToDollarRate:         0.10,
		MaxFreeMinutes:             5,
		ContinuationRateMultiplier: 1.5,
	}
}

// FromModel converts a stored settings row, filling unset fields from fallback.
func FromModel(m *models.RewardSettings, fallback Settings) Settings {
	if m == nil {
		return fallback
	}
	s := Settings{
		PointsPerMinute:            m.PointsPerMinute,
		PointsToDollarRate:         m.PointsToDollarRate,
		MaxFreeMinutes:             m.MaxFreeMinutes,
		ContinuationRateMultiplier: m.ContinuationRateMultiplier,
	}
	if s.PointsPerMinute <= 0 {
		s.PointsPerMinute = fallback.PointsPerMinute
	}
	if s.PointsToDollarRate <= 0 {
		s.PointsToDollarRate = fallback.PointsToDollarRate
	}
	if s.MaxFreeMinutes <= 0 {
		s.MaxFreeMinutes = fallback.MaxFreeMinutes
	}
	if s.ContinuationRateMultiplier <= 0 {
		s.ContinuationRateMultiplier = fallback.ContinuationRateMultiplier
	}
	return s
}

// Accrual is a point-in-time reward total.
type Accrual struct {
	ElapsedSeconds int64   `json:"elapsed_seconds"`
	ElapsedMinutes float64 `json:"elapsed_minutes"`
	Multiplier     float64 `json:"multiplier"`
	Points         int64   `json:"points"`
	Amount         float64 `json:"amount"`
}

// ElapsedMinutes returns the minutes between the session start and now, never negative.
func ElapsedMinutes(s *models.ChatSession, now time.Time) float64 {
	d := now.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d.Minutes()
}

// RateMultiplier is the billing policy for continued sessions: once a volunteer
// continues past the free tier, the multiplier re-rates the whole session, not
// only the minutes after the cutoff.
func RateMultiplier(s *models.ChatSession, st Settings) float64 {
	if s.ContinuedAfterLimit {
		return st.ContinuationRateMultiplier
	}
	return 1
}

// Compute returns the accrued points and amount at now. Under one minute nothing accrues.
func Compute(s *models.ChatSession, st Settings, now time.Time) Accrual {
	elapsed := ElapsedMinutes(s, now)
	a := Accrual{
		ElapsedSeconds: int64(elapsed * 60),
		ElapsedMinutes: elapsed,
		Multiplier:     RateMultiplier(s, st),
	}
	if elapsed < 1 {
		return a
	}
	a.Points = int64(math.Floor(elapsed * st.PointsPerMinute * a.Multiplier))
	a.Amount = toCents(float64(a.Points) * st.PointsToDollarRate)
	return a
}

// ShouldAutoTerminate reports whether an active, non-continued session has used
// up its free minutes. It never mutates the session.
func ShouldAutoTerminate(s *models.ChatSession, st Settings, now time.Time) bool {
	if s.Status != domain.SessionStatusActive || s.ContinuedAfterLimit {
		return false
	}
	return ElapsedMinutes(s, now) >= st.MaxFreeMinutes
}

// LimitAt returns the instant the free tier runs out for s.
func LimitAt(s *models.ChatSession, st Settings) time.Time {
	return s.StartedAt.Add(time.Duration(st.MaxFreeMinutes * float64(time.Minute)))
}

func toCents(v float64) float64 {
	return math.Round(v*100) / 100
}
