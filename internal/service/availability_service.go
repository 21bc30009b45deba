package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"haven/internal/models"
	"haven/internal/repository"
)

const (
	maxConcurrentLimit  = 10
	maxStatusMessageLen = 255
)

// AvailabilityPatch carries the fields a volunteer controls. Nil means unchanged.
type AvailabilityPatch struct {
	IsOnline              *bool
	IsAvailable           *bool
	StatusMessage         *string
	MaxConcurrentSessions *int
	CountryCode           *string
	ServesGlobal          *bool
	PreferredRegions      *[]string
}

// AvailabilityView is a volunteer's availability as returned to clients.
type AvailabilityView struct {
	*models.VolunteerAvailability
	PreferredRegions []string `json:"preferred_regions"`
}

func viewOf(a *models.VolunteerAvailability) *AvailabilityView {
	return &AvailabilityView{VolunteerAvailability: a, PreferredRegions: a.PreferredRegions()}
}

type AvailabilityService struct {
	users *repository.UserRepository
	repo  *repository.AvailabilityRepository
	now   func() time.Time
}

func NewAvailabilityService(users *repository.UserRepository, repo *repository.AvailabilityRepository) *AvailabilityService {
	return &AvailabilityService{users: users, repo: repo, now: time.Now}
}

func (s *AvailabilityService) volunteer(ctx context.Context, p Principal) (*models.User, error) {
	u, err := loadCaller(ctx, s.users, p)
	if err != nil {
		return nil, err
	}
	if !u.IsVolunteer() {
		return nil, ErrForbidden
	}
	return u, nil
}

// Get returns the caller's availability, offline when never set.
func (s *AvailabilityService) Get(ctx context.Context, p Principal) (*AvailabilityView, error) {
	u, err := s.volunteer(ctx, p)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetOrInit(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		a.CountryCode = u.CountryCode
	}
	return viewOf(a), nil
}

// Update applies patch. Going offline always clears is_available.
func (s *AvailabilityService) Update(ctx context.Context, p Principal, patch AvailabilityPatch) (*AvailabilityView, error) {
	u, err := s.volunteer(ctx, p)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetOrInit(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		a.CountryCode = u.CountryCode
	}
	if err := applyPatch(a, patch); err != nil {
		return nil, err
	}
	a.LastActive = s.now()

	var regions []string
	if patch.PreferredRegions != nil {
		regions = models.NormalizeCodes(*patch.PreferredRegions, strings.ToUpper)
		for _, r := range regions {
			if len(r) != 2 {
				return nil, invalid("preferred_regions must contain ISO country codes")
			}
		}
	}
	if err := s.repo.Save(ctx, a, regions); err != nil {
		if errors.Is(err, repository.ErrCapacityBelowActive) {
			return nil, invalid("max_concurrent_sessions cannot be lower than the %d sessions currently active", a.CurrentActiveSessions)
		}
		return nil, err
	}
	log.Printf("[Availability] volunteer=%d online=%t available=%t max=%d", u.ID, a.IsOnline, a.IsAvailable, a.MaxConcurrentSessions)

	stored, err := s.repo.GetByVolunteerID(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return viewOf(stored), nil
}

func applyPatch(a *models.VolunteerAvailability, patch AvailabilityPatch) error {
	if patch.IsOnline != nil {
		a.IsOnline = *patch.IsOnline
	}
	if patch.IsAvailable != nil {
		a.IsAvailable = *patch.IsAvailable
	}
	if patch.StatusMessage != nil {
		msg := strings.TrimSpace(*patch.StatusMessage)
		if len(msg) > maxStatusMessageLen {
			return invalid("status_message must be at most %d characters", maxStatusMessageLen)
		}
		a.StatusMessage = msg
	}
	if patch.MaxConcurrentSessions != nil {
		n := *patch.MaxConcurrentSessions
		if n < 1 || n > maxConcurrentLimit {
			return invalid("max_concurrent_sessions must be between 1 and %d", maxConcurrentLimit)
		}
		a.MaxConcurrentSessions = n
	}
	if patch.CountryCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*patch.CountryCode))
		if code != "" && len(code) != 2 {
			return invalid("country_code must be an ISO 3166-1 alpha-2 code")
		}
		a.CountryCode = code
	}
	if patch.ServesGlobal != nil {
		a.ServesGlobal = *patch.ServesGlobal
	}
	a.Normalize()
	return nil
}

// Heartbeat refreshes last_active for the calling volunteer.
func (s *AvailabilityService) Heartbeat(ctx context.Context, p Principal) (time.Time, error) {
	u, err := s.volunteer(ctx, p)
	if err != nil {
		return time.Time{}, err
	}
	now := s.now()
	ok, err := s.repo.Touch(ctx, u.ID, now)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, invalid("availability has not been set yet")
	}
	return now, nil
}
