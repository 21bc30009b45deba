package service

import (
	"testing"
	"time"

	"haven/config"
	"haven/internal/domain"
	"haven/internal/events"
	"haven/internal/repository"
	"haven/internal/reward"
	"haven/internal/testutil"

	"gorm.io/gorm"
)

// recorder is a synchronous events.Publisher for assertions.
type recorder struct {
	events []events.Event
}

func (r *recorder) Publish(e events.Event) { r.events = append(r.events, e) }

func (r *recorder) types() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	db           *gorm.DB
	bus          *recorder
	users        *repository.UserRepository
	sessions     *repository.SessionRepository
	rewards      *RewardService
	lifecycle    *SessionService
	matcher      *MatchService
	availability *AvailabilityService
	clock        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{db: db, bus: &recorder{}, clock: time.Now()}
	f.users = repository.NewUserRepository(db)
	f.sessions = repository.NewSessionRepository(db)
	settingsRepo := repository.NewRewardSettingsRepository(db)
	f.rewards = NewRewardService(NewStoredSettings(settingsRepo, reward.DefaultSettings()), f.sessions,
		repository.NewEarningsRepository(db), settingsRepo, f.users)
	f.rewards.now = f.now
	f.lifecycle = NewSessionService(f.users, f.sessions, f.rewards, f.bus, 2*time.Minute)
	f.lifecycle.now = f.now
	cfg := config.Defaults().Matching
	f.matcher = NewMatchService(f.users, repository.NewCandidateRepository(db), f.lifecycle,
		NewCurrencyService(repository.NewRegionRepository(db), "USD"), cfg)
	f.availability = NewAvailabilityService(f.users, repository.NewAvailabilityRepository(db))
	f.availability.now = f.now
	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) seeker(t *testing.T, country string) Principal {
	u := testutil.CreateUser(t, f.db, domain.RoleSeeker, testutil.UserOpts{Country: country, Languages: "en"})
	return Principal{UserID: u.ID, Role: u.Role}
}

func (f *fixture) admin(t *testing.T) Principal {
	u := testutil.CreateUser(t, f.db, domain.RoleAdmin, testutil.UserOpts{})
	return Principal{UserID: u.ID, Role: u.Role}
}

func (f *fixture) volunteer(t *testing.T, opts testutil.VolunteerOpts) Principal {
	u := testutil.CreateVolunteer(t, f.db, opts)
	return Principal{UserID: u.ID, Role: u.Role}
}

// assertCapacityConsistent checks the counter against the active roster.
func (f *fixture) assertCapacityConsistent(t *testing.T, volunteerID uint) {
	t.Helper()
	rows := testutil.ActiveVolunteerRows(t, f.db, volunteerID)
	if got := testutil.ActiveCount(t, f.db, volunteerID); got != rows {
		t.Fatalf("volunteer %d: counter=%d active rows=%d", volunteerID, got, rows)
	}
}
