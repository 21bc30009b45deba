// Package testutil provides database fixtures for haven tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"haven/internal/database"
	"haven/internal/domain"
	"haven/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var seq atomic.Uint64

// NewDB returns a migrated, private in-memory SQLite database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// UserOpts customizes CreateUser.
type UserOpts struct {
	Country   string
	Languages string
	Inactive  bool
}

// CreateUser inserts a user with a unique username and email.
func CreateUser(t *testing.T, db *gorm.DB, role string, opts UserOpts) *models.User {
	t.Helper()
	n := seq.Add(1)
	u := &models.User{
		Username:    fmt.Sprintf("user%d", n),
		Email:       fmt.Sprintf("user%d@example.test", n),
		Role:        role,
		CountryCode: opts.Country,
		Languages:   opts.Languages,
		IsActive:    true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if opts.Inactive {
		if err := db.Model(u).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate user: %v", err)
		}
		u.IsActive = false
	}
	return u
}

// VolunteerOpts describes a volunteer's availability row.
type VolunteerOpts struct {
	Country      string
	Languages    string
	ServesGlobal bool
	Regions      []string
	Offline      bool
	Unavailable  bool
	Max          int
	Active       int
	LastActive   time.Time
}

// CreateVolunteer inserts a VOLUNTEER user together with its availability row.
// Volunteers are online and available unless told otherwise.
func CreateVolunteer(t *testing.T, db *gorm.DB, opts VolunteerOpts) *models.User {
	t.Helper()
	u := CreateUser(t, db, domain.RoleVolunteer, UserOpts{Country: opts.Country, Languages: opts.Languages})
	max := opts.Max
	if max == 0 {
		max = 1
	}
	last := opts.LastActive
	if last.IsZero() {
		last = time.Now()
	}
	a := &models.VolunteerAvailability{
		VolunteerID:           u.ID,
		IsOnline:              !opts.Offline,
		IsAvailable:           !opts.Offline && !opts.Unavailable,
		CountryCode:           opts.Country,
		ServesGlobal:          opts.ServesGlobal,
		CurrentActiveSessions: opts.Active,
		MaxConcurrentSessions: max,
		LastActive:            last,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("create availability: %v", err)
	}
	for _, code := range opts.Regions {
		if err := db.Create(&models.VolunteerRegion{VolunteerID: u.ID, CountryCode: code}).Error; err != nil {
			t.Fatalf("create region: %v", err)
		}
	}
	return u
}

// ActiveCount reads a volunteer's stored capacity counter.
func ActiveCount(t *testing.T, db *gorm.DB, volunteerID uint) int {
	t.Helper()
	var a models.VolunteerAvailability
	if err := db.Where("volunteer_id = ?", volunteerID).First(&a).Error; err != nil {
		t.Fatalf("load availability: %v", err)
	}
	return a.CurrentActiveSessions
}

// ActiveVolunteerRows counts the volunteer's active participant rows, the
// roster the capacity counter must agree with.
func ActiveVolunteerRows(t *testing.T, db *gorm.DB, volunteerID uint) int {
	t.Helper()
	var n int64
	err := db.Model(&models.SessionParticipant{}).
		Where("user_id = ? AND role = ? AND is_active = ?", volunteerID, domain.ParticipantVolunteer, true).
		Count(&n).Error
	if err != nil {
		t.Fatalf("count participants: %v", err)
	}
	return int(n)
}
