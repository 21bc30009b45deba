package models

import (
	"time"

	"gorm.io/gorm"
)

// VolunteerAvailability is the live matching state of one volunteer.
// CurrentActiveSessions is written only by the session lifecycle through atomic
// UPDATE expressions; Save from the availability side omits it.
type VolunteerAvailability struct {
	ID                    uint              `gorm:"primaryKey" json:"id"`
	VolunteerID           uint              `gorm:"uniqueIndex;not null" json:"volunteer_id"`
	IsOnline              bool              `gorm:"default:false;index" json:"is_online"`
	IsAvailable           bool              `gorm:"default:false;index" json:"is_available"`
	StatusMessage         string            `gorm:"size:255" json:"status_message"`
	CountryCode           string            `gorm:"size:2;index" json:"country_code"`
	ServesGlobal          bool              `gorm:"default:false" json:"serves_global"`
	CurrentActiveSessions int               `gorm:"not null;default:0" json:"current_active_sessions"`
	MaxConcurrentSessions int               `gorm:"not null;default:1" json:"max_concurrent_sessions"`
	LastActive            time.Time         `gorm:"index" json:"last_active"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
	Regions               []VolunteerRegion `gorm:"foreignKey:VolunteerID;references:VolunteerID" json:"-"`
}

func (VolunteerAvailability) TableName() string {
	return "volunteer_availabilities"
}

// BeforeSave keeps is_available false whenever the volunteer is offline.
func (a *VolunteerAvailability) BeforeSave(tx *gorm.DB) error {
	a.Normalize()
	return nil
}

// Normalize enforces the availability invariants in place.
func (a *VolunteerAvailability) Normalize() {
	if !a.IsOnline {
		a.IsAvailable = false
	}
	if a.MaxConcurrentSessions < 1 {
		a.MaxConcurrentSessions = 1
	}
}

// HasCapacity reports whether another session may be assigned.
func (a *VolunteerAvailability) HasCapacity() bool {
	return a.CurrentActiveSessions < a.MaxConcurrentSessions
}

// PreferredRegions returns the region country codes.
func (a *VolunteerAvailability) PreferredRegions() []string {
	out := make([]string, 0, len(a.Regions))
	for _, r := range a.Regions {
		out = append(out, r.CountryCode)
	}
	return out
}

// VolunteerRegion is one entry of a volunteer's preferred_regions set.
type VolunteerRegion struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	VolunteerID uint   `gorm:"not null;uniqueIndex:idx_volunteer_region" json:"volunteer_id"`
	CountryCode string `gorm:"size:2;not null;uniqueIndex:idx_volunteer_region;index" json:"country_code"`
}

func (VolunteerRegion) TableName() string {
	return "volunteer_regions"
}
