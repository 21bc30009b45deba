package repository

import (
	"gorm.io/gorm"
)

// SessionFilter narrows session listings. Every predicate is bound as a
// parameter; no caller text reaches the SQL.
type SessionFilter struct {
	Status      []string
	SessionType string
	SeekerID    *uint
	VolunteerID *uint
	// ParticipantID matches sessions where the user is seeker or volunteer.
	ParticipantID *uint
	Limit         int
	Offset        int
}

func (f SessionFilter) scope(db *gorm.DB) *gorm.DB {
	if len(f.Status) > 0 {
		db = db.Where("status IN ?", f.Status)
	}
	if f.SessionType != "" {
		db = db.Where("session_type = ?", f.SessionType)
	}
	if f.SeekerID != nil {
		db = db.Where("seeker_id = ?", *f.SeekerID)
	}
	if f.VolunteerID != nil {
		db = db.Where("volunteer_id = ?", *f.VolunteerID)
	}
	if f.ParticipantID != nil {
		db = db.Where("(seeker_id = ? OR volunteer_id = ?)", *f.ParticipantID, *f.ParticipantID)
	}
	return db
}

func (f SessionFilter) page(db *gorm.DB) *gorm.DB {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	return db.Limit(limit).Offset(offset)
}
