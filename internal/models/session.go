package models

import (
	"time"

	"haven/internal/domain"

	"gorm.io/gorm"
)

// ChatSession is a seeker/volunteer conversation moving waiting -> active -> ended.
// OpenSeekerID mirrors SeekerID while the session is not ended and is NULL afterwards;
// its unique index allows at most one open session per seeker.
type ChatSession struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	SeekerID            uint           `gorm:"not null;index" json:"seeker_id"`
	VolunteerID         *uint          `gorm:"index" json:"volunteer_id"`
	OpenSeekerID        *uint          `gorm:"uniqueIndex" json:"-"`
	Status              string         `gorm:"size:20;not null;index" json:"status"`
	SessionType         string         `gorm:"size:20;not null;index" json:"session_type"`
	Language            string         `gorm:"size:10" json:"language"`
	Topic               string         `gorm:"size:255" json:"topic"`
	MaxParticipants     int            `gorm:"not null;default:2" json:"max_participants"`
	MatchedBy           string         `gorm:"size:30" json:"matched_by,omitempty"`
	Currency            string         `gorm:"size:3;default:'USD'" json:"currency"`
	ExchangeRate        float64        `gorm:"type:decimal(12,6);default:1" json:"exchange_rate"`
	StartedAt           time.Time      `gorm:"not null" json:"started_at"`
	EndedAt             *time.Time     `json:"ended_at"`
	ContinuedAfterLimit bool           `gorm:"default:false" json:"continued_after_limit"`
	AutoTerminated      bool           `gorm:"default:false" json:"auto_terminated"`
	RewardPoints        int64          `gorm:"default:0" json:"reward_points"`
	RewardAmount        float64        `gorm:"type:decimal(12,2);default:0" json:"reward_amount"`
	SessionDuration     int64          `gorm:"default:0" json:"session_duration"` // seconds, frozen at finalize
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`

	Participants []SessionParticipant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

func (s *ChatSession) IsEnded() bool  { return s.Status == domain.SessionStatusEnded }
func (s *ChatSession) IsActive() bool { return s.Status == domain.SessionStatusActive }

// HasVolunteer reports whether userID is the assigned volunteer.
func (s *ChatSession) HasVolunteer(userID uint) bool {
	return s.VolunteerID != nil && *s.VolunteerID == userID
}

// SessionParticipant is one roster row; rows are deactivated, never deleted.
type SessionParticipant struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	SessionID uint       `gorm:"not null;uniqueIndex:idx_session_participant" json:"session_id"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_session_participant;index" json:"user_id"`
	Role      string     `gorm:"size:20;not null;index" json:"role"` // seeker | volunteer
	IsActive  bool       `gorm:"default:true;index" json:"is_active"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at"`
}

func (SessionParticipant) TableName() string {
	return "session_participants"
}
