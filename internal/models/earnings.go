package models

import "time"

// VolunteerEarnings is the durable reward record of one session, written by finalize.
type VolunteerEarnings struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SessionID     uint      `gorm:"uniqueIndex;not null" json:"session_id"`
	VolunteerID   uint      `gorm:"not null;index" json:"volunteer_id"`
	TimeSpent     int64     `gorm:"not null" json:"time_spent"` // seconds
	PointsEarned  int64     `gorm:"not null" json:"points_earned"`
	AmountEarned  float64   `gorm:"type:decimal(12,2);not null" json:"amount_earned"`
	PaymentStatus string    `gorm:"size:20;not null;default:'PENDING';index" json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (VolunteerEarnings) TableName() string {
	return "volunteer_earnings"
}
