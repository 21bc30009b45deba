package models

import "time"

// RewardSettings is admin-managed reward configuration. Exactly one row is active.
type RewardSettings struct {
	ID                         uint      `gorm:"primaryKey" json:"id"`
	PointsPerMinute            float64   `gorm:"not null" json:"points_per_minute"`
	PointsToDollarRate         float64   `gorm:"type:decimal(10,4);not null" json:"points_to_dollar_rate"`
	MaxFreeMinutes             float64   `gorm:"not null" json:"max_free_minutes"`
	ContinuationRateMultiplier float64   `gorm:"type:decimal(6,3);not null" json:"continuation_rate_multiplier"`
	IsActive                   bool      `gorm:"default:false;index" json:"is_active"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

func (RewardSettings) TableName() string { return "reward_settings" }
