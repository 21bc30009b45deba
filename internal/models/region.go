package models

import "time"

// RegionCurrency maps a seeker country to a display currency.
type RegionCurrency struct {
	CountryCode  string    `gorm:"primaryKey;size:2" json:"country_code"`
	Currency     string    `gorm:"size:3;not null" json:"currency"`
	ExchangeRate float64   `gorm:"type:decimal(12,6);not null" json:"exchange_rate"` // units of Currency per USD
	UpdatedAt    time.Time `json:"updated_at"`
}

func (RegionCurrency) TableName() string { return "region_currencies" }
