package models

import (
	"strings"
	"time"

	"haven/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:20;not null;index" json:"role"` // SEEKER | VOLUNTEER | ADMIN
	CountryCode  string         `gorm:"size:2" json:"country_code"`
	Languages    string         `gorm:"size:255" json:"languages"` // comma-separated ISO codes, e.g. "en,sw"
	IsActive     bool           `gorm:"default:true;index" json:"is_active"`
	FCMToken     string         `gorm:"size:512" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Availability *VolunteerAvailability `gorm:"foreignKey:VolunteerID" json:"availability,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsSeeker() bool    { return u.Role == domain.RoleSeeker }
func (u *User) IsVolunteer() bool { return u.Role == domain.RoleVolunteer }
func (u *User) IsAdmin() bool     { return u.Role == domain.RoleAdmin }

// LanguageList returns the normalized language codes of the user.
func (u *User) LanguageList() []string {
	return SplitCodes(u.Languages)
}

// SplitCodes splits a comma-separated list of codes, lower-casing and dropping blanks.
func SplitCodes(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinCodes is the inverse of SplitCodes.
func JoinCodes(codes []string) string {
	return strings.Join(NormalizeCodes(codes, strings.ToLower), ",")
}

// NormalizeCodes trims, case-maps and de-duplicates codes, keeping order.
func NormalizeCodes(codes []string, mapFn func(string) string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = mapFn(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
