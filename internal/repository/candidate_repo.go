package repository

import (
	"context"
	"strings"
	"time"

	"haven/internal/domain"
	"haven/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CandidateQuery bounds the matcher's single read of eligible volunteers.
type CandidateQuery struct {
	SeekerCountry      string
	PreferredCountries []string
	// Global drops the location predicate entirely.
	Global      bool
	StaleBefore time.Time // zero disables the heartbeat filter
	Limit       int
}

// Candidate is one eligible volunteer row.
type Candidate struct {
	VolunteerID           uint      `json:"volunteer_id"`
	Username              string    `json:"username"`
	CountryCode           string    `json:"country_code"`
	ServesGlobal          bool      `json:"serves_global"`
	CurrentActiveSessions int       `json:"current_active_sessions"`
	MaxConcurrentSessions int       `json:"max_concurrent_sessions"`
	LastActive            time.Time `json:"last_active"`
	Languages             string    `json:"-"`
	Regions               []string  `gorm:"-" json:"preferred_regions,omitempty"`
}

type CandidateRepository struct {
	db *gorm.DB
}

func NewCandidateRepository(db *gorm.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

// Find returns at most q.Limit online, available volunteers with spare capacity
// that satisfy the location predicate, pre-ordered by country affinity and load.
func (r *CandidateRepository) Find(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	prefs := q.PreferredCountries
	if prefs == nil {
		prefs = []string{}
	}
	tx := r.db.WithContext(ctx).
		Table("volunteer_availabilities AS va").
		Select("va.volunteer_id, u.username, va.country_code, va.serves_global, va.current_active_sessions, va.max_concurrent_sessions, va.last_active, u.languages").
		Joins("INNER JOIN users u ON u.id = va.volunteer_id AND u.deleted_at IS NULL").
		Where("u.role = ? AND u.is_active = ?", domain.RoleVolunteer, true).
		Where("va.is_online = ? AND va.is_available = ?", true, true).
		Where("va.current_active_sessions < va.max_concurrent_sessions")

	if !q.Global {
		tx = tx.Where(
			"(va.serves_global = ? OR va.country_code = ? OR va.country_code IN ? OR EXISTS (SELECT 1 FROM volunteer_regions vr WHERE vr.volunteer_id = va.volunteer_id AND vr.country_code IN ?))",
			true, q.SeekerCountry, prefs, prefs,
		)
	}
	if !q.StaleBefore.IsZero() {
		tx = tx.Where("va.last_active >= ?", q.StaleBefore)
	}

	tx = tx.Clauses(clause.OrderBy{Expression: candidateOrder(q.SeekerCountry, prefs, r.db.Dialector.Name())})
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var out []Candidate
	if err := tx.Scan(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	return out, r.attachRegions(ctx, out)
}

// candidateOrder ranks same-country volunteers first, then preferred
// countries, then the least loaded. Remaining ties come back in random order.
func candidateOrder(seekerCountry string, prefs []string, dialect string) clause.Expr {
	sql := "CASE WHEN va.country_code = ? THEN 0 ELSE 1 END"
	vars := []interface{}{seekerCountry}
	if len(prefs) > 0 {
		sql += ", CASE WHEN va.country_code IN (" + strings.TrimSuffix(strings.Repeat("?,", len(prefs)), ",") + ") THEN 0 ELSE 1 END"
		for _, p := range prefs {
			vars = append(vars, p)
		}
	}
	sql += ", va.current_active_sessions ASC, " + randomFunc(dialect)
	return clause.Expr{SQL: sql, Vars: vars}
}

func randomFunc(dialect string) string {
	if dialect == "mysql" {
		return "RAND()"
	}
	return "RANDOM()"
}

func (r *CandidateRepository) attachRegions(ctx context.Context, cands []Candidate) error {
	ids := make([]uint, len(cands))
	idx := make(map[uint]int, len(cands))
	for i, c := range cands {
		ids[i] = c.VolunteerID
		idx[c.VolunteerID] = i
	}
	var regions []models.VolunteerRegion
	if err := r.db.WithContext(ctx).Where("volunteer_id IN ?", ids).Find(&regions).Error; err != nil {
		return err
	}
	for _, reg := range regions {
		i := idx[reg.VolunteerID]
		cands[i].Regions = append(cands[i].Regions, reg.CountryCode)
	}
	return nil
}
