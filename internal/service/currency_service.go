package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"haven/internal/domain"
	"haven/internal/repository"
)

// CurrencyService resolves the display currency for a seeker's country.
// Lookup failures never surface: the default currency at rate 1.0 is used.
type CurrencyService struct {
	regions  *repository.RegionRepository
	fallback string
}

func NewCurrencyService(regions *repository.RegionRepository, fallback string) *CurrencyService {
	if fallback == "" {
		fallback = domain.DefaultCurrency
	}
	return &CurrencyService{regions: regions, fallback: fallback}
}

func (s *CurrencyService) Resolve(ctx context.Context, countryCode string) (string, float64) {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	if s == nil || s.regions == nil || code == "" {
		return s.defaultCurrency(), 1.0
	}
	rc, err := s.regions.GetCurrency(ctx, code)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[Currency] lookup country=%s failed, using default: %v", code, err)
		}
		return s.fallback, 1.0
	}
	if rc.Currency == "" || rc.ExchangeRate <= 0 {
		log.Printf("[Currency] unusable row for country=%s, using default", code)
		return s.fallback, 1.0
	}
	return rc.Currency, rc.ExchangeRate
}

func (s *CurrencyService) defaultCurrency() string {
	if s == nil || s.fallback == "" {
		return domain.DefaultCurrency
	}
	return s.fallback
}
