package service

import (
	"context"
	"errors"
	"strings"

	"haven/config"
	"haven/internal/auth"
	"haven/internal/domain"
	"haven/internal/models"
	"haven/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailExists    = errors.New("email already registered")
	ErrUsernameExists = errors.New("username already taken")
	ErrInvalidCreds   = errors.New("invalid email or password")
)

type RegisterInput struct {
	Email       string
	Username    string
	Password    string
	Role        string
	CountryCode string
	Languages   []string
}

type AuthService struct {
	cfg      *config.Config
	userRepo *repository.UserRepository
}

func NewAuthService(cfg *config.Config, userRepo *repository.UserRepository) *AuthService {
	return &AuthService{cfg: cfg, userRepo: userRepo}
}

// Register creates a seeker or volunteer account. Admins are provisioned out of band.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, *auth.TokenPair, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if in.Role == "" {
		in.Role = domain.RoleSeeker
	}
	if in.Role != domain.RoleSeeker && in.Role != domain.RoleVolunteer {
		return nil, nil, invalid("role must be %s or %s", domain.RoleSeeker, domain.RoleVolunteer)
	}
	country := strings.ToUpper(strings.TrimSpace(in.CountryCode))
	if country != "" && len(country) != 2 {
		return nil, nil, invalid("country_code must be an ISO 3166-1 alpha-2 code")
	}

	_, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err == nil {
		return nil, nil, ErrEmailExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, err
	}
	_, err = s.userRepo.GetByUsername(ctx, in.Username)
	if err == nil {
		return nil, nil, ErrUsernameExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	u := &models.User{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: string(hash),
		Role:         in.Role,
		CountryCode:  country,
		Languages:    models.JoinCodes(in.Languages),
		IsActive:     true,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, nil, err
	}
	pair, err := auth.GeneratePair(&s.cfg.JWT, u.ID, u.Email, u.Role)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, *auth.TokenPair, error) {
	u, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCreds
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCreds
	}
	if !u.IsActive {
		return nil, nil, ErrForbidden
	}
	pair, err := auth.GeneratePair(&s.cfg.JWT, u.ID, u.Email, u.Role)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Refresh issues a new pair for a valid refresh token of an active user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	userID, err := auth.ParseRefreshToken(&s.cfg.JWT, refreshToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	u, err := loadCaller(ctx, s.userRepo, Principal{UserID: userID})
	if err != nil {
		return nil, err
	}
	return auth.GeneratePair(&s.cfg.JWT, u.ID, u.Email, u.Role)
}

func (s *AuthService) Me(ctx context.Context, p Principal) (*models.User, error) {
	return loadCaller(ctx, s.userRepo, p)
}

func (s *AuthService) SetFCMToken(ctx context.Context, p Principal, token string) error {
	if _, err := loadCaller(ctx, s.userRepo, p); err != nil {
		return err
	}
	return s.userRepo.SetFCMToken(ctx, p.UserID, strings.TrimSpace(token))
}
