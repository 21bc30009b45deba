package service

import (
	"context"
	"errors"

	"haven/internal/models"
	"haven/internal/repository"
)

// Principal is the authenticated caller as asserted by the access token.
type Principal struct {
	UserID uint
	Role   string
}

// loadCaller resolves p against the stored user. Roles are always taken from
// the row, never from the token.
func loadCaller(ctx context.Context, users *repository.UserRepository, p Principal) (*models.User, error) {
	if p.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	u, err := users.GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrForbidden
	}
	return u, nil
}
