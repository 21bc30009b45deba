package middleware

import (
	"errors"
	"net/http"

	"haven/internal/repository"

	"github.com/gin-gonic/gin"
)

// AdminRequired checks the stored role of the authenticated user, not the
// token claim.
func AdminRequired(users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := users.GetByID(c.Request.Context(), GetUserID(c))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !u.IsAdmin() || !u.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
