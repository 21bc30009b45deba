package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"haven/internal/auth"
	"haven/internal/middleware"
	"haven/internal/service"

	"github.com/gin-gonic/gin"
)

func principal(c *gin.Context) service.Principal {
	return service.Principal{UserID: middleware.GetUserID(c), Role: middleware.GetRole(c)}
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func paging(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// respondError maps service errors to status codes. Unexpected errors are
// logged with op and answered with a generic message.
func respondError(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, service.ErrInvalidCreds):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrActiveSessionExists),
		errors.Is(err, service.ErrVolunteerUnavailable),
		errors.Is(err, service.ErrSessionNotActive),
		errors.Is(err, service.ErrSessionNotWaiting),
		errors.Is(err, service.ErrSessionEnded),
		errors.Is(err, service.ErrEmailExists),
		errors.Is(err, service.ErrUsernameExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] %s failed: user=%d path=%s err=%v", op, middleware.GetUserID(c), c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
