package handler

import (
	"net/http"

	"haven/internal/service"

	"github.com/gin-gonic/gin"
)

type VolunteerHandler struct {
	availability *service.AvailabilityService
	rewards      *service.RewardService
}

func NewVolunteerHandler(availability *service.AvailabilityService, rewards *service.RewardService) *VolunteerHandler {
	return &VolunteerHandler{availability: availability, rewards: rewards}
}

type AvailabilityRequest struct {
	IsOnline              *bool     `json:"is_online"`
	IsAvailable           *bool     `json:"is_available"`
	StatusMessage         *string   `json:"status_message" binding:"omitempty,max=255"`
	MaxConcurrentSessions *int      `json:"max_concurrent_sessions" binding:"omitempty,min=1,max=10"`
	CountryCode           *string   `json:"country_code" binding:"omitempty,len=2"`
	ServesGlobal          *bool     `json:"serves_global"`
	PreferredRegions      *[]string `json:"preferred_regions"`
}

func (h *VolunteerHandler) GetAvailability(c *gin.Context) {
	a, err := h.availability.Get(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, "get availability", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"availability": a})
}

func (h *VolunteerHandler) UpdateAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.availability.Update(c.Request.Context(), principal(c), service.AvailabilityPatch{
		IsOnline:              req.IsOnline,
		IsAvailable:           req.IsAvailable,
		StatusMessage:         req.StatusMessage,
		MaxConcurrentSessions: req.MaxConcurrentSessions,
		CountryCode:           req.CountryCode,
		ServesGlobal:          req.ServesGlobal,
		PreferredRegions:      req.PreferredRegions,
	})
	if err != nil {
		respondError(c, "update availability", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"availability": a})
}

func (h *VolunteerHandler) Heartbeat(c *gin.Context) {
	at, err := h.availability.Heartbeat(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, "heartbeat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_active": at})
}

func (h *VolunteerHandler) Earnings(c *gin.Context) {
	limit, offset := paging(c)
	page, err := h.rewards.Earnings(c.Request.Context(), principal(c), limit, offset)
	if err != nil {
		respondError(c, "earnings", err)
		return
	}
	c.JSON(http.StatusOK, page)
}
