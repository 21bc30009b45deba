package handler

import (
	"net/http"

	"haven/internal/service"

	"github.com/gin-gonic/gin"
)

type MatchHandler struct {
	matcher *service.MatchService
}

func NewMatchHandler(matcher *service.MatchService) *MatchHandler {
	return &MatchHandler{matcher: matcher}
}

type MatchRequest struct {
	SeekerCountryCode           string   `json:"seeker_country_code" binding:"omitempty,len=2"`
	PreferredVolunteerCountries []string `json:"preferred_volunteer_countries"`
	LanguagePreferences         []string `json:"language_preferences"`
	VolunteerRadiusKm           int      `json:"volunteer_radius_km" binding:"min=0"`
	SessionType                 string   `json:"session_type" binding:"omitempty,oneof=one_on_one group"`
	Topic                       string   `json:"topic" binding:"max=255"`
}

// Match finds a volunteer and opens the session, or answers with retry
// guidance. "No volunteer" is a 200 with matched_volunteer null.
func (h *MatchHandler) Match(c *gin.Context) {
	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.matcher.Match(c.Request.Context(), principal(c), service.MatchRequest{
		SeekerCountry:      req.SeekerCountryCode,
		PreferredCountries: req.PreferredVolunteerCountries,
		Languages:          req.LanguagePreferences,
		RadiusKm:           req.VolunteerRadiusKm,
		SessionType:        req.SessionType,
		Topic:              req.Topic,
	})
	if err != nil {
		respondError(c, "match", err)
		return
	}
	if !res.Matched {
		c.JSON(http.StatusOK, gin.H{
			"matched_volunteer": nil,
			"message":           res.Message,
			"retry_suggestions": res.RetrySuggestions,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":        res.Session.ID,
		"matched_volunteer": res.Volunteer,
		"alternates":        res.Alternates,
		"session_details":   res.Session,
	})
}
