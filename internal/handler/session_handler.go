package handler

import (
	"net/http"
	"strconv"

	"haven/internal/service"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessions *service.SessionService
	matcher  *service.MatchService
}

func NewSessionHandler(sessions *service.SessionService, matcher *service.MatchService) *SessionHandler {
	return &SessionHandler{sessions: sessions, matcher: matcher}
}

// CreateSessionRequest starts an instant chat. Location fields are optional and
// default to the seeker's profile.
type CreateSessionRequest struct {
	Language                    string   `json:"language" binding:"max=10"`
	SessionType                 string   `json:"session_type" binding:"omitempty,oneof=one_on_one group"`
	Topic                       string   `json:"topic" binding:"max=255"`
	MaxParticipants             int      `json:"max_participants" binding:"omitempty,min=2,max=20"`
	SeekerCountryCode           string   `json:"seeker_country_code" binding:"omitempty,len=2"`
	PreferredVolunteerCountries []string `json:"preferred_volunteer_countries"`
	VolunteerRadiusKm           int      `json:"volunteer_radius_km" binding:"min=0"`
}

type AssignRequest struct {
	VolunteerID uint `json:"volunteer_id"`
}

type RewardActionRequest struct {
	Action string `json:"action" binding:"required,oneof=continue finalize"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mr := service.MatchRequest{
		SeekerCountry:      req.SeekerCountryCode,
		PreferredCountries: req.PreferredVolunteerCountries,
		RadiusKm:           req.VolunteerRadiusKm,
		SessionType:        req.SessionType,
		Topic:              req.Topic,
		MaxParticipants:    req.MaxParticipants,
	}
	if req.Language != "" {
		mr.Languages = []string{req.Language}
	}
	res, err := h.matcher.StartSession(c.Request.Context(), principal(c), mr)
	if err != nil {
		respondError(c, "create session", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session":           res.Session,
		"matched_volunteer": res.Volunteer,
		"alternates":        res.Alternates,
		"message":           res.Message,
	})
}

func (h *SessionHandler) List(c *gin.Context) {
	limit, offset := paging(c)
	userID, _ := strconv.ParseUint(c.Query("user_id"), 10, 64)
	list, total, err := h.sessions.List(c.Request.Context(), principal(c), service.ListFilter{
		Status:      c.Query("status"),
		SessionType: c.Query("session_type"),
		UserID:      uint(userID),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		respondError(c, "list sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list, "total": total})
}

func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sess, err := h.sessions.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		respondError(c, "get session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *SessionHandler) End(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.sessions.End(c.Request.Context(), principal(c), id)
	if err != nil {
		respondError(c, "end session", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) Assign(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	sess, err := h.sessions.AssignVolunteer(c.Request.Context(), principal(c), id, req.VolunteerID)
	if err != nil {
		respondError(c, "assign volunteer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *SessionHandler) Rewards(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	snap, err := h.sessions.Rewards(c.Request.Context(), principal(c), id)
	if err != nil {
		respondError(c, "rewards", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *SessionHandler) RewardAction(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req RewardActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, fin, err := h.sessions.RewardAction(c.Request.Context(), principal(c), id, req.Action)
	if err != nil {
		respondError(c, "reward action", err)
		return
	}
	body := gin.H{"action": req.Action, "rewards": snap}
	if fin != nil {
		body["earnings"] = fin.Earnings
	}
	c.JSON(http.StatusOK, body)
}
