package handler

import (
	"errors"
	"net/http"
	"strings"

	"haven/internal/domain"
	"haven/internal/models"
	"haven/internal/repository"
	"haven/internal/reward"
	"haven/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	authSvc  *service.AuthService
	rewards  *service.RewardService
	regions  *repository.RegionRepository
	earnings *repository.EarningsRepository
}

func NewAdminHandler(
	authSvc *service.AuthService,
	rewards *service.RewardService,
	regions *repository.RegionRepository,
	earnings *repository.EarningsRepository,
) *AdminHandler {
	return &AdminHandler{
		authSvc:  authSvc,
		rewards:  rewards,
		regions:  regions,
		earnings: earnings,
	}
}

// AdminLogin handles POST /admin/login. Non-admin credentials are refused.
func (h *AdminHandler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, tokens, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, "admin login", err)
		return
	}
	if u.Role != domain.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "tokens": tokens})
}

// GetRewardSettings handles GET /admin/reward-settings.
func (h *AdminHandler) GetRewardSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"settings": h.rewards.Settings(c.Request.Context())})
}

// UpdateRewardSettings handles PUT /admin/reward-settings.
func (h *AdminHandler) UpdateRewardSettings(c *gin.Context) {
	var req reward.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.rewards.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		respondError(c, "update reward settings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": m})
}

// RewardSettingsHistory handles GET /admin/reward-settings/history.
func (h *AdminHandler) RewardSettingsHistory(c *gin.Context) {
	limit, _ := paging(c)
	list, err := h.rewards.SettingsHistory(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "reward settings history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": list})
}

func (h *AdminHandler) ListCurrencies(c *gin.Context) {
	list, err := h.regions.ListCurrencies(c.Request.Context())
	if err != nil {
		respondError(c, "list currencies", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currencies": list})
}

type CurrencyRequest struct {
	Currency     string  `json:"currency" binding:"required,len=3"`
	ExchangeRate float64 `json:"exchange_rate" binding:"required,gt=0"`
}

// UpsertCurrency handles PUT /admin/region-currencies/:code.
func (h *AdminHandler) UpsertCurrency(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	if len(code) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid country code"})
		return
	}
	var req CurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rc := &models.RegionCurrency{
		CountryCode:  code,
		Currency:     strings.ToUpper(req.Currency),
		ExchangeRate: req.ExchangeRate,
	}
	if err := h.regions.UpsertCurrency(c.Request.Context(), rc); err != nil {
		respondError(c, "upsert currency", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": rc})
}

// MarkEarningsPaid handles POST /admin/earnings/:id/paid.
func (h *AdminHandler) MarkEarningsPaid(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.earnings.MarkPaid(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "earnings not found"})
			return
		}
		respondError(c, "mark earnings paid", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": domain.PaymentStatusPaid})
}
