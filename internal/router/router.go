package router

import (
	"log"
	"net/http"
	"time"

	"haven/config"
	"haven/internal/events"
	"haven/internal/handler"
	"haven/internal/middleware"
	"haven/internal/repository"
	"haven/internal/reward"
	"haven/internal/service"
	"haven/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Setup wires repositories, services and routes. The returned func stops the
// rate limiters and drains the event bus; call it after the HTTP server has
// shut down.
func Setup(cfg *config.Config, db *gorm.DB) (*gin.Engine, func()) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	globalLimiter := middleware.NewInMemoryRateLimiter(cfg.RateLimit.GlobalPerMinute, time.Minute)
	mutationLimiter := middleware.NewInMemoryRateLimiter(cfg.RateLimit.MutationPerMinute, time.Minute)
	r.Use(middleware.RateLimit(globalLimiter))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	candidateRepo := repository.NewCandidateRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	settingsRepo := repository.NewRewardSettingsRepository(db)
	earningsRepo := repository.NewEarningsRepository(db)
	regionRepo := repository.NewRegionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	hub := ws.NewHub()
	bus := events.NewBus(cfg.Events.Buffer, cfg.Events.Workers)

	// Services
	authSvc := service.NewAuthService(cfg, userRepo)
	fcmSvc := service.NewFCMService(cfg.Firebase.ServiceAccountPath)
	if fcmSvc != nil {
		log.Printf("[FCM] Push notifications enabled")
	} else if cfg.Firebase.ServiceAccountPath != "" {
		log.Printf("[FCM] Push notifications disabled: failed to init (check service account file)")
	} else {
		log.Printf("[FCM] Push notifications disabled: set HAVEN_FIREBASE_SERVICE_ACCOUNT_PATH to enable")
	}
	var pusher service.Pusher
	if fcmSvc != nil {
		pusher = fcmSvc
	}
	notifSvc := service.NewNotificationService(notificationRepo, userRepo, pusher)
	fallback := reward.Settings{
		PointsPerMinute:            cfg.Rewards.PointsPerMinute,
		PointsToDollarRate:         cfg.Rewards.PointsToDollarRate,
		MaxFreeMinutes:             cfg.Rewards.MaxFreeMinutes,
		ContinuationRateMultiplier: cfg.Rewards.ContinuationRateMultiplier,
	}
	rewardSvc := service.NewRewardService(service.NewStoredSettings(settingsRepo, fallback), sessionRepo, earningsRepo, settingsRepo, userRepo)
	sessionSvc := service.NewSessionService(userRepo, sessionRepo, rewardSvc, bus, cfg.Rewards.ContinueGrace)
	currencySvc := service.NewCurrencyService(regionRepo, cfg.Matching.DefaultCurrency)
	matchSvc := service.NewMatchService(userRepo, candidateRepo, sessionSvc, currencySvc, cfg.Matching)
	availabilitySvc := service.NewAvailabilityService(userRepo, availabilityRepo)

	bus.Subscribe(notifSvc.HandleEvent)
	bus.Subscribe(ws.NewSessionFeed(hub).HandleEvent)
	bus.Start()

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, matchSvc)
	matchHandler := handler.NewMatchHandler(matchSvc)
	volunteerHandler := handler.NewVolunteerHandler(availabilitySvc, rewardSvc)
	notificationHandler := handler.NewNotificationHandler(notifSvc)
	adminHandler := handler.NewAdminHandler(authSvc, rewardSvc, regionRepo, earningsRepo)

	authMw := middleware.AuthRequired(&cfg.JWT)
	mutationMw := middleware.UserRateLimit(mutationLimiter)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(mutationMw)
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
		}

		me := api.Group("/me")
		me.Use(authMw, mutationMw)
		{
			me.GET("", authHandler.Me)
			me.POST("/fcm-token", authHandler.SetFCMToken)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		}

		sessions := api.Group("/sessions")
		sessions.Use(authMw, mutationMw)
		{
			sessions.POST("", middleware.RequireRole("SEEKER"), sessionHandler.Create)
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.POST("/:id/end", sessionHandler.End)
			sessions.POST("/:id/assign", middleware.RequireRole("VOLUNTEER", "ADMIN"), sessionHandler.Assign)
			sessions.GET("/:id/rewards", sessionHandler.Rewards)
			sessions.POST("/:id/rewards", sessionHandler.RewardAction)
		}

		volunteers := api.Group("/volunteers")
		volunteers.Use(authMw, mutationMw)
		{
			volunteers.POST("/match", middleware.RequireRole("SEEKER"), matchHandler.Match)
			volunteers.GET("/availability", middleware.RequireRole("VOLUNTEER"), volunteerHandler.GetAvailability)
			volunteers.POST("/availability", middleware.RequireRole("VOLUNTEER"), volunteerHandler.UpdateAvailability)
			volunteers.POST("/heartbeat", middleware.RequireRole("VOLUNTEER"), volunteerHandler.Heartbeat)
			volunteers.GET("/earnings", middleware.RequireRole("VOLUNTEER"), volunteerHandler.Earnings)
		}

		api.POST("/admin/login", mutationMw, adminHandler.AdminLogin)
		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired(userRepo))
		{
			admin.GET("/reward-settings", adminHandler.GetRewardSettings)
			admin.PUT("/reward-settings", adminHandler.UpdateRewardSettings)
			admin.GET("/reward-settings/history", adminHandler.RewardSettingsHistory)
			admin.GET("/region-currencies", adminHandler.ListCurrencies)
			admin.PUT("/region-currencies/:code", adminHandler.UpsertCurrency)
			admin.POST("/earnings/:id/paid", adminHandler.MarkEarningsPaid)
		}
	}

	r.GET("/ws/sessions", ws.UpgradeSessionFeed(&cfg.JWT, hub))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	return r, func() {
		globalLimiter.Stop()
		mutationLimiter.Stop()
		bus.Close()
	}
}
