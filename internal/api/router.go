package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/campuslink/internal/admission"
	"github.com/charlesng35/campuslink/internal/app"
	iauth "github.com/charlesng35/campuslink/internal/auth"
	"github.com/charlesng35/campuslink/internal/handlers"
	"github.com/charlesng35/campuslink/internal/middleware"
	"github.com/charlesng35/campuslink/internal/monitoring"
	"github.com/charlesng35/campuslink/internal/realtime"
)

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Config      *app.Config
	JWT         *iauth.JWTService
	Hub         *realtime.Hub
	Coordinator *admission.Coordinator
	Services    *Services
	Health      *monitoring.HealthManager
	RateStore   middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services must be provided")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}

	cfg := deps.Config
	policy := cfg.Admission.Policy()

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	registerHealthRoutes(r, cfg, deps.Health)

	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT, deps.Coordinator, policy)
	r.GET("/ws", realtimeHandler.Stream)

	authHandler := handlers.NewAuthHandler(deps.Services.Auth)
	requests, window := cfg.Auth.LoginRateLimit()
	r.POST("/api/auth/login", middleware.RateLimit(deps.RateStore, requests, window), authHandler.Login)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))
	requireOperator := middleware.RequireRole(policy.OperatorRoles...)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/password", authHandler.ChangePassword)

	admissionHandler := handlers.NewAdmissionHandler(deps.Coordinator)
	admissions := api.Group("/admission", requireOperator)
	{
		admissions.GET("/requests", admissionHandler.List)
		admissions.POST("/requests/:id/decision", admissionHandler.Decide)
	}

	notificationHandler := handlers.NewNotificationHandler(deps.Services.Notifications)
	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/:id", notificationHandler.Delete)
		notifications.POST("", requireOperator, notificationHandler.Create)
	}

	noticeHandler := handlers.NewNoticeHandler(deps.Services.Notices)
	api.POST("/notices", requireOperator, noticeHandler.Publish)

	conversationHandler := handlers.NewConversationHandler(deps.Services.Conversations)
	api.POST("/conversations/:id/messages", conversationHandler.Send)

	r.NoRoute(middleware.NotFoundHandler)
	return r, nil
}

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, manager *monitoring.HealthManager) {
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(manager))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}
}
