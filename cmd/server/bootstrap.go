package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/campuslink/internal/admission"
	"github.com/charlesng35/campuslink/internal/api"
	"github.com/charlesng35/campuslink/internal/app"
	"github.com/charlesng35/campuslink/internal/app/maintenance"
	iauth "github.com/charlesng35/campuslink/internal/auth"
	"github.com/charlesng35/campuslink/internal/database"
	"github.com/charlesng35/campuslink/internal/inbox"
	"github.com/charlesng35/campuslink/internal/middleware"
	"github.com/charlesng35/campuslink/internal/monitoring"
	"github.com/charlesng35/campuslink/internal/monitoring/checks"
	"github.com/charlesng35/campuslink/internal/realtime"
	"github.com/charlesng35/campuslink/pkg/logger"
)

const probeTimeout = 3 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB          *gorm.DB
	Mongo       *mongo.Client
	Inbox       inbox.Store
	Hub         *realtime.Hub
	Coordinator *admission.Coordinator
	Services    *api.Services
	Health      *monitoring.HealthManager
	Cleaner     *maintenance.Cleaner
	Router      *gin.Engine
}

// bootstrapRuntime initialises the database, the inbox store, the realtime hub and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Inbox, stack.Mongo, err = openInbox(ctx, cfg, stack.DB)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub(
		realtime.WithAllowedOrigins(cfg.Realtime.AllowedOrigins...),
		realtime.WithSendBuffer(cfg.Realtime.SendBuffer),
	)

	if cfg.Admission.Enabled {
		stack.Coordinator = admission.NewCoordinator(admission.NewRegistry(cfg.Admission.TTL()), stack.Hub)
	}

	stack.Services, err = api.NewServices(cfg, stack.DB, jwtSvc, stack.Inbox, stack.Hub, stack.Coordinator)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	stack.Health = buildHealthManager(stack)

	stack.Cleaner = buildCleaner(cfg, stack)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	rateStore, err := buildRateStore(cfg, stack.DB)
	if err != nil {
		return nil, err
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:      cfg,
		JWT:         jwtSvc,
		Hub:         stack.Hub,
		Coordinator: stack.Coordinator,
		Services:    stack.Services,
		Health:      stack.Health,
		RateStore:   rateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(ctx); err != nil {
			log.Warn("mongodb disconnect", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func buildHealthManager(stack *runtimeStack) *monitoring.HealthManager {
	var pending checks.PendingObserver
	if stack.Coordinator != nil {
		pending = stack.Coordinator.Registry()
	}
	// A nil *realtime.Hub must reach the check as a nil interface.
	var (
		observer  checks.RealtimeObserver
		operators func() int
	)
	if hub := stack.Hub; hub != nil {
		observer = hub
		operators = func() int { return hub.RoomSize(realtime.BroadcastRoom) }
	}

	manager := monitoring.NewHealthManager(
		checks.Database(stack.DB, probeTimeout),
		checks.Realtime(observer, pending, operators),
	)
	if stack.Mongo != nil {
		manager.Register(checks.MongoDB(stack.Mongo, probeTimeout))
	}
	return manager
}

func buildCleaner(cfg *app.Config, stack *runtimeStack) *maintenance.Cleaner {
	var (
		sweeper maintenance.AdmissionSweeper
		purger  maintenance.InboxPurger
	)
	if stack.Coordinator != nil {
		sweeper = stack.Coordinator
	}
	if cfg.Maintenance.Enabled && stack.Services != nil {
		purger = stack.Services.Notifications
	}

	return maintenance.NewCleaner(sweeper, purger,
		maintenance.WithRetention(cfg.Inbox.Retention()),
		maintenance.WithSweepSchedule(cfg.Admission.SweepSchedule),
		maintenance.WithRetentionSchedule(cfg.Maintenance.RetentionSweep),
	)
}

func buildRateStore(cfg *app.Config, db *gorm.DB) (middleware.RateStore, error) {
	switch store := cfg.Auth.LoginRateStore(); store {
	case app.RateStoreMemory:
		return middleware.NewMemoryRateStore(), nil
	case app.RateStoreDatabase:
		return middleware.NewDatabaseRateStore(db)
	default:
		return nil, fmt.Errorf("unsupported login rate limit store %q", store)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	seed := database.SeedOptions{
		AdminUsername: cfg.Bootstrap.AdminUsername,
		AdminEmail:    cfg.Bootstrap.AdminEmail,
		AdminPassword: cfg.Bootstrap.AdminPassword,
	}
	if err := database.AutoMigrateAndSeed(db, seed); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func openInbox(ctx context.Context, cfg *app.Config, db *gorm.DB) (inbox.Store, *mongo.Client, error) {
	log := logger.WithModule("inbox")

	switch backend := cfg.Inbox.BackendName(); backend {
	case app.InboxBackendSQL:
		store, err := inbox.NewDatabaseStore(db)
		if err != nil {
			return nil, nil, fmt.Errorf("initialise inbox store: %w", err)
		}
		log.Info("inbox backend ready", zap.String("backend", backend))
		return store, nil, nil
	case app.InboxBackendMongoDB:
		settings := cfg.Inbox.MongoSettings()
		client, err := inbox.ConnectMongo(ctx, settings)
		if err != nil {
			return nil, nil, err
		}
		store, err := inbox.NewMongoStore(client.Database(settings.Database), settings.Collection)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("initialise inbox store: %w", err)
		}
		indexCtx, cancel := context.WithTimeout(ctx, probeTimeout*3)
		defer cancel()
		if err := store.EnsureIndexes(indexCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		log.Info("inbox backend ready",
			zap.String("backend", backend),
			zap.String("database", settings.Database),
			zap.String("collection", settings.Collection),
		)
		return store, client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported inbox backend %q", backend)
	}
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
