package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/rewear-api/api/swagger"
	"github.com/noah-isme/rewear-api/internal/handler"
	internalmiddleware "github.com/noah-isme/rewear-api/internal/middleware"
	"github.com/noah-isme/rewear-api/internal/models"
	"github.com/noah-isme/rewear-api/internal/notify"
	"github.com/noah-isme/rewear-api/internal/repository"
	"github.com/noah-isme/rewear-api/internal/service"
	"github.com/noah-isme/rewear-api/pkg/cache"
	"github.com/noah-isme/rewear-api/pkg/config"
	"github.com/noah-isme/rewear-api/pkg/database"
	"github.com/noah-isme/rewear-api/pkg/jobs"
	"github.com/noah-isme/rewear-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/rewear-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/rewear-api/pkg/middleware/requestid"
	"github.com/noah-isme/rewear-api/pkg/signing"
	"github.com/noah-isme/rewear-api/pkg/storage"
)

// @title ReWear API
// @version 1.0.0
// @description Community clothing exchange: listings, swap requests and a points ledger.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Catalog.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	idempotencyRepo, err := repository.NewIdempotencyRepository(cfg.Idempotency.DBPath, cfg.Idempotency.TTL)
	if err != nil {
		logr.Fatal("failed to open idempotency store", zap.Error(err))
	}
	defer idempotencyRepo.Close()

	imageStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir, cfg.Uploads.PublicPath)
	if err != nil {
		logr.Fatal("failed to prepare upload storage", zap.Error(err))
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	itemRepo := repository.NewItemRepository(db)
	swapRepo := repository.NewSwapRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	var (
		cacheRepo *repository.CacheRepository
		cacheSvc  *service.CacheService
	)
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close()
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, true)
	}

	var hub *notify.Hub
	if cfg.Notifications.Enabled {
		hub = notify.NewHub(originChecker(cfg.CORS.AllowedOrigins), logr)
		defer hub.Close()
	}
	tickets := signing.NewTicketSigner(ticketSecret(cfg), cfg.Notifications.TicketTTL)
	notificationSvc := service.NewNotificationService(nil, deliverer(hub), tickets, metricsSvc, logr)

	var queue *jobs.Queue
	if hub != nil {
		queue = jobs.NewQueue("notifications", notificationSvc.Deliver, jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			BufferSize: 256,
			MaxRetries: 1,
			RetryDelay: 200 * time.Millisecond,
			Logger:     logr,
		})
		notificationSvc.SetQueue(queue)
		queue.Start(ctx)
		defer queue.Stop()
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		WelcomeBonus:      cfg.Ledger.WelcomeBonus,
	})
	itemSvc := service.NewItemService(itemRepo, userRepo, ledgerRepo, validate, logr, service.ItemServiceConfig{
		Policy: service.ListingPolicy{
			MinPoints:        cfg.Ledger.MinPoints,
			MaxPoints:        cfg.Ledger.MaxPoints,
			MaxImages:        cfg.Ledger.MaxImages,
			PlaceholderImage: cfg.Ledger.PlaceholderImage,
		},
		CatalogTTL:   cfg.Catalog.CacheTTL,
		FeaturedSize: cfg.Catalog.FeaturedSize,
		Cache:        cacheSvc,
		Metrics:      metricsSvc,
		Events:       notificationSvc,
		Audit:        userRepo,
	})
	swapSvc := service.NewSwapService(swapRepo, ledgerRepo, cacheSvc, metricsSvc, notificationSvc, userRepo, validate, logr)
	moderationSvc := service.NewModerationService(itemRepo, ledgerRepo, cacheSvc, notificationSvc, userRepo, logr)
	dashboardSvc := service.NewDashboardService(itemRepo, swapRepo, userRepo, metricsSvc, logr)
	statementSvc := service.NewStatementService(ledgerRepo, userRepo, logr)
	mediaSvc := service.NewMediaService(imageStore, cfg.Uploads.MaxFileSizeBytes, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	itemHandler := handler.NewItemHandler(itemSvc)
	swapHandler := handler.NewSwapHandler(swapSvc)
	adminHandler := handler.NewAdminHandler(moderationSvc, dashboardSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc, statementSvc)
	mediaHandler := handler.NewMediaHandler(mediaSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc, socketServer(hub), logr)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, cacheRepo))

	r := gin.New()
	r.MaxMultipartMemory = cfg.Uploads.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.Static(cfg.Uploads.PublicPath, cfg.Uploads.StorageDir)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireAuth := internalmiddleware.JWT(authSvc)
	idempotent := internalmiddleware.Idempotency(idempotencyRepo, logr)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", requireAuth, authHandler.Me)

	items := api.Group("/items")
	items.GET("", itemHandler.Catalog)
	items.GET("/featured", itemHandler.Featured)
	items.GET("/:id", internalmiddleware.OptionalJWT(authSvc), itemHandler.Get)
	items.POST("", requireAuth, idempotent, itemHandler.Create)
	items.POST("/:id/withdraw", requireAuth, itemHandler.Withdraw)
	items.POST("/:id/swap-requests", requireAuth, idempotent, swapHandler.Request)

	swaps := api.Group("/swap-requests", requireAuth)
	swaps.GET("", swapHandler.List)
	swaps.GET("/:id", swapHandler.Get)
	swaps.POST("/:id/accept", swapHandler.Accept)
	swaps.POST("/:id/reject", swapHandler.Reject)
	swaps.POST("/:id/complete", swapHandler.Complete)

	me := api.Group("/me", requireAuth)
	me.GET("/items", itemHandler.Mine)
	me.GET("/dashboard", dashboardHandler.Me)
	me.GET("/points/statement",
		internalmiddleware.Audit(userRepo, logr, models.AuditActionStatementExport, "point_transactions"),
		dashboardHandler.Statement)

	api.POST("/uploads/images", requireAuth, mediaHandler.UploadImage)

	api.POST("/notifications/ticket", requireAuth, notificationHandler.Ticket)
	api.GET("/notifications/ws", notificationHandler.Stream)

	admin := api.Group("/admin", requireAuth, internalmiddleware.RequireAdmin())
	admin.GET("/items/pending", adminHandler.Pending)
	admin.POST("/items/:id/approve", adminHandler.Approve)
	admin.POST("/items/:id/reject", adminHandler.Reject)
	admin.POST("/items/:id/feature", adminHandler.Feature)
	admin.GET("/stats", adminHandler.Stats)
	admin.GET("/metrics", metricsHandler.Snapshot)

	go purgeIdempotency(ctx, idempotencyRepo, time.Hour, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func purgeIdempotency(ctx context.Context, repo *repository.IdempotencyRepository, every time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := repo.Purge()
			if err != nil {
				logr.Warn("idempotency purge failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logr.Debug("idempotency keys purged", zap.Int("removed", removed))
			}
		}
	}
}

func readinessChecks(db *sqlx.DB, cacheRepo *repository.CacheRepository) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if cacheRepo != nil {
		checks["redis"] = cacheRepo.Ping
	}
	return checks
}

// originChecker mirrors the CORS allow-list for websocket handshakes.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

func ticketSecret(cfg *config.Config) string {
	if cfg.Notifications.TicketSecret != "" {
		return cfg.Notifications.TicketSecret
	}
	return cfg.JWT.Secret
}

// deliverer and socketServer keep a nil *notify.Hub from becoming a non-nil interface.
func deliverer(hub *notify.Hub) interface {
	SendToUsers(userIDs []string, payload []byte) int
} {
	if hub == nil {
		return nil
	}
	return hub
}

func socketServer(hub *notify.Hub) interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
} {
	if hub == nil {
		return nil
	}
	return hub
}
