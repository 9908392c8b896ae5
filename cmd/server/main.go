package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/memento/internal/config"
	"github.com/quocanhngo/memento/internal/handler"
	"github.com/quocanhngo/memento/internal/metrics"
	"github.com/quocanhngo/memento/internal/middleware"
	"github.com/quocanhngo/memento/internal/model"
	"github.com/quocanhngo/memento/internal/notify"
	"github.com/quocanhngo/memento/internal/repository"
	"github.com/quocanhngo/memento/internal/scheduler"
	"github.com/quocanhngo/memento/internal/service"
	"github.com/quocanhngo/memento/pkg/auth"
	"github.com/quocanhngo/memento/pkg/logger"
	"github.com/quocanhngo/memento/pkg/notification"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Memento Mori Push API
// @version         1.0
// @description     Daily "life in weeks" push reminders delivered at 09:00 in each subscriber's timezone.

// @contact.name   API Support
// @contact.email  admin@memento.local

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:3001
// @BasePath  /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	appLog := logger.New(cfg.App.Env, cfg.App.LogLevel)
	log.Printf("🚀 Starting Memento push service [env=%s, store=%s]", cfg.App.Env, cfg.Store.Driver)

	ctx := context.Background()

	fallback, ok := model.LoadLocation(cfg.Schedule.DefaultTimezone)
	if !ok {
		log.Fatalf("❌ Unknown DEFAULT_TIMEZONE %q", cfg.Schedule.DefaultTimezone)
	}
	sendAt, _ := config.ParseSendAt(cfg.Schedule.SendAt)

	// ==================== Redis (optional) ====================
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
	}

	// ==================== Storage ====================
	store, err := repository.OpenStore(ctx, cfg, appLog)
	if err != nil {
		log.Fatalf("❌ Subscription store unavailable: %v", err)
	}

	deliveries, err := repository.OpenDeliveryLog(cfg, rdb)
	if err != nil {
		log.Fatalf("❌ Delivery log unavailable: %v", err)
	}

	// ==================== Push Transports ====================
	var transports []notification.Transport
	if fcm := notification.NewFCMTransport(ctx, notification.FCMConfig{
		CredentialsFile: cfg.Push.FirebaseCredentials,
		Timeout:         cfg.Push.Timeout,
	}, appLog); fcm != nil {
		transports = append(transports, fcm)
	}
	webPush := notification.NewWebPushTransport(notification.WebPushConfig{
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
		Subject:    cfg.Push.Subject,
		TTL:        cfg.Push.TTL,
		Timeout:    cfg.Push.Timeout,
	})
	if webPush != nil {
		transports = append(transports, webPush)
		log.Println("✅ Web Push (VAPID) configured")
	} else {
		log.Println("⚠️  VAPID keys not set, Web Push delivery disabled (run: seeder -vapid)")
	}
	dispatcher := notification.NewDispatcher(appLog, transports...)
	if !dispatcher.Enabled() {
		log.Println("⚠️  No push transport configured, reminders will be logged as failed")
	}
	composer := notify.NewComposer()

	// ==================== Scheduler ====================
	var tickLock scheduler.TickLock = scheduler.NoLock{}
	if rdb != nil {
		tickLock = scheduler.NewRedisTickLock(rdb)
	}

	sched := scheduler.New(store, composer, dispatcher, deliveries, tickLock, scheduler.Config{
		SendAt:      sendAt,
		Fallback:    fallback,
		CronSpec:    cfg.Schedule.CronSpec,
		Concurrency: cfg.Schedule.Concurrency,
	}, appLog)
	if err := sched.Start(); err != nil {
		log.Fatalf("❌ Failed to start scheduler: %v", err)
	}

	// ==================== Initialize Layers ====================
	pushService := service.NewPushService(store, composer, dispatcher, deliveries, service.PushServiceConfig{
		PublicKey:        cfg.Push.VAPIDPublicKey,
		FallbackTimezone: fallback.String(),
		Concurrency:      cfg.Schedule.Concurrency,
	}, appLog)
	pushHandler := handler.NewPushHandler(pushService)

	var jwtManager *auth.JWTManager
	if cfg.JWT.Secret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	} else {
		log.Println("⚠️  JWT_SECRET not set, manual send routes are unauthenticated")
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	// Global middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))
	router.Use(middleware.Metrics())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "memento-push",
			"time":    time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ==================== API Routes ====================
	pushHandler.Register(router.Group("/api/push"),
		limiter.Handler(),
		middleware.OperatorAuth(jwtManager, rdb, auth.ScopeManualSend),
	)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 Memento API running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)
	log.Printf("⏰ Reminders at %s local time (fallback zone %s)", sendAt, fallback)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}
	sched.Stop(shutdownCtx)

	if rdb != nil {
		_ = rdb.Close()
	}
	log.Println("✅ Server exited gracefully")
}
