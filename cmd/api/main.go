package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-tour-reservation/internal/api"
	"github.com/sanosuguru/go-tour-reservation/internal/api/handler"
	custommw "github.com/sanosuguru/go-tour-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-tour-reservation/internal/application"
	"github.com/sanosuguru/go-tour-reservation/internal/config"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/capacity"
	"github.com/sanosuguru/go-tour-reservation/internal/infrastructure/messaging"
	"github.com/sanosuguru/go-tour-reservation/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-tour-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-tour-reservation/internal/pkg/clock"
	"github.com/sanosuguru/go-tour-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-tour-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-tour-reservation/internal/worker"
)

func main() {
	cfg := config.Load()

	logger.Set(logger.NewLogger(os.Getenv("APP_ENV")))
	defer logger.Sync()

	m := metrics.Init()

	// データベース接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続エラー", zap.Error(err))
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		logger.Fatal("マイグレーション実行エラー", zap.Error(err))
	}

	// Redis接続（失敗してもロック・キャッシュなしで起動する）
	var (
		lockManager *redisinfra.LockManager
		availCache  *redisinfra.AvailabilityCache
	)
	redisClient := redisinfra.NewClient(&cfg.Redis)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisinfra.Ping(pingCtx, redisClient); err != nil {
		logger.Warn("Redis接続に失敗したためロックとキャッシュを無効化します", zap.Error(err))
	} else {
		lockManager = redisinfra.NewLockManager(redisClient)
		availCache = redisinfra.NewAvailabilityCache(redisClient)
	}
	pingCancel()

	// NATS接続
	publisher, err := messaging.NewPublisher(&messaging.Config{URL: cfg.NATS.URL})
	if err != nil {
		logger.Fatal("NATS接続エラー", zap.Error(err))
	}
	defer publisher.Close()

	// リポジトリ
	capacityRepo := postgres.NewCapacityRepository(db)
	tourRepo := postgres.NewTourRepository(db, capacityRepo)
	reservationRepo := postgres.NewReservationRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	txManager := postgres.NewTxManager(db)

	clk := clock.Real{}

	// アプリケーションサービス
	reservationService := application.NewReservationService(
		txManager, reservationRepo, capacityRepo, tourRepo, outboxRepo,
		lockManager, availCache, clk, cfg.Reservation.HoldTTL,
	)
	tourService := application.NewTourService(
		txManager, tourRepo, capacityRepo, reservationRepo, availCache, clk,
		capacity.Thresholds{
			Spare: cfg.Reservation.SpareThreshold,
			Tight: cfg.Reservation.TightThreshold,
		},
	)

	// バックグラウンドワーカー
	sweeper := worker.NewExpiredReservationSweeper(
		reservationService, cfg.Worker.SweepInterval, cfg.Worker.SweepBatchSize,
	)
	dispatcher := worker.NewOutboxDispatcher(
		outboxRepo, publisher, cfg.Worker.DispatchInterval, cfg.Worker.DispatchBatch,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	go sweeper.Start(workerCtx)
	go dispatcher.Start(workerCtx)

	// Echoサーバー
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Validator = api.NewValidator()

	custommw.SetupMiddleware(e)
	e.Use(custommw.PrometheusMiddleware(m))

	registerRoutes(e, tourService, reservationService, cfg)

	// サーバー起動
	go func() {
		addr := ":" + cfg.Server.Port
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("シャットダウンしています...")

	workerCancel()
	sweeper.Stop()
	dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("正常にシャットダウンしました")
}

func registerRoutes(e *echo.Echo, tourService *application.TourService, reservationService *application.ReservationService, cfg *config.Config) {
	healthHandler := handler.NewHealthHandler()
	tourHandler := handler.NewTourHandler(tourService)
	reservationHandler := handler.NewReservationHandler(reservationService)

	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()),
		custommw.MetricsBasicAuth(cfg.Metrics.Username, cfg.Metrics.Password))

	v1 := e.Group("/api/v1")

	tours := v1.Group("/tours")
	tours.POST("", tourHandler.Create)
	tours.GET("", tourHandler.List)
	tours.GET("/:id", tourHandler.GetByID)
	tours.POST("/:id/status", tourHandler.ChangeStatus)
	tours.POST("/:id/registration/open", tourHandler.OpenRegistration)
	tours.POST("/:id/registration/close", tourHandler.CloseRegistration)
	tours.POST("/:id/pools", tourHandler.AddCapacityPool)
	tours.GET("/:id/pools", tourHandler.GetOpenPools)
	tours.PUT("/:id/pools/:pool_id", tourHandler.UpdateCapacityPool)
	tours.DELETE("/:id/pools/:pool_id", tourHandler.DeactivateCapacityPool)
	tours.POST("/:id/pricing", tourHandler.AddPricing)
	tours.POST("/:id/restricted-tours", tourHandler.AddRestrictedTour)
	tours.GET("/:id/available-spots", tourHandler.GetAvailableSpots)

	reservations := v1.Group("/reservations")
	reservations.POST("", reservationHandler.Create)
	reservations.GET("", reservationHandler.GetMemberReservations)
	reservations.GET("/:id", reservationHandler.GetByID)
	reservations.GET("/tracking/:code", reservationHandler.GetByTrackingCode)
	reservations.POST("/:id/hold", reservationHandler.Hold)
	reservations.POST("/:id/pay", reservationHandler.Pay)
	reservations.POST("/:id/confirm", reservationHandler.Confirm)
	reservations.POST("/:id/payment-failed", reservationHandler.PaymentFailed)
	reservations.POST("/:id/retry-payment", reservationHandler.RetryPayment)
	reservations.POST("/:id/cancel", reservationHandler.Cancel)
	reservations.POST("/:id/renew", reservationHandler.Renew)
	reservations.POST("/:id/waitlist", reservationHandler.Waitlist)
	reservations.POST("/:id/promote", reservationHandler.Promote)
	reservations.POST("/:id/refund", reservationHandler.BeginRefund)
	reservations.POST("/:id/refund/complete", reservationHandler.CompleteRefund)
	reservations.POST("/:id/refund/deny", reservationHandler.DenyRefund)
	reservations.POST("/:id/cancel-request", reservationHandler.RequestCancellation)
	reservations.POST("/:id/cancel-request/decline", reservationHandler.DeclineCancellation)
	reservations.POST("/:id/amend-request", reservationHandler.RequestAmendment)
	reservations.POST("/:id/amend-request/resolve", reservationHandler.ResolveAmendment)
	reservations.POST("/:id/no-show", reservationHandler.MarkNoShow)
	reservations.POST("/:id/reject", reservationHandler.Reject)
}
