package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletmirror/internal/client/solanatracker"
	"walletmirror/internal/config"
	cronrunner "walletmirror/internal/cron"
	"walletmirror/internal/db"
	"walletmirror/internal/handler"
	"walletmirror/internal/ledger"
	"walletmirror/internal/logger"
	"walletmirror/internal/models"
	"walletmirror/internal/oracle"
	gormrepository "walletmirror/internal/repository/gorm"
	"walletmirror/internal/service"
)

func main() {
	cfgPath := os.Getenv("MIRROR_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("MIRROR_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	trackerHTTP := &http.Client{Timeout: cfg.Tracker.Timeout}
	tracker := solanatracker.NewClient(trackerHTTP, cfg.Tracker.BaseURL, cfg.Tracker.APIKey, cfg.Tracker.MaxPages)
	priceOracle := oracle.New(tracker, cfg.Oracle, logger)

	quotePrice := func(ctx context.Context) (decimal.Decimal, error) {
		return priceOracle.Price(ctx, models.QuoteTokenAddress)
	}
	wallet := ledger.NewWallet(cfg.Sim, quotePrice, logger)

	store := gormrepository.New(dbConn.Gorm)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mirror := &service.MirrorService{
		Source:            tracker,
		Log:               store,
		Wallet:            wallet,
		Logger:            logger,
		TargetWallet:      cfg.Tracker.TargetWallet,
		TickTimeout:       cfg.Ingest.TickTimeout,
		ColdStartLookback: cfg.Ingest.ColdStartLookback,
	}
	if err := mirror.Bootstrap(ctx); err != nil {
		logger.Fatal("watermark bootstrap failed", zap.Error(err))
	}

	status := &service.StatusService{
		Log:      store,
		Oracle:   priceOracle,
		Wallet:   wallet,
		Logger:   logger,
		Lookback: cfg.Ingest.StatusLookback,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	statusHandler := &handler.StatusHandler{Status: status, Logger: logger}
	statusHandler.Register(engine)

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.Ingest, func(ctx context.Context) {
			if err := mirror.Tick(ctx); err != nil {
				logger.Warn("ingestion tick failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("cron register ingest failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()

		// First pass before the schedule kicks in.
		go func() {
			if err := mirror.Tick(ctx); err != nil {
				logger.Warn("initial ingestion tick failed", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
