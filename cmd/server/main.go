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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"gamecatalog/internal/bootstrap"
	"gamecatalog/internal/config"
	cronrunner "gamecatalog/internal/cron"
	"gamecatalog/internal/handler"
	"gamecatalog/internal/logger"
	"gamecatalog/internal/service"

	_ "gamecatalog/docs"
)

func main() {
	cfgPath := os.Getenv("GC_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("GC_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}
	defer app.Close()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.RequireAdminToken(cfg.Server.AdminToken))
	engine.Use(handler.AuditWrites(logger))

	healthHandler := &handler.HealthHandler{FileStore: app.IsFileBackend()}
	if app.DB != nil {
		healthHandler.DB = app.DB.Gorm
	}
	healthHandler.Register(engine)

	catalogHandler := &handler.CatalogHandler{
		Sync:         app.Sync,
		Search:       app.Search,
		QueryService: app.Query,
		Import:       app.Import,
		Logger:       logger,
		RunCtx:       ctx,
	}
	catalogHandler.Register(engine)

	settingsHandler := &handler.SettingsHandler{Repo: app.Store}
	settingsHandler.Register(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add("catalog_sync", cfg.Cron.CatalogSync, func(ctx context.Context) {
			if !app.Settings.IsEnabled(ctx, service.FeatureCatalogSync, true) {
				return
			}
			result, err := app.Sync.Sync(ctx, service.SyncOptions{
				Scope:           cfg.CatalogSync.Scope,
				Limit:           cfg.CatalogSync.Limit,
				CheckpointEvery: cfg.CatalogSync.CheckpointEvery,
			})
			if err != nil {
				logger.Warn("cron catalog sync failed", zap.Error(err))
				return
			}
			logger.Info("cron catalog sync ok",
				zap.String("scope", result.Scope),
				zap.String("status", string(result.Status)),
				zap.Int("processed", result.Processed),
				zap.Int("updated", result.Updated),
				zap.Int("skipped", result.Skipped),
				zap.Int("failed", result.Failed),
				zap.Int("checkpoints", result.Checkpoints),
			)
		})
		if err != nil {
			logger.Warn("cron register catalog sync failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

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

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// stop cancels runCtx, so a manual run flushes and records its state
	// before the store is closed
	stop()
	if err := app.Sync.Wait(shutdownCtx); err != nil {
		logger.Warn("catalog sync still running at shutdown", zap.Error(err))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
