// Package bootstrap assembles the store, provider clients and services that
// both the HTTP server and the catalogctl CLI run on.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/config"
	"gamecatalog/internal/db"
	"gamecatalog/internal/ratelimit"
	"gamecatalog/internal/reconcile"
	"gamecatalog/internal/repository"
	filerepository "gamecatalog/internal/repository/file"
	gormrepository "gamecatalog/internal/repository/gorm"
	"gamecatalog/internal/service"
)

const (
	BackendDB   = "db"
	BackendFile = "file"
)

type App struct {
	Config config.Config
	Logger *zap.Logger

	// DB is nil when the file backend is selected.
	DB    *db.DB
	Store repository.CatalogRepository
	Redis *redis.Client

	Provider *provider.Client
	Engine   *reconcile.Engine

	Settings *service.SystemSettingsService
	Sync     *service.CatalogSyncService
	Search   *service.CatalogSearchService
	Query    *service.CatalogQueryService
	Import   *service.CatalogImportService
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Config: cfg, Logger: logger}

	if err := app.openStore(); err != nil {
		return nil, err
	}

	curated, err := loadCurated(cfg.Curated)
	if err != nil {
		app.Close()
		return nil, err
	}
	logger.Info("curated list loaded", zap.Int("titles", curated.Len()))
	app.Engine = reconcile.NewEngine(curated)

	app.Provider = app.newProvider(ctx)

	app.Settings = &service.SystemSettingsService{Repo: app.Store}
	if err := app.Settings.EnsureDefaultSwitches(ctx); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}
	app.Sync = &service.CatalogSyncService{
		Store:           app.Store,
		Provider:        app.Provider,
		Engine:          app.Engine,
		Logger:          logger,
		CheckpointEvery: cfg.CatalogSync.CheckpointEvery,
	}
	app.Search = &service.CatalogSearchService{
		Store:            app.Store,
		Provider:         app.Provider,
		Settings:         app.Settings,
		Logger:           logger,
		MinQueryLength:   cfg.Search.MinQueryLength,
		MaxResults:       cfg.Search.MaxResults,
		ExternalLimit:    cfg.Search.ExternalLimit,
		DiscoveryTimeout: cfg.Search.DiscoveryTimeout,
	}
	app.Query = &service.CatalogQueryService{Repo: app.Store}
	app.Import = &service.CatalogImportService{
		Store:    app.Store,
		Provider: app.Provider,
		Engine:   app.Engine,
		Logger:   logger,
	}
	return app, nil
}

func (a *App) openStore() error {
	backend := strings.ToLower(strings.TrimSpace(a.Config.Store.Backend))
	switch backend {
	case "", BackendDB:
		conn, err := db.Open(a.Config.DB)
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		if err := db.SetTimezone(conn, a.Config.DB.Timezone); err != nil {
			a.Logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(conn); err != nil {
			_ = db.Close(conn)
			return fmt.Errorf("auto-migrate: %w", err)
		}
		a.DB = conn
		a.Store = gormrepository.New(conn.Gorm)
		a.Logger.Info("catalog store ready", zap.String("backend", BackendDB), zap.String("driver", conn.Driver))
	case BackendFile:
		store, err := filerepository.Open(a.Config.Store.SnapshotPath)
		if err != nil {
			return fmt.Errorf("open snapshot: %w", err)
		}
		a.Store = store
		a.Logger.Info("catalog store ready",
			zap.String("backend", BackendFile),
			zap.String("path", a.Config.Store.SnapshotPath),
		)
	default:
		return fmt.Errorf("unknown store backend %q", a.Config.Store.Backend)
	}
	return nil
}

// newProvider wires both provider clients to one limiter. With redis.addr
// set the limiter is shared by every process pointed at that Redis.
func (a *App) newProvider(ctx context.Context) *provider.Client {
	rl := a.Config.RateLimit
	var limiter ratelimit.Limiter = ratelimit.NewLocalLimiter(rl.MinInterval, rl.Burst)
	if addr := strings.TrimSpace(a.Config.Redis.Addr); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Logger.Warn("redis unreachable, using in-process rate limiter", zap.String("addr", addr), zap.Error(err))
			_ = rdb.Close()
		} else {
			a.Redis = rdb
			limiter = ratelimit.NewRedisLimiter(rdb, a.Logger, rl.Key, rl.MinInterval, rl.Burst)
		}
	}
	backoff := ratelimit.Backoff{Base: rl.RetryBase, Max: rl.RetryMax}

	meta := provider.NewMetadataClient(a.Config.Metadata.BaseURL, a.Config.Metadata.APIKey, a.Config.Metadata.PageSize, provider.Options{
		HTTPClient: &http.Client{Timeout: a.Config.Metadata.Timeout},
		Limiter:    limiter,
		Backoff:    backoff,
		MaxRetries: rl.MaxRetries,
		Logger:     a.Logger,
	})
	pricing := provider.NewPricingClient(a.Config.Pricing.BaseURL, a.Config.Pricing.Country, provider.Options{
		HTTPClient: &http.Client{Timeout: a.Config.Pricing.Timeout},
		Limiter:    limiter,
		Backoff:    backoff,
		MaxRetries: rl.MaxRetries,
		Logger:     a.Logger,
	})
	return provider.NewClient(meta, pricing)
}

func loadCurated(cfg config.CuratedConfig) (*reconcile.CuratedList, error) {
	var fromFile []string
	if path := strings.TrimSpace(cfg.Path); path != "" {
		titles, err := reconcile.LoadCuratedFile(path)
		if err != nil {
			return nil, fmt.Errorf("load curated list: %w", err)
		}
		fromFile = titles
	}
	return reconcile.NewCuratedList(cfg.Titles, fromFile), nil
}

// IsFileBackend reports whether the catalog lives in a snapshot file.
func (a *App) IsFileBackend() bool {
	return a != nil && a.DB == nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = db.Close(a.DB)
	}
	if closer, ok := a.Store.(io.Closer); ok {
		_ = closer.Close()
	}
}
