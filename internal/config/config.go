package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Store       StoreConfig       `mapstructure:"store"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cron        CronConfig        `mapstructure:"cron"`
	Metadata    MetadataConfig    `mapstructure:"metadata"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	CatalogSync CatalogSyncConfig `mapstructure:"catalog_sync"`
	Search      SearchConfig      `mapstructure:"search"`
	Curated     CuratedConfig     `mapstructure:"curated"`
}

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Name string `mapstructure:"name"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AdminToken guards write endpoints; empty leaves them open.
	AdminToken string `mapstructure:"admin_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// StoreConfig selects where the catalog lives: "db" uses DBConfig, "file"
// keeps a JSON document at SnapshotPath.
type StoreConfig struct {
	Backend      string `mapstructure:"backend"`
	SnapshotPath string `mapstructure:"snapshot_path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	CatalogSync string `mapstructure:"catalog_sync"`
}

type MetadataConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
}

type PricingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Country string        `mapstructure:"country"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
	Burst       int           `mapstructure:"burst"`
	RetryBase   time.Duration `mapstructure:"retry_base"`
	RetryMax    time.Duration `mapstructure:"retry_max"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Key         string        `mapstructure:"key"`
}

type CatalogSyncConfig struct {
	Scope           string `mapstructure:"scope"`
	CheckpointEvery int    `mapstructure:"checkpoint_every"`
	Limit           int    `mapstructure:"limit"`
}

type SearchConfig struct {
	MinQueryLength   int           `mapstructure:"min_query_length"`
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout"`
	MaxResults       int           `mapstructure:"max_results"`
	ExternalLimit    int           `mapstructure:"external_limit"`
}

// CuratedConfig lists titles eligible for synthetic pricing. Titles and the
// file at Path are merged.
type CuratedConfig struct {
	Titles []string `mapstructure:"titles"`
	Path   string   `mapstructure:"path"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.name", "gamecatalog")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("store.backend", "db")
	v.SetDefault("store.snapshot_path", "data/games.json")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.catalog_sync", "0 30 3 * * *")
	v.SetDefault("metadata.base_url", "https://api.rawg.io/api")
	v.SetDefault("metadata.api_key", "")
	v.SetDefault("metadata.timeout", "15s")
	v.SetDefault("metadata.page_size", 10)
	v.SetDefault("pricing.base_url", "https://store.steampowered.com/api")
	v.SetDefault("pricing.country", "us")
	v.SetDefault("pricing.timeout", "15s")
	v.SetDefault("rate_limit.min_interval", "600ms")
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("rate_limit.retry_base", "5s")
	v.SetDefault("rate_limit.retry_max", "40s")
	v.SetDefault("rate_limit.max_retries", 3)
	v.SetDefault("rate_limit.key", "gamecatalog:ratelimit:providers")
	v.SetDefault("catalog_sync.scope", "all")
	v.SetDefault("catalog_sync.checkpoint_every", 15)
	v.SetDefault("catalog_sync.limit", 0)
	v.SetDefault("search.min_query_length", 2)
	v.SetDefault("search.discovery_timeout", "20s")
	v.SetDefault("search.max_results", 40)
	v.SetDefault("search.external_limit", 10)
	v.SetDefault("curated.titles", []string{})
	v.SetDefault("curated.path", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
