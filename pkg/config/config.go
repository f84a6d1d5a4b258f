package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// KnownSources are the retailers a build can refresh.
var KnownSources = []string{"ah", "dirk", "hoogvliet"}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Translate TranslateConfig `mapstructure:"translate"`
	Sources   SourcesConfig   `mapstructure:"sources"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// MaxConcurrentRefreshes bounds refresh requests served at once.
	MaxConcurrentRefreshes int    `mapstructure:"max_concurrent_refreshes"`
	SpecDir                string `mapstructure:"spec_dir"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "mysql"
	// DSN takes precedence over Path and the MySQL fields.
	DSN      string `mapstructure:"dsn"`
	Path     string `mapstructure:"path"`
	Addr     string `mapstructure:"addr"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type CacheConfig struct {
	Type          string        `mapstructure:"type"` // "sqlite", "memory" or "redis"
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type TranslateConfig struct {
	// Endpoint of a LibreTranslate server. Empty disables translation.
	Endpoint string  `mapstructure:"endpoint"`
	APIKey   string  `mapstructure:"api_key"`
	Source   string  `mapstructure:"source"`
	Target   string  `mapstructure:"target"`
	Rate     float64 `mapstructure:"rate"`
}

type SourcesConfig struct {
	Enabled   []string        `mapstructure:"enabled"`
	AH        AHConfig        `mapstructure:"ah"`
	Dirk      DirkConfig      `mapstructure:"dirk"`
	Hoogvliet HoogvlietConfig `mapstructure:"hoogvliet"`
}

type AHConfig struct {
	BaseURL    string  `mapstructure:"base_url"`
	APIBaseURL string  `mapstructure:"api_base_url"`
	Rate       float64 `mapstructure:"rate"`
	Workers    int     `mapstructure:"workers"`
	MaxPages   int     `mapstructure:"max_pages"`
	// Render falls back to a headless browser for pages without server-side content.
	Render bool `mapstructure:"render"`
}

type DirkConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	SitemapURL string `mapstructure:"sitemap_url"`
	Workers    int    `mapstructure:"workers"`
}

type HoogvlietConfig struct {
	SearchURL     string  `mapstructure:"search_url"`
	PricesURL     string  `mapstructure:"prices_url"`
	Rate          float64 `mapstructure:"rate"`
	BatchSize     int     `mapstructure:"batch_size"`
	ValidityPages bool    `mapstructure:"validity_pages"`
}

// Load reads .env, config.yaml and SHELFSYNC_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SHELFSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.max_concurrent_refreshes", 2)
	v.SetDefault("server.spec_dir", "./")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "shelf-sync.db")
	v.SetDefault("store.addr", "localhost:3306")
	v.SetDefault("store.user", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.database", "shelf_sync")

	v.SetDefault("cache.type", "sqlite")
	v.SetDefault("cache.path", "cache.db")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.ttl", "0s")

	v.SetDefault("translate.endpoint", "")
	v.SetDefault("translate.api_key", "")
	v.SetDefault("translate.source", "nl")
	v.SetDefault("translate.target", "en")
	v.SetDefault("translate.rate", 2.0)

	v.SetDefault("sources.enabled", KnownSources)
	v.SetDefault("sources.ah.base_url", "https://www.ah.nl")
	v.SetDefault("sources.ah.api_base_url", "https://api.ah.nl")
	v.SetDefault("sources.ah.rate", 4.0)
	v.SetDefault("sources.ah.workers", 4)
	v.SetDefault("sources.ah.max_pages", 0)
	v.SetDefault("sources.ah.render", false)
	v.SetDefault("sources.dirk.base_url", "https://www.dirk.nl")
	v.SetDefault("sources.dirk.sitemap_url", "https://www.dirk.nl/products-sitemap.xml")
	v.SetDefault("sources.dirk.workers", 4)
	v.SetDefault("sources.hoogvliet.search_url", "https://navigator-group1.tweakwise.com/navigation/ed681b01")
	v.SetDefault("sources.hoogvliet.prices_url",
		"https://www.hoogvliet.com/INTERSHOP/web/WFS/org-webshop-Site/nl_NL/-/EUR/ProcessTWProducts-GetTWProductsBySkus")
	v.SetDefault("sources.hoogvliet.rate", 5.0)
	v.SetDefault("sources.hoogvliet.batch_size", 80)
	v.SetDefault("sources.hoogvliet.validity_pages", true)
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.DSN == "" && cfg.Store.Path == "" {
			return fmt.Errorf("store path is required for sqlite (set SHELFSYNC_STORE_PATH)")
		}
	case "mysql":
		if cfg.Store.DSN == "" && cfg.Store.User == "" {
			return fmt.Errorf("store user or dsn is required for mysql (set SHELFSYNC_STORE_USER)")
		}
	default:
		return fmt.Errorf("store driver must be 'sqlite' or 'mysql', got: %s", cfg.Store.Driver)
	}

	switch cfg.Cache.Type {
	case "sqlite", "memory":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("redis address is required when cache type is 'redis'")
		}
	default:
		return fmt.Errorf("cache type must be 'sqlite', 'memory' or 'redis', got: %s", cfg.Cache.Type)
	}

	if cfg.Server.MaxConcurrentRefreshes < 1 {
		return fmt.Errorf("server.max_concurrent_refreshes must be at least 1")
	}

	for _, name := range cfg.Sources.Enabled {
		if !slices.Contains(KnownSources, name) {
			return fmt.Errorf("unknown source %q in sources.enabled", name)
		}
	}
	return nil
}

// StoreDSN returns the DSN for the configured driver, given a builder for MySQL DSNs.
func (c StoreConfig) StoreDSN(mysqlDSN func(user, password, addr, database string) string) string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == "mysql" {
		return mysqlDSN(c.User, c.Password, c.Addr, c.Database)
	}
	return c.Path
}
