// Package config loads the service configuration from a YAML file with
// environment overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	apppromo "github.com/blackms/memtier-go/internal/application/promotion"
	appres "github.com/blackms/memtier-go/internal/application/resources"
	appsearch "github.com/blackms/memtier-go/internal/application/search"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Resources ResourcesConfig `yaml:"resources"`
	Promotion PromotionConfig `yaml:"promotion"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig tunes the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig tunes the SQLite repository.
type StorageConfig struct {
	Path          string        `yaml:"path"`
	BusyTimeout   time.Duration `yaml:"busy_timeout"`
	BackupEnabled bool          `yaml:"backup_enabled"`
	BackupDir     string        `yaml:"backup_dir"`
}

// EmbeddingConfig tunes the embedding provider and its cache.
type EmbeddingConfig struct {
	Dimensions int           `yaml:"dimensions"`
	CacheBytes int64         `yaml:"cache_bytes"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// SearchConfig tunes the search coordinator.
type SearchConfig struct {
	Permits       int           `yaml:"permits"`
	TextTimeout   time.Duration `yaml:"text_timeout"`
	VectorTimeout time.Duration `yaml:"vector_timeout"`
	CacheCapacity int           `yaml:"cache_capacity"`
	AdaptiveCache bool          `yaml:"adaptive_cache"`
}

// ResourcesConfig tunes the resource controller.
type ResourcesConfig struct {
	Mode              string `yaml:"mode"`
	MemoryBudgetBytes uint64 `yaml:"memory_budget_bytes"`
	BaseMaxVectors    uint64 `yaml:"base_max_vectors"`
	MaxMaxVectors     uint64 `yaml:"max_max_vectors"`
	BaseCacheBytes    uint64 `yaml:"base_cache_bytes"`
	MaxCacheBytes     uint64 `yaml:"max_cache_bytes"`
}

// PromotionConfig tunes the promotion service.
type PromotionConfig struct {
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	InteractTTL         time.Duration `yaml:"interact_ttl"`
	CycleInterval       time.Duration `yaml:"cycle_interval"`
	TrainingSeed        int64         `yaml:"training_seed"`
}

// LogConfig tunes structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	search := appsearch.DefaultConfig()
	res := appres.DefaultConfig()
	promo := apppromo.DefaultServiceConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8420",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Path:        "memtier.db",
			BusyTimeout: 5 * time.Second,
			BackupDir:   "backups",
		},
		Embedding: EmbeddingConfig{
			Dimensions: 1024,
			CacheBytes: 64 << 20,
			CacheTTL:   time.Hour,
		},
		Search: SearchConfig{
			Permits:       search.Permits,
			TextTimeout:   search.TextTimeout,
			VectorTimeout: search.VectorTimeout,
			CacheCapacity: search.Cache.Capacity,
			AdaptiveCache: search.Cache.Adaptive,
		},
		Resources: ResourcesConfig{
			Mode:              string(res.Mode),
			MemoryBudgetBytes: res.MemoryBudgetBytes,
			BaseMaxVectors:    res.BaseMaxVectors,
			MaxMaxVectors:     res.MaxMaxVectors,
			BaseCacheBytes:    res.BaseCacheBytes,
			MaxCacheBytes:     res.MaxCacheBytes,
		},
		Promotion: PromotionConfig{
			ConfidenceThreshold: promo.ConfidenceThreshold,
			InteractTTL:         promo.InteractTTL,
			CycleInterval:       time.Hour,
			TrainingSeed:        42,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. A missing file is not an error: defaults plus the
// environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEMTIER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MEMTIER_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("MEMTIER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MEMTIER_RESOURCE_MODE"); v != "" {
		cfg.Resources.Mode = v
	}
	if v := os.Getenv("MEMTIER_SEARCH_PERMITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Permits = n
		}
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.Embedding.Dimensions < 1 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Search.Permits < 1 {
		return fmt.Errorf("search.permits must be positive, got %d", c.Search.Permits)
	}
	switch appres.Mode(c.Resources.Mode) {
	case appres.ModeStandard, appres.ModeAggressive:
	default:
		return fmt.Errorf("resources.mode must be standard or aggressive, got %q", c.Resources.Mode)
	}
	if c.Promotion.ConfidenceThreshold < 0 || c.Promotion.ConfidenceThreshold > 1 {
		return fmt.Errorf("promotion.confidence_threshold must be in [0,1], got %v", c.Promotion.ConfidenceThreshold)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	return nil
}

// SearchCoordinatorConfig translates into the coordinator's own config.
func (c *Config) SearchCoordinatorConfig() appsearch.Config {
	sc := appsearch.DefaultConfig()
	sc.Permits = c.Search.Permits
	sc.TextTimeout = c.Search.TextTimeout
	sc.VectorTimeout = c.Search.VectorTimeout
	sc.Cache.Capacity = c.Search.CacheCapacity
	sc.Cache.Adaptive = c.Search.AdaptiveCache
	return sc
}

// ControllerConfig translates into the resource controller's own config.
func (c *Config) ControllerConfig() appres.Config {
	rc := appres.DefaultConfig()
	rc.Mode = appres.Mode(c.Resources.Mode)
	rc.MemoryBudgetBytes = c.Resources.MemoryBudgetBytes
	rc.BaseMaxVectors = c.Resources.BaseMaxVectors
	rc.MaxMaxVectors = c.Resources.MaxMaxVectors
	rc.BaseCacheBytes = c.Resources.BaseCacheBytes
	rc.MaxCacheBytes = c.Resources.MaxCacheBytes
	return rc
}

// PromotionServiceConfig translates into the promotion service's own config.
func (c *Config) PromotionServiceConfig() apppromo.ServiceConfig {
	pc := apppromo.DefaultServiceConfig()
	pc.ConfidenceThreshold = c.Promotion.ConfidenceThreshold
	pc.InteractTTL = c.Promotion.InteractTTL
	return pc
}

// PromotionEngineConfig translates into the feature engine's own config.
func (c *Config) PromotionEngineConfig() apppromo.EngineConfig {
	ec := apppromo.DefaultEngineConfig()
	ec.TrainingSeed = c.Promotion.TrainingSeed
	return ec
}

// LogLevel maps the configured level onto slog's scale. Validate has
// already rejected unknown levels.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
