// Package commands provides CLI command implementations.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	apppromo "github.com/blackms/memtier-go/internal/application/promotion"
	appres "github.com/blackms/memtier-go/internal/application/resources"
	appsearch "github.com/blackms/memtier-go/internal/application/search"
	"github.com/blackms/memtier-go/internal/config"
	"github.com/blackms/memtier-go/internal/infrastructure/analysis"
	"github.com/blackms/memtier-go/internal/infrastructure/embeddings"
	"github.com/blackms/memtier-go/internal/infrastructure/index"
	"github.com/blackms/memtier-go/internal/infrastructure/rerank"
	"github.com/blackms/memtier-go/internal/infrastructure/storage"
	"github.com/blackms/memtier-go/internal/shared"
)

// ConfigPath is the shared --config flag value.
var ConfigPath string

// App is the fully wired engine: storage, index, embedding, and the three
// application services.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Repo      *storage.SQLiteRepository
	Index     *index.Chromem
	Embedder  *embeddings.CachedProvider
	Search    *appsearch.Coordinator
	Resources *appres.Controller
	Promotion *apppromo.Service
	Engine    *apppromo.Engine
}

// LoadApp builds the engine from the configured file plus environment.
func LoadApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)

	repo, err := storage.NewSQLiteRepository(cfg.Storage.Path,
		storage.WithBackup(),
		storage.WithBusyTimeout(cfg.Storage.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	local := embeddings.NewLocalProvider(embeddings.LocalConfig{Dimensions: cfg.Embedding.Dimensions})
	embedder, err := embeddings.NewCachedProvider(local, embeddings.CacheConfig{
		MaxCostBytes: cfg.Embedding.CacheBytes,
		TTL:          cfg.Embedding.CacheTTL,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("embedding cache: %w", err)
	}

	vindex, err := index.NewChromem()
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("vector index: %w", err)
	}
	if err := rebuildIndex(ctx, repo, vindex); err != nil {
		repo.Close()
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	coordinator := appsearch.NewCoordinator(cfg.SearchCoordinatorConfig(), embedder, vindex,
		appsearch.WithReranker(rerank.NewLexical()),
		appsearch.WithLogger(logger))

	controller := appres.NewController(cfg.ControllerConfig(), repo,
		appres.WithLogger(logger))

	usage := analysis.NewUsageTracker()
	semantic := analysis.NewKeywordAnalyzer(nil)
	extractor := apppromo.NewExtractor(usage, semantic)

	normalizer, err := apppromo.NewNormalizer(ctx, repo, usage)
	if err != nil {
		logger.Warn("normalizer sampling failed, using fallback stats",
			slog.String("error", err.Error()))
		normalizer = apppromo.NewDefaultNormalizer()
	}
	engine := apppromo.NewEngine(cfg.PromotionEngineConfig(), extractor, normalizer, repo)
	promotion := apppromo.NewService(cfg.PromotionServiceConfig(), repo, engine,
		apppromo.NewRuleBasedScorer(), usage,
		apppromo.WithIndexSync(vindex),
		apppromo.WithServiceLogger(logger))

	return &App{
		Config:    cfg,
		Logger:    logger,
		Repo:      repo,
		Index:     vindex,
		Embedder:  embedder,
		Search:    coordinator,
		Resources: controller,
		Promotion: promotion,
		Engine:    engine,
	}, nil
}

// Close releases the engine's resources.
func (a *App) Close() {
	a.Embedder.Close()
	if err := a.Repo.Close(); err != nil {
		a.Logger.Warn("storage close failed", slog.String("error", err.Error()))
	}
}

// indexRebuildLimit caps the startup load per tier.
const indexRebuildLimit = 100_000

// rebuildIndex loads every embedded record from storage into the in-memory
// vector index at startup.
func rebuildIndex(ctx context.Context, repo *storage.SQLiteRepository, vindex *index.Chromem) error {
	for _, tier := range shared.AllTiers() {
		records, err := repo.List(ctx, tier, indexRebuildLimit)
		if err != nil {
			return err
		}
		for _, record := range records {
			if record.Embedding == nil {
				continue
			}
			if err := vindex.Add(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}
