package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/neuralpositive/trackgate/internal/catalog"
	"github.com/neuralpositive/trackgate/internal/config"
	"github.com/neuralpositive/trackgate/internal/database"
	"github.com/neuralpositive/trackgate/internal/event"
	"github.com/neuralpositive/trackgate/internal/index"
	"github.com/neuralpositive/trackgate/internal/logging"
	"github.com/neuralpositive/trackgate/internal/normalize"
	"github.com/neuralpositive/trackgate/internal/repair"
	"github.com/neuralpositive/trackgate/internal/resolver"
	"github.com/neuralpositive/trackgate/internal/similarity"
	"github.com/neuralpositive/trackgate/internal/storage"
	"github.com/neuralpositive/trackgate/internal/stream"
)

// app holds the wired service graph shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	db        *sql.DB

	store    *catalog.Store
	storage  *storage.Client
	cache    *index.Cache
	resolver *resolver.Resolver
	proxy    *stream.Proxy
	repair   *repair.Service
	bus      *event.Bus
}

// newApp loads configuration and builds every service. The event bus is
// created but not started; serve starts it, one-shot commands don't need it.
func newApp(configPath string) (*app, error) {
	if configPath == "" {
		configPath = os.Getenv("TG_CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, logCloser := logging.New(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.Path,
	})
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	bus := event.NewBus(logger, 256)

	store := catalog.NewStore(db)
	storageClient := storage.NewClient(cfg.Storage.BaseURL, cfg.Storage.ServiceKey, logger)

	cache := index.New(storageClient, index.Options{
		TTL:        cfg.Index.TTL(),
		PageSize:   cfg.Index.PageSize,
		Extensions: cfg.Index.Extensions,
		Logger:     logger,
		Bus:        bus,
	})

	rules := normalize.NewRuleset(cfg.FoldRules())
	scorer := similarity.NewScorer(rules)
	res := resolver.New(cache, scorer, logger)

	proxy := stream.New(res, storageClient, store, bus, logger, stream.Options{
		Bucket:               cfg.Storage.Bucket,
		PublicBucket:         cfg.Storage.PublicBucket,
		SignedTTL:            cfg.Storage.SignedTTL(),
		UpstreamTimeout:      cfg.Storage.UpstreamTimeout(),
		AcceptFloor:          cfg.Matching.StreamFloor,
		AutoCorrectThreshold: cfg.Matching.HighThreshold,
	})

	thresholds := resolver.Thresholds{
		High:   cfg.Matching.HighThreshold,
		Medium: cfg.Matching.MediumThreshold,
	}
	repairSvc := repair.NewService(store, res, thresholds, cfg.Storage.Bucket, cfg.Repair.RatePerSecond, logger)
	repairSvc.SetEventBus(bus)

	return &app{
		cfg:       cfg,
		logger:    logger,
		logCloser: logCloser,
		db:        db,
		store:     store,
		storage:   storageClient,
		cache:     cache,
		resolver:  res,
		proxy:     proxy,
		repair:    repairSvc,
		bus:       bus,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("closing database", "error", err)
	}
	if a.logCloser != nil {
		a.logCloser.Close() //nolint:errcheck
	}
}
