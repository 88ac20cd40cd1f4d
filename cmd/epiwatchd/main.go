// Command epiwatchd runs the outbreak detection engine as a long-lived
// process. Each configured disease stream polls its case feed on an interval
// and pushes the batch through its own detector suite.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"epiwatch/adapters/casefile"
	"epiwatch/adapters/jsonstore"
	"epiwatch/adapters/postgres"
	"epiwatch/app"
	"epiwatch/internal"
	"epiwatch/internal/config"
	apperrors "epiwatch/internal/errors"
	"epiwatch/ports"
)

func main() {
	godotenv.Load()
	logger := internal.NewDefaultLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration: %v", apperrors.Wrap(err, "failed to load configuration"))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store: %v", err)
		os.Exit(1)
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, stream := range cfg.Streams {
		stream := stream
		service, err := app.NewOutbreakService(store, cfg.Detection, logger)
		if err != nil {
			logger.Error("stream %s: %v", stream, apperrors.Wrap(err, "failed to build detection service"))
			os.Exit(1)
		}
		group.Go(func() error {
			return runStream(ctx, stream, service, cfg, logger)
		})
	}

	logger.Info("epiwatchd started: %d streams, polling every %s", len(cfg.Streams), cfg.PollInterval)
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown: %v", err)
		os.Exit(1)
	}
	logger.Info("epiwatchd stopped")
}

// openStore selects the store backend. A database URL wins over a file path;
// with neither the store is memory-only.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *internal.Logger) (ports.ClusterStore, error) {
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to connect to postgres")
		}
		repo := postgres.NewClusterRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, apperrors.Wrap(err, "failed to ensure schema")
		}
		logger.Info("using postgres cluster store")
		return repo, nil
	}

	store, err := jsonstore.New(cfg.FilePath)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open json store")
	}
	if cfg.FilePath != "" {
		logger.Info("using json file store at %s", cfg.FilePath)
	} else {
		logger.Info("using in-memory store")
	}
	return store, nil
}

// runStream polls one case feed until the context is cancelled. A missing
// feed file is quiet; a malformed one logs and waits for the next tick.
func runStream(ctx context.Context, stream string, service *app.OutbreakService, cfg *config.Config, logger *internal.Logger) error {
	feedPath := ""
	if cfg.CaseFeedDir != "" {
		feedPath = filepath.Join(cfg.CaseFeedDir, stream+".json")
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		if feedPath != "" {
			pollOnce(ctx, stream, feedPath, service, logger)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func pollOnce(ctx context.Context, stream, feedPath string, service *app.OutbreakService, logger *internal.Logger) {
	records, rejected, err := casefile.ReadFile(feedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("stream %s: no feed at %s", stream, feedPath)
		} else {
			logger.Error("stream %s: %v", stream, err)
		}
		return
	}
	for _, reject := range rejected {
		logger.Warn("stream %s: %v", stream, reject)
	}
	if len(records) == 0 {
		return
	}

	report, err := service.DetectOutbreaks(ctx, records)
	if err != nil {
		logger.Error("stream %s: detection failed: %v", stream, err)
		return
	}
	logger.Info("stream %s: level=%s cases=%d clusters=%d",
		stream, report.DetectionLevel, report.CasesAnalyzed, len(report.Clusters))
}
