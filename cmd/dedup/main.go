package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bkyoung/review-dedup/internal/adapter/cli"
	"github.com/bkyoung/review-dedup/internal/adapter/observability"
	"github.com/bkyoung/review-dedup/internal/adapter/store/sqlite"
	"github.com/bkyoung/review-dedup/internal/config"
	"github.com/bkyoung/review-dedup/internal/store"
	"github.com/bkyoung/review-dedup/internal/usecase/dedup"
	"github.com/bkyoung/review-dedup/internal/usecase/history"
	"github.com/bkyoung/review-dedup/internal/version"
)

// Compile-time checks that the adapters satisfy their ports.
var (
	_ store.Store          = (*sqlite.Store)(nil)
	_ history.Logger       = (*observability.DefaultLogger)(nil)
	_ dedup.Logger         = (*observability.DefaultLogger)(nil)
	_ dedup.Metrics        = (*observability.DefaultMetrics)(nil)
	_ cli.Deduplicator     = (*dedup.Engine)(nil)
	_ cli.HistoryService   = (*history.Service)(nil)
	_ dedup.HistoryChecker = (*history.Service)(nil)
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	// Cancellable context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "dedup",
		EnvPrefix:   "DEDUP",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	historyStore, err := sqlite.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer historyStore.Close()

	obs := buildObservability(cfg.Observability)

	historyService := history.NewService(history.ServiceDeps{
		Store: historyStore,
		Config: history.Config{
			SimilarityThreshold:       cfg.Dedup.SimilarityThreshold,
			EnableProgressiveSeverity: cfg.Dedup.EnableProgressiveSeverity,
			MaxDetailedOccurrences:    cfg.Dedup.MaxDetailedOccurrences,
			MaxSummaryOccurrences:     cfg.Dedup.MaxSummaryOccurrences,
			MinOccurrencesToIgnore:    cfg.Dedup.MinOccurrencesToIgnore,
			FingerprintExpirationDays: cfg.Dedup.FingerprintExpirationDays,
		},
		Logger: obs.historyLogger,
	})

	engine := dedup.NewEngine(dedup.EngineDeps{
		History: historyService,
		Logger:  obs.dedupLogger,
		Metrics: obs.metrics,
	})

	root := cli.NewRootCommand(cli.Dependencies{
		Deduplicator:     engine,
		History:          historyService,
		Args:             cli.Arguments{OutWriter: os.Stdout, ErrWriter: os.Stderr},
		DefaultThreshold: cfg.Dedup.SimilarityThreshold,
		Version:          version.Value(),
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return nil
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dedup"))
	}
	return paths
}

// observabilityComponents holds shared observability instances.
type observabilityComponents struct {
	historyLogger history.Logger
	dedupLogger   dedup.Logger
	metrics       dedup.Metrics
}

// buildObservability creates logging and metrics components based on
// configuration. Disabled components stay nil and are skipped downstream.
func buildObservability(cfg config.ObservabilityConfig) observabilityComponents {
	var obs observabilityComponents

	if cfg.Logging.Enabled {
		logger := observability.NewDefaultLogger(
			observability.ParseLevel(cfg.Logging.Level),
			observability.ParseFormat(cfg.Logging.Format),
		)
		obs.historyLogger = logger
		obs.dedupLogger = logger
	}

	if cfg.Metrics.Enabled {
		obs.metrics = observability.NewDefaultMetrics()
	}

	return obs
}
