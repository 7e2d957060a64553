package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/extraction"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/report"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Collectors
	pool       *postgres.Pool
	identities *postgres.IdentityRepository
	ledger     *postgres.LedgerRepository
	service    *attendance.Service
	reports    *report.Builder
}

// appOptions select the optional parts newApp wires.
type appOptions struct {
	// hnsw loads the in-memory HNSW index when HNSW_INDEX_PATH is set.
	// Only the long-running server matches faces often enough to need it.
	hnsw bool
}

// newApp loads configuration, connects to PostgreSQL (applying migrations)
// and wires the attendance service.
func newApp(ctx context.Context, o appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	mode := cfg.Log.Mode
	if logMode != "" {
		mode = logMode
	}
	logger, err := logging.New(mode)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	window, err := attendance.NewWindowSpec(cfg.Attendance.Start, cfg.Attendance.End, cfg.Attendance.Timezone)
	if err != nil {
		return nil, err
	}

	pool, err := postgres.Open(ctx, &cfg.Database, logger.Named("postgres"))
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	identities := postgres.NewIdentityRepository(pool, cfg.Embedding.Dim, logger.Named("identities"))
	ledger := postgres.NewLedgerRepository(pool, cfg.Attendance.LedgerTimeout, logger.Named("ledger"))

	matchOpts := facematch.Options{
		Threshold:       cfg.Attendance.MatchThreshold,
		AmbiguityMargin: cfg.Attendance.AmbiguityMargin,
	}
	var matcher facematch.Matcher = facematch.NewLinearMatcher(identities, matchOpts)
	if o.hnsw && cfg.Database.HNSWIndexPath != "" {
		if err := identities.EnableHNSW(ctx, cfg.Database.HNSWIndexPath); err != nil {
			logger.Warn("HNSW index unavailable, using linear matching", zap.Error(err))
		} else {
			logger.Info("HNSW index enabled", zap.String("path", cfg.Database.HNSWIndexPath))
			matcher = facematch.NewIndexedMatcher(identities, facematch.DefaultCandidates, matchOpts)
		}
	}

	service := attendance.NewService(attendance.ServiceDeps{
		Identities: identities,
		Ledger:     ledger,
		Matcher:    matcher,
		Window:     window,
		Extractor:  extraction.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim, cfg.Embedding.MaxImageSide),
		Dim:        cfg.Embedding.Dim,
		Metrics:    m,
		Logger:     logger,
	})
	reports := report.NewBuilder(ledger, service.Sweeper, window, m, logger.Named("report"))

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		pool:       pool,
		identities: identities,
		ledger:     ledger,
		service:    service,
		reports:    reports,
	}, nil
}

// Close persists the HNSW index and releases the database pool.
func (a *app) Close(ctx context.Context) {
	if a.identities.IsHNSWEnabled() {
		if err := a.identities.SaveHNSWIndex(ctx); err != nil {
			a.logger.Warn("failed to save HNSW index", zap.Error(err))
		}
	}
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
