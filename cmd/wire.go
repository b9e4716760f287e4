package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/internal/archive"
	"github.com/xkilldash9x/tifda/internal/config"
	"github.com/xkilldash9x/tifda/internal/cop"
	"github.com/xkilldash9x/tifda/internal/dissemination"
	"github.com/xkilldash9x/tifda/internal/engine"
	"github.com/xkilldash9x/tifda/internal/fusion"
	"github.com/xkilldash9x/tifda/internal/needtoknow"
	"github.com/xkilldash9x/tifda/internal/reasoner"
	"github.com/xkilldash9x/tifda/internal/threat"
	"github.com/xkilldash9x/tifda/internal/validate"
	"github.com/xkilldash9x/tifda/internal/vissync"
)

// buildEngine assembles the pipeline from configuration. The returned
// cleanup releases any held connections and is safe to call once.
func buildEngine(ctx context.Context, cfg *config.Config, publisher engine.Publisher, logger *zap.Logger) (*engine.Engine, func(), error) {
	cleanup := func() {}

	var syncer cop.Syncer
	if cfg.Sync.BaseURL != "" {
		client, err := vissync.NewClient(cfg.Sync, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("building visualization sync client: %w", err)
		}
		syncer = client
	}

	matcher := fusion.NewMatcher(cfg.Fusion.MaxDistanceM, cfg.Fusion.MaxTimeDeltaS)
	store := cop.NewStore(matcher, syncer, logger)

	nk := needtoknow.NewEngine(cfg.Thresholds)

	var rsn threat.Reasoner
	if cfg.Reasoner.Provider != "" && cfg.Reasoner.APIKey == "" {
		logger.Warn("Reasoner API key not set; ambiguous threats will resolve to conservative defaults",
			zap.String("provider", cfg.Reasoner.Provider))
	} else {
		var err error
		rsn, err = reasoner.New(cfg.Reasoner, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("building reasoner: %w", err)
		}
	}

	evaluator := threat.NewEvaluator(threat.NewRules(nk), rsn, logger)
	router := dissemination.NewRouter(nk, store, cfg.Recipients, logger)

	var opts []engine.Option
	if cfg.Archive.Enabled {
		pool, err := pgxpool.New(ctx, cfg.Archive.DSN)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting archive database: %w", err)
		}
		arch, err := archive.New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, cleanup, fmt.Errorf("building archive: %w", err)
		}
		cleanup = pool.Close
		opts = append(opts, engine.WithArchiver(arch))
	}

	e := engine.New(validate.NewNormalizer(logger), store, evaluator, router, publisher, logger, opts...)
	e.Bootstrap(cfg.Recipients)
	return e, cleanup, nil
}
