package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/confidence"
	"github.com/oceanid/ingest-worker/internal/engine"
	"github.com/oceanid/ingest-worker/internal/fetcher"
	"github.com/oceanid/ingest-worker/internal/ingest"
	"github.com/oceanid/ingest-worker/internal/metrics"
	"github.com/oceanid/ingest-worker/internal/monitoring"
	"github.com/oceanid/ingest-worker/internal/review"
	"github.com/oceanid/ingest-worker/internal/rules"
	"github.com/oceanid/ingest-worker/internal/store"
)

// workerEnv holds the store, rule registry and processing components shared
// by the serve and ingest commands.
type workerEnv struct {
	Store        store.Store // nil when running from a rules file only
	Rules        *rules.Registry
	Engine       *engine.Engine
	Fetcher      *fetcher.HTTPFetcher
	Metrics      *metrics.Metrics
	Collector    *monitoring.Collector // nil without a store
	Orchestrator *ingest.Orchestrator
}

// Close releases resources held by the environment.
func (e *workerEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ingest.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// ruleSource prefers the rules file when one is configured.
func ruleSource(st store.Store) (rules.Source, error) {
	if cfg.Rules.File != "" {
		return rules.FileSource{Path: cfg.Rules.File}, nil
	}
	if st == nil {
		return nil, eris.New("no rule source: set rules.file or store.database_url")
	}
	return st, nil
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:  seconds(cfg.Ingest.DownloadTimeoutSecs),
		Attempts: cfg.Ingest.DownloadRetries,
		MaxBytes: cfg.Ingest.MaxDownloadBytes,
	})
}

// initWorker opens the store (when withStore), loads the rule index and
// builds the orchestrator. Callers should defer env.Close().
func initWorker(ctx context.Context, withStore bool, opts ...ingest.Option) (*workerEnv, error) {
	env := &workerEnv{Metrics: metrics.New()}

	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	src, err := ruleSource(env.Store)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Rules = rules.NewRegistry(src)
	if _, err := env.Rules.Reload(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "load rules")
	}
	if env.Rules.Len() == 0 {
		zap.L().Warn("no cleaning rules loaded; every non-empty cell will need review")
	}

	env.Engine = engine.New(env.Rules, confidence.New(cfg.Confidence), engine.WithMaxPasses(cfg.Ingest.MaxPasses))
	env.Fetcher = newFetcher()

	if env.Store != nil {
		env.Collector = monitoring.NewCollector(env.Store, env.Metrics)
		opts = append([]ingest.Option{
			ingest.WithMetrics(env.Metrics),
			ingest.WithDepthRefresher(env.Collector),
		}, opts...)
		env.Orchestrator = ingest.New(env.Store, env.Fetcher, env.Engine, opts...)
	}
	return env, nil
}

// newNotifier returns the review-queue notifier, or a no-op when no URL is
// configured.
func newNotifier() review.Notifier {
	if cfg.Review.URL == "" {
		zap.L().Warn("review.url not set, review notifications disabled")
		return review.Nop{}
	}
	return review.NewHTTPNotifier(cfg.Review.URL, seconds(cfg.Review.TimeoutSecs))
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
