package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/analysis"
	"github.com/sells-group/analyst/internal/blob"
	"github.com/sells-group/analyst/internal/cache"
	"github.com/sells-group/analyst/internal/config"
	"github.com/sells-group/analyst/internal/enrich"
	"github.com/sells-group/analyst/internal/expert"
	"github.com/sells-group/analyst/internal/extract"
	"github.com/sells-group/analyst/internal/persona"
	"github.com/sells-group/analyst/internal/pipeline"
	"github.com/sells-group/analyst/internal/resilience"
	"github.com/sells-group/analyst/internal/store"
	"github.com/sells-group/analyst/internal/worker"
	anthropicpkg "github.com/sells-group/analyst/pkg/anthropic"
	"github.com/sells-group/analyst/pkg/brave"
)

// sweepInterval is how often expired entries leave the in-process cache.
const sweepInterval = time.Minute

// submitterFunc builds the task submitter once the pipeline exists. The
// returned close func runs on shutdown.
type submitterFunc func(ctx context.Context, r worker.Runner) (worker.Submitter, func(), error)

// appEnv holds everything a command needs to serve or run jobs.
type appEnv struct {
	Store    store.Store
	Uploads  blob.Bucket
	Pipeline *pipeline.Orchestrator
	Service  *analysis.Service
	TTLs     store.TTLs

	drain   func()
	closers []func()
}

// Drain waits for submitted tasks when they run in process. It is a no-op
// for remote workers.
func (e *appEnv) Drain() {
	if e.drain != nil {
		e.drain()
	}
}

// Close releases resources in reverse order of creation.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *appEnv) onClose(f func()) {
	e.closers = append(e.closers, f)
}

// initEnv validates cfg for mode and wires the store, collaborators, the
// orchestrator and the job service. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string, submitter submitterFunc) (_ *appEnv, err error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{TTLs: cacheTTLs(cfg.Cache)}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	bucket, err := initBucket(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	env.Uploads = bucket

	base, err := initStore(ctx, cfg.Store, bucket)
	if err != nil {
		return nil, err
	}
	env.onClose(func() { _ = base.Close() })
	if err := base.Migrate(ctx); err != nil {
		return nil, eris.Wrap(err, "migrate store")
	}

	st, err := withCache(ctx, env, base)
	if err != nil {
		return nil, err
	}
	env.Store = st

	personas, err := persona.Load(cfg.Pipeline.PersonasFile)
	if err != nil {
		return nil, err
	}

	extractor := extract.New(bucket, extract.WithMaxChars(cfg.Pipeline.MaxInputChars))
	env.Pipeline = pipeline.New(cfg.Pipeline, st, initExperts(personas), initEnricher(), personas,
		pipeline.WithFiles(extractor),
	)

	tasks, closeTasks, err := submitter(ctx, env.Pipeline)
	if err != nil {
		return nil, err
	}
	if closeTasks != nil {
		env.onClose(closeTasks)
	}
	if _, ok := tasks.(*worker.Pool); ok {
		env.drain = closeTasks
	}

	env.Service = analysis.New(cfg.Pipeline, st, env.Pipeline, tasks, extractor, bucket)

	zap.L().Info("environment ready",
		zap.String("mode", mode),
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("worker", cfg.Worker.Backend),
		zap.Bool("triage", cfg.Pipeline.Triage),
		zap.Bool("quality_review", cfg.Pipeline.QualityReview),
	)
	return env, nil
}

// initBucket returns the object bucket for uploads, which also holds job
// documents for the bucket-backed drivers. The database drivers keep
// uploads in S3 when a bucket is configured.
func initBucket(ctx context.Context, sc config.StoreConfig) (blob.Bucket, error) {
	switch {
	case sc.Driver == "memory":
		return blob.NewMemory(), nil
	case sc.Driver == "s3", sc.Driver != "local" && sc.S3.Bucket != "":
		return blob.NewS3(ctx, sc.S3.Region, sc.S3.Bucket, sc.S3.Prefix)
	default:
		dir := sc.Dir
		if dir == "" {
			dir = "./data"
		}
		return blob.NewLocal(dir)
	}
}

func initStore(ctx context.Context, sc config.StoreConfig, bucket blob.Bucket) (store.Store, error) {
	switch sc.Driver {
	case "memory", "local", "s3":
		return store.NewBlob(bucket), nil
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = filepath.Join(sc.Dir, "analyst.db")
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

func cacheTTLs(cc config.CacheConfig) store.TTLs {
	ttls := store.DefaultTTLs()
	if cc.ProcessingTTLSecs > 0 {
		ttls.Processing = time.Duration(cc.ProcessingTTLSecs) * time.Second
	}
	if cc.CompleteTTLSecs > 0 {
		ttls.Complete = time.Duration(cc.CompleteTTLSecs) * time.Second
	}
	if cc.ErrorTTLSecs > 0 {
		ttls.Error = time.Duration(cc.ErrorTTLSecs) * time.Second
	}
	return ttls
}

// withCache wraps st with the configured read cache.
func withCache(ctx context.Context, env *appEnv, st store.Store) (store.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, "analyst:")
		if err != nil {
			return nil, err
		}
		env.onClose(func() { _ = rc.Close() })
		return store.NewCached(st, rc, env.TTLs), nil
	case "memory":
		mc := cache.NewMemory()
		sweepCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		env.onClose(stop)
		go sweep(sweepCtx, mc)
		return store.NewCached(st, mc, env.TTLs), nil
	default:
		return st, nil
	}
}

func sweep(ctx context.Context, mc *cache.Memory) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := mc.Sweep(); n > 0 {
				zap.L().Debug("cache: swept expired entries", zap.Int("removed", n), zap.Int("remaining", mc.Len()))
			}
		}
	}
}

func initExperts(personas *persona.Table) *expert.Client {
	if cfg.Anthropic.Key == "" {
		zap.L().Warn("ANTHROPIC_API_KEY not set, expert calls return a placeholder notice")
		return expert.New(nil, personas)
	}
	return expert.New(anthropicpkg.NewClient(cfg.Anthropic.Key), personas,
		expert.WithModel(cfg.Anthropic.Model),
		expert.WithMaxTokens(cfg.Anthropic.MaxTokens),
	)
}

func initEnricher() *enrich.Searcher {
	if cfg.Brave.Key == "" {
		zap.L().Warn("BRAVE_API_KEY not set, web enrichment disabled")
		return enrich.New(nil, cfg.Brave.ResultsPerQuery)
	}
	client := brave.NewClient(cfg.Brave.Key,
		brave.WithBaseURL(cfg.Brave.BaseURL),
		brave.WithRateLimit(cfg.Brave.RatePerSec),
		brave.WithPolicy(resilience.NewPolicy("brave", cfg.Brave.RetryAttempts, 500, 5, 30)),
	)
	return enrich.New(client, cfg.Brave.ResultsPerQuery)
}

// poolSubmitter runs tasks on an in-process pool. Close waits for queued
// and running tasks.
func poolSubmitter(concurrency, queueSize int) submitterFunc {
	return func(ctx context.Context, r worker.Runner) (worker.Submitter, func(), error) {
		p := worker.NewPool(r, concurrency, queueSize)
		p.Start(context.WithoutCancel(ctx))
		return p, p.Close, nil
	}
}

// temporalSubmitter starts a workflow per task.
func temporalSubmitter(ctx context.Context, _ worker.Runner) (worker.Submitter, func(), error) {
	c, err := worker.DialTemporal(ctx, cfg.Worker.Temporal)
	if err != nil {
		return nil, nil, err
	}
	s := worker.NewTemporalSubmitter(c, cfg.Worker.Temporal.TaskQueue, cfg.Pipeline.RunTimeout())
	return s, c.Close, nil
}

// initCLIEnv runs tasks on a single in-process worker so a command can
// wait for them.
func initCLIEnv(ctx context.Context) (*appEnv, error) {
	return initEnv(ctx, "cli", poolSubmitter(1, cfg.Worker.QueueSize))
}

// configuredSubmitter picks the submitter for cfg.Worker.Backend.
func configuredSubmitter() submitterFunc {
	if cfg.Worker.Backend == "temporal" {
		return temporalSubmitter
	}
	return poolSubmitter(cfg.Worker.Concurrency, cfg.Worker.QueueSize)
}
