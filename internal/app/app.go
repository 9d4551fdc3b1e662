// Package app wires the collaborators shared by the HTTP server and the queue
// worker from a config.Config.
package app

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"vidproc/internal/config"
	"vidproc/internal/ledger"
	"vidproc/internal/lock"
	"vidproc/internal/metrics"
	"vidproc/internal/pipeline"
	"vidproc/internal/pkg/errors"
	"vidproc/internal/pkg/logger"
	"vidproc/internal/pkg/shutdown"
	"vidproc/internal/scratch"
	"vidproc/internal/storage"
	"vidproc/internal/transcoder"
)

type App struct {
	Config   config.Config
	Log      *logger.Logger
	Storage  storage.Gateway
	Scratch  *scratch.Dirs
	Metrics  *metrics.Metrics
	Pipeline *pipeline.Pipeline

	// Nil unless DATABASE_URL / REDIS_ADDR are set.
	Pool *pgxpool.Pool
	RDB  *redis.Client
}

// New connects to every configured backend and builds the pipeline. Each
// client is registered with mgr so it is closed on shutdown.
func New(ctx context.Context, cfg config.Config, log *logger.Logger, mgr *shutdown.Manager) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	a.Scratch = scratch.New(cfg.RawDir, cfg.ProcessedDir, log)
	if err := a.Scratch.EnsureDirs(); err != nil {
		return nil, errors.Wrap(err, "app.scratch", "failed to create scratch directories")
	}

	log.Info("initializing storage gateway", "provider", cfg.StorageProvider)
	gw, err := storage.NewGateway(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "app.storage", "failed to initialize storage gateway")
	}
	a.Storage = gw
	if c, ok := gw.(io.Closer); ok {
		mgr.RegisterCloser("storage", c.Close)
	}
	log.Info("storage gateway initialized",
		"provider", gw.Provider(),
		"raw_bucket", cfg.RawBucket,
		"processed_bucket", cfg.ProcessedBucket,
	)

	var locker lock.Locker = lock.NewMemory()
	if cfg.RedisAddr != "" {
		log.Info("connecting to Redis")
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		mgr.RegisterCloser("redis", rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "app.redis", "failed to ping Redis")
		}
		a.RDB = rdb
		rl := lock.NewRedis(rdb, "", cfg.LockTTL)
		rl.OnLost = func(key string) {
			log.Error("job lock lost before the job finished", "lock_key", key)
		}
		locker = rl
		log.Info("Redis connected, using shared job locks", "lock_ttl", cfg.LockTTL.String())
	}

	var rec ledger.Recorder = ledger.Nop{}
	if cfg.DatabaseURL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "app.postgres", "failed to connect to PostgreSQL")
		}
		mgr.RegisterCloser("postgres", func() error {
			pool.Close()
			return nil
		})
		if err := pool.Ping(ctx); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "app.postgres", "failed to ping PostgreSQL")
		}
		pg := ledger.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, errors.Wrap(err, "app.postgres", "failed to create ledger schema")
		}
		a.Pool = pool
		rec = pg
		log.Info("PostgreSQL connected, job ledger enabled")
	}

	a.Pipeline = pipeline.New(pipeline.Deps{
		Storage:         gw,
		Transcoder:      transcoder.NewFFmpeg(cfg.FFmpegPath),
		Scratch:         a.Scratch,
		RawBucket:       cfg.RawBucket,
		ProcessedBucket: cfg.ProcessedBucket,
		Timeout:         cfg.JobTimeout,
		Locker:          locker,
		Ledger:          rec,
		Metrics:         a.Metrics,
		Log:             log,
	})

	return a, nil
}
