package main

import (
	"context"
	"errors"

	"vidproc/internal/app"
	"vidproc/internal/config"
	"vidproc/internal/pkg/logger"
	"vidproc/internal/pkg/shutdown"
	"vidproc/internal/worker"
	"vidproc/internal/worker/queue"
)

func main() {
	dotenvErr := config.LoadDotenv()

	log := logger.NewDefault()
	if dotenvErr != nil {
		log.Warn("failed to load .env", "error", dotenvErr.Error())
	}

	cfg := config.Load()
	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	a, err := app.New(ctx, cfg, log, shutdownMgr)
	if err != nil {
		_ = shutdownMgr.Shutdown()
		log.LogFatal("failed to initialize worker", err)
	}
	if a.RDB == nil {
		_ = shutdownMgr.Shutdown()
		log.LogFatal("worker needs a queue", errors.New("REDIS_ADDR is not set"))
	}

	q := queue.NewRedisQueue(a.RDB, cfg.QueueName)
	log.Info("starting video worker", "queue", q.Name())

	runCtx := shutdownMgr.Context()
	stopped := make(chan struct{})

	// Waits for the job in hand before the clients registered earlier close.
	shutdownMgr.Register("worker", func(ctx context.Context) error {
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		defer close(stopped)
		err := worker.Run(runCtx, worker.Deps{
			Queue:     q,
			Processor: a.Pipeline,
			Log:       log,
			Requeue:   cfg.RequeueOnFailure,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", "error", err.Error())
			shutdownMgr.Trigger()
		}
	}()

	if err := shutdownMgr.Wait(ctx); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
	}
}
