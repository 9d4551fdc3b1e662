package main

import (
	"context"
	"net/http"
	"time"

	"vidproc/internal/app"
	"vidproc/internal/config"
	"vidproc/internal/httpapi"
	"vidproc/internal/pkg/logger"
	"vidproc/internal/pkg/shutdown"
)

func main() {
	dotenvErr := config.LoadDotenv()

	log := logger.NewDefault()
	if dotenvErr != nil {
		log.Warn("failed to load .env", "error", dotenvErr.Error())
	}

	cfg := config.Load()
	log.Info("starting video processing service", "port", cfg.Port)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	a, err := app.New(ctx, cfg, log, shutdownMgr)
	if err != nil {
		_ = shutdownMgr.Shutdown()
		log.LogFatal("failed to initialize service", err)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Processor:       a.Pipeline,
		Metrics:         a.Metrics,
		Log:             log,
		Storage:         a.Storage,
		RawBucket:       cfg.RawBucket,
		ProcessedBucket: cfg.ProcessedBucket,
		Pool:            a.Pool,
		RDB:             a.RDB,
		QueueName:       cfg.QueueName,
		MaxBodyBytes:    cfg.MaxBodyBytes,
	})

	// No WriteTimeout: the response is only sent once the transcode is done.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Registered last so it drains in-flight jobs before clients close.
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "error", err.Error())
			shutdownMgr.Trigger()
		}
	}()

	if err := shutdownMgr.Wait(ctx); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
	}
}
