package handlers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"vidproc/internal/metrics"
	"vidproc/internal/pipeline"
	"vidproc/internal/pkg/logger"
	"vidproc/internal/ports"
	"vidproc/internal/worker/queue"
)

// Processor runs one video job. *pipeline.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, inputName string) (pipeline.Result, error)
}

type Deps struct {
	Processor Processor
	Metrics   *metrics.Metrics
	Log       *logger.Logger

	// Used by the deep health check. Pool and RDB are nil when the
	// ledger or the Redis lock are not configured.
	Storage         ports.StorageGateway
	RawBucket       string
	ProcessedBucket string
	Pool            *pgxpool.Pool
	RDB             *redis.Client
	// QueueName is reported as queue depth next to the Redis check.
	QueueName string
}

type Handler struct {
	processor Processor
	metrics   *metrics.Metrics
	log       *logger.Logger

	storage         ports.StorageGateway
	rawBucket       string
	processedBucket string
	pool            *pgxpool.Pool
	rdb             *redis.Client
	queue           *queue.RedisQueue
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	h := &Handler{
		processor:       d.Processor,
		metrics:         m,
		log:             log.WithComponent("httpapi"),
		storage:         d.Storage,
		rawBucket:       d.RawBucket,
		processedBucket: d.ProcessedBucket,
		pool:            d.Pool,
		rdb:             d.RDB,
	}
	if d.RDB != nil && d.QueueName != "" {
		h.queue = queue.NewRedisQueue(d.RDB, d.QueueName)
	}
	return h
}
