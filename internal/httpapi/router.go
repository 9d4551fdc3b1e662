package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"vidproc/internal/httpapi/handlers"
	"vidproc/internal/metrics"
	"vidproc/internal/pkg/logger"
	"vidproc/internal/pkg/middleware"
	"vidproc/internal/ports"
)

type Deps struct {
	Processor handlers.Processor
	Metrics   *metrics.Metrics
	Log       *logger.Logger

	Storage         ports.StorageGateway
	RawBucket       string
	ProcessedBucket string
	Pool            *pgxpool.Pool
	RDB             *redis.Client
	QueueName       string

	// MaxBodyBytes caps push bodies. Zero disables the limit.
	MaxBodyBytes int64
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))

	h := handlers.New(handlers.Deps{
		Processor:       d.Processor,
		Metrics:         m,
		Log:             log,
		Storage:         d.Storage,
		RawBucket:       d.RawBucket,
		ProcessedBucket: d.ProcessedBucket,
		Pool:            d.Pool,
		RDB:             d.RDB,
		QueueName:       d.QueueName,
	})

	// ---- PUSH ----
	r.With(middleware.MaxBody(d.MaxBodyBytes)).Post("/process-video", h.ProcessVideo)

	// ---- OPS ----
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	return r
}
