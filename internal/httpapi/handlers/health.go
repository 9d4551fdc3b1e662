package handlers

import (
	"context"
	"net/http"
	"time"

	"vidproc/internal/httpkit"
	"vidproc/internal/ports"
)

const checkTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true it also checks the configured
// dependencies and reports "degraded" when one of them fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": "video-processing",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for name, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "check", name, "error", check["error"])
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := map[string]map[string]any{
		"storage": h.checkStorage(ctx),
	}
	if h.pool != nil {
		checks["postgres"] = h.checkPostgres(ctx)
	}
	if h.rdb != nil {
		checks["redis"] = h.checkRedis(ctx)
	}
	return checks
}

func (h *Handler) checkPostgres(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.pool.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	} else {
		stats := h.pool.Stat()
		result["total_conns"] = stats.TotalConns()
		result["idle_conns"] = stats.IdleConns()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkRedis(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.rdb.Ping(checkCtx).Err(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	} else if h.queue != nil {
		if n, err := h.queue.Len(checkCtx); err == nil {
			result["queue"] = h.queue.Name()
			result["queue_depth"] = n
		}
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

// checkStorage pings both buckets when the gateway supports it.
func (h *Handler) checkStorage(ctx context.Context) map[string]any {
	result := map[string]any{"status": "ok"}
	if h.storage == nil {
		result["status"] = "error"
		result["error"] = "no storage gateway configured"
		return result
	}
	result["provider"] = h.storage.Provider()

	p, ok := h.storage.(ports.Pinger)
	if !ok {
		return result
	}

	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	for _, bucket := range []string{h.rawBucket, h.processedBucket} {
		if err := p.Ping(checkCtx, bucket); err != nil {
			result["status"] = "error"
			result["error"] = err.Error()
			break
		}
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
