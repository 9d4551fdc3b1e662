package worker

import (
	"context"
	"time"

	"vidproc/internal/pipeline"
	"vidproc/internal/pkg/logger"
)

// Queue is the list the worker consumes. *queue.RedisQueue implements it.
type Queue interface {
	Pop(ctx context.Context, wait time.Duration) (string, error)
	Push(ctx context.Context, payload string) error
}

// Processor runs one video job. *pipeline.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, inputName string) (pipeline.Result, error)
}

type Deps struct {
	Queue     Queue
	Processor Processor
	Log       *logger.Logger

	// Requeue pushes failed payloads back onto the queue. Rejected payloads
	// and duplicates are never requeued.
	Requeue bool

	// PopWait is the BRPOP timeout. Defaults to 5s.
	PopWait time.Duration
	// RetryDelay is the pause after a queue error. Defaults to 1s.
	RetryDelay time.Duration
}
