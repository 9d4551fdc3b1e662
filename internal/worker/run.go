// Package worker is the pull-mode consumer: it pops base64 message.data
// payloads from a queue and runs them through the same pipeline as the push
// endpoint.
package worker

import (
	"context"
	"time"

	"vidproc/internal/envelope"
	"vidproc/internal/pkg/errors"
	"vidproc/internal/pkg/logger"
)

// Outcome of one payload.
type Outcome string

const (
	OutcomeDone     Outcome = "done"
	OutcomeRejected Outcome = "rejected"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
	OutcomeRequeued Outcome = "requeued"
)

// Run consumes until ctx is canceled. A job that has started is finished
// even if ctx ends meanwhile; the caller bounds that with its shutdown timeout.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	wait := d.PopWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	retry := d.RetryDelay
	if retry <= 0 {
		retry = time.Second
	}

	log.Info("worker started", "requeue_on_failure", d.Requeue)

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		payload, err := d.Queue.Pop(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}

			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-time.After(retry):
			case <-ctx.Done():
			}
			continue
		}

		if payload == "" {
			continue
		}

		Handle(context.WithoutCancel(ctx), d, log, payload)
	}
}

// Handle processes one payload and reports what happened to it.
func Handle(ctx context.Context, d Deps, log *logger.Logger, payload string) Outcome {
	n, err := envelope.DecodeData(payload)
	if err != nil {
		log.Warn("dropping invalid payload", "error", err.Error())
		return OutcomeRejected
	}

	ctx = logger.ContextWithVideo(ctx, n.Name)
	jobLog := log.FromContext(ctx)
	jobLog.Info("processing job")

	res, err := d.Processor.Process(ctx, n.Name)
	switch {
	case err == nil:
		jobLog.Info("job completed",
			"output", res.OutputName,
			"job_id", res.JobID,
			"duration_ms", res.Duration.Milliseconds(),
		)
		return OutcomeDone
	case errors.IsBadRequest(err):
		jobLog.Warn("dropping job with unusable name", "error", err.Error())
		return OutcomeRejected
	case errors.IsCode(err, errors.CodeConflict):
		jobLog.Info("video already in flight elsewhere, dropping duplicate")
		return OutcomeConflict
	}

	jobLog.Error("job failed",
		"code", string(errors.GetCode(err)),
		"error", err.Error(),
		"duration_ms", res.Duration.Milliseconds(),
	)
	if !d.Requeue {
		return OutcomeFailed
	}
	if err := d.Queue.Push(ctx, payload); err != nil {
		jobLog.Error("failed to requeue job", "error", err.Error())
		return OutcomeFailed
	}
	jobLog.Info("job requeued")
	return OutcomeRequeued
}
