package handlers

import (
	"io"
	"net/http"

	"vidproc/internal/envelope"
	"vidproc/internal/httpkit"
	"vidproc/internal/metrics"
	"vidproc/internal/pkg/errors"
)

// Response bodies of POST /process-video.
const (
	MsgBadRequest = "Bad request: missing filename"
	MsgConflict   = "Video is already being processed"
	MsgFailed     = "Error processing video"
	MsgCompleted  = "Processing completed successfully"
)

// ProcessVideo handles a push notification for one raw video. It answers only
// after the job has finished, so a non-2xx status makes the sender redeliver.
func (h *Handler) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Warn("failed to read push body", "error", err.Error())
		h.metrics.JobFinished(metrics.OutcomeRejected)
		httpkit.WriteText(w, http.StatusBadRequest, MsgBadRequest)
		return
	}

	n, err := envelope.Decode(body)
	if err != nil {
		log.Warn("rejected push message", "error", err.Error())
		h.metrics.JobFinished(metrics.OutcomeRejected)
		httpkit.WriteText(w, http.StatusBadRequest, MsgBadRequest)
		return
	}

	log.Info("push message received",
		"video", n.Name,
		"message_id", n.MessageID,
		"subscription", n.Subscription,
	)

	res, err := h.processor.Process(ctx, n.Name)
	switch {
	case err == nil:
		log.Info("video processed", "video", n.Name, "output", res.OutputName, "job_id", res.JobID, "duration_ms", res.Duration.Milliseconds())
		httpkit.WriteText(w, http.StatusOK, MsgCompleted)
	case errors.IsBadRequest(err):
		log.Warn("rejected video name", "video", n.Name, "error", err.Error())
		httpkit.WriteText(w, http.StatusBadRequest, MsgBadRequest)
	case errors.IsCode(err, errors.CodeConflict):
		httpkit.WriteText(w, http.StatusConflict, MsgConflict)
	default:
		// stage failures were logged by the pipeline
		if !errors.IsStageFailure(err) {
			h.log.LogError(ctx, "video processing failed", err, failureAttrs(n.Name, err)...)
		}
		httpkit.WriteText(w, http.StatusInternalServerError, MsgFailed)
	}
}

// failureAttrs adds the error's fields, and the stack for internal errors.
func failureAttrs(name string, err error) []any {
	args := []any{"video", name, "code", string(errors.GetCode(err))}
	if fields := errors.GetFields(err); fields != nil {
		args = append(args, "fields", fields)
	}
	var e *errors.Error
	if errors.As(err, &e) && e.Code == errors.CodeInternal {
		if stack := e.StackTrace(); stack != "" {
			args = append(args, "stack", stack)
		}
	}
	return args
}
