// Package pipeline runs one video job: download the raw object, rescale it,
// upload the result and make it public. Both local scratch files are removed
// before Process returns, whichever stage failed.
package pipeline

import (
	"context"
	"time"

	"vidproc/internal/envelope"
	"vidproc/internal/ledger"
	"vidproc/internal/lock"
	"vidproc/internal/metrics"
	"vidproc/internal/pkg/errors"
	"vidproc/internal/pkg/logger"
	"vidproc/internal/ports"
	"vidproc/internal/scratch"
	"vidproc/internal/transcoder"
)

// Stage names, used in logs and metrics.
const (
	StageDownload  = "download"
	StageTranscode = "transcode"
	StageUpload    = "upload"
	StageCleanup   = "cleanup"
)

type Deps struct {
	Storage    ports.StorageGateway
	Transcoder transcoder.Transcoder
	Scratch    *scratch.Dirs

	RawBucket       string
	ProcessedBucket string

	// Scale defaults to 360p with automatic width.
	Scale transcoder.Scale
	// Timeout bounds download, transcode and upload together. Zero means none.
	Timeout time.Duration

	// Optional collaborators.
	Locker  lock.Locker
	Ledger  ledger.Recorder
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

type Pipeline struct {
	storage    ports.StorageGateway
	transcoder transcoder.Transcoder
	scratch    *scratch.Dirs

	rawBucket       string
	processedBucket string
	scale           transcoder.Scale
	timeout         time.Duration

	locker  lock.Locker
	ledger  ledger.Recorder
	metrics *metrics.Metrics
	log     *logger.Logger
}

// Result describes a finished job.
type Result struct {
	JobID      string
	InputName  string
	OutputName string
	Duration   time.Duration
}

func New(d Deps) *Pipeline {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	scale := d.Scale
	if scale == (transcoder.Scale{}) {
		scale = transcoder.Scale360p
	}
	rec := d.Ledger
	if rec == nil {
		rec = ledger.Nop{}
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	locker := d.Locker
	if locker == nil {
		locker = lock.NewMemory()
	}

	return &Pipeline{
		storage:         d.Storage,
		transcoder:      d.Transcoder,
		scratch:         d.Scratch,
		rawBucket:       d.RawBucket,
		processedBucket: d.ProcessedBucket,
		scale:           scale,
		timeout:         d.Timeout,
		locker:          locker,
		ledger:          rec,
		metrics:         m,
		log:             log.WithComponent("pipeline"),
	}
}

// Process runs the job for inputName. The returned error carries a code:
// BAD_REQUEST for names that cannot be staged locally, CONFLICT when the same
// name is already in flight, and DOWNLOAD_FAILED, TRANSCODE_FAILED or
// UPLOAD_FAILED for stage failures. Cleanup failures are logged, never returned.
func (p *Pipeline) Process(ctx context.Context, inputName string) (res Result, err error) {
	res = Result{InputName: inputName, OutputName: envelope.ProcessedName(inputName)}
	ctx = logger.ContextWithVideo(ctx, inputName)
	log := p.log.FromContext(ctx)

	rawPath, err := p.scratch.RawPath(res.InputName)
	if err != nil {
		p.metrics.JobFinished(metrics.OutcomeRejected)
		return res, err
	}
	processedPath, err := p.scratch.ProcessedPath(res.OutputName)
	if err != nil {
		p.metrics.JobFinished(metrics.OutcomeRejected)
		return res, err
	}

	release, ok, err := p.locker.TryLock(ctx, inputName)
	if err != nil {
		return res, errors.Wrap(err, "pipeline.lock", "failed to acquire job lock")
	}
	if !ok {
		log.Warn("video already in flight, rejecting duplicate")
		p.metrics.JobFinished(metrics.OutcomeConflict)
		return res, errors.Conflict("video is already being processed").WithField("video", inputName)
	}
	defer release()

	start := time.Now()
	p.metrics.JobStarted()
	defer p.metrics.JobDone()

	jobID, err := p.ledger.Start(ctx, res.InputName, res.OutputName)
	if err != nil {
		log.Warn("ledger start failed", "error", err.Error())
	}
	res.JobID = jobID
	ctx = logger.ContextWithJobID(ctx, jobID)
	log = p.log.FromContext(ctx)

	// Scratch files go away before the caller sees the outcome. The cleanup
	// context survives cancellation of the request.
	defer func() {
		p.cleanup(context.WithoutCancel(ctx), rawPath, processedPath)
		res.Duration = time.Since(start)
	}()

	stageCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	log.Info("job started", "raw_bucket", p.rawBucket, "processed_bucket", p.processedBucket)

	// 1. Download
	if err := p.download(stageCtx, res.InputName, rawPath); err != nil {
		return res, p.fail(ctx, jobID, errors.WrapWithCode(err, errors.CodeDownloadFailed, "pipeline.download", "failed to download raw video"))
	}

	// 2. Transcode
	if err := p.transcode(stageCtx, rawPath, processedPath); err != nil {
		return res, p.fail(ctx, jobID, errors.WrapWithCode(err, errors.CodeTranscodeFailed, "pipeline.transcode", "failed to transcode video"))
	}

	// 3. Upload and publish
	if err := p.upload(stageCtx, processedPath, res.OutputName); err != nil {
		return res, p.fail(ctx, jobID, errors.WrapWithCode(err, errors.CodeUploadFailed, "pipeline.upload", "failed to upload processed video"))
	}

	if err := p.ledger.Finish(context.WithoutCancel(ctx), jobID, ledger.StatusDone, ""); err != nil {
		log.Warn("ledger finish failed", "error", err.Error())
	}
	p.metrics.JobFinished(metrics.OutcomeSucceeded)
	log.Info("job completed", "output", res.OutputName, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (p *Pipeline) download(ctx context.Context, name, rawPath string) (err error) {
	defer p.observe(ctx, StageDownload, time.Now(), &err)

	if err := scratch.Prepare(rawPath); err != nil {
		return err
	}
	if err := p.storage.Download(ctx, p.rawBucket, name, rawPath); err != nil {
		return err
	}
	p.log.FromContext(ctx).Info("raw video downloaded", "bucket", p.rawBucket, "path", rawPath)
	return nil
}

func (p *Pipeline) transcode(ctx context.Context, rawPath, processedPath string) (err error) {
	defer p.observe(ctx, StageTranscode, time.Now(), &err)

	if err := scratch.Prepare(processedPath); err != nil {
		return err
	}
	if err := p.transcoder.Transcode(ctx, rawPath, processedPath, p.scale); err != nil {
		return err
	}
	p.log.FromContext(ctx).Info("video transcoded", "path", processedPath, "filter", p.scale.Filter())
	return nil
}

func (p *Pipeline) upload(ctx context.Context, processedPath, outputName string) (err error) {
	defer p.observe(ctx, StageUpload, time.Now(), &err)

	if err := p.storage.Upload(ctx, processedPath, p.processedBucket, outputName); err != nil {
		return err
	}
	p.log.FromContext(ctx).Info("processed video uploaded", "bucket", p.processedBucket, "object", outputName)

	if err := p.storage.MakePublic(ctx, p.processedBucket, outputName); err != nil {
		// A private leftover would look like a finished job; drop it.
		if derr := p.storage.Delete(context.WithoutCancel(ctx), p.processedBucket, outputName); derr != nil {
			p.log.FromContext(ctx).Warn("failed to delete unpublished object", "object", outputName, "error", derr.Error())
		}
		return errors.Wrap(err, "storage.make_public", "failed to make processed video public")
	}
	return nil
}

// cleanup deletes both scratch files concurrently. Errors are only logged.
func (p *Pipeline) cleanup(ctx context.Context, rawPath, processedPath string) {
	start := time.Now()
	err := p.scratch.RemoveAll(ctx, rawPath, processedPath)
	p.metrics.ObserveStage(StageCleanup, start, err)
	if err != nil {
		p.metrics.CleanupFailed()
		p.log.FromContext(ctx).Error("scratch cleanup failed", "code", string(errors.CodeCleanupFailed), "error", err.Error())
		return
	}
	p.log.FromContext(ctx).Debug("scratch cleanup completed")
}

func (p *Pipeline) observe(ctx context.Context, stage string, start time.Time, errp *error) {
	p.metrics.ObserveStage(stage, start, *errp)
	p.log.FromContext(ctx).Debug("stage finished",
		"stage", stage,
		"ok", *errp == nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (p *Pipeline) fail(ctx context.Context, jobID string, cause *errors.Error) error {
	log := p.log.FromContext(ctx)

	log.Error("job failed",
		"code", string(cause.Code),
		"op", cause.Op,
		"message", cause.Message,
		"error", cause.Error(),
	)

	if err := p.ledger.Finish(context.WithoutCancel(ctx), jobID, ledger.StatusFailed, cause.Error()); err != nil {
		log.Warn("ledger finish failed", "error", err.Error())
	}
	p.metrics.JobFinished(metrics.OutcomeFailed)
	return cause
}
