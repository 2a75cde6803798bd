package frames

import (
	"bytes"
	"context"
	"time"

	"renderpull/internal/pkg/errors"
	"renderpull/internal/pkg/logger"
	"renderpull/internal/ports"
	"renderpull/internal/renderer"
)

// DefaultPendingInterval is the wait between job list checks while a matching
// render job is still working.
const DefaultPendingInterval = 30 * time.Second

// Service is the part of the render service used to acquire frames.
type Service interface {
	JobLister
	Render(ctx context.Context, sceneID string, q renderer.RenderQuery) (*renderer.Payload, error)
	Resource(ctx context.Context, hash string) (*renderer.Payload, error)
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Request         RenderRequest
	Service         Service
	Cache           *JobCache
	Store           ports.StorageProvider
	Retry           RetryPolicy
	PendingInterval time.Duration
	// MaxPendingWaits bounds the pending waits of one frame. Zero waits forever.
	MaxPendingWaits int
	Clock           Clock
	Log             *logger.Logger
	Observer        Observer
	RunID           string
}

// Fetcher resolves and stores single frames.
type Fetcher struct {
	req             RenderRequest
	svc             Service
	cache           *JobCache
	store           ports.StorageProvider
	retry           RetryPolicy
	pendingInterval time.Duration
	maxPendingWaits int
	clock           Clock
	log             *logger.Logger
	observer        Observer
	runID           string
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.PendingInterval <= 0 {
		opts.PendingInterval = DefaultPendingInterval
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Fetcher{
		req:             opts.Request.WithDefaults(),
		svc:             opts.Service,
		cache:           opts.Cache,
		store:           opts.Store,
		retry:           opts.Retry,
		pendingInterval: opts.PendingInterval,
		maxPendingWaits: opts.MaxPendingWaits,
		clock:           opts.Clock,
		log:             opts.Log.WithComponent("fetcher"),
		observer:        opts.Observer,
		runID:           opts.RunID,
	}
}

type state int

const (
	stateResolving state = iota
	statePendingWait
	stateDownloading
	stateRetrying
)

// frameJob is the working state of one Fetch call.
type frameJob struct {
	frame    int
	key      string
	log      *logger.Logger
	source   ArtifactSource
	failures int
	waits    int
	lastErr  error
	result   FrameResult
}

// Fetch acquires one frame. It never returns an error; failures are reported
// in the result.
func (f *Fetcher) Fetch(ctx context.Context, frame int) FrameResult {
	key := f.req.FileName(frame)
	j := &frameJob{
		frame:  frame,
		key:    key,
		log:    f.log.WithFrame(frame),
		result: FrameResult{Frame: frame, Path: key},
	}

	info, err := f.store.StatObject(ctx, key)
	switch {
	case err == nil && info.Size > 0:
		j.log.Warn("skipping frame, already downloaded", "file", key)
		j.result.Outcome = OutcomeSkipped
		j.result.Bytes = info.Size
		f.emit(Event{Frame: frame, Phase: PhaseSkipping, Outcome: OutcomeSkipped, Path: key, Bytes: info.Size})
		return j.result
	case err == nil:
		j.log.Warn("frame file is empty, redownloading", "file", key)
	case errors.IsCode(err, errors.CodeNotFound):
	default:
		return f.fail(j, errors.Wrap(err, "fetch.stat", "check existing frame"))
	}

	st := stateResolving
	for {
		if ctx.Err() != nil {
			return f.fail(j, errors.Cancelled(ctx.Err(), "fetch"))
		}

		switch st {
		case stateResolving:
			st = f.resolve(ctx, j)

		case statePendingWait:
			j.waits++
			if f.maxPendingWaits > 0 && j.waits > f.maxPendingWaits {
				e := errors.Newf(errors.CodeTimeout, "render still pending after %d waits", f.maxPendingWaits)
				e.Op = "fetch.pending"
				return f.fail(j, e)
			}
			j.log.Info("render pending, waiting", "delay", f.pendingInterval.String(), "wait", j.waits)
			f.emit(Event{Frame: frame, Phase: PhaseWaiting, Path: key, Attempt: j.waits, Delay: f.pendingInterval})
			if err := f.pause(ctx, j, f.pendingInterval); err != nil {
				return f.fail(j, err)
			}
			st = stateResolving

		case stateDownloading:
			j.result.Attempts++
			j.log.Info("downloading frame", "file", key, "source", j.source.Kind.String(), "attempt", j.result.Attempts)
			f.emit(Event{Frame: frame, Phase: PhaseDownloading, Path: key, Attempt: j.result.Attempts})

			n, err := f.download(ctx, j)
			if err == nil {
				j.result.Outcome = OutcomeDownloaded
				j.result.Bytes = n
				j.log.Success("downloaded frame", "file", key, "bytes", n)
				f.emit(Event{Frame: frame, Phase: PhaseDownloaded, Outcome: OutcomeDownloaded, Path: key, Bytes: n, Attempt: j.result.Attempts})
				return j.result
			}
			if ctx.Err() != nil || errors.IsCancelled(err) {
				return f.fail(j, errors.Cancelled(err, "fetch"))
			}
			if !errors.Retryable(err) {
				return f.fail(j, err)
			}
			j.failures++
			j.lastErr = err
			if f.retry.Exhausted(j.failures) {
				return f.fail(j, errors.Wrap(err, "fetch", "retries exhausted").WithField("attempts", j.failures))
			}
			st = stateRetrying

		case stateRetrying:
			delay := f.retry.Delay(j.failures)
			j.log.Warn("frame download failed, retrying",
				"attempt", j.failures,
				"delay", delay.String(),
				"error", j.lastErr.Error(),
			)
			f.emit(Event{Frame: frame, Phase: PhaseRetrying, Path: key, Attempt: j.failures, Delay: delay, Err: j.lastErr})
			if err := f.pause(ctx, j, delay); err != nil {
				return f.fail(j, err)
			}
			st = stateResolving
		}
	}
}

// resolve selects the artifact source from the cached job list.
func (f *Fetcher) resolve(ctx context.Context, j *frameJob) state {
	f.emit(Event{Frame: j.frame, Phase: PhaseResolving, Path: j.key})

	if err := f.cache.Refresh(ctx, false); err != nil && !errors.IsCancelled(err) {
		j.log.Warn("job list refresh failed, using cached jobs", "error", err.Error())
	}

	matches := Match(f.cache.Snapshot(), j.frame, f.req.Width, f.req.Height)
	src, pending := SelectSource(matches, f.req.Format)
	j.source = src

	if src.Kind == SourceFreshRender && pending > 0 {
		return statePendingWait
	}
	return stateDownloading
}

// pause waits and then forces a job list refresh so the next resolution sees
// current job states.
func (f *Fetcher) pause(ctx context.Context, j *frameJob, d time.Duration) error {
	if err := f.clock.Sleep(ctx, d); err != nil {
		return errors.Cancelled(err, "fetch.wait")
	}
	if err := f.cache.Refresh(ctx, true); err != nil {
		if errors.IsCancelled(err) {
			return err
		}
		j.log.Warn("job list refresh failed, using cached jobs", "error", err.Error())
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, j *frameJob) (int64, error) {
	var (
		p   *renderer.Payload
		err error
	)
	switch j.source.Kind {
	case SourceCached:
		p, err = f.svc.Resource(ctx, j.source.Hash)
	default:
		p, err = f.svc.Render(ctx, f.req.SceneID, renderer.RenderQuery{
			Time:   j.frame,
			Pass:   f.req.Pass,
			Width:  f.req.Width,
			Height: f.req.Height,
		})
	}
	if err != nil {
		return 0, err
	}

	if err := validatePayload(p); err != nil {
		return 0, err
	}

	out, err := f.store.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   j.key,
		ContentType: p.ContentType,
		Reader:      bytes.NewReader(p.Body),
		Size:        int64(len(p.Body)),
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, errors.Cancelled(ctx.Err(), "fetch.store")
		}
		return 0, errors.WrapWithCode(err, errors.CodeInternal, "fetch.store", "write "+j.key)
	}
	return out.Size, nil
}

// validatePayload rejects bodies that must not be written as a frame.
func validatePayload(p *renderer.Payload) error {
	const op = "fetch.validate"

	if !renderer.IsImage(p.ContentType) || len(p.Body) == 0 {
		e := errors.Newf(errors.CodeEmptyResponse, "empty response (content type %q, %d bytes)", p.ContentType, len(p.Body))
		e.Op = op
		return e
	}
	if p.ContentLength >= 0 && p.ContentLength != int64(len(p.Body)) {
		return errors.PartialTransfer(op, p.ContentLength, int64(len(p.Body)))
	}
	return nil
}

func (f *Fetcher) fail(j *frameJob, err error) FrameResult {
	j.result.Outcome = OutcomeFailed
	j.result.Err = err
	if errors.IsCancelled(err) {
		j.log.Warn("frame cancelled", "file", j.key)
	} else {
		j.log.Error("frame failed", "file", j.key, "error", err.Error())
	}
	f.emit(Event{Frame: j.frame, Phase: PhaseFailed, Outcome: OutcomeFailed, Path: j.key, Attempt: j.result.Attempts, Err: err})
	return j.result
}

func (f *Fetcher) emit(e Event) {
	if f.observer == nil {
		return
	}
	e.RunID = f.runID
	e.Time = f.clock.Now()
	f.observer.Observe(e)
}
