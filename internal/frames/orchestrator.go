package frames

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"renderpull/internal/config"
	"renderpull/internal/pkg/errors"
	"renderpull/internal/pkg/logger"
	"renderpull/internal/ports"
	"renderpull/internal/renderer"
)

// Options configures an Orchestrator.
type Options struct {
	BaseURL      string
	ResourcesURL string
	HTTPTimeout  time.Duration

	FreshnessWindow time.Duration
	JobsRetry       RetryPolicy
	FetchRetry      RetryPolicy
	PendingInterval time.Duration
	MaxPendingWaits int

	Store    ports.StorageProvider
	Clock    Clock
	Log      *logger.Logger
	Observer Observer

	// Connect builds the service client for a run. Defaults to renderer.NewClient.
	Connect func(Credentials) Service
}

// OptionsFromConfig maps configuration onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BaseURL:         cfg.BaseURL,
		ResourcesURL:    cfg.ResourcesURL,
		HTTPTimeout:     cfg.Timeout,
		FreshnessWindow: cfg.FreshnessWindow,
		JobsRetry: RetryPolicy{
			MaxAttempts: cfg.Retry.Attempts,
			BaseDelay:   cfg.Retry.JobsBackoff,
			Factor:      cfg.Retry.Factor,
			MaxDelay:    cfg.Retry.MaxBackoff,
		},
		FetchRetry: RetryPolicy{
			MaxAttempts: cfg.Retry.Attempts,
			BaseDelay:   cfg.Retry.FetchBackoff,
			Factor:      cfg.Retry.Factor,
			MaxDelay:    cfg.Retry.MaxBackoff,
		},
		PendingInterval: cfg.Retry.PendingInterval,
		MaxPendingWaits: cfg.Retry.MaxPendingWaits,
	}
}

// CredentialsFromConfig returns the credentials stored in cfg.
func CredentialsFromConfig(cfg config.Config) Credentials {
	return Credentials{User: cfg.User, Key: cfg.Key}
}

// Orchestrator downloads frame ranges with a bounded worker pool.
type Orchestrator struct {
	opts Options
	log  *logger.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Log == nil {
		opts.Log = logger.NewDefault()
	}
	if opts.Connect == nil {
		opts.Connect = func(c Credentials) Service {
			return renderer.NewClient(renderer.Options{
				BaseURL:      opts.BaseURL,
				ResourcesURL: opts.ResourcesURL,
				User:         c.User,
				Key:          c.Key,
				Timeout:      opts.HTTPTimeout,
			})
		}
	}
	return &Orchestrator{opts: opts, log: opts.Log}
}

// run is the state shared by the workers of one Run call.
type run struct {
	id      string
	req     RenderRequest
	log     *logger.Logger
	cache   *JobCache
	fetcher *Fetcher
}

// Run downloads every frame of req. A run ID already carried by ctx is
// reused; otherwise a new one is assigned.
//
// Only an invalid request or missing credentials return an error without a
// summary. Frame failures are reported in the summary. When ctx is cancelled
// the partial summary is returned, marked Cancelled, together with a
// CANCELLED error.
func (o *Orchestrator) Run(ctx context.Context, req RenderRequest, creds Credentials) (*Summary, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if o.opts.Store == nil {
		return nil, errors.New(errors.CodeInternal, "orchestrator has no frame store")
	}

	r := o.newRun(ctx, req, creds)
	ctx = logger.ContextWithRunID(ctx, r.id)
	start := o.opts.Clock.Now()

	workers := min(req.Concurrency, req.Frames())
	r.log.Info("starting render download",
		"start_frame", req.StartFrame,
		"end_frame", req.EndFrame,
		"pass", req.Pass,
		"width", req.Width,
		"height", req.Height,
		"workers", workers,
	)

	if err := r.cache.Refresh(ctx, false); err != nil && !errors.IsCancelled(err) {
		r.log.Warn("initial job list refresh failed, continuing without cached jobs", "error", err.Error())
	}

	summary := &Summary{RunID: r.id, SceneID: req.SceneID, Total: req.Frames()}
	for res := range r.dispatch(ctx, workers) {
		summary.add(res)
	}
	summary.sortResults()
	summary.Duration = o.opts.Clock.Now().Sub(start)
	summary.Cancelled = cancelled(summary)

	log := &logger.Logger{Logger: r.log.With("skipped", summary.Skipped, "downloaded", summary.Downloaded, "failed", summary.Failed, "duration", summary.Duration.String())}
	switch {
	case summary.Cancelled:
		log.Warn("render download cancelled", "dispatched", len(summary.Results))
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		return summary, errors.Cancelled(cause, "orchestrator.run")
	case summary.Failed > 0:
		log.Error("render download finished with failures")
	default:
		log.Success("render download complete")
	}
	return summary, nil
}

// cancelled reports whether cancellation cut the run short: frames were
// never dispatched, or a frame stopped on a cancelled context.
func cancelled(s *Summary) bool {
	if len(s.Results) < s.Total {
		return true
	}
	for _, res := range s.Results {
		if errors.IsCancelled(res.Err) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) newRun(ctx context.Context, req RenderRequest, creds Credentials) *run {
	log := o.log.FromContext(ctx)
	id := logger.RunIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
		log = log.WithRunID(id)
	}
	log = log.WithScene(req.SceneID)
	svc := o.opts.Connect(creds)

	cache := NewJobCache(svc, req.SceneID, CacheOptions{
		FreshnessWindow: o.opts.FreshnessWindow,
		Retry:           o.opts.JobsRetry,
		Clock:           o.opts.Clock,
		Log:             log,
	})

	fetcher := NewFetcher(FetcherOptions{
		Request:         req,
		Service:         svc,
		Cache:           cache,
		Store:           o.opts.Store,
		Retry:           o.opts.FetchRetry,
		PendingInterval: o.opts.PendingInterval,
		MaxPendingWaits: o.opts.MaxPendingWaits,
		Clock:           o.opts.Clock,
		Log:             log,
		Observer:        o.opts.Observer,
		RunID:           id,
	})

	return &run{id: id, req: req, log: log, cache: cache, fetcher: fetcher}
}

// dispatch feeds frames to a pool of workers. Workers pull the next frame as
// soon as they finish one. The returned channel is closed once every
// dispatched frame has a result.
func (r *run) dispatch(ctx context.Context, workers int) <-chan FrameResult {
	frames := make(chan int)
	results := make(chan FrameResult)

	go func() {
		defer close(frames)
		for f := r.req.StartFrame; ; f++ {
			if ctx.Err() != nil {
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
			if f == r.req.EndFrame {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.log.Debug("worker started", "worker", id)
			for f := range frames {
				results <- r.fetcher.Fetch(ctx, f)
			}
			r.log.Debug("worker finished", "worker", id)
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
