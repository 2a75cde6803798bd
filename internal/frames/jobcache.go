package frames

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"renderpull/internal/pkg/errors"
	"renderpull/internal/pkg/logger"
	"renderpull/internal/renderer"
)

// DefaultFreshnessWindow is how long a job list is reused without refreshing.
const DefaultFreshnessWindow = 15 * time.Second

// JobLister lists the render jobs of a scene.
type JobLister interface {
	ListJobs(ctx context.Context, sceneID string) ([]renderer.Job, error)
}

// CacheOptions configures a JobCache.
type CacheOptions struct {
	FreshnessWindow time.Duration
	Retry           RetryPolicy
	Clock           Clock
	Log             *logger.Logger
}

// JobCache holds the latest job list of one scene.
//
// Refreshes are coalesced: concurrent callers share a single in-flight
// request. The job slice is replaced, never mutated, so Snapshot is cheap.
type JobCache struct {
	lister  JobLister
	sceneID string
	window  time.Duration
	retry   RetryPolicy
	clock   Clock
	log     *logger.Logger

	group singleflight.Group

	mu        sync.RWMutex
	jobs      []renderer.Job
	refreshed time.Time
}

// NewJobCache creates an empty cache for sceneID.
func NewJobCache(lister JobLister, sceneID string, opts CacheOptions) *JobCache {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = DefaultFreshnessWindow
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &JobCache{
		lister:  lister,
		sceneID: sceneID,
		window:  opts.FreshnessWindow,
		retry:   opts.Retry,
		clock:   opts.Clock,
		log:     opts.Log.WithComponent("jobcache"),
	}
}

// Snapshot returns the current job list. Callers must not modify it.
func (c *JobCache) Snapshot() []renderer.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobs
}

// LastRefreshed returns the time of the last successful refresh.
func (c *JobCache) LastRefreshed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}

// Refresh reloads the job list unless force is false and the current list is
// younger than the freshness window.
//
// Transport and 5xx failures are retried with the cache's RetryPolicy. An
// empty or non-JSON job list leaves the cache unchanged and returns nil.
func (c *JobCache) Refresh(ctx context.Context, force bool) error {
	if !force && c.fresh() {
		c.log.Debug("job list fresh enough", "scene", c.sceneID)
		return nil
	}

	ch := c.group.DoChan(c.sceneID, func() (any, error) {
		return nil, c.load(ctx)
	})

	select {
	case <-ctx.Done():
		return errors.Cancelled(ctx.Err(), "jobcache.refresh")
	case res := <-ch:
		return res.Err
	}
}

func (c *JobCache) fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.refreshed.IsZero() && c.clock.Now().Sub(c.refreshed) < c.window
}

func (c *JobCache) load(ctx context.Context) error {
	const op = "jobcache.refresh"

	for attempt := 1; ; attempt++ {
		jobs, err := c.lister.ListJobs(ctx, c.sceneID)
		if err == nil {
			c.mu.Lock()
			c.jobs = jobs
			c.refreshed = c.clock.Now()
			c.mu.Unlock()
			c.log.Debug("job list refreshed", "scene", c.sceneID, "jobs", len(jobs))
			return nil
		}

		switch {
		case errors.IsCode(err, errors.CodeEmptyResponse):
			c.log.Warn("unexpected job list response, keeping cached jobs", "scene", c.sceneID, "error", err.Error())
			return nil
		case errors.IsCancelled(err) || ctx.Err() != nil:
			return errors.Cancelled(err, op)
		case !errors.Retryable(err):
			return errors.Wrap(err, op, "list jobs")
		case c.retry.Exhausted(attempt):
			return errors.Wrap(err, op, "job list unavailable").WithField("attempts", attempt)
		}

		delay := c.retry.Delay(attempt)
		c.log.Warn("job list request failed, retrying",
			"scene", c.sceneID,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error(),
		)
		if err := c.clock.Sleep(ctx, delay); err != nil {
			return errors.Cancelled(err, op)
		}
	}
}
