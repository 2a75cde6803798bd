package worker

import (
	"context"
	"time"

	"renderpull/internal/frames"
	"renderpull/internal/pkg/errors"
	"renderpull/internal/pkg/logger"
	"renderpull/internal/worker/queue"
)

// Source yields queued render requests.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Message, error)
}

// Runner executes one render request.
type Runner interface {
	Run(ctx context.Context, req frames.RenderRequest, creds frames.Credentials) (*frames.Summary, error)
}

// Run pops requests from d.Queue and runs them one at a time until ctx is
// cancelled. A run interrupted by cancellation is recorded as cancelled.
func Run(ctx context.Context, d Deps) error {
	d = d.withDefaults()
	log := d.Log.WithComponent("worker")

	log.Info("worker started", "pop_timeout", d.PopTimeout.String())
	for {
		if ctx.Err() != nil {
			log.Info("worker context cancelled, stopping")
			return ctx.Err()
		}

		msg, err := d.Queue.Pop(ctx, d.PopTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.IsCancelled(err) {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}
			if errors.IsValidation(err) {
				log.Warn("dropping malformed queue message", "error", err.Error())
				continue
			}

			log.Warn("queue pop error, retrying", "error", err.Error(), "delay", d.ErrorBackoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.ErrorBackoff):
			}
			continue
		}
		if msg == nil {
			continue
		}

		process(ctx, d, log, msg)
	}
}

func process(ctx context.Context, d Deps, log *logger.Logger, msg *queue.Message) {
	runCtx := logger.ContextWithRunID(ctx, msg.ID)
	runLog := log.WithRunID(msg.ID).WithScene(msg.Request.SceneID)

	runLog.Info("processing render request",
		"start_frame", msg.Request.StartFrame,
		"end_frame", msg.Request.EndFrame,
		"queued_for", time.Since(msg.EnqueuedAt).Round(time.Millisecond).String(),
	)
	d.Registry.Start(msg.ID, msg.Request)
	start := time.Now()

	summary, err := d.Runner.Run(runCtx, msg.Request, d.Credentials)
	d.Registry.Finish(msg.ID, summary, err)

	switch {
	case errors.IsCancelled(err):
		runLog.Warn("render request cancelled", "duration_ms", time.Since(start).Milliseconds())
	case err != nil:
		runLog.Error("render request failed", "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
	case !summary.OK():
		runLog.Error("render request finished with failed frames", "failed", summary.Failed, "duration_ms", time.Since(start).Milliseconds())
	default:
		runLog.Success("render request completed", "duration_ms", time.Since(start).Milliseconds())
	}
}
