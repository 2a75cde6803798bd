// Package progress prints human-readable progress of a render run.
//
// A Reporter is a frames.Observer:
//
//	reporter := progress.NewReporter(progress.Options{TotalFrames: n, Output: os.Stderr})
//	reporter.Start()
//	defer reporter.Stop()
//
// Output:
//
//	[renderpull] Scene: base | Frames: 1-240 | Workers: 3
//	[renderpull] Progress: 41.7% | 100/240 frames | 62 downloaded | 38 skipped | 0 failed | 1.20 MB
//	[renderpull] Done in 3m 12s: 202 downloaded, 38 skipped, 0 failed, 4 retries
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"renderpull/internal/frames"
)

// Options configures the progress reporter.
type Options struct {
	SceneName   string
	StartFrame  int
	EndFrame    int
	TotalFrames int
	Workers     int

	// Output defaults to os.Stdout.
	Output io.Writer

	// UpdateInterval defaults to 1s.
	UpdateInterval time.Duration
}

// Reporter counts frame outcomes from engine events and prints them
// periodically.
type Reporter struct {
	opts Options

	skipped    atomic.Int32
	downloaded atomic.Int32
	failed     atomic.Int32
	retries    atomic.Int32
	waits      atomic.Int32
	bytes      atomic.Int64

	mu        sync.Mutex
	startTime time.Time
	started   bool
	stopped   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = time.Second
	}
	if opts.TotalFrames == 0 && opts.EndFrame >= opts.StartFrame {
		opts.TotalFrames = opts.EndFrame - opts.StartFrame + 1
	}
	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start prints the header and begins periodic updates.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.startTime = time.Now()

	fmt.Fprintf(r.opts.Output, "[renderpull] Scene: %s | Frames: %d-%d | Workers: %d\n",
		r.opts.SceneName, r.opts.StartFrame, r.opts.EndFrame, r.opts.Workers)

	go r.updateLoop()
}

// Stop ends periodic updates and prints the final line. It waits until the
// final line is written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// Observe implements frames.Observer.
func (r *Reporter) Observe(e frames.Event) {
	switch e.Phase {
	case frames.PhaseRetrying:
		r.retries.Add(1)
	case frames.PhaseWaiting:
		r.waits.Add(1)
	}

	switch e.Outcome {
	case frames.OutcomeSkipped:
		r.skipped.Add(1)
	case frames.OutcomeDownloaded:
		r.downloaded.Add(1)
		r.bytes.Add(e.Bytes)
	case frames.OutcomeFailed:
		r.failed.Add(1)
	}
}

// Completed returns the number of frames with a final outcome.
func (r *Reporter) Completed() int {
	return int(r.skipped.Load() + r.downloaded.Load() + r.failed.Load())
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	completed := r.Completed()

	var percent float64
	if r.opts.TotalFrames > 0 {
		percent = float64(completed) / float64(r.opts.TotalFrames) * 100
	}

	fmt.Fprintf(r.opts.Output, "[renderpull] Progress: %.1f%% | %d/%d frames | %d downloaded | %d skipped | %d failed | %s\n",
		percent,
		completed,
		r.opts.TotalFrames,
		r.downloaded.Load(),
		r.skipped.Load(),
		r.failed.Load(),
		FormatBytes(r.bytes.Load()),
	)
}

func (r *Reporter) printFinalStatus() {
	fmt.Fprintf(r.opts.Output, "[renderpull] Done in %s: %d downloaded, %d skipped, %d failed, %d retries\n",
		formatDuration(time.Since(r.startTime)),
		r.downloaded.Load(),
		r.skipped.Load(),
		r.failed.Load(),
		r.retries.Load(),
	)
}

// FormatBytes formats b with binary units.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
