package worker

import (
	"slices"
	"sync"
	"time"

	"renderpull/internal/frames"
	"renderpull/internal/pkg/errors"
)

// State is the lifecycle state of a queued run.
type State string

const (
	StateRunning   State = "running"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// RunRecord is what the status API reports about one run.
type RunRecord struct {
	ID         string               `json:"id"`
	State      State                `json:"state"`
	Request    frames.RenderRequest `json:"request"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Done       int                  `json:"done"`
	Skipped    int                  `json:"skipped"`
	Downloaded int                  `json:"downloaded"`
	Failed     int                  `json:"failed"`
	Total      int                  `json:"total"`
	Error      string               `json:"error,omitempty"`
}

// Registry keeps the most recent runs in memory. It is also a frames.Observer
// so running records count frames as they finish.
type Registry struct {
	mu    sync.RWMutex
	runs  map[string]*RunRecord
	order []string
	limit int
	now   func() time.Time
}

// DefaultRegistryLimit is the number of runs a Registry remembers.
const DefaultRegistryLimit = 100

func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultRegistryLimit
	}
	return &Registry{runs: make(map[string]*RunRecord), limit: limit, now: time.Now}
}

// Start records a run as running. Starting an ID that is already recorded
// replaces its record and keeps its position.
func (r *Registry) Start(id string, req frames.RenderRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req = req.WithDefaults()
	_, seen := r.runs[id]
	r.runs[id] = &RunRecord{
		ID:        id,
		State:     StateRunning,
		Request:   req,
		StartedAt: r.now().UTC(),
		Total:     req.Frames(),
	}
	if seen {
		return
	}
	r.order = append(r.order, id)
	for len(r.order) > r.limit {
		delete(r.runs, r.order[0])
		r.order = r.order[1:]
	}
}

// Finish stores the outcome of a run.
func (r *Registry) Finish(id string, summary *frames.Summary, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[id]
	if !ok {
		return
	}
	finished := r.now().UTC()
	rec.FinishedAt = &finished

	if summary != nil {
		rec.Skipped = summary.Skipped
		rec.Downloaded = summary.Downloaded
		rec.Failed = summary.Failed
		rec.Done = len(summary.Results)
	}

	switch {
	case errors.IsCancelled(err) || (summary != nil && summary.Cancelled):
		rec.State = StateCancelled
	case err != nil:
		rec.State = StateFailed
		rec.Error = err.Error()
	case summary != nil && !summary.OK():
		rec.State = StateFailed
	default:
		rec.State = StateDone
	}
}

// Observe counts finished frames of running records.
func (r *Registry) Observe(e frames.Event) {
	if e.Outcome == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[e.RunID]
	if !ok || rec.State != StateRunning {
		return
	}
	rec.Done++
	switch e.Outcome {
	case frames.OutcomeSkipped:
		rec.Skipped++
	case frames.OutcomeDownloaded:
		rec.Downloaded++
	case frames.OutcomeFailed:
		rec.Failed++
	}
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.runs[id]
	if !ok {
		e := errors.Newf(errors.CodeNotFound, "run %s not found", id)
		e.Op = "registry.get"
		return RunRecord{}, e
	}
	return *rec, nil
}

// List returns all records, most recent first.
func (r *Registry) List() []RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RunRecord, 0, len(r.order))
	for _, id := range slices.Backward(r.order) {
		if rec, ok := r.runs[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}
