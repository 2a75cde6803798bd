package frames

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"renderpull/internal/pkg/errors"
)

// DefaultConcurrency is the worker count used when a request leaves it unset.
const DefaultConcurrency = 3

// DefaultFormat is the output image format.
const DefaultFormat = "png"

// MaxFrames is the largest frame range a single request may cover.
const MaxFrames = 1_000_000

// RenderRequest describes a frame range to acquire.
type RenderRequest struct {
	SceneID     string `json:"scene_id"`
	SceneName   string `json:"scene_name"`
	Pass        string `json:"pass"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	StartFrame  int    `json:"start_frame"`
	EndFrame    int    `json:"end_frame"`
	Format      string `json:"format,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
}

// WithDefaults fills the optional fields.
func (r RenderRequest) WithDefaults() RenderRequest {
	if r.Format == "" {
		r.Format = DefaultFormat
	}
	if r.Concurrency <= 0 {
		r.Concurrency = DefaultConcurrency
	}
	if r.SceneName == "" {
		r.SceneName = r.SceneID
	}
	return r
}

// Validate reports the first problem with the request as a validation error.
func (r RenderRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.SceneID) == "":
		return errors.ValidationField("scene_id", "scene identifier is required")
	case strings.TrimSpace(r.Pass) == "":
		return errors.ValidationField("pass", "pass is required")
	case r.Width <= 0 || r.Height <= 0:
		return errors.Validationf("invalid dimensions %dx%d", r.Width, r.Height)
	case r.EndFrame < r.StartFrame:
		return errors.Validationf("invalid frame range %d..%d", r.StartFrame, r.EndFrame)
	case uint64(r.EndFrame)-uint64(r.StartFrame) >= MaxFrames:
		return errors.Validationf("frame range %d..%d exceeds %d frames", r.StartFrame, r.EndFrame, MaxFrames)
	case strings.ContainsAny(r.Format, `/\ `):
		return errors.ValidationField("format", fmt.Sprintf("invalid format %q", r.Format))
	case strings.ContainsAny(r.SceneName, `/\`):
		return errors.ValidationField("scene_name", "scene name must not contain path separators")
	}
	return nil
}

// Frames returns the number of frames in the range. It is only meaningful
// for a request that passed Validate.
func (r RenderRequest) Frames() int {
	return r.EndFrame - r.StartFrame + 1
}

// FileName returns the output object name of a frame.
func (r RenderRequest) FileName(frame int) string {
	return fmt.Sprintf("%s_%dx%d_%04d.%s", r.SceneName, r.Width, r.Height, frame, r.Format)
}

// Credentials authenticate against the render service.
type Credentials struct {
	User string
	Key  string
}

func (c Credentials) Validate() error {
	if c.User == "" || c.Key == "" {
		return errors.Validation("username or API key not found")
	}
	return nil
}

// Outcome is the final state of one frame.
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped-existing"
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeFailed     Outcome = "failed"
)

// FrameResult is the result of fetching one frame.
type FrameResult struct {
	Frame    int     `json:"frame"`
	Path     string  `json:"path"`
	Outcome  Outcome `json:"outcome"`
	Bytes    int64   `json:"bytes,omitempty"`
	Attempts int     `json:"attempts,omitempty"`
	Err      error   `json:"-"`
}

// Summary aggregates the results of a run.
type Summary struct {
	RunID      string        `json:"run_id"`
	SceneID    string        `json:"scene_id"`
	Total      int           `json:"total"`
	Skipped    int           `json:"skipped"`
	Downloaded int           `json:"downloaded"`
	Failed     int           `json:"failed"`
	Cancelled  bool          `json:"cancelled"`
	Results    []FrameResult `json:"results"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether every dispatched frame is present and the run completed.
func (s *Summary) OK() bool {
	return s.Failed == 0 && !s.Cancelled
}

func (s *Summary) add(res FrameResult) {
	switch res.Outcome {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeDownloaded:
		s.Downloaded++
	default:
		s.Failed++
	}
	s.Results = append(s.Results, res)
}

func (s *Summary) sortResults() {
	sort.Slice(s.Results, func(i, j int) bool { return s.Results[i].Frame < s.Results[j].Frame })
}
