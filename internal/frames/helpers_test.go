package frames

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"renderpull/internal/adapters/storage/localfs"
	"renderpull/internal/pkg/logger"
	"renderpull/internal/renderer"
)

// fakeClock advances instantly on Sleep and records every wait.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.onSleep != nil {
		c.onSleep(d)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fakeService emulates the render service. Handlers receive the 1-based call
// number of their endpoint.
type fakeService struct {
	mu        sync.Mutex
	calls     map[string]int
	times     []int
	hashes    []string
	jobs      func(call int) []renderer.Job
	jobsRaw   func(w http.ResponseWriter, call int)
	render    func(w http.ResponseWriter, frame, call int)
	resource  func(w http.ResponseWriter, hash string, call int)
	serverURL string
	srv       *httptest.Server
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	s := &fakeService{calls: make(map[string]int)}

	r := chi.NewRouter()
	r.Get("/api/scenes/{sceneID}/jobs", func(w http.ResponseWriter, req *http.Request) {
		call := s.record("jobs")
		if s.jobsRaw != nil {
			s.jobsRaw(w, call)
			return
		}
		var jobs []renderer.Job
		if s.jobs != nil {
			jobs = s.jobs(call)
		}
		if jobs == nil {
			jobs = []renderer.Job{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jobs)
	})
	r.Get("/api/scenes/{sceneID}/render", func(w http.ResponseWriter, req *http.Request) {
		frame, _ := strconv.Atoi(req.URL.Query().Get("time"))
		call := s.record("render")
		s.mu.Lock()
		s.times = append(s.times, frame)
		s.mu.Unlock()
		if s.render != nil {
			s.render(w, frame, call)
			return
		}
		writeImage(w, "frame-"+strconv.Itoa(frame))
	})
	r.Get("/resources/{hash}", func(w http.ResponseWriter, req *http.Request) {
		hash := chi.URLParam(req, "hash")
		call := s.record("resource")
		s.mu.Lock()
		s.hashes = append(s.hashes, hash)
		s.mu.Unlock()
		if s.resource != nil {
			s.resource(w, hash, call)
			return
		}
		writeImage(w, "artifact-"+hash)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	s.serverURL = srv.URL
	s.srv = srv
	return s
}

// closeConnections makes every response end its connection, so the client
// never replays a request on a reused connection.
func (s *fakeService) closeConnections() {
	s.srv.Config.SetKeepAlivesEnabled(false)
}

// dropConnection closes the client connection without writing a response.
func dropConnection(t *testing.T, w http.ResponseWriter) {
	t.Helper()
	hj, ok := w.(http.Hijacker)
	if !ok {
		t.Error("response writer does not support hijacking")
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		t.Errorf("hijack: %v", err)
		return
	}
	_ = conn.Close()
}

func (s *fakeService) record(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[endpoint]++
	return s.calls[endpoint]
}

func (s *fakeService) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

func (s *fakeService) RenderedFrames() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.times...)
}

func (s *fakeService) Hashes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hashes...)
}

func (s *fakeService) client() *renderer.Client {
	return renderer.NewClient(renderer.Options{
		BaseURL:      s.serverURL + "/api/",
		ResourcesURL: s.serverURL + "/resources/",
		User:         "alice",
		Key:          "secret",
		Timeout:      5 * time.Second,
	})
}

func writeImage(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.Write([]byte(body))
}

func doneJob(frame int, hash string) renderer.Job {
	return renderer.Job{
		Status: renderer.StatusOK,
		Data:   renderer.JobData{Time: float64(frame), Width: 640, Height: 480},
		Files:  []renderer.Artifact{{Hash: hash, Type: "image/png"}},
	}
}

func workingJob(frame int) renderer.Job {
	return renderer.Job{
		Status: renderer.StatusWorking,
		Data:   renderer.JobData{Time: float64(frame), Width: 640, Height: 480},
	}
}

var testCreds = Credentials{User: "alice", Key: "secret"}

func testRequest(start, end int) RenderRequest {
	return RenderRequest{
		SceneID:    "scene-1",
		SceneName:  "base",
		Pass:       "beauty",
		Width:      640,
		Height:     480,
		StartFrame: start,
		EndFrame:   end,
	}
}

func testOptions(svc *fakeService, store *localfs.LocalFS, clock Clock) Options {
	return Options{
		BaseURL:         svc.serverURL + "/api/",
		ResourcesURL:    svc.serverURL + "/resources/",
		HTTPTimeout:     5 * time.Second,
		FreshnessWindow: DefaultFreshnessWindow,
		JobsRetry:       RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second, Factor: 2, MaxDelay: time.Minute},
		FetchRetry:      RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Second, Factor: 2, MaxDelay: time.Minute},
		PendingInterval: DefaultPendingInterval,
		Store:           store,
		Clock:           clock,
		Log:             logger.Nop(),
	}
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Phases(frame int) []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Phase
	for _, e := range r.events {
		if e.Frame == frame {
			out = append(out, e.Phase)
		}
	}
	return out
}
