// Package statusapi serves the worker's HTTP status surface: health, queued
// and finished runs, downloaded frames, and a websocket stream of frame events.
package statusapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"renderpull/internal/frames"
	"renderpull/internal/httpkit"
	"renderpull/internal/pkg/logger"
	"renderpull/internal/pkg/middleware"
	"renderpull/internal/ports"
	"renderpull/internal/worker"
	"renderpull/internal/worker/queue"
)

// Enqueuer accepts render requests for the worker.
type Enqueuer interface {
	Push(ctx context.Context, req frames.RenderRequest) (*queue.Message, error)
	Len(ctx context.Context) (int64, error)
}

type Deps struct {
	Registry       *worker.Registry
	Queue          Enqueuer
	Store          ports.StorageProvider
	Hub            *Hub
	Log            *logger.Logger
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	if d.Registry == nil {
		d.Registry = worker.NewRegistry(0)
	}
	log := d.Log.WithComponent("statusapi")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{AllowedOrigins: d.AllowedOrigins}))

	h := &handler{registry: d.Registry, queue: d.Queue, store: d.Store, log: log}

	r.Get("/health", h.health)

	r.Get("/runs", h.listRuns)
	r.Get("/runs/{runId}", middleware.WrapHandler(log, h.getRun))
	if d.Queue != nil {
		r.Post("/runs", middleware.WrapHandler(log, h.postRun))
	}

	if d.Store != nil {
		r.Get("/frames/{name}", middleware.WrapHandler(log, h.getFrame))
	}

	if d.Hub != nil {
		r.Handle("/events", d.Hub)
	}

	return r
}
