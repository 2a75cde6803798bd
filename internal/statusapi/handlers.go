package statusapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"renderpull/internal/frames"
	"renderpull/internal/httpkit"
	"renderpull/internal/pkg/errors"
	"renderpull/internal/pkg/logger"
	"renderpull/internal/ports"
	"renderpull/internal/worker"
)

const (
	serviceName  = "renderpull-worker"
	checkTimeout = 5 * time.Second
	probeKey     = ".renderpull-health"
)

type handler struct {
	registry *worker.Registry
	queue    Enqueuer
	store    ports.StorageProvider
	log      *logger.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"service": serviceName,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := map[string]map[string]any{}
		if h.queue != nil {
			checks["queue"] = h.checkQueue(r.Context())
		}
		if h.store != nil {
			checks["storage"] = h.checkStorage(r.Context())
		}
		body["checks"] = checks

		for name, c := range checks {
			if c["status"] != "ok" {
				body["status"] = "degraded"
				h.log.FromContext(r.Context()).Warn("health check degraded", "check", name, "error", c["error"])
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, body)
}

func (h *handler) checkQueue(ctx context.Context) map[string]any {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	result := map[string]any{"status": "ok"}
	if n, err := h.queue.Len(ctx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	} else {
		result["depth"] = n
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *handler) checkStorage(ctx context.Context) map[string]any {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	result := map[string]any{"status": "ok", "provider": h.store.Provider()}
	if _, err := h.store.StatObject(ctx, probeKey); err != nil && !errors.IsCode(err, errors.CodeNotFound) {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"runs": h.registry.List()})
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.registry.Get(chi.URLParam(r, "runId"))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, rec)
	return nil
}

type enqueueResponse struct {
	ID      string               `json:"id"`
	Request frames.RenderRequest `json:"request"`
	Status  string               `json:"status"`
}

func (h *handler) postRun(w http.ResponseWriter, r *http.Request) error {
	var req frames.RenderRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return errors.Validationf("invalid request body: %v", err)
	}

	msg, err := h.queue.Push(r.Context(), req)
	if err != nil {
		return err
	}

	h.log.FromContext(r.Context()).Info("render request queued", "run_id", msg.ID, "scene", msg.Request.SceneID)
	httpkit.WriteJSON(w, http.StatusAccepted, enqueueResponse{ID: msg.ID, Request: msg.Request, Status: "queued"})
	return nil
}

func (h *handler) getFrame(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")
	rc, contentType, size, err := h.store.GetObject(r.Context(), name)
	if err != nil {
		return err
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).Warn("frame stream interrupted", "frame", name, "error", err.Error())
	}
	return nil
}
