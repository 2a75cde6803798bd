package statusapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"renderpull/internal/frames"
	"renderpull/internal/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 64
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	eventTypeFrame = "frame_event"
)

// eventMessage is the JSON sent to websocket clients for each frame event.
type eventMessage struct {
	Type    string    `json:"type"`
	RunID   string    `json:"run_id"`
	Frame   int       `json:"frame"`
	Phase   string    `json:"phase"`
	Outcome string    `json:"outcome,omitempty"`
	Path    string    `json:"path,omitempty"`
	Bytes   int64     `json:"bytes,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	DelayMS int64     `json:"delay_ms,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Hub broadcasts frame events to websocket clients. It is a frames.Observer.
// A client that cannot keep up loses events rather than stalling the workers.
type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// runID filters events when set.
	runID string
}

func NewHub(log *logger.Logger, allowedOrigins []string) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	h := &Hub{
		log:     log.WithComponent("events"),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// Observe implements frames.Observer.
func (h *Hub) Observe(e frames.Event) {
	msg := eventMessage{
		Type:    eventTypeFrame,
		RunID:   e.RunID,
		Frame:   e.Frame,
		Phase:   string(e.Phase),
		Outcome: string(e.Outcome),
		Path:    e.Path,
		Bytes:   e.Bytes,
		Attempt: e.Attempt,
		DelayMS: e.Delay.Milliseconds(),
		Time:    e.Time,
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("encode event failed", "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.runID != "" && c.runID != e.RunID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Warn("event client too slow, dropping event", "remote", c.conn.RemoteAddr().String())
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
// The optional run query parameter limits the stream to one run.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer), runID: r.URL.Query().Get("run")}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.log.Debug("event client connected", "remote", conn.RemoteAddr().String(), "clients", h.Clients())

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// originChecker allows same-host requests and the listed origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
