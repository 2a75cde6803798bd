// Package shutdown coordinates graceful shutdown of the render worker.
package shutdown

import (
	"context"
	stderrors "errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"renderpull/internal/pkg/logger"
)

// DefaultTimeout bounds the time all cleanup handlers may take together.
const DefaultTimeout = 30 * time.Second

// Handler is a named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// Manager cancels in-flight work when a stop signal arrives, then runs the
// registered cleanup handlers in reverse registration order.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu       sync.Mutex
	handlers []Handler

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	err    error
}

func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup handler. Handlers registered later run first.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple adds a cleanup handler that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// Context is cancelled as soon as shutdown starts. Long running work such as
// an in-flight render run should derive from it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Done is closed once every cleanup handler has returned or the timeout hit.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until SIGINT, SIGTERM or ctx cancellation, then shuts down.
func (m *Manager) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("context cancelled, initiating shutdown")
	case <-m.ctx.Done():
	}
	return m.Shutdown()
}

// Shutdown cancels Context and runs the cleanup handlers one at a time.
// Only the first call does any work; later calls wait and return its result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		defer close(m.done)
		m.cancel()

		m.mu.Lock()
		handlers := append([]Handler(nil), m.handlers...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

		var errs []error
		for i := len(handlers) - 1; i >= 0; i-- {
			if err := m.run(ctx, handlers[i]); err != nil {
				errs = append(errs, err)
			}
			if ctx.Err() != nil {
				m.log.Warn("shutdown timeout exceeded, skipping remaining handlers", "remaining", i)
				errs = append(errs, ctx.Err())
				break
			}
		}
		m.err = stderrors.Join(errs...)
		if m.err == nil {
			m.log.Info("graceful shutdown completed")
		}
	})
	<-m.done
	return m.err
}

func (m *Manager) run(ctx context.Context, h Handler) error {
	start := time.Now()
	errCh := make(chan error, 1)
	go func() { errCh <- h.Cleanup(ctx) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		m.log.Error("shutdown handler failed",
			"name", h.Name,
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
	m.log.Debug("shutdown handler completed", "name", h.Name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
