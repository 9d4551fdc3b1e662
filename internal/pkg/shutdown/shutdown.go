// Package shutdown coordinates graceful termination: wait for SIGINT/SIGTERM,
// then run the registered cleanup steps in reverse registration order under
// one deadline.
package shutdown

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vidproc/internal/pkg/logger"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 30 * time.Second

// Step is one named cleanup action.
type Step struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// Manager owns the cleanup steps of a process.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []Step

	triggerOnce sync.Once
	runOnce     sync.Once
	trigger     chan struct{}
	done        chan struct{}
	err         error
}

func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup step. Steps run last-registered first, so register
// the HTTP server after the clients it depends on.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, Step{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown step", "name", name)
}

// RegisterCloser adds a step for a Close method that takes no context.
func (m *Manager) RegisterCloser(name string, closeFn func() error) {
	m.Register(name, func(context.Context) error { return closeFn() })
}

// Trigger starts shutdown without a signal, e.g. when the server fails to bind.
func (m *Manager) Trigger() {
	m.triggerOnce.Do(func() { close(m.trigger) })
}

// Wait blocks until a signal arrives, Trigger is called or ctx ends, then runs
// the steps and returns their joined errors.
func (m *Manager) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		m.log.Info("shutdown signal received")
	case <-m.trigger:
		m.log.Info("shutdown triggered")
	}

	return m.Shutdown()
}

// Shutdown runs every step once, in reverse order. Later calls wait for and
// return the first result.
func (m *Manager) Shutdown() error {
	m.runOnce.Do(m.run)
	<-m.done
	return m.err
}

func (m *Manager) run() {
	m.Trigger()

	m.mu.Lock()
	steps := make([]Step, len(m.steps))
	copy(steps, m.steps)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "steps", len(steps), "timeout", m.timeout.String())

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		start := time.Now()
		if err := s.Cleanup(ctx); err != nil {
			m.log.Error("shutdown step failed",
				"name", s.Name,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			errs = append(errs, err)
			continue
		}
		m.log.Debug("shutdown step completed", "name", s.Name, "duration_ms", time.Since(start).Milliseconds())
	}

	if ctx.Err() != nil {
		m.log.Warn("shutdown deadline exceeded")
		errs = append(errs, ctx.Err())
	} else {
		m.log.Info("graceful shutdown completed")
	}

	m.err = errors.Join(errs...)
	close(m.done)
}

// Done is closed once Shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Context is canceled as soon as shutdown starts. Long-running loops such as
// the queue worker should run under it.
func (m *Manager) Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-m.trigger
		cancel()
	}()
	return ctx
}
