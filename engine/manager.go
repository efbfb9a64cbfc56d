package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"mediaconv/failures"
	"mediaconv/metrics"
	"mediaconv/taskqueue"
)

// State of the managed engine.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrDisposed is returned to waiters whose load was overtaken by Dispose.
var ErrDisposed = errors.New("engine manager disposed")

// Handle is a loaded engine plus the queue that serializes its use.
type Handle struct {
	engine Engine
	queue  *taskqueue.Serial
}

// NewHandle wraps an engine that is already initialized.
func NewHandle(e Engine) *Handle {
	return &Handle{engine: e, queue: taskqueue.NewSerial()}
}

// Engine returns the underlying engine. Callers outside Do must not touch
// its filesystem.
func (h *Handle) Engine() Engine {
	return h.engine
}

// Do runs fn with exclusive use of the engine. Waiting honors ctx.
func (h *Handle) Do(ctx context.Context, fn func(ctx context.Context, e Engine) error) error {
	metrics.EngineQueueWaiting.Inc()
	waiting := true
	defer func() {
		if waiting {
			metrics.EngineQueueWaiting.Dec()
		}
	}()
	return h.queue.Do(ctx, func(ctx context.Context) error {
		metrics.EngineQueueWaiting.Dec()
		waiting = false
		return fn(ctx, h.engine)
	})
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l hclog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithLoadTimeout bounds a single load attempt. Zero means no limit.
func WithLoadTimeout(d time.Duration) Option {
	return func(m *Manager) { m.loadTimeout = d }
}

// Manager owns the single shared engine instance. Concurrent Acquire calls
// collapse onto one load; a failed load leaves the manager retryable.
type Manager struct {
	loader      Loader
	log         hclog.Logger
	loadTimeout time.Duration
	group       singleflight.Group

	mu      sync.Mutex
	state   State
	gen     uint64 // bumped by Dispose
	attempt uint64 // bumped by every new load
	handle  *Handle
	lastErr error
}

// NewManager returns an uninitialized manager. Nothing is loaded until the
// first Acquire.
func NewManager(loader Loader, opts ...Option) *Manager {
	m := &Manager{loader: loader, log: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state without blocking on a load.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsReady reports whether Acquire would return immediately.
func (m *Manager) IsReady() bool {
	return m.State() == StateReady
}

// LastError returns the cause of the most recent failed load, if the
// manager is in StateFailed.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateFailed {
		return nil
	}
	return m.lastErr
}

// Acquire returns the ready engine, loading it first if needed. A cancelled
// ctx abandons only this caller's wait; the load itself carries on.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	if m.state == StateReady {
		h := m.handle
		m.mu.Unlock()
		return h, nil
	}
	if m.state != StateLoading {
		m.attempt++
		m.state = StateLoading
		m.lastErr = nil
	}
	gen, attempt := m.gen, m.attempt
	m.mu.Unlock()

	key := fmt.Sprintf("%d/%d", gen, attempt)
	ch := m.group.DoChan(key, func() (interface{}, error) {
		return m.load(gen, attempt)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, failures.EngineLoadFailed(res.Err)
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, failures.EngineLoadFailed(ctx.Err())
	}
}

// load performs attempt unless it has already been settled, in which case
// the settled outcome is returned. This covers callers that observed
// StateLoading but reached singleflight after the flight had finished.
func (m *Manager) load(gen, attempt uint64) (*Handle, error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	if m.attempt != attempt || m.state != StateLoading {
		h, err := m.handle, m.lastErr
		m.mu.Unlock()
		if h != nil {
			return h, nil
		}
		if err == nil {
			err = errors.New("engine load superseded")
		}
		return nil, err
	}
	m.mu.Unlock()

	ctx := context.Background()
	if m.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	m.log.Info("loading engine")
	eng, err := m.loader.Load(ctx)
	metrics.EngineLoadDuration.Observe(time.Since(start).Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		if eng != nil {
			if terr := eng.Terminate(); terr != nil {
				m.log.Warn("failed to terminate discarded engine", "error", terr)
			}
		}
		metrics.EngineLoadsTotal.WithLabelValues("discarded").Inc()
		m.log.Info("engine load discarded after dispose")
		return nil, ErrDisposed
	}
	if err == nil && eng == nil {
		err = errors.New("loader returned no engine")
	}
	if err != nil {
		m.state = StateFailed
		m.lastErr = err
		metrics.EngineLoadsTotal.WithLabelValues("failed").Inc()
		m.log.Error("engine load failed", "error", err)
		return nil, err
	}

	m.handle = NewHandle(eng)
	m.state = StateReady
	metrics.EngineLoadsTotal.WithLabelValues("ok").Inc()
	metrics.EngineReady.Set(1)
	m.log.Info("engine ready", "elapsed", time.Since(start))
	return m.handle, nil
}

// Dispose terminates the engine and returns the manager to
// StateUninitialized. A load still in flight is discarded when it finishes.
// Safe to call at any time and more than once.
func (m *Manager) Dispose() error {
	m.mu.Lock()
	m.gen++
	h := m.handle
	m.handle = nil
	m.state = StateUninitialized
	m.lastErr = nil
	m.mu.Unlock()

	if h == nil {
		return nil
	}
	metrics.EngineReady.Set(0)
	m.log.Info("disposing engine")
	return h.engine.Terminate()
}
