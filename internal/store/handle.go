package store

import (
	"context"
	"sync"
	"time"

	"github.com/jmgilman/go/dictload/internal/telemetry"
)

// State describes the lifecycle position of a Handle.
type State int

const (
	// StateUnopened means no caller has requested the store yet.
	StateUnopened State = iota
	// StateOpening means the shared open is in flight.
	StateOpening
	// StateOpen means a usable backend is available.
	StateOpen
	// StateDegraded means the store is unusable for the rest of the handle's life.
	StateDegraded
	// StateClosed means Close was called.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// pendingInit is the in-flight open shared by every caller of EnsureReady.
// backend is written once before done is closed; nil means degraded.
type pendingInit struct {
	done    chan struct{}
	backend Backend
}

// Handle owns the lifetime of a single Backend.
// Create one per process (or per logical cache) and share it between loaders.
type Handle struct {
	opener  Opener
	capable func() bool
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	mu      sync.Mutex
	pending *pendingInit
	closed  bool
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithCapability sets the probe that reports whether persistent storage exists at all.
// When it returns false the handle degrades without attempting an open.
func WithCapability(probe func() bool) HandleOption {
	return func(h *Handle) {
		h.capable = probe
	}
}

// WithLogger sets the logger for lifecycle and fault events.
func WithLogger(logger *telemetry.Logger) HandleOption {
	return func(h *Handle) {
		h.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *telemetry.Metrics) HandleOption {
	return func(h *Handle) {
		h.metrics = metrics
	}
}

// WithClock sets the time source used for Record.StoredAt.
func WithClock(now func() time.Time) HandleOption {
	return func(h *Handle) {
		h.now = now
	}
}

// NewHandle creates a handle that will open its backend with opener on first use.
// A nil opener means the environment has no persistent storage; the handle degrades.
func NewHandle(opener Opener, opts ...HandleOption) *Handle {
	h := &Handle{
		opener: opener,
		logger: telemetry.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EnsureReady returns the usable backend, or (nil, false) when the store is degraded.
// It never fails outward. The first call starts the open; concurrent and later
// callers wait on the same attempt. The open is detached from ctx so one caller
// giving up cannot affect the others; a caller whose ctx ends while waiting
// gets (nil, false) for that call only.
func (h *Handle) EnsureReady(ctx context.Context) (Backend, bool) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, false
	}
	p := h.pending
	if p == nil {
		p = &pendingInit{done: make(chan struct{})}
		h.pending = p
		go h.initialize(context.WithoutCancel(ctx), p)
	}
	h.mu.Unlock()

	// A settled open wins over a finished ctx.
	select {
	case <-p.done:
		return p.backend, p.backend != nil
	default:
	}

	select {
	case <-p.done:
		return p.backend, p.backend != nil
	case <-ctx.Done():
		return nil, false
	}
}

// initialize performs the one open attempt and resolves p.
func (h *Handle) initialize(ctx context.Context, p *pendingInit) {
	defer close(p.done)

	start := time.Now()
	logger := h.logger.WithOperation(telemetry.OpEnsureReady)

	if h.opener == nil || (h.capable != nil && !h.capable()) {
		h.metrics.SetDegraded(true)
		logger.Info(ctx, "persistent storage unavailable, loading from network only")
		return
	}

	backend, err := h.opener(ctx)
	if err == nil && backend == nil {
		err = Unavailable(errNilBackend, "store opener returned no backend")
	}
	if err != nil {
		h.metrics.RecordStoreOpenFailure()
		h.metrics.SetDegraded(true)
		logger.Warn(ctx, "failed to open store, loading from network only", "error", err)
		return
	}

	p.backend = backend
	logger.Debug(ctx, "store ready",
		"schema_version", backend.SchemaVersion(),
		"duration_ms", time.Since(start).Milliseconds())
}

// current returns the open backend without triggering or waiting for initialization.
func (h *Handle) current() (Backend, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.pending == nil {
		return nil, false
	}
	select {
	case <-h.pending.done:
		return h.pending.backend, h.pending.backend != nil
	default:
		return nil, false
	}
}

// State reports the current lifecycle state without blocking.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return StateClosed
	case h.pending == nil:
		return StateUnopened
	}
	select {
	case <-h.pending.done:
		if h.pending.backend == nil {
			return StateDegraded
		}
		return StateOpen
	default:
		return StateOpening
	}
}

// SchemaVersion returns the open backend's schema version, or 0 if none is open.
func (h *Handle) SchemaVersion() int {
	backend, ok := h.current()
	if !ok {
		return 0
	}
	return backend.SchemaVersion()
}

// Backend blocks until the store is ready and returns it for maintenance tooling.
func (h *Handle) Backend(ctx context.Context) (Backend, bool) {
	return h.EnsureReady(ctx)
}

// Close waits for any in-flight open and closes the backend.
// After Close the handle behaves as degraded. Close is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	p := h.pending
	h.mu.Unlock()

	if p == nil {
		return nil
	}
	<-p.done
	if p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
