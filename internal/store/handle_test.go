package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmgilman/go/dictload/internal/telemetry"
	"github.com/jmgilman/go/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a map-backed Backend with injectable faults.
type fakeBackend struct {
	mu      sync.Mutex
	records map[string]Record
	getErr  error
	putErr  error
	closed  bool
	version int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: make(map[string]Record), version: SchemaVersion}
}

func (f *fakeBackend) Get(_ context.Context, key string) (Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return Record{}, false, f.getErr
	}
	rec, ok := f.records[key]
	return rec, ok, nil
}

func (f *fakeBackend) Put(_ context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.records[rec.Key] = rec
	return nil
}

func (f *fakeBackend) SchemaVersion() int {
	return f.version
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func openerFor(b Backend, calls *atomic.Int32) Opener {
	return func(context.Context) (Backend, error) {
		if calls != nil {
			calls.Add(1)
		}
		return b, nil
	}
}

func TestHandle_EnsureReady(t *testing.T) {
	backend := newFakeBackend()
	h := NewHandle(openerFor(backend, nil))

	assert.Equal(t, StateUnopened, h.State())
	assert.Equal(t, 0, h.SchemaVersion())

	got, ok := h.EnsureReady(context.Background())
	require.True(t, ok)
	assert.Same(t, backend, got)
	assert.Equal(t, StateOpen, h.State())
	assert.Equal(t, SchemaVersion, h.SchemaVersion())
}

func TestHandle_MemoizedUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	backend := newFakeBackend()

	h := NewHandle(func(context.Context) (Backend, error) {
		calls.Add(1)
		<-gate
		return backend, nil
	})

	const callers = 32
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.EnsureReady(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return h.State() == StateOpening }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i, ok := range results {
		assert.True(t, ok, "caller %d", i)
	}

	_, ok := h.EnsureReady(context.Background())
	assert.True(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandle_Degraded(t *testing.T) {
	tests := []struct {
		name        string
		opener      Opener
		opts        []HandleOption
		wantFailure int64
	}{
		{
			name:   "no opener",
			opener: nil,
		},
		{
			name:   "capability probe false",
			opener: openerFor(newFakeBackend(), nil),
			opts:   []HandleOption{WithCapability(func() bool { return false })},
		},
		{
			name: "open fails",
			opener: func(context.Context) (Backend, error) {
				return nil, errors.New("disk on fire")
			},
			wantFailure: 1,
		},
		{
			name: "opener returns nil backend",
			opener: func(context.Context) (Backend, error) {
				return nil, nil
			},
			wantFailure: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := telemetry.NewMetrics()
			opts := append([]HandleOption{WithMetrics(metrics)}, tt.opts...)
			h := NewHandle(tt.opener, opts...)

			got, ok := h.EnsureReady(context.Background())
			assert.False(t, ok)
			assert.Nil(t, got)
			assert.Equal(t, StateDegraded, h.State())

			snap := metrics.Snapshot()
			assert.True(t, snap.Degraded)
			assert.Equal(t, tt.wantFailure, snap.StoreOpenFailures)

			// Degraded is permanent.
			_, ok = h.EnsureReady(context.Background())
			assert.False(t, ok)
		})
	}
}

func TestHandle_CapabilitySkipsOpen(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle(openerFor(newFakeBackend(), &calls), WithCapability(func() bool { return false }))

	_, ok := h.EnsureReady(context.Background())
	assert.False(t, ok)
	assert.Zero(t, calls.Load())
}

func TestHandle_CallerCancelDoesNotPoisonOpen(t *testing.T) {
	gate := make(chan struct{})
	var openCtxErr atomic.Value
	backend := newFakeBackend()

	h := NewHandle(func(ctx context.Context) (Backend, error) {
		<-gate
		if err := ctx.Err(); err != nil {
			openCtxErr.Store(err)
		}
		return backend, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		_, ok := h.EnsureReady(ctx)
		done <- ok
	}()

	require.Eventually(t, func() bool { return h.State() == StateOpening }, time.Second, time.Millisecond)
	cancel()
	assert.False(t, <-done, "abandoned caller reports not ready")

	close(gate)
	got, ok := h.EnsureReady(context.Background())
	require.True(t, ok)
	assert.Same(t, backend, got)
	assert.Nil(t, openCtxErr.Load(), "shared open must not observe caller cancellation")
}

func TestHandle_OpenStoreWinsOverDoneContext(t *testing.T) {
	backend := newFakeBackend()
	h := NewHandle(openerFor(backend, nil))
	_, ok := h.EnsureReady(context.Background())
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 200; i++ {
		got, ok := h.EnsureReady(ctx)
		require.True(t, ok, "iteration %d", i)
		require.Same(t, backend, got)
	}
}

func TestHandle_Close(t *testing.T) {
	backend := newFakeBackend()
	h := NewHandle(openerFor(backend, nil))

	_, ok := h.EnsureReady(context.Background())
	require.True(t, ok)

	require.NoError(t, h.Close())
	assert.True(t, backend.closed)
	assert.Equal(t, StateClosed, h.State())

	_, ok = h.EnsureReady(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 0, h.SchemaVersion())

	require.NoError(t, h.Close(), "close is idempotent")
}

func TestHandle_CloseBeforeOpen(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle(openerFor(newFakeBackend(), &calls))

	require.NoError(t, h.Close())
	_, ok := h.EnsureReady(context.Background())
	assert.False(t, ok)
	assert.Zero(t, calls.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unopened", StateUnopened.String())
	assert.Equal(t, "opening", StateOpening.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestFSCapability(t *testing.T) {
	fsys := billy.NewMemory()
	assert.True(t, FSCapability(fsys, "/cache/dictload")())

	exists, err := fsys.Exists("/cache/dictload/" + probeName)
	require.NoError(t, err)
	assert.False(t, exists, "probe file is removed")

	assert.False(t, FSCapability(nil, "/cache")())
}

func TestDirCapability(t *testing.T) {
	assert.True(t, DirCapability(t.TempDir())())
	assert.False(t, DirCapability("")())
}
