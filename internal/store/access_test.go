package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmgilman/go/dictload/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openHandle(t *testing.T, backend Backend, opts ...HandleOption) *Handle {
	t.Helper()
	h := NewHandle(openerFor(backend, nil), opts...)
	_, ok := h.EnsureReady(context.Background())
	require.True(t, ok)
	return h
}

func TestReader_Get(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.records["/dict/base.dat"] = Record{Key: "/dict/base.dat", Payload: []byte("payload")}
	h := openHandle(t, backend)
	r := NewReader(h)

	got, ok := r.Get(ctx, "/dict/base.dat")
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	got, ok = r.Get(ctx, "/dict/missing.dat")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestReader_FaultIsMiss(t *testing.T) {
	metrics := telemetry.NewMetrics()
	backend := newFakeBackend()
	backend.records["k"] = Record{Key: "k", Payload: []byte("v")}
	backend.getErr = errors.New("corrupt page")
	h := openHandle(t, backend, WithMetrics(metrics))

	got, ok := NewReader(h).Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Equal(t, int64(1), metrics.Snapshot().ReadFaults)
}

func TestReader_CancelledReadIsNotAFault(t *testing.T) {
	metrics := telemetry.NewMetrics()
	backend := newFakeBackend()
	backend.records["k"] = Record{Key: "k", Payload: []byte("v")}
	h := openHandle(t, backend, WithMetrics(metrics))

	backend.getErr = context.Canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, ok := NewReader(h).Get(ctx, "k")
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Zero(t, metrics.Snapshot().ReadFaults)
}

func TestReader_DoesNotInitialize(t *testing.T) {
	backend := newFakeBackend()
	backend.records["k"] = Record{Key: "k", Payload: []byte("v")}
	h := NewHandle(openerFor(backend, nil))

	_, ok := NewReader(h).Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Equal(t, StateUnopened, h.State())
}

func TestWriter_Put(t *testing.T) {
	ctx := context.Background()
	metrics := telemetry.NewMetrics()
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	backend := newFakeBackend()
	h := openHandle(t, backend, WithMetrics(metrics), WithClock(func() time.Time { return stamp }))
	w := NewWriter(h)

	require.True(t, w.Put(ctx, "k", []byte("one")))
	require.True(t, w.Put(ctx, "k", []byte("two")))

	assert.Len(t, backend.records, 1)
	rec := backend.records["k"]
	assert.Equal(t, []byte("two"), rec.Payload)
	assert.Equal(t, stamp.UTC(), rec.StoredAt)
	assert.Equal(t, time.UTC, rec.StoredAt.Location())

	got, ok := NewReader(h).Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("two"), got)
	assert.Equal(t, int64(2), metrics.Snapshot().Writes)
}

func TestWriter_FailureSwallowed(t *testing.T) {
	metrics := telemetry.NewMetrics()
	backend := newFakeBackend()
	backend.putErr = errors.New("quota exceeded")
	h := openHandle(t, backend, WithMetrics(metrics))

	assert.False(t, NewWriter(h).Put(context.Background(), "k", []byte("v")))
	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.WriteFailures)
	assert.Zero(t, snap.Writes)
}

func TestWriter_SkippedWhenUnusable(t *testing.T) {
	ctx := context.Background()

	t.Run("degraded", func(t *testing.T) {
		metrics := telemetry.NewMetrics()
		h := NewHandle(nil, WithMetrics(metrics))
		_, _ = h.EnsureReady(ctx)

		assert.False(t, NewWriter(h).Put(ctx, "k", []byte("v")))
		assert.Equal(t, int64(1), metrics.Snapshot().WritesSkipped)
	})

	t.Run("closed", func(t *testing.T) {
		metrics := telemetry.NewMetrics()
		backend := newFakeBackend()
		h := openHandle(t, backend, WithMetrics(metrics))
		require.NoError(t, h.Close())

		assert.False(t, NewWriter(h).Put(ctx, "k", []byte("v")))
		assert.Empty(t, backend.records)
		assert.Equal(t, int64(1), metrics.Snapshot().WritesSkipped)
	})

	t.Run("unopened", func(t *testing.T) {
		h := NewHandle(openerFor(newFakeBackend(), nil))
		assert.False(t, NewWriter(h).Put(ctx, "k", []byte("v")))
		assert.Equal(t, StateUnopened, h.State())
	})
}
