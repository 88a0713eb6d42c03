package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmgilman/go/dictload/internal/telemetry"
)

var errNilBackend = errors.New("nil backend")

// Reader performs single-record reads against a Handle's backend.
type Reader struct {
	handle *Handle
}

// NewReader creates a reader borrowing h.
func NewReader(h *Handle) *Reader {
	return &Reader{handle: h}
}

// Get returns the cached payload for key.
// A missing key, an unopened, degraded or closed store, and any backend fault
// all report absent. Get never triggers initialization.
func (r *Reader) Get(ctx context.Context, key string) ([]byte, bool) {
	backend, ok := r.handle.current()
	if !ok {
		return nil, false
	}

	rec, found, err := backend.Get(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			// Caller gave up; not a store fault.
			return nil, false
		}
		r.handle.metrics.RecordReadFault()
		r.handle.logger.WithOperation(telemetry.OpCacheGet).WithKey(key).
			Warn(ctx, "cache read failed, treating as miss", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return rec.Payload, true
}

// Writer performs best-effort upserts against a Handle's backend.
type Writer struct {
	handle *Handle
}

// NewWriter creates a writer borrowing h.
func NewWriter(h *Handle) *Writer {
	return &Writer{handle: h}
}

// Put upserts the record for key and reports whether it was stored.
// On an unopened, degraded or closed store it is a no-op. Failures are logged
// and counted, never returned.
func (w *Writer) Put(ctx context.Context, key string, payload []byte) bool {
	logger := w.handle.logger.WithOperation(telemetry.OpCachePut).WithKey(key)

	backend, ok := w.handle.current()
	if !ok {
		w.handle.metrics.RecordWriteSkipped()
		logger.Debug(ctx, "store not usable, skipping cache write")
		return false
	}

	start := time.Now()
	err := backend.Put(ctx, Record{
		Key:      key,
		Payload:  payload,
		StoredAt: w.handle.now().UTC(),
	})
	w.handle.metrics.RecordWrite(err == nil)
	telemetry.LogOperation(ctx, logger, telemetry.OpCachePut, time.Since(start), len(payload), err)

	return err == nil
}
