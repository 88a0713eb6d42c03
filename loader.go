package dictload

import (
	"bytes"
	"context"
	"sync"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jmgilman/go/dictload/internal/fetch"
	"github.com/jmgilman/go/dictload/internal/store"
	"github.com/jmgilman/go/dictload/internal/telemetry"
)

// Loader produces the raw bytes of a dictionary resource.
// Implementations must be safe for concurrent use.
type Loader interface {
	Load(ctx context.Context, id string) ([]byte, error)
}

// NetworkLoader fetches every resource from its origin. It never caches.
type NetworkLoader struct {
	retriever Retriever
	logger    *Logger
	metrics   *Metrics
}

// NewNetworkLoader creates a pass-through loader.
func NewNetworkLoader(opts ...Option) (*NetworkLoader, error) {
	options, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return newNetworkLoader(options)
}

func newNetworkLoader(options *Options) (*NetworkLoader, error) {
	retriever := options.Retriever
	if retriever == nil {
		ropts := []fetch.Option{fetch.WithTracerProvider(options.TracerProvider)}
		if options.HTTPClient != nil {
			ropts = append(ropts, fetch.WithClient(options.HTTPClient))
		}
		if options.BaseURL != "" {
			ropts = append(ropts, fetch.WithBaseURL(options.BaseURL))
		}
		r, err := fetch.NewHTTPRetriever(ropts...)
		if err != nil {
			return nil, err
		}
		retriever = r
	}

	return &NetworkLoader{
		retriever: retriever,
		logger:    options.Logger,
		metrics:   options.Metrics,
	}, nil
}

// Load fetches and decompresses id.
func (l *NetworkLoader) Load(ctx context.Context, id string) ([]byte, error) {
	start := time.Now()
	data, err := l.retriever.Fetch(ctx, id)

	logger := l.logger.WithKey(id)
	if err != nil {
		switch platformerrors.GetCode(err) {
		case CodeDecompression:
			l.metrics.RecordDecompressionError()
		case CodeNetwork:
			l.metrics.RecordNetworkError()
		}
		telemetry.LogOperation(ctx, logger, telemetry.OpFetch, time.Since(start), 0, err)
		return nil, err
	}

	l.metrics.RecordFetch(len(data))
	telemetry.LogOperation(ctx, logger, telemetry.OpFetch, time.Since(start), len(data), nil)
	return data, nil
}

// CachingLoader serves resources from the local store and falls back to a
// wrapped Loader on a miss, caching what it fetched in the background.
type CachingLoader struct {
	next       Loader
	handle     *StoreHandle
	ownsHandle bool
	reader     *store.Reader
	writer     *store.Writer

	logger  *Logger
	metrics *Metrics
	tracer  trace.Tracer

	singleFlight bool
	group        singleflight.Group

	// mu orders write scheduling against Close.
	mu     sync.Mutex
	closed bool
	writes sync.WaitGroup
}

// New creates a CachingLoader wrapping a NetworkLoader.
//
// Example usage:
//
//	loader, err := dictload.New(
//	    dictload.WithBaseURL("https://cdn.example.com/dict/"),
//	    dictload.WithMemoryStore(),
//	)
func New(opts ...Option) (*CachingLoader, error) {
	options, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	next, err := newNetworkLoader(options)
	if err != nil {
		return nil, err
	}
	return newCachingLoader(next, options), nil
}

// NewCachingLoader wraps next with the cache-aside store described by opts.
// Only store, telemetry and single-flight options apply.
func NewCachingLoader(next Loader, opts ...Option) (*CachingLoader, error) {
	if next == nil {
		return nil, platformerrors.New(platformerrors.CodeInvalidConfig, "caching loader requires a wrapped loader")
	}
	options, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return newCachingLoader(next, options), nil
}

func newCachingLoader(next Loader, options *Options) *CachingLoader {
	handle := newStoreHandle(options)
	return &CachingLoader{
		next:         next,
		handle:       handle,
		ownsHandle:   options.Handle == nil,
		reader:       store.NewReader(handle),
		writer:       store.NewWriter(handle),
		logger:       options.Logger,
		metrics:      options.Metrics,
		tracer:       telemetry.Tracer(options.TracerProvider),
		singleFlight: options.SingleFlight,
	}
}

// Load returns the payload for id from the store, or from the wrapped loader on a miss.
// Store problems never fail a load; only retrieval errors are returned.
func (l *CachingLoader) Load(ctx context.Context, id string) ([]byte, error) {
	ctx, span := l.tracer.Start(ctx, "dictload.load", trace.WithAttributes(attribute.String("dictload.key", id)))
	defer span.End()

	logger := l.logger.WithOperation(telemetry.OpLoad).WithKey(id)

	if _, ok := l.handle.EnsureReady(ctx); ok {
		if data, ok := l.reader.Get(ctx, id); ok {
			l.metrics.RecordHit(len(data))
			telemetry.LogCacheHit(ctx, logger, id, len(data))
			span.SetAttributes(attribute.Bool("dictload.cache_hit", true))
			return data, nil
		}
		telemetry.LogCacheMiss(ctx, logger, id, "not cached")
	} else {
		telemetry.LogCacheMiss(ctx, logger, id, "store unavailable")
	}
	l.metrics.RecordMiss()
	span.SetAttributes(attribute.Bool("dictload.cache_hit", false))

	var (
		data []byte
		err  error
	)
	if l.singleFlight {
		data, err = l.loadShared(ctx, id)
	} else {
		data, err = l.loadAndCache(ctx, id)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return data, nil
}

// loadAndCache fetches id and schedules the cache write.
func (l *CachingLoader) loadAndCache(ctx context.Context, id string) ([]byte, error) {
	data, err := l.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	l.scheduleWrite(ctx, id, data)
	return data, nil
}

// loadShared joins an in-flight fetch for id or starts one. The fetch is
// detached so one waiter giving up does not fail the others.
func (l *CachingLoader) loadShared(ctx context.Context, id string) ([]byte, error) {
	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(id, func() (any, error) {
		return l.loadAndCache(detached, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data := res.Val.([]byte)
		if res.Shared {
			data = bytes.Clone(data)
		}
		return data, nil
	case <-ctx.Done():
		return nil, platformerrors.Wrap(ctx.Err(), platformerrors.CodeTimeout, "load abandoned while waiting for shared fetch")
	}
}

// scheduleWrite stores a private copy of data without blocking the caller.
func (l *CachingLoader) scheduleWrite(ctx context.Context, id string, data []byte) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.metrics.RecordWriteSkipped()
		return
	}
	l.writes.Add(1)
	l.mu.Unlock()

	payload := bytes.Clone(data)
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer l.writes.Done()
		l.writer.Put(ctx, id, payload)
	}()
}

// Wait blocks until every background cache write scheduled so far has finished.
func (l *CachingLoader) Wait() {
	l.writes.Wait()
}

// Close waits for background writes and closes the store handle if the loader created it.
// Loads after Close still work, from the network only.
func (l *CachingLoader) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.writes.Wait()
	if !l.ownsHandle {
		return nil
	}
	return l.handle.Close()
}

// Metrics returns a snapshot of the loader's counters.
func (l *CachingLoader) Metrics() Snapshot {
	return l.metrics.Snapshot()
}

// Handle returns the loader's store handle.
func (l *CachingLoader) Handle() *StoreHandle {
	return l.handle
}

var (
	_ Loader = (*NetworkLoader)(nil)
	_ Loader = (*CachingLoader)(nil)
)
