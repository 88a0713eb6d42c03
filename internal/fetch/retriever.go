// Package fetch retrieves compressed dictionary payloads over HTTP and
// decompresses them.
//
// Every request bypasses transport-level response caches so a stale copy held
// by an intermediary never masks an updated remote resource. Failures are
// returned as PlatformErrors: CodeNetwork for transport failures and
// non-success statuses, CodeDecompression for malformed bodies.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmgilman/go/dictload/internal/decompress"
	"github.com/jmgilman/go/dictload/internal/telemetry"
)

// CodeDecompression identifies a payload that could not be decompressed.
const CodeDecompression platformerrors.ErrorCode = "DECOMPRESSION_FAILED"

// Retriever obtains the raw (decompressed) bytes of a resource from its origin.
// Implementations must be safe for concurrent use.
type Retriever interface {
	// Fetch performs one full retrieval of the resource named by id.
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// HTTPRetriever fetches gzip payloads over HTTP(S).
type HTTPRetriever struct {
	client *http.Client
	base   *url.URL
	tracer trace.Tracer
}

// Option configures an HTTPRetriever.
type Option func(*retrieverConfig)

type retrieverConfig struct {
	client  *http.Client
	baseURL string
	tracer  trace.TracerProvider
}

// WithClient sets the HTTP client used for requests.
func WithClient(client *http.Client) Option {
	return func(c *retrieverConfig) {
		c.client = client
	}
}

// WithBaseURL sets the URL that relative resource identifiers are resolved against.
func WithBaseURL(base string) Option {
	return func(c *retrieverConfig) {
		c.baseURL = base
	}
}

// WithTracerProvider sets the provider for fetch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *retrieverConfig) {
		c.tracer = tp
	}
}

// DefaultClient returns an HTTP client whose transport is instrumented with OpenTelemetry.
func DefaultClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// NewHTTPRetriever creates a retriever. The base URL, when set, must be absolute.
func NewHTTPRetriever(opts ...Option) (*HTTPRetriever, error) {
	var cfg retrieverConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &HTTPRetriever{
		client: cfg.client,
		tracer: telemetry.Tracer(cfg.tracer),
	}
	if r.client == nil {
		r.client = DefaultClient()
	}

	if cfg.baseURL != "" {
		base, err := url.Parse(cfg.baseURL)
		if err != nil {
			return nil, platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, "invalid base URL %q", cfg.baseURL)
		}
		if !base.IsAbs() {
			return nil, platformerrors.Newf(platformerrors.CodeInvalidConfig, "base URL %q must be absolute", cfg.baseURL)
		}
		r.base = base
	}

	return r, nil
}

// Resolve returns the absolute URL for id.
// Absolute identifiers are used as-is; relative ones require a base URL.
func (r *HTTPRetriever) Resolve(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", platformerrors.New(platformerrors.CodeInvalidInput, "resource identifier is empty")
	}

	ref, err := url.Parse(id)
	if err != nil {
		return "", platformerrors.Wrapf(err, platformerrors.CodeInvalidInput, "invalid resource identifier %q", id)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if r.base == nil {
		return "", platformerrors.Newf(platformerrors.CodeInvalidInput,
			"resource identifier %q is relative and no base URL is configured", id)
	}
	return r.base.ResolveReference(ref).String(), nil
}

// Fetch downloads the resource and returns its decompressed contents.
func (r *HTTPRetriever) Fetch(ctx context.Context, id string) ([]byte, error) {
	ctx, span := r.tracer.Start(ctx, "dictload.fetch", trace.WithAttributes(attribute.String("dictload.key", id)))
	defer span.End()

	data, err := r.fetch(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("dictload.size", len(data)))
	return data, nil
}

func (r *HTTPRetriever) fetch(ctx context.Context, id string) ([]byte, error) {
	target, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, platformerrors.Wrapf(err, platformerrors.CodeInvalidInput, "failed to build request for %s", target)
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
	// The body is itself a .gz file; keep the transport from decoding it.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, platformerrors.WithContext(
			platformerrors.Wrapf(err, platformerrors.CodeNetwork, "failed to fetch %s", target),
			"url", target,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, statusError(target, resp.StatusCode)
	}

	compressed, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, platformerrors.WithContext(
			platformerrors.Wrapf(err, platformerrors.CodeNetwork, "failed to read response body from %s", target),
			"url", target,
		)
	}

	raw, err := decompress.Gunzip(compressed)
	if err != nil {
		return nil, platformerrors.WithContextMap(
			platformerrors.Wrapf(err, CodeDecompression, "failed to decompress %s", target),
			map[string]interface{}{"url": target, "compressed_size": len(compressed)},
		)
	}

	return raw, nil
}

// statusError builds the NetworkError for a non-success response.
// Client errors will not change on retry, so they are marked permanent.
func statusError(target string, status int) error {
	err := platformerrors.WithContextMap(
		platformerrors.Newf(platformerrors.CodeNetwork, "unexpected status %d %s fetching %s",
			status, http.StatusText(status), target),
		map[string]interface{}{"url": target, "status": status},
	)
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return platformerrors.WithClassification(err, platformerrors.ClassificationPermanent)
	}
	return err
}

// StatusCode returns the HTTP status recorded on a NetworkError, or 0.
func StatusCode(err error) int {
	var perr platformerrors.PlatformError
	if !platformerrors.As(err, &perr) {
		return 0
	}
	if status, ok := perr.Context()["status"].(int); ok {
		return status
	}
	return 0
}

// Func adapts an ordinary function to the Retriever interface.
type Func func(ctx context.Context, id string) ([]byte, error)

// Fetch calls f(ctx, id).
func (f Func) Fetch(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

var _ Retriever = (*HTTPRetriever)(nil)
var _ Retriever = Func(nil)

