package dictload

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/fs/core"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmgilman/go/dictload/internal/fetch"
	"github.com/jmgilman/go/dictload/internal/store"
	"github.com/jmgilman/go/dictload/internal/store/fsstore"
	"github.com/jmgilman/go/dictload/internal/store/memstore"
	"github.com/jmgilman/go/dictload/internal/store/sqlite"
	"github.com/jmgilman/go/dictload/internal/telemetry"
)

// Re-exported building blocks so callers can inject their own implementations.
type (
	// Retriever fetches and decompresses one resource.
	Retriever = fetch.Retriever
	// RetrieverFunc adapts a function to Retriever.
	RetrieverFunc = fetch.Func
	// Backend is an opened cache store.
	Backend = store.Backend
	// Record is one cached payload.
	Record = store.Record
	// StoreOpener opens a Backend.
	StoreOpener = store.Opener
	// StoreHandle owns the lifetime of one Backend.
	StoreHandle = store.Handle
	// StoreState is a StoreHandle lifecycle state.
	StoreState = store.State
	// Logger is the structured logger used throughout the package.
	Logger = telemetry.Logger
	// LogConfig configures NewLogger.
	LogConfig = telemetry.LogConfig
	// Metrics collects loader counters.
	Metrics = telemetry.Metrics
	// Snapshot is a point-in-time copy of Metrics.
	Snapshot = telemetry.Snapshot
)

// Store handle states.
const (
	StateUnopened = store.StateUnopened
	StateOpening  = store.StateOpening
	StateOpen     = store.StateOpen
	StateDegraded = store.StateDegraded
	StateClosed   = store.StateClosed
)

// NewLogger creates a slog-backed Logger.
func NewLogger(config LogConfig) *Logger {
	return telemetry.NewLogger(config)
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return telemetry.NewMetrics()
}

// StoreKind selects the built-in store backend.
type StoreKind string

const (
	// StoreSQLite keeps records in <dir>/<name>.db.
	StoreSQLite StoreKind = "sqlite"
	// StoreFS keeps records as files under a core.FS root.
	StoreFS StoreKind = "fs"
	// StoreMemory keeps records in process memory.
	StoreMemory StoreKind = "memory"
	// StoreNone disables the store; every load goes to the network.
	StoreNone StoreKind = "none"
	// storeCustom is set by WithStoreOpener.
	storeCustom StoreKind = "custom"
)

// Options contains configuration for loaders and store handles.
type Options struct {
	// BaseURL is what relative resource identifiers resolve against.
	BaseURL string

	// HTTPClient is used by the default retriever.
	// If nil, an OpenTelemetry-instrumented client is used.
	HTTPClient *http.Client

	// Retriever replaces the default HTTP retriever entirely.
	Retriever Retriever

	// Store selects the built-in backend.
	Store StoreKind

	// StoreDir is the directory for the sqlite backend.
	StoreDir string

	// StoreName names the sqlite database file.
	StoreName string

	// FS and FSRoot locate the fs backend.
	FS     core.FS
	FSRoot string

	// Opener is used when Store is custom.
	Opener StoreOpener

	// Capability reports whether persistent storage exists in this environment.
	// If nil, the backend's default probe is used.
	Capability func() bool

	// Handle injects a shared store handle. The loader does not close it.
	Handle *StoreHandle

	Logger         *Logger
	Metrics        *Metrics
	TracerProvider trace.TracerProvider

	// SingleFlight coalesces concurrent misses for the same key into one fetch.
	SingleFlight bool

	// Clock stamps cache records.
	Clock func() time.Time
}

// Option is a functional option for loaders and store handles.
type Option func(*Options)

// DefaultOptions returns the default configuration: a sqlite store in the
// user cache directory, or no store when that directory cannot be determined.
func DefaultOptions() *Options {
	opts := &Options{
		Store:     StoreNone,
		StoreName: store.DefaultName,
		Clock:     time.Now,
	}
	if dir, err := os.UserCacheDir(); err == nil {
		opts.Store = StoreSQLite
		opts.StoreDir = filepath.Join(dir, store.DefaultName)
	}
	return opts
}

// WithBaseURL sets the base URL for relative resource identifiers.
func WithBaseURL(base string) Option {
	return func(opts *Options) {
		opts.BaseURL = base
	}
}

// WithHTTPClient sets the HTTP client used by the default retriever.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithRetriever replaces the HTTP retriever. Primarily used for testing.
func WithRetriever(r Retriever) Option {
	return func(opts *Options) {
		opts.Retriever = r
	}
}

// WithSQLiteStore stores records in a sqlite database under dir.
func WithSQLiteStore(dir string) Option {
	return func(opts *Options) {
		opts.Store = StoreSQLite
		opts.StoreDir = dir
	}
}

// WithFSStore stores records as files under root on fsys.
func WithFSStore(fsys core.FS, root string) Option {
	return func(opts *Options) {
		opts.Store = StoreFS
		opts.FS = fsys
		opts.FSRoot = root
	}
}

// WithMemoryStore keeps records in memory for the life of the handle.
func WithMemoryStore() Option {
	return func(opts *Options) {
		opts.Store = StoreMemory
	}
}

// WithStoreOpener uses a custom backend opener.
func WithStoreOpener(opener StoreOpener) Option {
	return func(opts *Options) {
		opts.Store = storeCustom
		opts.Opener = opener
	}
}

// WithoutStore disables caching; the handle starts degraded.
func WithoutStore() Option {
	return func(opts *Options) {
		opts.Store = StoreNone
	}
}

// WithCapability overrides the persistent-storage capability probe.
func WithCapability(probe func() bool) Option {
	return func(opts *Options) {
		opts.Capability = probe
	}
}

// WithStoreName sets the sqlite database name.
func WithStoreName(name string) Option {
	return func(opts *Options) {
		opts.StoreName = name
	}
}

// WithStoreHandle shares an existing handle between loaders.
// Store selection options are ignored when a handle is supplied.
func WithStoreHandle(h *StoreHandle) Option {
	return func(opts *Options) {
		opts.Handle = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *Metrics) Option {
	return func(opts *Options) {
		opts.Metrics = metrics
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(opts *Options) {
		opts.TracerProvider = tp
	}
}

// WithSingleFlight enables coalescing of concurrent misses for the same key.
func WithSingleFlight() Option {
	return func(opts *Options) {
		opts.SingleFlight = true
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = now
	}
}

func buildOptions(opts []Option) (*Options, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = telemetry.NewNopLogger()
	}
	if options.Metrics == nil {
		options.Metrics = telemetry.NewMetrics()
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}
	if err := validateOptions(options); err != nil {
		return nil, err
	}
	return options, nil
}

// validateOptions checks for invalid combinations and missing required values.
func validateOptions(opts *Options) error {
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "invalid base URL")
		}
		if !u.IsAbs() {
			return platformerrors.WithContext(
				platformerrors.New(platformerrors.CodeInvalidConfig, "base URL must be absolute"),
				"base_url", opts.BaseURL,
			)
		}
	}

	return validateStore(opts)
}

// validateStore checks the store selection.
func validateStore(opts *Options) error {
	if opts.Handle != nil {
		return nil
	}

	switch opts.Store {
	case StoreSQLite:
		if opts.StoreDir == "" {
			return platformerrors.New(platformerrors.CodeInvalidConfig, "sqlite store requires a directory")
		}
	case StoreFS:
		if opts.FS == nil || opts.FSRoot == "" {
			return platformerrors.New(platformerrors.CodeInvalidConfig, "fs store requires a filesystem and root")
		}
	case storeCustom:
		if opts.Opener == nil {
			return platformerrors.New(platformerrors.CodeInvalidConfig, "custom store requires an opener")
		}
	case StoreMemory, StoreNone:
	default:
		return platformerrors.WithContext(
			platformerrors.New(platformerrors.CodeInvalidConfig, "unknown store kind"),
			"store", string(opts.Store),
		)
	}
	return nil
}

// openerAndProbe resolves the configured backend into an opener and capability probe.
func (opts *Options) openerAndProbe() (store.Opener, func() bool) {
	var (
		opener store.Opener
		probe  func() bool
	)
	switch opts.Store {
	case StoreSQLite:
		opener = sqlite.Opener(opts.StoreDir, opts.StoreName)
		probe = store.DirCapability(opts.StoreDir)
	case StoreFS:
		opener = fsstore.Opener(opts.FS, opts.FSRoot)
		probe = store.FSCapability(opts.FS, opts.FSRoot)
	case StoreMemory:
		opener = memstore.Opener()
	case storeCustom:
		opener = opts.Opener
	}
	if opts.Capability != nil {
		probe = opts.Capability
	}
	return opener, probe
}

// NewStoreHandle creates a store handle from the store options.
// Share the result between loaders with WithStoreHandle.
func NewStoreHandle(opts ...Option) *StoreHandle {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return newStoreHandle(options)
}

func newStoreHandle(options *Options) *StoreHandle {
	if options.Handle != nil {
		return options.Handle
	}
	if validateStore(options) != nil {
		options.Store = StoreNone
	}

	opener, probe := options.openerAndProbe()
	hopts := []store.HandleOption{
		store.WithLogger(options.Logger),
		store.WithMetrics(options.Metrics),
	}
	if probe != nil {
		hopts = append(hopts, store.WithCapability(probe))
	}
	if options.Clock != nil {
		hopts = append(hopts, store.WithClock(options.Clock))
	}
	return store.NewHandle(opener, hopts...)
}
