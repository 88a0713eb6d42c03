// Package cli implements the dictload command.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmgilman/go/fs/billy"
	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/jmgilman/go/dictload"
	"github.com/jmgilman/go/dictload/internal/config"
	"github.com/jmgilman/go/dictload/internal/store"
	"github.com/jmgilman/go/dictload/internal/telemetry"
	"github.com/jmgilman/go/dictload/internal/tracing"
)

// Version is set at build time.
var Version = "dev"

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

type flags struct {
	configPath   string
	baseURL      string
	store        string
	storeDir     string
	storeName    string
	outputDir    string
	logLevel     string
	logJSON      bool
	singleFlight bool
	timeout      time.Duration
	set          bool
	stats        bool
	list         bool
	clear        bool
	version      bool
	help         bool

	fs        *flag.FlagSet
	resources []string
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("dictload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVarP(&f.configPath, "config", "c", "", "JSONC config file")
	fs.StringVar(&f.baseURL, "base-url", "", "URL relative resources resolve against")
	fs.StringVar(&f.store, "store", "", "cache store: sqlite, fs, memory or none")
	fs.StringVar(&f.storeDir, "store-dir", "", "directory for the sqlite or fs store")
	fs.StringVar(&f.storeName, "store-name", "", "sqlite database name")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "write each payload to this directory")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&f.logJSON, "log-json", false, "log as JSON")
	fs.BoolVar(&f.singleFlight, "single-flight", false, "coalesce concurrent loads of the same resource")
	fs.DurationVar(&f.timeout, "timeout", 0, "overall deadline for all loads")
	fs.BoolVar(&f.set, "set", false, "load the standard dictionary file set")
	fs.BoolVar(&f.stats, "stats", false, "print metrics as JSON when done")
	fs.BoolVar(&f.list, "list", false, "list cached resources")
	fs.BoolVar(&f.clear, "clear", false, "remove every cached resource before loading")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.BoolVarP(&f.help, "help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.fs = fs
	f.resources = fs.Args()
	return f, nil
}

// apply overrides cfg with every flag the user set explicitly.
func (f *flags) apply(cfg *config.Config) {
	changed := f.fs.Changed
	if changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if changed("store") {
		cfg.Store = f.store
	}
	if changed("store-dir") {
		cfg.StoreDir = f.storeDir
	}
	if changed("store-name") {
		cfg.StoreName = f.storeName
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-json") {
		cfg.LogJSON = f.logJSON
	}
	if changed("single-flight") {
		cfg.SingleFlight = f.singleFlight
	}
	if changed("timeout") {
		cfg.Timeout = config.Duration(f.timeout)
	}
}

// Run is the main entry point. Returns exit code.
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) > 0 {
		args = args[1:]
	}

	f, err := parseFlags(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)
		return ExitUsage
	}
	if f.help {
		printUsage(out)
		return ExitOK
	}
	if f.version {
		fprintln(out, "dictload", Version)
		return ExitOK
	}

	cfg, err := config.Load(f.configPath, env)
	if err != nil {
		fprintln(errOut, "error:", err)
		return ExitUsage
	}
	f.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fprintln(errOut, "error:", err)
		return ExitUsage
	}

	resources := f.resources
	if f.set {
		sets := make([]string, 0, len(dictload.DefaultFiles))
		sets = append(sets, dictload.DefaultFiles...)
		resources = append(sets, resources...)
	}
	if len(resources) == 0 && !f.list && !f.clear {
		fprintln(errOut, "error: no resources given")
		printUsage(errOut)
		return ExitUsage
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	logger := newLogger(cfg, errOut)

	tp, shutdown, err := tracing.Setup(ctx, "dictload", cfg.OTelEndpoint)
	if err != nil {
		fprintln(errOut, "error:", err)
		return ExitUsage
	}
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	opts, err := loaderOptions(cfg)
	if err != nil {
		fprintln(errOut, "error:", err)
		return ExitUsage
	}
	metrics := dictload.NewMetrics()
	opts = append(opts,
		dictload.WithLogger(logger),
		dictload.WithMetrics(metrics),
		dictload.WithTracerProvider(tp),
	)

	loader, err := dictload.New(opts...)
	if err != nil {
		fprintln(errOut, "error:", err)
		return ExitUsage
	}

	code := execute(ctx, out, errOut, loader, cfg, f, resources)

	if err := loader.Close(); err != nil {
		logger.Warn(ctx, "failed to close store", "error", err)
	}
	if f.stats {
		if err := printStats(out, metrics.Snapshot()); err != nil {
			fprintln(errOut, "error:", err)
			return ExitFailure
		}
	}
	return code
}

func execute(
	ctx context.Context, out, errOut io.Writer, loader *dictload.CachingLoader,
	cfg config.Config, f *flags, resources []string,
) int {
	if f.clear || f.list {
		maintainer, err := maintainerFor(ctx, loader)
		if err != nil {
			fprintln(errOut, "error:", err)
			return ExitFailure
		}
		if f.clear {
			if err := maintainer.Clear(ctx); err != nil {
				fprintln(errOut, "error: clear store:", err)
				return ExitFailure
			}
		}
		if f.list {
			keys, err := maintainer.Keys(ctx)
			if err != nil {
				fprintln(errOut, "error: list store:", err)
				return ExitFailure
			}
			for _, k := range keys {
				fprintln(out, k)
			}
		}
	}

	if len(resources) == 0 {
		return ExitOK
	}

	loadCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout))
		defer cancel()
	}

	ids := unique(resources)
	results, err := dictload.LoadSet(loadCtx, loader, "", ids)
	if err != nil {
		fprintln(errOut, "error:", err)
		return ExitFailure
	}

	for _, id := range ids {
		data := results[id]
		if cfg.OutputDir == "" {
			fmt.Fprintf(out, "%s\t%d\n", id, len(data))
			continue
		}
		target := filepath.Join(cfg.OutputDir, OutputName(id))
		if err := writeOutput(target, data); err != nil {
			fprintln(errOut, "error:", err)
			return ExitFailure
		}
		fmt.Fprintf(out, "%s\t%d\t%s\n", id, len(data), target)
	}
	return ExitOK
}

// newLogger builds the command's logger on top of the default log configuration.
func newLogger(cfg config.Config, out io.Writer) *telemetry.Logger {
	logCfg := telemetry.DefaultLogConfig()
	if level, err := telemetry.ParseLogLevel(cfg.LogLevel); err == nil {
		logCfg.Level = level
	}
	logCfg.Output = out
	logCfg.JSON = cfg.LogJSON
	return telemetry.NewLogger(logCfg)
}

func loaderOptions(cfg config.Config) ([]dictload.Option, error) {
	opts := []dictload.Option{dictload.WithStoreName(cfg.StoreName)}
	if cfg.BaseURL != "" {
		opts = append(opts, dictload.WithBaseURL(cfg.BaseURL))
	}
	if cfg.SingleFlight {
		opts = append(opts, dictload.WithSingleFlight())
	}

	switch cfg.Store {
	case config.StoreSQLite:
		opts = append(opts, dictload.WithSQLiteStore(cfg.StoreDir))
	case config.StoreFS:
		root, err := filepath.Abs(cfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("resolve store dir: %w", err)
		}
		opts = append(opts, dictload.WithFSStore(billy.NewLocal(), filepath.ToSlash(root)))
	case config.StoreMemory:
		opts = append(opts, dictload.WithMemoryStore())
	default:
		opts = append(opts, dictload.WithoutStore())
	}
	return opts, nil
}

var errNoMaintenance = errors.New("store is unavailable or does not support maintenance")

func maintainerFor(ctx context.Context, loader *dictload.CachingLoader) (store.Maintainer, error) {
	backend, ok := loader.Handle().Backend(ctx)
	if !ok {
		return nil, errNoMaintenance
	}
	m, ok := backend.(store.Maintainer)
	if !ok {
		return nil, errNoMaintenance
	}
	return m, nil
}

// OutputName returns the file name a resource is written under: its last
// path segment without the .gz extension.
func OutputName(id string) string {
	p := id
	if u, err := url.Parse(id); err == nil {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		name = "index"
	}
	return strings.TrimSuffix(name, ".gz")
}

func writeOutput(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := atomic.WriteFile(target, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

func printStats(out io.Writer, snap telemetry.Snapshot) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer) {
	fprintln(w, `dictload - fetch gzip dictionary files through a local cache

Usage: dictload [flags] <resource>...

Resources are URLs, or paths resolved against --base-url.

Flags:
  -c, --config <file>      JSONC config file (or DICTLOAD_CONFIG)
      --base-url <url>     URL relative resources resolve against
      --store <kind>       cache store: sqlite, fs, memory or none
      --store-dir <dir>    directory for the sqlite or fs store
      --store-name <name>  sqlite database name
  -o, --output-dir <dir>   write each payload to <dir>/<name without .gz>
      --log-level <level>  debug, info, warn or error
      --log-json           log as JSON
      --single-flight      coalesce concurrent loads of the same resource
      --timeout <dur>      overall deadline for all loads
      --set                load the standard dictionary file set
      --stats              print metrics as JSON when done
      --list               list cached resources
      --clear              remove every cached resource before loading
      --version            print version and exit
  -h, --help               show help

Configuration values can also be set with DICTLOAD_* environment variables,
for example DICTLOAD_BASE_URL or DICTLOAD_STORE_DIR. Flags win over both.

Exit codes: 0 success, 1 load failure, 2 usage or configuration error.`)
}
