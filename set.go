package dictload

import (
	"context"
	"strings"
	"sync"

	platformerrors "github.com/jmgilman/go/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultFiles are the files that make up a complete morphological analyzer dictionary.
var DefaultFiles = []string{
	"base.dat.gz",
	"check.dat.gz",
	"tid.dat.gz",
	"tid_pos.dat.gz",
	"tid_map.dat.gz",
	"cc.dat.gz",
	"unk.dat.gz",
	"unk_pos.dat.gz",
	"unk_map.dat.gz",
	"unk_char.dat.gz",
	"unk_compat.dat.gz",
	"unk_invoke.dat.gz",
}

// SetConcurrency bounds the loads LoadSet runs at once.
const SetConcurrency = 4

// JoinPath appends name to base with exactly one slash between them.
// An empty base returns name unchanged.
func JoinPath(base, name string) string {
	if base == "" {
		return name
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(name, "/")
}

// LoadSet loads every name under base concurrently and returns the payloads keyed by name.
// The first failure cancels the remaining loads and is returned with the failing name attached.
func LoadSet(ctx context.Context, l Loader, base string, names []string) (map[string][]byte, error) {
	var (
		mu      sync.Mutex
		results = make(map[string][]byte, len(names))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(SetConcurrency)
	for _, name := range names {
		g.Go(func() error {
			data, err := l.Load(gctx, JoinPath(base, name))
			if err != nil {
				return platformerrors.WithContext(err, "file", name)
			}
			mu.Lock()
			results[name] = data
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
