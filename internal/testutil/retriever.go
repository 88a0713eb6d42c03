package testutil

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// CountingRetriever is an in-memory retriever that records how often each
// resource was fetched. It satisfies fetch.Retriever.
type CountingRetriever struct {
	mu       sync.Mutex
	payloads map[string][]byte
	errs     map[string]error
	calls    map[string]int
	gate     chan struct{}
}

// NewCountingRetriever creates a retriever serving payloads keyed by resource identifier.
func NewCountingRetriever(payloads map[string][]byte) *CountingRetriever {
	p := make(map[string][]byte, len(payloads))
	for k, v := range payloads {
		p[k] = bytes.Clone(v)
	}
	return &CountingRetriever{
		payloads: p,
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Fetch returns a copy of the payload for id, the configured error, or a not-found error.
// Calls are counted before any blocking so tests can observe in-flight fetches.
func (r *CountingRetriever) Fetch(ctx context.Context, id string) ([]byte, error) {
	r.mu.Lock()
	r.calls[id]++
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.errs[id]; ok {
		return nil, err
	}
	payload, ok := r.payloads[id]
	if !ok {
		return nil, fmt.Errorf("no payload for %q", id)
	}
	return bytes.Clone(payload), nil
}

// SetPayload replaces the payload served for id.
func (r *CountingRetriever) SetPayload(id string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[id] = bytes.Clone(payload)
}

// SetError makes every fetch of id fail with err.
func (r *CountingRetriever) SetError(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[id] = err
}

// Block holds every subsequent Fetch until the returned release func is called.
func (r *CountingRetriever) Block() (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.gate = gate
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.gate = nil
			r.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the number of fetches of id.
func (r *CountingRetriever) Calls(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

// TotalCalls returns the number of fetches across all identifiers.
func (r *CountingRetriever) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}
