package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/dictload/internal/decompress"
)

// Gzip compresses raw and fails the test on error.
func Gzip(t testing.TB, raw []byte) []byte {
	t.Helper()
	compressed, err := decompress.Gzip(raw)
	require.NoError(t, err)
	return compressed
}

// DictServer serves gzip-compressed dictionary files and records requests.
type DictServer struct {
	*httptest.Server

	mu          sync.Mutex
	bodies      map[string][]byte
	status      map[string]int
	hits        map[string]int
	lastHeaders http.Header
}

// NewDictServer starts a server that serves gzip(raw[path]) at each path.
// The server is closed when the test ends.
func NewDictServer(t testing.TB, raw map[string][]byte) *DictServer {
	t.Helper()

	s := &DictServer{
		bodies: make(map[string][]byte, len(raw)),
		status: make(map[string]int),
		hits:   make(map[string]int),
	}
	for path, data := range raw {
		s.bodies[path] = Gzip(t, data)
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *DictServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.lastHeaders = r.Header.Clone()
	status, hasStatus := s.status[r.URL.Path]
	body, hasBody := s.bodies[r.URL.Path]
	s.mu.Unlock()

	if hasStatus {
		w.WriteHeader(status)
		return
	}
	if !hasBody {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	_, _ = w.Write(body)
}

// SetStatus makes path respond with status and an empty body.
func (s *DictServer) SetStatus(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[path] = status
}

// SetRawBody serves body at path without compressing it.
func (s *DictServer) SetRawBody(path string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[path] = body
	delete(s.status, path)
}

// Hits returns how many requests path received.
func (s *DictServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// LastHeaders returns the headers of the most recent request.
func (s *DictServer) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeaders.Clone()
}
