// Package fsstore provides a store.Backend on a core.FS directory tree.
//
// Layout under the root:
//
//	VERSION                 layout version, decimal
//	dictionary/<sha256>     one file per record, named by the key's digest
//	.temp/                  staging area for atomic writes
//
// Each record file starts with a single JSON header line carrying the key,
// the store time and the payload digest, followed by the raw payload. The
// digest is verified on every read.
package fsstore

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	_ "crypto/sha256" // registers the digest algorithm
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmgilman/go/dictload/internal/store"
	"github.com/jmgilman/go/fs/core"
	"github.com/opencontainers/go-digest"
)

var (
	// ErrCorrupted is returned when a record file fails its integrity check.
	ErrCorrupted = errors.New("record file corrupted")

	// ErrNewerSchema is returned when the root was written by a newer layout version.
	ErrNewerSchema = errors.New("store layout is newer than supported")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("fsstore: closed")
)

const (
	versionFile = "VERSION"
	tempDirName = ".temp"
)

// header is the first line of every record file.
type header struct {
	Key      string        `json:"key"`
	StoredAt int64         `json:"stored_at"`
	Digest   digest.Digest `json:"digest"`
}

// Store keeps records as files under a root directory.
type Store struct {
	fs      core.FS
	root    string
	dataDir string
	tempDir string
	version int

	mu        sync.RWMutex // held exclusively by Clear and Close
	fileLocks sync.Map     // record path -> *sync.Mutex
	closed    bool
}

// Opener returns an opener for the store rooted at root on fsys.
func Opener(fsys core.FS, root string) store.Opener {
	return func(ctx context.Context) (store.Backend, error) {
		s, err := Open(ctx, fsys, root)
		if err != nil {
			return nil, store.Unavailable(err, "failed to open filesystem store")
		}
		return s, nil
	}
}

// Open prepares the layout under root and returns the store.
func Open(ctx context.Context, fsys core.FS, root string) (*Store, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if root == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	s := &Store{
		fs:      fsys,
		root:    root,
		dataDir: path.Join(root, store.Collection),
		tempDir: path.Join(root, tempDirName),
	}

	if err := fsys.MkdirAll(s.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	if err := s.upgrade(); err != nil {
		return nil, err
	}
	return s, nil
}

// upgrade reads VERSION and creates the collection when it is missing or older.
func (s *Store) upgrade() error {
	current, err := s.readVersion()
	if err != nil {
		return err
	}
	if current > store.SchemaVersion {
		return fmt.Errorf("%w: found %d, want %d", ErrNewerSchema, current, store.SchemaVersion)
	}

	if err := s.fs.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", store.Collection, err)
	}
	if current < store.SchemaVersion {
		data := []byte(strconv.Itoa(store.SchemaVersion) + "\n")
		if err := s.writeAtomically(path.Join(s.root, versionFile), data); err != nil {
			return fmt.Errorf("failed to write version: %w", err)
		}
	}

	s.version = store.SchemaVersion
	return nil
}

func (s *Store) readVersion() (int, error) {
	p := path.Join(s.root, versionFile)
	exists, err := s.fs.Exists(p)
	if err != nil {
		return 0, fmt.Errorf("failed to check version file: %w", err)
	}
	if !exists {
		return 0, nil
	}

	data, err := s.fs.ReadFile(p)
	if err != nil {
		return 0, fmt.Errorf("failed to read version file: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid version file: %w", err)
	}
	return v, nil
}

// recordPath returns the file path for key.
func (s *Store) recordPath(key string) string {
	return path.Join(s.dataDir, digest.FromString(key).Encoded())
}

// fileLock returns the mutex guarding p.
func (s *Store) fileLock(p string) *sync.Mutex {
	lock, _ := s.fileLocks.LoadOrStore(p, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Get reads and verifies the record for key.
func (s *Store) Get(ctx context.Context, key string) (store.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, false, fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.Record{}, false, ErrClosed
	}

	p := s.recordPath(key)
	lock := s.fileLock(p)
	lock.Lock()
	defer lock.Unlock()

	data, err := s.fs.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.Record{}, false, nil
		}
		return store.Record{}, false, fmt.Errorf("failed to read record %q: %w", p, err)
	}

	h, payload, err := decode(data)
	if err != nil {
		return store.Record{}, false, err
	}
	if h.Key != key {
		// Digest collision or a foreign file; never serve another key's payload.
		return store.Record{}, false, fmt.Errorf("%w: key mismatch", ErrCorrupted)
	}

	return store.Record{
		Key:      h.Key,
		Payload:  payload,
		StoredAt: time.UnixMilli(h.StoredAt).UTC(),
	}, true, nil
}

// Put writes rec atomically, replacing any existing file for the key.
func (s *Store) Put(ctx context.Context, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if rec.Key == "" {
		return fmt.Errorf("record key is required")
	}
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}

	data, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	p := s.recordPath(rec.Key)
	lock := s.fileLock(p)
	lock.Lock()
	defer lock.Unlock()

	return s.writeAtomically(p, data)
}

// writeAtomically stages data in the temp directory and renames it into place.
func (s *Store) writeAtomically(target string, data []byte) error {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Errorf("failed to generate temp name: %w", err)
	}
	temp := path.Join(s.tempDir, "record_"+hex.EncodeToString(suffix))

	if err := s.fs.WriteFile(temp, data, 0o644); err != nil {
		_ = s.fs.Remove(temp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := s.fs.Rename(temp, target); err != nil {
		// Some filesystems refuse to rename over an existing file.
		if exists, _ := s.fs.Exists(target); exists {
			if rmErr := s.fs.Remove(target); rmErr == nil {
				err = s.fs.Rename(temp, target)
			}
		}
		if err != nil {
			_ = s.fs.Remove(temp)
			return fmt.Errorf("failed to rename temp file to %q: %w", target, err)
		}
	}
	return nil
}

// Keys lists stored keys in ascending order. Only record headers are read, so
// payloads are not verified; files without a valid header are skipped.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	entries, err := s.fs.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", s.dataDir, err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		h, err := s.readHeader(path.Join(s.dataDir, entry.Name()))
		if err != nil {
			continue
		}
		keys = append(keys, h.Key)
	}
	slices.Sort(keys)
	return keys, nil
}

// Clear removes every record and any staged temp files.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	for _, dir := range []string{s.dataDir, s.tempDir} {
		if err := s.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %q: %w", dir, err)
		}
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to recreate %q: %w", dir, err)
		}
	}
	return nil
}

// SchemaVersion reports the opened layout version.
func (s *Store) SchemaVersion() int {
	return s.version
}

// Close marks the store closed. Files are left in place.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func encode(rec store.Record) ([]byte, error) {
	line, err := json.Marshal(header{
		Key:      rec.Key,
		StoredAt: rec.StoredAt.UnixMilli(),
		Digest:   digest.FromBytes(rec.Payload),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}

	buf := make([]byte, 0, len(line)+1+len(rec.Payload))
	buf = append(buf, line...)
	buf = append(buf, '\n')
	buf = append(buf, rec.Payload...)
	return buf, nil
}

// readHeader reads the first line of the record file at p.
func (s *Store) readHeader(p string) (header, error) {
	f, err := s.fs.Open(p)
	if err != nil {
		return header{}, err
	}
	defer func() { _ = f.Close() }()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil {
		return header{}, fmt.Errorf("%w: missing header", ErrCorrupted)
	}
	return parseHeader(line[:len(line)-1])
}

func parseHeader(line []byte) (header, error) {
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return header{}, fmt.Errorf("%w: invalid header: %w", ErrCorrupted, err)
	}
	if err := h.Digest.Validate(); err != nil {
		return header{}, fmt.Errorf("%w: invalid digest: %w", ErrCorrupted, err)
	}
	return h, nil
}

func decode(data []byte) (header, []byte, error) {
	line, payload, ok := bytes.Cut(data, []byte("\n"))
	if !ok {
		return header{}, nil, fmt.Errorf("%w: missing header", ErrCorrupted)
	}

	h, err := parseHeader(line)
	if err != nil {
		return header{}, nil, err
	}

	verifier := h.Digest.Verifier()
	if _, err := verifier.Write(payload); err != nil {
		return header{}, nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	if !verifier.Verified() {
		return header{}, nil, fmt.Errorf("%w: digest mismatch", ErrCorrupted)
	}
	return h, payload, nil
}

var (
	_ store.Backend    = (*Store)(nil)
	_ store.Maintainer = (*Store)(nil)
)
