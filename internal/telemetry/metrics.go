package telemetry

import (
	"sync/atomic"
	"time"
)

// Metrics tracks loader and cache activity with lock-free counters.
// The zero value is not usable; call NewMetrics. A nil *Metrics ignores all records.
type Metrics struct {
	hits                atomic.Int64
	misses              atomic.Int64
	networkFetches      atomic.Int64
	networkErrors       atomic.Int64
	decompressionErrors atomic.Int64
	bytesFetched        atomic.Int64
	bytesServed         atomic.Int64
	writes              atomic.Int64
	writeFailures       atomic.Int64
	writesSkipped       atomic.Int64
	readFaults          atomic.Int64
	storeOpenFailures   atomic.Int64
	degraded            atomic.Bool

	startTime time.Time
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordHit records a cache hit serving size bytes.
func (m *Metrics) RecordHit(size int) {
	if m == nil {
		return
	}
	m.hits.Add(1)
	m.bytesServed.Add(int64(size))
}

// RecordMiss records a cache miss (including misses caused by a degraded store).
func (m *Metrics) RecordMiss() {
	if m == nil {
		return
	}
	m.misses.Add(1)
}

// RecordFetch records a successful network retrieval of size decompressed bytes.
func (m *Metrics) RecordFetch(size int) {
	if m == nil {
		return
	}
	m.networkFetches.Add(1)
	m.bytesFetched.Add(int64(size))
}

// RecordNetworkError records a failed network retrieval.
func (m *Metrics) RecordNetworkError() {
	if m == nil {
		return
	}
	m.networkFetches.Add(1)
	m.networkErrors.Add(1)
}

// RecordDecompressionError records a retrieval whose body failed to decompress.
func (m *Metrics) RecordDecompressionError() {
	if m == nil {
		return
	}
	m.networkFetches.Add(1)
	m.decompressionErrors.Add(1)
}

// RecordWrite records the outcome of a cache write.
func (m *Metrics) RecordWrite(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.writes.Add(1)
		return
	}
	m.writeFailures.Add(1)
}

// RecordWriteSkipped records a write dropped because the store is not usable.
func (m *Metrics) RecordWriteSkipped() {
	if m == nil {
		return
	}
	m.writesSkipped.Add(1)
}

// RecordReadFault records a backend read error that was reported as a miss.
func (m *Metrics) RecordReadFault() {
	if m == nil {
		return
	}
	m.readFaults.Add(1)
}

// RecordStoreOpenFailure records a failed store open.
func (m *Metrics) RecordStoreOpenFailure() {
	if m == nil {
		return
	}
	m.storeOpenFailures.Add(1)
}

// SetDegraded marks whether the store is running in degraded mode.
func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	m.degraded.Store(degraded)
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	Hits                int64         `json:"hits"`
	Misses              int64         `json:"misses"`
	HitRate             float64       `json:"hit_rate"`
	NetworkFetches      int64         `json:"network_fetches"`
	NetworkErrors       int64         `json:"network_errors"`
	DecompressionErrors int64         `json:"decompression_errors"`
	BytesFetched        int64         `json:"bytes_fetched"`
	BytesServed         int64         `json:"bytes_served"`
	Writes              int64         `json:"writes"`
	WriteFailures       int64         `json:"write_failures"`
	WritesSkipped       int64         `json:"writes_skipped"`
	ReadFaults          int64         `json:"read_faults"`
	StoreOpenFailures   int64         `json:"store_open_failures"`
	Degraded            bool          `json:"degraded"`
	Uptime              time.Duration `json:"uptime_ns"`
}

// Snapshot returns the current values. A nil receiver returns the zero Snapshot.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	s := Snapshot{
		Hits:                m.hits.Load(),
		Misses:              m.misses.Load(),
		NetworkFetches:      m.networkFetches.Load(),
		NetworkErrors:       m.networkErrors.Load(),
		DecompressionErrors: m.decompressionErrors.Load(),
		BytesFetched:        m.bytesFetched.Load(),
		BytesServed:         m.bytesServed.Load(),
		Writes:              m.writes.Load(),
		WriteFailures:       m.writeFailures.Load(),
		WritesSkipped:       m.writesSkipped.Load(),
		ReadFaults:          m.readFaults.Load(),
		StoreOpenFailures:   m.storeOpenFailures.Load(),
		Degraded:            m.degraded.Load(),
		Uptime:              time.Since(m.startTime),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
