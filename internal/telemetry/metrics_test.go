package telemetry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordHit(100)
	m.RecordHit(50)
	m.RecordMiss()
	m.RecordFetch(400)
	m.RecordNetworkError()
	m.RecordDecompressionError()
	m.RecordWrite(true)
	m.RecordWrite(false)
	m.RecordWriteSkipped()
	m.RecordReadFault()
	m.RecordStoreOpenFailure()
	m.SetDegraded(true)

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 0.0001)
	assert.Equal(t, int64(150), s.BytesServed)
	assert.Equal(t, int64(3), s.NetworkFetches)
	assert.Equal(t, int64(1), s.NetworkErrors)
	assert.Equal(t, int64(1), s.DecompressionErrors)
	assert.Equal(t, int64(400), s.BytesFetched)
	assert.Equal(t, int64(1), s.Writes)
	assert.Equal(t, int64(1), s.WriteFailures)
	assert.Equal(t, int64(1), s.WritesSkipped)
	assert.Equal(t, int64(1), s.ReadFaults)
	assert.Equal(t, int64(1), s.StoreOpenFailures)
	assert.True(t, s.Degraded)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHit(1)
		m.RecordMiss()
		m.RecordWrite(true)
		m.SetDegraded(true)
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordHit(1)
				m.RecordMiss()
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, int64(5000), s.Hits)
	assert.Equal(t, int64(5000), s.Misses)
	assert.InDelta(t, 0.5, s.HitRate, 0.0001)
}
