package runtime

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
)

// StorageStats is a snapshot of storage counters.
type StorageStats struct {
	Commits        uint64 `json:"commits"`
	CommittedOps   uint64 `json:"committedOps"`
	CommittedBytes uint64 `json:"committedBytes"`
	Reads          uint64 `json:"reads"`
	ReadBytes      uint64 `json:"readBytes"`
	CommitNanos    uint64 `json:"commitNanos"`

	// Engine metrics reported by Pebble.
	DiskBytes     uint64 `json:"diskBytes"`
	MemTableBytes uint64 `json:"memTableBytes"`
	WALBytes      uint64 `json:"walBytes"`
	SSTables      int64  `json:"sstables"`
	Flushes       int64  `json:"flushes"`
	Compactions   int64  `json:"compactions"`
}

// storageMetrics implements pebblestore.MetricsHook with atomic counters.
type storageMetrics struct {
	commits, ops, bytes, commitNanos atomic.Uint64
	reads, readBytes                 atomic.Uint64
}

func (m *storageMetrics) ObserveWrite(time.Duration, int) {}

func (m *storageMetrics) ObserveRead(_ time.Duration, n int) {
	m.reads.Add(1)
	m.readBytes.Add(uint64(n))
}

func (m *storageMetrics) ObserveBatchCommit(elapsed time.Duration, numOps int, n int) {
	m.commits.Add(1)
	m.ops.Add(uint64(numOps))
	m.bytes.Add(uint64(n))
	m.commitNanos.Add(uint64(elapsed))
}

func (m *storageMetrics) snapshot() StorageStats {
	return StorageStats{
		Commits:        m.commits.Load(),
		CommittedOps:   m.ops.Load(),
		CommittedBytes: m.bytes.Load(),
		Reads:          m.reads.Load(),
		ReadBytes:      m.readBytes.Load(),
		CommitNanos:    m.commitNanos.Load(),
	}
}

func (s *StorageStats) addEngine(m *pebble.Metrics) {
	if m == nil {
		return
	}
	s.DiskBytes = m.DiskSpaceUsage()
	s.MemTableBytes = m.MemTable.Size
	s.WALBytes = m.WAL.Size
	s.SSTables = m.Total().NumFiles
	s.Flushes = m.Flush.Count
	s.Compactions = m.Compact.Count
}
