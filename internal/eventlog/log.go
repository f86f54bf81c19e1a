package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

// DefaultMaxEntries is the bound applied to a log that has neither a
// persisted nor a configured bound.
const DefaultMaxEntries = 10

// Entry is one immutable logged event.
type Entry struct {
	SequenceID uint64
	EntryID    string
	Timestamp  Timestamp
	Payload    []byte
}

// Record is a single appendable event.
type Record struct {
	EntryID   string
	Timestamp Timestamp
	Payload   []byte
}

// Options configures a Store.
type Options struct {
	// MaxEntries is used when no bound was persisted for the log. Zero means DefaultMaxEntries.
	MaxEntries int
	// Archiver receives evicted entries. Optional.
	Archiver Archiver
	Logger   logpkg.Logger
}

// Stats is a point-in-time summary of a Store.
type Stats struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	FirstSeq   uint64 `json:"firstSeq"`
	LastSeq    uint64 `json:"lastSeq"`
	MaxEntries int    `json:"maxEntries"`
	Closed     bool   `json:"closed"`
}

// Store is a durable, bounded, append-ordered log bound to one name.
//
// Retained entries always form the contiguous range [firstSeq, lastSeq];
// firstSeq == lastSeq+1 when the log is empty.
type Store struct {
	db       *pebblestore.DB
	name     string
	log      logpkg.Logger
	archiver Archiver
	// commit is db.CommitBatch; replaced in tests to inject write faults.
	commit func(ctx context.Context, b *pebble.Batch) error
	// compact is db.CompactRange; replaced in tests.
	compact func(start, end []byte) error

	mu         sync.RWMutex
	closed     bool
	lastSeq    uint64
	firstSeq   uint64
	maxEntries int
	notifyCh   chan struct{}
}

// Open opens or creates the log called name inside db. It restores the
// high-water mark and the persisted bound, and trims any overflow left by an
// earlier run.
func Open(db *pebblestore.DB, name string, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil db", ErrInvalidArgument)
	}
	if name == "" || len(name) > 0xffff {
		return nil, fmt.Errorf("%w: log name length %d", ErrInvalidArgument, len(name))
	}
	if opts.MaxEntries < 0 {
		return nil, fmt.Errorf("%w: max entries %d", ErrInvalidArgument, opts.MaxEntries)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	archiver := opts.Archiver
	if archiver == nil {
		archiver = noopArchiver{}
	}
	l := &Store{
		db:         db,
		name:       name,
		log:        logger.With(logpkg.Component("eventlog"), logpkg.Str("log", name)),
		archiver:   archiver,
		commit:     db.CommitBatch,
		compact:    db.CompactRange,
		notifyCh:   make(chan struct{}),
		maxEntries: opts.MaxEntries,
	}
	if l.maxEntries == 0 {
		l.maxEntries = DefaultMaxEntries
	}

	lastSeq, ok, err := l.readUint64(KeyLogMeta(name))
	if err != nil {
		return nil, err
	}
	if ok {
		l.lastSeq = lastSeq
	}
	bound, ok, err := l.readUint64(KeyLogBound(name))
	if err != nil {
		return nil, err
	}
	if ok && bound > 0 {
		l.maxEntries = int(bound)
	}
	if err := l.loadRange(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.evictLocked(context.Background(), l.maxEntries, nil); err != nil {
		return nil, err
	}
	l.log.Debug("log opened",
		logpkg.Uint64("last_seq", l.lastSeq),
		logpkg.Int("count", l.countLocked()),
		logpkg.Int("max_entries", l.maxEntries))
	return l, nil
}

func (l *Store) readUint64(key []byte) (uint64, bool, error) {
	b, err := l.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: read %s: %w", ErrStorageUnavailable, l.name, err)
	}
	if len(b) < 8 {
		return 0, false, nil
	}
	return binary.BigEndian.Uint64(b[:8]), true, nil
}

// loadRange finds the oldest retained entry. If entries exist past the stored
// high-water mark, the mark is advanced so sequence ids are never reused.
func (l *Store) loadRange() error {
	low, high := entryBounds(l.name)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return fmt.Errorf("%w: scan %s: %w", ErrStorageUnavailable, l.name, err)
	}
	defer iter.Close()
	if !iter.First() {
		l.firstSeq = l.lastSeq + 1
		return iter.Error()
	}
	l.firstSeq = seqFromKey(iter.Key())
	if iter.Last() {
		if last := seqFromKey(iter.Key()); last > l.lastSeq {
			l.log.Warn("high-water mark behind entries; advancing",
				logpkg.Uint64("meta_seq", l.lastSeq), logpkg.Uint64("entry_seq", last))
			l.lastSeq = last
		}
	}
	return iter.Error()
}

// Name returns the log reference this store is bound to.
func (l *Store) Name() string { return l.name }

func (l *Store) countLocked() int { return int(l.lastSeq + 1 - l.firstSeq) }

// Count returns the number of retained entries.
func (l *Store) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.countLocked()
}

// MaxEntries returns the current retention bound.
func (l *Store) MaxEntries() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxEntries
}

// Stats returns a consistent summary of the store.
func (l *Store) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Stats{Name: l.name, Count: l.countLocked(), LastSeq: l.lastSeq, MaxEntries: l.maxEntries, Closed: l.closed}
	if s.Count > 0 {
		s.FirstSeq = l.firstSeq
	}
	return s
}

// Append appends one entry and returns its sequence id.
func (l *Store) Append(ctx context.Context, entryID string, ts Timestamp, payload []byte) (uint64, error) {
	seqs, err := l.AppendBatch(ctx, []Record{{EntryID: entryID, Timestamp: ts, Payload: payload}})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// AppendBatch appends the records as a single atomic batch and returns the
// assigned sequence ids. Either every record and the eviction it causes are
// committed or nothing is.
func (l *Store) AppendBatch(ctx context.Context, recs []Record) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("%w: append %s", ErrInvalidState, l.name)
	}

	b := l.db.NewBatch()
	defer b.Close()

	// The overflow prefix is deleted in the same batch as the new entries, so
	// the bound holds whenever the append is visible.
	newLast := l.lastSeq + uint64(len(recs))
	minSeq, newFirst := l.firstSeq, l.firstSeq
	if newLast+1-l.firstSeq > uint64(l.maxEntries) {
		newFirst = newLast + 1 - uint64(l.maxEntries)
	}
	var evicted []Entry
	if storedEnd := min(newFirst, l.lastSeq+1); storedEnd > minSeq {
		if l.archiving() {
			var err error
			if evicted, err = l.scanLocked(minSeq, storedEnd-1, 0); err != nil {
				return nil, err
			}
		}
		if err := b.DeleteRange(KeyLogEntry(l.name, minSeq), KeyLogEntry(l.name, storedEnd), nil); err != nil {
			return nil, fmt.Errorf("%w: append %s: %w", ErrStorageUnavailable, l.name, err)
		}
	}

	seqs := make([]uint64, len(recs))
	for i, r := range recs {
		seq := l.lastSeq + uint64(i) + 1
		seqs[i] = seq
		if seq < newFirst {
			// Evicted by its own batch; never written.
			if l.archiving() {
				evicted = append(evicted, Entry{SequenceID: seq, EntryID: r.EntryID, Timestamp: r.Timestamp, Payload: append([]byte(nil), r.Payload...)})
			}
			continue
		}
		if err := b.Set(KeyLogEntry(l.name, seq), encodeEntry(r.EntryID, r.Timestamp, r.Payload), nil); err != nil {
			return nil, fmt.Errorf("%w: append %s: %w", ErrStorageUnavailable, l.name, err)
		}
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], newLast)
	if err := b.Set(KeyLogMeta(l.name), meta[:], nil); err != nil {
		return nil, fmt.Errorf("%w: append %s: %w", ErrStorageUnavailable, l.name, err)
	}

	if err := l.commit(ctx, b); err != nil {
		return nil, fmt.Errorf("%w: append %s: %w", ErrStorageUnavailable, l.name, err)
	}
	l.lastSeq = newLast
	l.firstSeq = newFirst
	l.notifyLocked()

	if newFirst > minSeq {
		l.archiver.ArchiveEvicted(l.name, minSeq, newFirst-1, evicted)
		l.log.Debug("evicted oldest entries",
			logpkg.Uint64("min_seq", minSeq), logpkg.Uint64("max_seq", newFirst-1))
	}
	return seqs, nil
}

// SetMaxEntries sets and persists the retention bound. A bound smaller than
// the current count evicts the oldest entries in the same atomic batch.
func (l *Store) SetMaxEntries(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: max entries must be >= 1, got %d", ErrInvalidArgument, n)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("%w: set max entries %s", ErrInvalidState, l.name)
	}
	var bound [8]byte
	binary.BigEndian.PutUint64(bound[:], uint64(n))
	evicted, err := l.evictLocked(ctx, n, func(b *pebble.Batch) error {
		return b.Set(KeyLogBound(l.name), bound[:], nil)
	})
	if err != nil {
		return err
	}
	l.maxEntries = n
	if evicted > 0 {
		l.log.Info("bound lowered", logpkg.Int("max_entries", n), logpkg.Int("evicted", evicted))
	}
	return nil
}

// Purge removes every entry. The sequence counter is untouched.
func (l *Store) Purge(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("%w: purge %s", ErrInvalidState, l.name)
	}
	if l.countLocked() == 0 {
		return nil
	}
	low, high := entryBounds(l.name)
	b := l.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(low, high, nil); err != nil {
		return fmt.Errorf("%w: purge %s: %w", ErrStorageUnavailable, l.name, err)
	}
	if err := l.commit(ctx, b); err != nil {
		return fmt.Errorf("%w: purge %s: %w", ErrStorageUnavailable, l.name, err)
	}
	purged := l.countLocked()
	l.firstSeq = l.lastSeq + 1
	// Reclaim the space behind the range tombstone now; the purge already stands.
	if err := l.compact(low, high); err != nil {
		l.log.Warn("compaction after purge failed", logpkg.Err(err))
	}
	l.log.Info("log purged", logpkg.Int("entries", purged))
	return nil
}

// Close flushes committed writes and releases the store. Closing twice is a no-op.
// The shared database is owned by the caller and stays open.
func (l *Store) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.notifyCh)
	if l.db.Closed() {
		return nil
	}
	if err := l.db.Sync(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrStorageUnavailable, l.name, err)
	}
	return nil
}

// notifyLocked wakes WaitForAppend callers. Callers hold l.mu.
func (l *Store) notifyLocked() {
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
}
