package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const defaultTrimBatch = 1024

// evictLocked deletes the oldest entries until at most bound remain. extra,
// when non-nil, adds further writes that must commit atomically with the
// eviction; the batch is committed even when nothing is evicted. Callers hold
// l.mu for writing.
func (l *Store) evictLocked(ctx context.Context, bound int, extra func(b *pebble.Batch) error) (int, error) {
	excess := l.countLocked() - bound
	if excess <= 0 && extra == nil {
		return 0, nil
	}
	b := l.db.NewBatch()
	defer b.Close()
	if extra != nil {
		if err := extra(b); err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, l.name, err)
		}
	}

	minSeq := l.firstSeq
	newFirst := l.firstSeq
	var evicted []Entry
	if excess > 0 {
		newFirst = l.firstSeq + uint64(excess)
		if l.archiving() {
			var err error
			if evicted, err = l.scanLocked(minSeq, newFirst-1, 0); err != nil {
				return 0, err
			}
		}
		if err := b.DeleteRange(KeyLogEntry(l.name, minSeq), KeyLogEntry(l.name, newFirst), nil); err != nil {
			return 0, fmt.Errorf("%w: evict %s: %w", ErrStorageUnavailable, l.name, err)
		}
	}
	if err := l.commit(ctx, b); err != nil {
		return 0, fmt.Errorf("%w: evict %s: %w", ErrStorageUnavailable, l.name, err)
	}
	if excess <= 0 {
		return 0, nil
	}
	l.firstSeq = newFirst
	l.archiver.ArchiveEvicted(l.name, minSeq, newFirst-1, evicted)
	l.log.Debug("evicted oldest entries",
		logpkg.Uint64("min_seq", minSeq), logpkg.Uint64("max_seq", newFirst-1))
	return excess, nil
}

// deletePrefixLocked removes the oldest n entries, which the caller has already
// read into removed (nil when not archiving).
func (l *Store) deletePrefixLocked(ctx context.Context, n int, removed []Entry) error {
	minSeq := l.firstSeq
	next := minSeq + uint64(n)
	b := l.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(KeyLogEntry(l.name, minSeq), KeyLogEntry(l.name, next), nil); err != nil {
		return fmt.Errorf("%w: trim %s: %w", ErrStorageUnavailable, l.name, err)
	}
	if err := l.commit(ctx, b); err != nil {
		return fmt.Errorf("%w: trim %s: %w", ErrStorageUnavailable, l.name, err)
	}
	l.firstSeq = next
	l.archiver.ArchiveEvicted(l.name, minSeq, next-1, removed)
	return nil
}

// TrimOlderThan deletes the oldest entries whose event timestamp is before
// cutoff, stopping at the first entry that is not. Deletes are committed in
// batches of up to batchLimit entries with an optional throttle between
// commits; the write lock is released between batches. Returns the number of
// deleted entries and the last deleted sequence (0 if none).
func (l *Store) TrimOlderThan(ctx context.Context, cutoff time.Time, batchLimit int, throttle time.Duration) (int, uint64, error) {
	if batchLimit <= 0 {
		batchLimit = defaultTrimBatch
	}
	deleted := 0
	var lastSeq uint64
	for {
		n, last, done, err := l.trimOlderBatch(ctx, cutoff, batchLimit)
		if n > 0 {
			deleted += n
			lastSeq = last
		}
		if err != nil || done {
			return deleted, lastSeq, err
		}
		if err := sleepCtx(ctx, throttle); err != nil {
			return deleted, lastSeq, err
		}
	}
}

func (l *Store) trimOlderBatch(ctx context.Context, cutoff time.Time, limit int) (int, uint64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, 0, true, fmt.Errorf("%w: trim %s", ErrInvalidState, l.name)
	}
	if l.countLocked() == 0 {
		return 0, 0, true, nil
	}
	// One extra entry tells us whether the prefix continues past this batch.
	candidates, err := l.scanLocked(l.firstSeq, l.lastSeq, limit+1)
	if err != nil {
		return 0, 0, true, err
	}
	n := 0
	var removed []Entry
	for _, e := range candidates {
		// Records the scan skipped as undecodable are dropped with the prefix.
		if next := l.firstSeq + uint64(n); e.SequenceID > next {
			gap := int(min(e.SequenceID-next, uint64(limit-n)))
			l.log.Warn("dropping undecodable records",
				logpkg.Uint64("min_seq", next), logpkg.Uint64("max_seq", next+uint64(gap)-1))
			n += gap
		}
		if n == limit || !e.Timestamp.Before(cutoff) {
			break
		}
		if l.archiving() {
			removed = append(removed, e)
		}
		n++
	}
	if len(candidates) == 0 {
		n = min(l.countLocked(), limit)
		l.log.Warn("dropping undecodable records",
			logpkg.Uint64("min_seq", l.firstSeq), logpkg.Uint64("max_seq", l.firstSeq+uint64(n)-1))
	}
	done := n < limit
	if n == 0 {
		return 0, 0, true, nil
	}
	last := l.firstSeq + uint64(n) - 1
	if err := l.deletePrefixLocked(ctx, n, removed); err != nil {
		return 0, 0, true, err
	}
	return n, last, done, nil
}

// TrimToMaxBytes approximates retention by total stored value bytes. If the
// log already fits it is a no-op; otherwise the oldest entries are deleted
// until it does. Batched and throttled like TrimOlderThan.
func (l *Store) TrimToMaxBytes(ctx context.Context, maxBytes int64, batchLimit int, throttle time.Duration) (int, error) {
	if batchLimit <= 0 {
		batchLimit = defaultTrimBatch
	}
	if maxBytes < 0 {
		return 0, nil
	}
	deleted := 0
	for {
		n, done, err := l.trimBytesBatch(ctx, maxBytes, batchLimit)
		deleted += n
		if err != nil || done {
			return deleted, err
		}
		if err := sleepCtx(ctx, throttle); err != nil {
			return deleted, err
		}
	}
}

func (l *Store) trimBytesBatch(ctx context.Context, maxBytes int64, limit int) (int, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, true, fmt.Errorf("%w: trim %s", ErrInvalidState, l.name)
	}
	low, high := entryBounds(l.name)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, true, fmt.Errorf("%w: trim %s: %w", ErrStorageUnavailable, l.name, err)
	}
	var total int64
	for ok := iter.First(); ok; ok = iter.Next() {
		total += int64(len(iter.Value()))
	}
	if total <= maxBytes {
		_ = iter.Close()
		return 0, true, nil
	}

	n := 0
	var removed []Entry
	for ok := iter.First(); ok && total > maxBytes && n < limit; ok = iter.Next() {
		if seqFromKey(iter.Key()) != l.firstSeq+uint64(n) {
			break
		}
		if l.archiving() {
			if e, ok := decodeEntry(seqFromKey(iter.Key()), iter.Value()); ok {
				removed = append(removed, e)
			}
		}
		total -= int64(len(iter.Value()))
		n++
	}
	if err := iter.Close(); err != nil {
		return 0, true, fmt.Errorf("%w: trim %s: %w", ErrStorageUnavailable, l.name, err)
	}
	if n == 0 {
		return 0, true, nil
	}
	if err := l.deletePrefixLocked(ctx, n, removed); err != nil {
		return 0, true, err
	}
	return n, total <= maxBytes, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
