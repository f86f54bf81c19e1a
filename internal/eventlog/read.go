package eventlog

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

// scanLocked returns up to limit decodable entries with from <= seq <= to in
// ascending order (limit 0 means no limit). Records failing the CRC check are
// skipped. Callers hold l.mu (read or write).
func (l *Store) scanLocked(from, to uint64, limit int) ([]Entry, error) {
	if from < l.firstSeq {
		from = l.firstSeq
	}
	if to > l.lastSeq {
		to = l.lastSeq
	}
	if from > to {
		return nil, nil
	}
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: KeyLogEntry(l.name, from),
		UpperBound: append(KeyLogEntry(l.name, to), 0x00),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorageUnavailable, l.name, err)
	}
	defer iter.Close()

	capHint := limit
	if capHint == 0 || uint64(capHint) > to-from+1 {
		capHint = int(min(to-from+1, 1024))
	}
	out := make([]Entry, 0, capHint)
	for ok := iter.First(); ok && (limit == 0 || len(out) < limit); ok = iter.Next() {
		seq := seqFromKey(iter.Key())
		e, ok := decodeEntry(seq, iter.Value())
		if !ok {
			l.log.Warn("skipping corrupt record", logpkg.Uint64("seq", seq))
			continue
		}
		out = append(out, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorageUnavailable, l.name, err)
	}
	return out, nil
}

// readPage reads the next page of a cursor under the read lock.
func (l *Store) readPage(from, to uint64, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, fmt.Errorf("%w: query %s", ErrInvalidState, l.name)
	}
	return l.scanLocked(from, to, limit)
}

// Read returns up to limit entries in [from, to] (to == 0 means newest)
// in one call. It is Query followed by draining the cursor.
func (l *Store) Read(from, to uint64, limit int) ([]Entry, error) {
	c, err := l.Query(from, to)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	var out []Entry
	for (limit == 0 || len(out) < limit) && c.Next() {
		out = append(out, c.Entry())
	}
	return out, c.Err()
}
