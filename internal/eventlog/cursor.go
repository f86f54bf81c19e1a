package eventlog

import (
	"fmt"
	"iter"
)

const defaultPageSize = 256

// Cursor is a lazy, read-only view over [from, to] of a Store. The upper bound
// is fixed when the cursor is created, so entries appended later are not
// returned. Entries evicted before the cursor reaches them are skipped
// silently. Pages are read under the store's read lock, so a cursor never
// observes a partially written entry.
type Cursor struct {
	store    *Store
	next     uint64
	upper    uint64
	pageSize int

	page []Entry
	cur  Entry
	err  error
	done bool
}

// Query returns a cursor over entries with from <= seq <= to in ascending
// order. to == 0 means the newest entry at the time of the call. An empty or
// fully evicted range yields an empty cursor, not an error.
func (l *Store) Query(from, to uint64) (*Cursor, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, fmt.Errorf("%w: query %s", ErrInvalidState, l.name)
	}
	upper := l.lastSeq
	if to != 0 && to < upper {
		upper = to
	}
	if from == 0 {
		from = 1
	}
	c := &Cursor{store: l, next: from, upper: upper, pageSize: defaultPageSize}
	if from > upper {
		c.done = true
	}
	return c, nil
}

// Next advances to the next entry. It returns false at the end of the range
// or on error; check Err afterwards.
func (c *Cursor) Next() bool {
	if len(c.page) == 0 && !c.done {
		c.fill()
	}
	if len(c.page) == 0 {
		return false
	}
	c.cur = c.page[0]
	c.page = c.page[1:]
	return true
}

func (c *Cursor) fill() {
	page, err := c.store.readPage(c.next, c.upper, c.pageSize)
	if err != nil {
		c.err = err
		c.done = true
		return
	}
	if len(page) == 0 {
		c.done = true
		return
	}
	last := page[len(page)-1].SequenceID
	if last >= c.upper {
		c.done = true
	} else {
		c.next = last + 1
	}
	c.page = page
}

// Entry returns the entry at the current position.
func (c *Cursor) Entry() Entry { return c.cur }

// Err returns the first error encountered while reading.
func (c *Cursor) Err() error { return c.err }

// Close releases the cursor. Further calls to Next return false.
func (c *Cursor) Close() {
	c.done = true
	c.page = nil
}

// All adapts the cursor to a range-over-func sequence. A read error is yielded
// once with a zero Entry and ends the sequence.
func (c *Cursor) All() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		defer c.Close()
		for c.Next() {
			if !yield(c.Entry(), nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(Entry{}, err)
		}
	}
}
