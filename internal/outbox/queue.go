package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
)

const (
	defaultMaxAttempts = 5
	defaultLease       = 30 * time.Second
)

// Options configures a Queue.
type Options struct {
	// MaxAttempts is the number of failed deliveries after which a message is
	// dead-lettered. Zero means 5.
	MaxAttempts int
	// Now is the clock used for readiness and leases; tests replace it.
	Now func() time.Time
}

// Message is a leased message.
type Message struct {
	Seq      uint64
	Header   []byte
	Payload  []byte
	Attempts uint32
	ExpiryMs int64
}

// Stats counts messages per state.
type Stats struct {
	Ready  int `json:"ready"`
	Leased int `json:"leased"`
	Dead   int `json:"dead"`
}

// Queue is a durable single-consumer queue with lease-based delivery, retry
// with delay and a dead-letter list, stored in the shared Pebble database.
// Delivery is at-least-once.
type Queue struct {
	db   *pebblestore.DB
	keys keyspace
	opts Options

	mu      sync.Mutex
	lastSeq uint64
	notify  chan struct{}
}

// Open initializes a queue called name and restores lastSeq from metadata.
func Open(db *pebblestore.DB, name string, opts Options) (*Queue, error) {
	if db == nil || name == "" {
		return nil, errors.New("outbox: db and name are required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	q := &Queue{db: db, keys: newKeyspace(name), opts: opts, notify: make(chan struct{}, 1)}
	meta, err := db.Get(q.keys.meta())
	switch {
	case err == nil && len(meta) >= 8:
		q.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebble.ErrNotFound):
		return nil, fmt.Errorf("outbox: read meta: %w", err)
	}
	return q, nil
}

func (q *Queue) nowMs() int64 { return q.opts.Now().UnixMilli() }

// Notify is signalled after each Enqueue.
func (q *Queue) Notify() <-chan struct{} { return q.notify }

func attemptsValue(n uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return b[:]
}

func attemptsOf(v []byte) uint32 {
	if len(v) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(v[:4])
}

// Enqueue durably stores a message and makes it available immediately.
func (q *Queue) Enqueue(ctx context.Context, header, payload []byte) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.db.NewBatch()
	defer b.Close()
	seq := q.lastSeq + 1
	if err := b.Set(q.keys.msg(seq), encodeMessage(header, payload), nil); err != nil {
		return 0, err
	}
	if err := b.Set(q.keys.ready(q.nowMs(), seq), attemptsValue(0), nil); err != nil {
		return 0, err
	}
	if err := b.Set(q.keys.meta(), be8(seq), nil); err != nil {
		return 0, err
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	q.lastSeq = seq
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return seq, nil
}

// Dequeue leases up to count messages that are ready now, oldest first.
// Index entries whose message is missing or corrupt are dropped.
func (q *Queue) Dequeue(ctx context.Context, count int, lease time.Duration) ([]Message, error) {
	if count <= 0 {
		count = 1
	}
	if lease <= 0 {
		lease = defaultLease
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowMs()
	lo, hi := q.keys.span("rdy")
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()
	var msgs []Message
	changed := false
	for ok := iter.First(); ok && len(msgs) < count; ok = iter.Next() {
		readyMs, seq, ok := parseTimed(iter.Key())
		if !ok {
			continue
		}
		if readyMs > now {
			break
		}
		key := append([]byte(nil), iter.Key()...)
		attempts := attemptsOf(iter.Value())
		changed = true
		if err := b.Delete(key, nil); err != nil {
			return nil, err
		}
		val, err := q.db.Get(q.keys.msg(seq))
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				continue
			}
			return nil, err
		}
		header, payload, ok := decodeMessage(val)
		if !ok {
			continue
		}
		exp := now + lease.Milliseconds()
		if err := b.Set(q.keys.lease(exp, seq), attemptsValue(attempts), nil); err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{Seq: seq, Header: header, Payload: payload, Attempts: attempts, ExpiryMs: exp})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if changed {
		if err := q.db.CommitBatch(ctx, b); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// Complete removes delivered messages and their leases.
func (q *Queue) Complete(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	b := q.db.NewBatch()
	defer b.Close()
	for _, m := range msgs {
		if err := b.Delete(q.keys.lease(m.ExpiryMs, m.Seq), nil); err != nil {
			return err
		}
		if err := b.Delete(q.keys.msg(m.Seq), nil); err != nil {
			return err
		}
	}
	return q.db.CommitBatch(ctx, b)
}

// Fail records a failed delivery. The message becomes ready again after
// retryAfter, or is dead-lettered once MaxAttempts is reached; dead reports
// which happened.
func (q *Queue) Fail(ctx context.Context, m Message, retryAfter time.Duration) (dead bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b := q.db.NewBatch()
	defer b.Close()
	if err := b.Delete(q.keys.lease(m.ExpiryMs, m.Seq), nil); err != nil {
		return false, err
	}
	attempts := m.Attempts + 1
	if int(attempts) >= q.opts.MaxAttempts {
		val, err := q.db.Get(q.keys.msg(m.Seq))
		if err != nil && !errors.Is(err, pebble.ErrNotFound) {
			return false, err
		}
		if err == nil {
			if err := b.Set(q.keys.dlq(m.Seq), val, nil); err != nil {
				return false, err
			}
		}
		if err := b.Delete(q.keys.msg(m.Seq), nil); err != nil {
			return false, err
		}
		return true, q.db.CommitBatch(ctx, b)
	}
	at := q.nowMs() + retryAfter.Milliseconds()
	if err := b.Set(q.keys.ready(at, m.Seq), attemptsValue(attempts), nil); err != nil {
		return false, err
	}
	return false, q.db.CommitBatch(ctx, b)
}

// ReclaimExpired makes messages whose lease has expired ready again, without
// counting an attempt. max <= 0 means no limit.
func (q *Queue) ReclaimExpired(ctx context.Context, max int) (int, error) {
	return q.reclaim(ctx, q.nowMs(), max)
}

// ReclaimAll releases every lease. Used at startup, when no delivery from an
// earlier run can still be in flight.
func (q *Queue) ReclaimAll(ctx context.Context) (int, error) {
	return q.reclaim(ctx, math.MaxInt64, 0)
}

func (q *Queue) reclaim(ctx context.Context, before int64, max int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	lo, hi := q.keys.span("lse")
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	now := q.nowMs()
	b := q.db.NewBatch()
	defer b.Close()
	reclaimed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		exp, seq, ok := parseTimed(iter.Key())
		if !ok {
			continue
		}
		if exp > before {
			break
		}
		if err := b.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return reclaimed, err
		}
		if err := b.Set(q.keys.ready(now, seq), attemptsValue(attemptsOf(iter.Value())), nil); err != nil {
			return reclaimed, err
		}
		reclaimed++
		if max > 0 && reclaimed >= max {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return reclaimed, err
	}
	if reclaimed > 0 {
		if err := q.db.CommitBatch(ctx, b); err != nil {
			return 0, err
		}
	}
	return reclaimed, nil
}

// DeadLetters returns up to limit dead-lettered messages, oldest first.
func (q *Queue) DeadLetters(limit int) ([]Message, error) {
	lo, hi := q.keys.span("dlq")
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []Message
	for ok := iter.First(); ok && (limit <= 0 || len(out) < limit); ok = iter.Next() {
		seq, ok := parseSeq(iter.Key())
		if !ok {
			continue
		}
		header, payload, ok := decodeMessage(iter.Value())
		if !ok {
			continue
		}
		out = append(out, Message{Seq: seq, Header: header, Payload: payload})
	}
	return out, iter.Error()
}

// Stats counts messages in each state.
func (q *Queue) Stats() (Stats, error) {
	var st Stats
	for _, c := range []struct {
		index string
		n     *int
	}{{"rdy", &st.Ready}, {"lse", &st.Leased}, {"dlq", &st.Dead}} {
		lo, hi := q.keys.span(c.index)
		iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
		if err != nil {
			return st, err
		}
		for ok := iter.First(); ok; ok = iter.Next() {
			*c.n++
		}
		err = iter.Error()
		_ = iter.Close()
		if err != nil {
			return st, err
		}
	}
	return st, nil
}
