package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robindai518/libiec61850/internal/eventlog"
	"github.com/robindai518/libiec61850/internal/outbox"
	"github.com/robindai518/libiec61850/pkg/id"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const (
	defaultRetryDelay   = 5 * time.Second
	defaultPollInterval = time.Second
	relayBatch          = 16
)

// RelayOptions configures a Relay.
type RelayOptions struct {
	Bucket     string
	Prefix     string
	PutTimeout time.Duration
	// RetryDelay is the wait before a failed upload is retried; it doubles per
	// attempt up to 16x.
	RetryDelay   time.Duration
	PollInterval time.Duration
	Logger       logpkg.Logger
}

// RelayStats counts relay outcomes since start.
type RelayStats struct {
	Exported     uint64 `json:"exported"`
	Retried      uint64 `json:"retried"`
	DeadLettered uint64 `json:"deadLettered"`
	Dropped      uint64 `json:"dropped"`
}

// relayHeader is stored as the outbox message header.
type relayHeader struct {
	Log    string `json:"log"`
	MinSeq uint64 `json:"minSeq"`
	MaxSeq uint64 `json:"maxSeq"`
	Count  int    `json:"count"`
}

// Relay implements eventlog.Archiver on a durable outbox. Evicted batches are
// written to the outbox before ArchiveEvicted returns; a worker uploads them
// and retries failures, so batches survive object-store outages and restarts.
type Relay struct {
	store ObjectStore
	queue *outbox.Queue
	opts  RelayOptions
	ids   *id.Generator
	log   logpkg.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	exported, retried, dead, dropped atomic.Uint64
}

// NewRelay builds a relay over queue. Call Start to begin uploading.
func NewRelay(store ObjectStore, queue *outbox.Queue, opts RelayOptions) *Relay {
	if opts.PutTimeout <= 0 {
		opts.PutTimeout = defaultPutTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	return &Relay{
		store: store,
		queue: queue,
		opts:  opts,
		ids:   id.NewGenerator(),
		log:   opts.Logger.WithComponent("archive"),
		done:  make(chan struct{}),
	}
}

// Start ensures the bucket exists, releases leases left by an earlier run and
// launches the upload worker.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.store.EnsureBucket(ctx, r.opts.Bucket); err != nil {
		return fmt.Errorf("archive: ensure bucket %s: %w", r.opts.Bucket, err)
	}
	n, err := r.queue.ReclaimAll(ctx)
	if err != nil {
		return fmt.Errorf("archive: reclaim outbox: %w", err)
	}
	wctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.run(wctx)
	r.log.Info("archive relay started",
		logpkg.Str("bucket", r.opts.Bucket), logpkg.Str("prefix", r.opts.Prefix), logpkg.Int("reclaimed", n))
	return nil
}

// ArchiveEvicted stores the batch in the outbox.
func (r *Relay) ArchiveEvicted(name string, minSeq, maxSeq uint64, entries []eventlog.Entry) {
	if len(entries) == 0 {
		return
	}
	header, err := json.Marshal(relayHeader{Log: name, MinSeq: minSeq, MaxSeq: maxSeq, Count: len(entries)})
	if err == nil {
		var body []byte
		if body, err = encodeLines(entries); err == nil {
			_, err = r.queue.Enqueue(context.Background(), header, body)
		}
	}
	if err != nil {
		r.dropped.Add(uint64(len(entries)))
		r.log.Error("archive outbox write failed; evicted entries lost",
			logpkg.Str("log", name), logpkg.Uint64("min_seq", minSeq), logpkg.Uint64("max_seq", maxSeq), logpkg.Err(err))
	}
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)
	t := time.NewTicker(r.opts.PollInterval)
	defer t.Stop()
	for {
		msgs, err := r.queue.Dequeue(ctx, relayBatch, r.opts.PutTimeout*2)
		if err != nil && ctx.Err() == nil {
			r.log.Warn("archive outbox dequeue failed", logpkg.Err(err))
		}
		for _, m := range msgs {
			r.deliver(ctx, m)
		}
		if len(msgs) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-r.queue.Notify():
		case <-t.C:
			if _, err := r.queue.ReclaimExpired(ctx, 0); err != nil {
				r.log.Warn("archive outbox reclaim failed", logpkg.Err(err))
			}
		}
	}
}

func (r *Relay) deliver(ctx context.Context, m outbox.Message) {
	var h relayHeader
	if err := json.Unmarshal(m.Header, &h); err != nil {
		r.log.Error("archive outbox message unreadable", logpkg.Uint64("outbox_seq", m.Seq), logpkg.Err(err))
		r.fail(ctx, m, h, err)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, r.opts.PutTimeout)
	err := r.store.PutObject(pctx, r.opts.Bucket, objectKey(r.opts.Prefix, h.Log, h.MinSeq, h.MaxSeq, r.ids.Next()), m.Payload)
	cancel()
	if err != nil {
		r.fail(ctx, m, h, err)
		return
	}
	if err := r.queue.Complete(ctx, m); err != nil {
		// The lease expires and the batch is uploaded again.
		r.log.Warn("archive outbox complete failed", logpkg.Uint64("outbox_seq", m.Seq), logpkg.Err(err))
		return
	}
	r.exported.Add(uint64(h.Count))
}

func (r *Relay) fail(ctx context.Context, m outbox.Message, h relayHeader, cause error) {
	delay := r.opts.RetryDelay << min(m.Attempts, 4)
	dead, err := r.queue.Fail(ctx, m, delay)
	if err != nil {
		r.log.Warn("archive outbox fail failed", logpkg.Uint64("outbox_seq", m.Seq), logpkg.Err(err))
		return
	}
	if dead {
		r.dead.Add(uint64(h.Count))
		r.log.Error("archive upload abandoned",
			logpkg.Str("log", h.Log), logpkg.Uint64("min_seq", h.MinSeq), logpkg.Uint64("max_seq", h.MaxSeq), logpkg.Err(cause))
		return
	}
	r.retried.Add(1)
	r.log.Warn("archive upload failed; will retry",
		logpkg.Str("log", h.Log), logpkg.Duration("retry_in", delay), logpkg.Err(cause))
}

// LogPrefix returns the key prefix under which a log's batches are stored.
func (r *Relay) LogPrefix(name string) string { return logPrefix(r.opts.Prefix, name) }

// Ping checks that the object store is reachable.
func (r *Relay) Ping(ctx context.Context) error { return r.store.Ping(ctx) }

// Stats returns the current counters.
func (r *Relay) Stats() RelayStats {
	return RelayStats{
		Exported:     r.exported.Load(),
		Retried:      r.retried.Load(),
		DeadLettered: r.dead.Load(),
		Dropped:      r.dropped.Load(),
	}
}

// Close stops the worker after its current upload. Undelivered batches stay
// in the outbox for the next Start.
func (r *Relay) Close(ctx context.Context) error {
	r.once.Do(func() {
		if r.cancel == nil {
			close(r.done)
			return
		}
		r.cancel()
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
