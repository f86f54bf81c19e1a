package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robindai518/libiec61850/internal/eventlog"
	"github.com/robindai518/libiec61850/pkg/id"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const (
	defaultQueueSize  = 64
	defaultPutTimeout = 30 * time.Second
)

// Line is one exported entry in a JSONL object.
type Line struct {
	Seq      uint64 `json:"seq"`
	EntryID  string `json:"entryId"`
	Seconds  uint32 `json:"seconds"`
	Fraction uint32 `json:"fraction"`
	Quality  uint8  `json:"quality"`
	TsMs     int64  `json:"tsMs"`
	Payload  []byte `json:"payload"`
}

// Options configures an Exporter.
type Options struct {
	Bucket     string
	Prefix     string
	QueueSize  int
	PutTimeout time.Duration
	Logger     logpkg.Logger
}

// Stats counts exporter outcomes since start.
type Stats struct {
	Exported uint64 `json:"exported"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
}

type batch struct {
	log            string
	minSeq, maxSeq uint64
	entries        []eventlog.Entry
}

// Exporter implements eventlog.Archiver. Evicted batches are queued and a
// single worker writes one JSONL object per batch. A full queue drops the
// batch, so eviction never waits on object storage.
type Exporter struct {
	store ObjectStore
	opts  Options
	ids   *id.Generator
	log   logpkg.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan batch
	done   chan struct{}
	once   sync.Once

	exported, dropped, failed atomic.Uint64
}

// NewExporter builds an exporter. Call Start to begin writing.
func NewExporter(store ObjectStore, opts Options) *Exporter {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.PutTimeout <= 0 {
		opts.PutTimeout = defaultPutTimeout
	}
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	return &Exporter{
		store: store,
		opts:  opts,
		ids:   id.NewGenerator(),
		log:   opts.Logger.WithComponent("archive"),
		queue: make(chan batch, opts.QueueSize),
		done:  make(chan struct{}),
	}
}

// Start ensures the bucket exists and launches the worker.
func (e *Exporter) Start(ctx context.Context) error {
	if err := e.store.EnsureBucket(ctx, e.opts.Bucket); err != nil {
		return fmt.Errorf("archive: ensure bucket %s: %w", e.opts.Bucket, err)
	}
	go e.run()
	e.log.Info("archive exporter started", logpkg.Str("bucket", e.opts.Bucket), logpkg.Str("prefix", e.opts.Prefix))
	return nil
}

// ArchiveEvicted queues a batch without blocking.
func (e *Exporter) ArchiveEvicted(name string, minSeq, maxSeq uint64, entries []eventlog.Entry) {
	if len(entries) == 0 {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(uint64(len(entries)))
		return
	}
	select {
	case e.queue <- batch{log: name, minSeq: minSeq, maxSeq: maxSeq, entries: entries}:
	default:
		e.dropped.Add(uint64(len(entries)))
		e.log.Warn("archive queue full; dropping evicted entries",
			logpkg.Str("log", name), logpkg.Uint64("min_seq", minSeq), logpkg.Uint64("max_seq", maxSeq))
	}
}

func (e *Exporter) run() {
	defer close(e.done)
	for b := range e.queue {
		if err := e.write(b); err != nil {
			e.failed.Add(uint64(len(b.entries)))
			e.log.Error("archive write failed", logpkg.Str("log", b.log), logpkg.Err(err))
			continue
		}
		e.exported.Add(uint64(len(b.entries)))
	}
}

func (e *Exporter) write(b batch) error {
	body, err := encodeLines(b.entries)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.PutTimeout)
	defer cancel()
	return e.store.PutObject(ctx, e.opts.Bucket, e.ObjectKey(b.log, b.minSeq, b.maxSeq), body)
}

// encodeLines renders entries as JSONL.
func encodeLines(entries []eventlog.Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, en := range entries {
		if err := enc.Encode(Line{
			Seq:      en.SequenceID,
			EntryID:  en.EntryID,
			Seconds:  en.Timestamp.Seconds,
			Fraction: en.Timestamp.Fraction,
			Quality:  en.Timestamp.Quality,
			TsMs:     en.Timestamp.UnixMilli(),
			Payload:  en.Payload,
		}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// ObjectKey names the object for a batch: {prefix}/{log}/{minSeq}-{maxSeq}-{id}.jsonl.
// Sequence numbers are zero padded so keys of one log sort by sequence.
func (e *Exporter) ObjectKey(name string, minSeq, maxSeq uint64) string {
	return objectKey(e.opts.Prefix, name, minSeq, maxSeq, e.ids.Next())
}

// LogPrefix returns the key prefix under which a log's batches are stored.
func (e *Exporter) LogPrefix(name string) string { return logPrefix(e.opts.Prefix, name) }

func objectKey(prefix, name string, minSeq, maxSeq uint64, objID id.ID) string {
	return fmt.Sprintf("%s%020d-%020d-%s.jsonl", logPrefix(prefix, name), minSeq, maxSeq, objID)
}

func logPrefix(prefix, name string) string {
	p := url.PathEscape(name) + "/"
	if prefix != "" {
		p = prefix + "/" + p
	}
	return p
}

// Ping checks that the object store is reachable.
func (e *Exporter) Ping(ctx context.Context) error { return e.store.Ping(ctx) }

// Stats returns the current counters.
func (e *Exporter) Stats() Stats {
	return Stats{Exported: e.exported.Load(), Dropped: e.dropped.Load(), Failed: e.failed.Load()}
}

// Close stops accepting batches and waits for queued ones to be written, or
// for ctx to expire.
func (e *Exporter) Close(ctx context.Context) error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()
	})
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadObject parses an exported object back into lines.
func ReadObject(ctx context.Context, store ObjectStore, bucket, key string) ([]Line, error) {
	data, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	var out []Line
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var l Line
		if err := dec.Decode(&l); err != nil {
			return nil, fmt.Errorf("archive: decode %s: %w", key, err)
		}
		out = append(out, l)
	}
	return out, nil
}
