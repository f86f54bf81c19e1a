package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robindai518/libiec61850/internal/eventlog"
	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
)

func entries(from, to uint64) []eventlog.Entry {
	var out []eventlog.Entry
	for s := from; s <= to; s++ {
		out = append(out, eventlog.Entry{SequenceID: s, EntryID: fmt.Sprintf("e%d", s), Timestamp: eventlog.Timestamp{Seconds: uint32(s)}, Payload: []byte{byte(s)}})
	}
	return out
}

func closeExporter(t *testing.T, e *Exporter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestExporterWritesJSONL(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	e := NewExporter(store, Options{Bucket: "cold", Prefix: "/eventlog/"})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.ArchiveEvicted("GenericIO/LLN0$EventLog", 1, 3, entries(1, 3))
	e.ArchiveEvicted("GenericIO/LLN0$EventLog", 4, 4, entries(4, 4))
	closeExporter(t, e)

	prefix := e.LogPrefix("GenericIO/LLN0$EventLog")
	if !strings.HasPrefix(prefix, "eventlog/GenericIO%2FLLN0$EventLog/") {
		t.Fatalf("unexpected prefix %q", prefix)
	}
	keys, err := store.ListPrefix(context.Background(), "cold", prefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("want 2 objects, got %v", keys)
	}
	lines, err := ReadObject(context.Background(), store, "cold", keys[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(lines) != 3 || lines[0].Seq != 1 || lines[2].EntryID != "e3" || lines[1].Payload[0] != 2 {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	if st := e.Stats(); st.Exported != 4 || st.Dropped != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

type blockingStore struct {
	*LocalStore
	release chan struct{}
}

func (b *blockingStore) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	<-b.release
	return b.LocalStore.PutObject(ctx, bucket, key, data)
}

func TestExporterDropsWhenQueueFull(t *testing.T) {
	store := &blockingStore{LocalStore: NewLocalStore(t.TempDir()), release: make(chan struct{})}
	e := NewExporter(store, Options{Bucket: "cold", QueueSize: 1})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	// one batch in flight, one queued, the rest dropped
	for i := uint64(1); i <= 5; i++ {
		e.ArchiveEvicted("log", i, i, entries(i, i))
		time.Sleep(5 * time.Millisecond)
	}
	close(store.release)
	closeExporter(t, e)
	st := e.Stats()
	if st.Dropped == 0 || st.Exported+st.Dropped != 5 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	e.ArchiveEvicted("log", 9, 9, entries(9, 9))
	if e.Stats().Dropped != st.Dropped+1 {
		t.Fatalf("batches after close must be dropped")
	}
}

type failingStore struct {
	*LocalStore
	mu    sync.Mutex
	calls int
}

func (f *failingStore) PutObject(context.Context, string, string, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("unreachable")
}

func TestExporterCountsFailures(t *testing.T) {
	store := &failingStore{LocalStore: NewLocalStore(t.TempDir())}
	e := NewExporter(store, Options{Bucket: "cold"})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.ArchiveEvicted("log", 1, 2, entries(1, 2))
	closeExporter(t, e)
	if st := e.Stats(); st.Failed != 2 || st.Exported != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestExporterReceivesStoreEvictions(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	objects := NewLocalStore(t.TempDir())
	e := NewExporter(objects, Options{Bucket: "cold"})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	l, err := eventlog.Open(db, "log", eventlog.Options{MaxEntries: 2, Archiver: e})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := l.Append(context.Background(), fmt.Sprintf("e%d", i), eventlog.Timestamp{}, nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	closeExporter(t, e)
	keys, _ := objects.ListPrefix(context.Background(), "cold", e.LogPrefix("log"))
	if len(keys) != 3 {
		t.Fatalf("want 3 eviction objects, got %v", keys)
	}
	first, err := ReadObject(context.Background(), objects, "cold", keys[0])
	if err != nil || len(first) != 1 || first[0].EntryID != "e0" {
		t.Fatalf("first evicted batch: %+v %v", first, err)
	}
}

func TestLocalStoreRejectsEscapes(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	if err := s.PutObject(context.Background(), "b", "../x", nil); err == nil {
		t.Fatalf("expected error for escaping key")
	}
	if _, err := s.GetObject(context.Background(), "b", "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.EnsureBucket(context.Background(), ""); !errors.Is(err, ErrBucketRequired) {
		t.Fatalf("expected bucket required, got %v", err)
	}
}

func TestNewS3ClientParsesEndpoint(t *testing.T) {
	if _, err := NewS3Client(S3Config{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
	c, err := NewS3Client(S3Config{Endpoint: "https://play.min.io", AccessKey: "k", SecretKey: "s"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.client.EndpointURL().Scheme != "https" || c.client.EndpointURL().Host != "play.min.io" {
		t.Fatalf("unexpected endpoint %v", c.client.EndpointURL())
	}
}
