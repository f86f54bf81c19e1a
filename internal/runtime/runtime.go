package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robindai518/libiec61850/internal/catalog"
	cfgpkg "github.com/robindai518/libiec61850/internal/config"
	"github.com/robindai518/libiec61850/internal/eventlog"
	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("runtime: closed")

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
	// Archiver receives entries evicted from every log. Optional.
	Archiver eventlog.Archiver
}

// Runtime owns the storage of a single log server process and hands out
// exactly one Store per log name.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	base     logpkg.Logger
	log      logpkg.Logger
	archiver eventlog.Archiver
	metrics  *storageMetrics

	mu     sync.Mutex
	logs   map[string]*eventlog.Store
	checks []healthCheck
	closed bool
}

type healthCheck struct {
	name  string
	check func(context.Context) error
}

// Open initializes the underlying storage and returns a Runtime. A data
// directory held by another process fails with eventlog.ErrStorageUnavailable.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	metrics := &storageMetrics{}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", eventlog.ErrStorageUnavailable, opts.DataDir, err)
	}
	rt := &Runtime{
		db:       db,
		config:   opts.Config,
		base:     logger,
		log:      logger.WithComponent("runtime"),
		archiver: opts.Archiver,
		metrics:  metrics,
		logs:     make(map[string]*eventlog.Store),
	}
	rt.log.Info("storage opened", logpkg.Str("data_dir", opts.DataDir))
	return rt, nil
}

// OpenLog returns the store bound to name, opening it on first use. The bound
// comes from the persisted value if any, else the configuration.
func (r *Runtime) OpenLog(name string) (*eventlog.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: %w", eventlog.ErrInvalidState, ErrClosed)
	}
	if l, ok := r.logs[name]; ok {
		return l, nil
	}
	l, err := eventlog.Open(r.db, name, eventlog.Options{
		MaxEntries: r.config.MaxEntriesFor(name),
		Archiver:   r.archiver,
		Logger:     r.base,
	})
	if err != nil {
		return nil, err
	}
	if _, err := catalog.Ensure(r.db, name); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("%w: catalog %s: %w", eventlog.ErrStorageUnavailable, name, err)
	}
	r.logs[name] = l
	r.log.Info("log bound", logpkg.Str("log", name), logpkg.Int("max_entries", l.MaxEntries()))
	return l, nil
}

// SetArchiver sets the archiver handed to logs opened from now on. Logs that
// are already open keep theirs.
func (r *Runtime) SetArchiver(a eventlog.Archiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archiver = a
}

// KnownLogs lists every log ever bound in this data directory, including logs
// that are not open in this process.
func (r *Runtime) KnownLogs() ([]catalog.Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: %w", eventlog.ErrInvalidState, ErrClosed)
	}
	metas, err := catalog.List(r.db)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog: %w", eventlog.ErrStorageUnavailable, err)
	}
	return metas, nil
}

// Log returns an already opened store.
func (r *Runtime) Log(name string) (*eventlog.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[name]
	return l, ok
}

// Logs returns all opened stores ordered by name.
func (r *Runtime) Logs() []*eventlog.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*eventlog.Store, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Close closes every bound log and then the database. It is safe to call
// more than once.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for name, l := range r.logs {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log %s: %w", name, err))
		}
	}
	if err := r.db.Close(); err != nil {
		errs = append(errs, err)
	}
	r.log.Info("storage closed", logpkg.Int("logs", len(r.logs)))
	return errors.Join(errs...)
}

// CheckHealth checks the storage and every added dependency.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	closed := r.closed
	checks := append([]healthCheck(nil), r.checks...)
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	if err := it.Close(); err != nil {
		return err
	}
	for _, c := range checks {
		if err := c.check(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// AddHealthCheck adds a dependency probed by CheckHealth after the storage.
func (r *Runtime) AddHealthCheck(name string, check func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, healthCheck{name: name, check: check})
}

// StorageStats reports cumulative storage activity since Open together with
// the engine's current disk and compaction figures.
func (r *Runtime) StorageStats() StorageStats {
	s := r.metrics.snapshot()
	s.addEngine(r.db.Metrics())
	return s
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
