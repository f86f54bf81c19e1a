package serverrun

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robindai518/libiec61850/internal/archive"
	cfgpkg "github.com/robindai518/libiec61850/internal/config"
	"github.com/robindai518/libiec61850/internal/datamodel"
	"github.com/robindai518/libiec61850/internal/eventlog"
	"github.com/robindai518/libiec61850/internal/outbox"
	"github.com/robindai518/libiec61850/internal/retention"
	"github.com/robindai518/libiec61850/internal/runtime"
	grpcserver "github.com/robindai518/libiec61850/internal/server/grpc"
	httpserver "github.com/robindai518/libiec61850/internal/server/http"
	"github.com/robindai518/libiec61850/internal/simulate"
	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const (
	defaultArchiveBucket = "logserver"
	archiveOutbox        = "archive"
	archiveDrainTimeout  = 10 * time.Second
)

type Options struct {
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Logger overrides the logger built from Config.Logging.
	Logger logpkg.Logger
	// DisableSimulation stops the sample updater from driving the model.
	DisableSimulation bool
}

// Run opens the storage, binds every configured log to the data model, starts
// the sample updater, the retention sweeper, and the HTTP and gRPC servers,
// and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}

	procLogger := opts.Logger
	if procLogger == nil {
		var err error
		procLogger, err = logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		if err != nil {
			lvl := logpkg.InfoLevel
			if l, e := logpkg.ParseLevel(cfg.Logging.Level); e == nil {
				lvl = l
			}
			procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
		}
		// Pebble logs through the standard library logger.
		logpkg.RedirectStdLog(procLogger)
	}

	model, err := datamodel.Load(cfg.ModelPath, procLogger)
	if err != nil {
		return err
	}

	storeDir := cfgpkg.StoreDir(opts.DataDir)
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        cfg,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	// The archiver is attached before any log opens so evictions on open are
	// captured. Deferred after rt.Close, so it stops first.
	sink, err := newArchiveSink(sctx, cfg.Archive, opts.DataDir, rt, procLogger)
	if err != nil {
		return err
	}
	if sink != nil {
		rt.SetArchiver(sink)
		rt.AddHealthCheck("archive", sink.Ping)
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), archiveDrainTimeout)
			defer cancel()
			if err := sink.Close(dctx); err != nil {
				procLogger.Warn("archive drain incomplete", logpkg.Err(err))
			}
		}()
	}

	targets, err := bindLogs(rt, model, cfg)
	if err != nil {
		return err
	}

	procLogger.Info("starting log server",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("model", model.Name()),
		logpkg.Int("logs", len(cfg.Logs)),
		logpkg.Bool("archive", sink != nil),
	)

	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && sctx.Err() == nil {
				procLogger.Error(name+" stopped", logpkg.Err(err))
			}
		}()
	}

	if !opts.DisableSimulation {
		updater := simulate.New(model, simulate.Options{Interval: cfg.UpdateInterval.D(), Logger: procLogger})
		goRun("updater", func() error { return updater.Run(sctx) })
	}
	sweeper := retention.NewSweeper(targets, retention.Options{Interval: cfg.RetentionInterval.D(), Logger: procLogger})
	if sweeper.Active() {
		goRun("retention", func() error { return sweeper.Run(sctx) })
	}

	var gsrv *grpcserver.Server
	if opts.GRPCAddr != "" {
		gsrv = grpcserver.New(rt, procLogger)
		goRun("grpc", func() error { return gsrv.ListenAndServe(sctx, opts.GRPCAddr) })
	}
	var hsrv *httpserver.Server
	if opts.HTTPAddr != "" {
		hsrv = httpserver.New(rt, procLogger)
		goRun("http", func() error { return hsrv.ListenAndServe(sctx, opts.HTTPAddr) })
	}

	<-sctx.Done()
	// Stop the servers before the runtime closes the stores underneath them.
	if gsrv != nil {
		gsrv.Close()
	}
	if hsrv != nil {
		hsrv.Close()
	}
	wg.Wait()
	procLogger.Info("log server stopped")
	return nil
}

// bindLogs opens a store per configured log, attaches it to the model and
// collects the retention targets.
func bindLogs(rt *runtime.Runtime, model *datamodel.Model, cfg cfgpkg.Config) ([]retention.Target, error) {
	targets := make([]retention.Target, 0, len(cfg.Logs))
	for _, b := range cfg.Logs {
		store, err := rt.OpenLog(b.Name)
		if err != nil {
			return nil, err
		}
		model.Bind(b.Name, b.Record, store)
		targets = append(targets, retention.Target{
			Store:  store,
			Policy: retention.Policy{MaxAge: b.MaxAge.D(), MaxBytes: b.MaxBytes},
		})
	}
	return targets, nil
}

// archiveSink is an eviction archiver that can be probed and drains on Close.
type archiveSink interface {
	eventlog.Archiver
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// newArchiveSink builds and starts the archiver selected by c. Durable
// archiving queues batches in an outbox inside the runtime's database; the
// in-memory exporter is used otherwise. It returns nil when archiving is
// disabled.
func newArchiveSink(ctx context.Context, c cfgpkg.Archive, dataDir string, rt *runtime.Runtime, logger logpkg.Logger) (archiveSink, error) {
	if !c.Enabled {
		return nil, nil
	}
	store, err := newObjectStore(c, dataDir)
	if err != nil {
		return nil, err
	}
	bucket := c.Bucket
	if bucket == "" {
		bucket = defaultArchiveBucket
	}
	if c.Durable {
		q, err := outbox.Open(rt.DB(), archiveOutbox, outbox.Options{MaxAttempts: c.MaxAttempts})
		if err != nil {
			return nil, err
		}
		r := archive.NewRelay(store, q, archive.RelayOptions{
			Bucket: bucket,
			Prefix: c.Prefix,
			Logger: logger,
		})
		if err := r.Start(ctx); err != nil {
			return nil, err
		}
		return r, nil
	}
	e := archive.NewExporter(store, archive.Options{
		Bucket:    bucket,
		Prefix:    c.Prefix,
		QueueSize: c.QueueSize,
		Logger:    logger,
	})
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func newObjectStore(c cfgpkg.Archive, dataDir string) (archive.ObjectStore, error) {
	switch c.Backend {
	case "s3":
		return archive.NewS3Client(archive.S3Config{
			Endpoint:  c.Endpoint,
			AccessKey: c.AccessKey,
			SecretKey: c.SecretKey,
			Region:    c.Region,
			UseSSL:    c.UseSSL,
		})
	case "local", "":
		dir := c.LocalDir
		if dir == "" {
			dir = cfgpkg.ArchiveDir(dataDir)
		}
		return archive.NewLocalStore(dir), nil
	default:
		return nil, errors.New("archive: unknown backend " + c.Backend)
	}
}
