// Package retention applies age and size limits to event logs in the
// background. Count limits are enforced inline by the logs themselves.
package retention

import (
	"context"
	"time"

	"github.com/robindai518/libiec61850/internal/eventlog"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

// Policy holds the limits of one log. Zero values disable a limit.
type Policy struct {
	MaxAge   time.Duration
	MaxBytes int64
}

func (p Policy) empty() bool { return p.MaxAge <= 0 && p.MaxBytes <= 0 }

// Target pairs a log with its policy.
type Target struct {
	Store  *eventlog.Store
	Policy Policy
}

// Options configures a Sweeper.
type Options struct {
	Interval   time.Duration
	BatchLimit int
	Throttle   time.Duration
	Logger     logpkg.Logger
	Now        func() time.Time
}

// Sweeper runs retention passes over a fixed set of logs.
type Sweeper struct {
	targets []Target
	opts    Options
	log     logpkg.Logger
}

func NewSweeper(targets []Target, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	var active []Target
	for _, t := range targets {
		if t.Store != nil && !t.Policy.empty() {
			active = append(active, t)
		}
	}
	return &Sweeper{targets: active, opts: opts, log: opts.Logger.WithComponent("retention")}
}

// Active reports whether any log has a policy.
func (s *Sweeper) Active() bool { return len(s.targets) > 0 }

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.Active() {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of deleted entries.
func (s *Sweeper) Sweep(ctx context.Context) int {
	total := 0
	for _, t := range s.targets {
		name := t.Store.Name()
		if t.Policy.MaxAge > 0 {
			n, last, err := t.Store.TrimOlderThan(ctx, s.opts.Now().Add(-t.Policy.MaxAge), s.opts.BatchLimit, s.opts.Throttle)
			total += n
			if err != nil {
				s.log.Warn("age trim failed", logpkg.Str("log", name), logpkg.Err(err))
			} else if n > 0 {
				s.log.Info("age trim", logpkg.Str("log", name), logpkg.Int("deleted", n), logpkg.Uint64("through_seq", last))
			}
		}
		if t.Policy.MaxBytes > 0 {
			n, err := t.Store.TrimToMaxBytes(ctx, t.Policy.MaxBytes, s.opts.BatchLimit, s.opts.Throttle)
			total += n
			if err != nil {
				s.log.Warn("size trim failed", logpkg.Str("log", name), logpkg.Err(err))
			} else if n > 0 {
				s.log.Info("size trim", logpkg.Str("log", name), logpkg.Int("deleted", n))
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	return total
}
