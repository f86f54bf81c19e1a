// Package simulate drives periodic sample updates of a data model, standing
// in for field I/O.
package simulate

import (
	"context"
	"time"

	"github.com/robindai518/libiec61850/internal/datamodel"
	"github.com/robindai518/libiec61850/internal/eventlog"
	logpkg "github.com/robindai518/libiec61850/pkg/log"
)

const DefaultInterval = 100 * time.Millisecond

// Options configures an Updater. Empty references fall back to the GenericIO
// sample device.
type Options struct {
	Interval  time.Duration
	AnalogRef string
	SwitchRef string
	Step      float64
	Logger    logpkg.Logger
	// Now is the clock used for timestamps; tests replace it.
	Now func() time.Time
}

// Updater increments an analog value and toggles a switch on every tick,
// stamping both data objects with the same time, all inside one model update.
type Updater struct {
	model *datamodel.Model
	opts  Options
	log   logpkg.Logger
}

func New(model *datamodel.Model, opts Options) *Updater {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.AnalogRef == "" {
		opts.AnalogRef = "GenericIO/GGIO1.AnIn1.mag.f"
	}
	if opts.SwitchRef == "" {
		opts.SwitchRef = "GenericIO/GGIO1.SPCSO1.stVal"
	}
	if opts.Step == 0 {
		opts.Step = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	return &Updater{model: model, opts: opts, log: opts.Logger.WithComponent("simulate")}
}

// Run ticks until ctx is cancelled. A failed tick is logged and the loop
// continues.
func (u *Updater) Run(ctx context.Context) error {
	t := time.NewTicker(u.opts.Interval)
	defer t.Stop()
	u.log.Info("sample updater started", logpkg.Duration("interval", u.opts.Interval))
	for {
		select {
		case <-ctx.Done():
			u.log.Info("sample updater stopped")
			return nil
		case <-t.C:
			if err := u.Tick(ctx); err != nil {
				u.log.Warn("sample update failed", logpkg.Err(err))
			}
		}
	}
}

// Tick performs one update.
func (u *Updater) Tick(ctx context.Context) error {
	ts := eventlog.NewTimestamp(u.opts.Now(), 0)
	return u.model.Update(ctx, func(tx *datamodel.Tx) error {
		if err := tx.SetTimestamp(datamodel.TimeRef(u.opts.AnalogRef), ts); err != nil {
			return err
		}
		f, err := tx.Float(u.opts.AnalogRef)
		if err != nil {
			return err
		}
		if err := tx.SetFloat(u.opts.AnalogRef, f+u.opts.Step); err != nil {
			return err
		}
		if err := tx.SetTimestamp(datamodel.TimeRef(u.opts.SwitchRef), ts); err != nil {
			return err
		}
		b, err := tx.Bool(u.opts.SwitchRef)
		if err != nil {
			return err
		}
		return tx.SetBool(u.opts.SwitchRef, !b)
	})
}
