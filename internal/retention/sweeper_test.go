package retention

import (
	"context"
	"testing"
	"time"

	"github.com/robindai518/libiec61850/internal/eventlog"
	pebblestore "github.com/robindai518/libiec61850/internal/storage/pebble"
)

func openStore(t *testing.T, name string) *eventlog.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	l, err := eventlog.Open(db, name, eventlog.Options{MaxEntries: 100})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

func TestSweepAppliesAgeAndSize(t *testing.T) {
	now := time.Unix(10_000, 0)
	aged := openStore(t, "aged")
	sized := openStore(t, "sized")
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		ts := eventlog.NewTimestamp(now.Add(time.Duration(i-10)*time.Minute), 0)
		if _, err := aged.Append(ctx, "a", ts, nil); err != nil {
			t.Fatalf("append: %v", err)
		}
		if _, err := sized.Append(ctx, "s", ts, make([]byte, 64)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	s := NewSweeper([]Target{
		{Store: aged, Policy: Policy{MaxAge: 5 * time.Minute}},
		{Store: sized, Policy: Policy{MaxBytes: 300}},
		{Store: openStore(t, "none")},
	}, Options{Now: func() time.Time { return now }})
	if len(s.targets) != 2 {
		t.Fatalf("logs without policy should be skipped")
	}
	if n := s.Sweep(ctx); n == 0 {
		t.Fatalf("expected deletions")
	}
	if aged.Count() != 5 {
		t.Fatalf("aged count=%d want 5", aged.Count())
	}
	if c := sized.Count(); c == 0 || c >= 10 {
		t.Fatalf("sized count=%d", c)
	}
	if n := s.Sweep(ctx); n != 0 {
		t.Fatalf("second sweep should be a no-op, deleted %d", n)
	}
}

func TestRunWithoutTargetsWaitsForCancel(t *testing.T) {
	s := NewSweeper(nil, Options{})
	if s.Active() {
		t.Fatalf("expected inactive sweeper")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not return")
	}
}

func TestRunSweepsPeriodically(t *testing.T) {
	l := openStore(t, "aged")
	if _, err := l.Append(context.Background(), "a", eventlog.Timestamp{Seconds: 1}, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	s := NewSweeper([]Target{{Store: l, Policy: Policy{MaxAge: time.Hour}}}, Options{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for l.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if l.Count() != 0 {
		t.Fatalf("periodic sweep did not trim")
	}
}
