package id

import (
	"sync/atomic"
	"testing"
	"time"
)

func fixedClock(ms *atomic.Int64) func() int64 { return func() int64 { return ms.Load() } }

func TestOrderingMonotonic(t *testing.T) {
	var now atomic.Int64
	now.Store(1000)
	g := &Generator{now: fixedClock(&now)}

	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 || a.String() >= b.String() {
		t.Fatalf("expected a<b: %s %s", a, b)
	}
}

func TestClockRegressionGuard(t *testing.T) {
	var now atomic.Int64
	now.Store(1000)
	g := &Generator{now: fixedClock(&now)}

	a := g.Next()
	now.Store(900)
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b>a despite clock regression")
	}
	if b.Time().UnixMilli() != 1000 {
		t.Fatalf("regressed id should be pinned to 1000ms, got %d", b.Time().UnixMilli())
	}
}

func TestSequenceOverflowWaitsNextMs(t *testing.T) {
	var now atomic.Int64
	now.Store(2000)
	g := &Generator{now: fixedClock(&now), lastMs: 2000, sequence: ^uint64(0) - 1}

	_ = g.Next()

	done := make(chan ID)
	go func() { done <- g.Next() }()
	time.AfterFunc(10*time.Millisecond, func() { now.Store(2001) })

	select {
	case id := <-done:
		if id.Time().UnixMilli() != 2001 {
			t.Fatalf("expected rollover into 2001ms, got %d", id.Time().UnixMilli())
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for overflow handling")
	}
}

func TestParseRoundTrip(t *testing.T) {
	id := NewGenerator().Next()
	got, err := Parse(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch")
	}
	for _, bad := range []string{"", "abc", "zz000000000000000000000000000000"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
