package eventlog

import (
	"testing"
	"time"
)

func TestWaitForAppendWakes(t *testing.T) {
	l := newTestStore(t, 10)
	done := make(chan bool, 1)
	go func() { done <- l.WaitForAppend(2 * time.Second) }()
	time.Sleep(20 * time.Millisecond)
	mustAppend(t, l, "a")
	select {
	case woke := <-done:
		if !woke {
			t.Fatalf("waiter timed out instead of waking")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("waiter never returned")
	}
}

func TestWaitForAppendTimesOut(t *testing.T) {
	l := newTestStore(t, 10)
	if l.WaitForAppend(20 * time.Millisecond) {
		t.Fatalf("expected timeout")
	}
}

func TestWaitForAppendReleasedOnClose(t *testing.T) {
	l := newTestStore(t, 10)
	done := make(chan bool, 1)
	go func() { done <- l.WaitForAppend(0) }()
	time.Sleep(20 * time.Millisecond)
	_ = l.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not release waiter")
	}
}
