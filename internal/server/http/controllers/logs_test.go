package controllers

import (
	"math"
	"testing"
	"time"
)

func TestWaitDurationIsCapped(t *testing.T) {
	tests := []struct {
		waitMs uint64
		want   time.Duration
	}{
		{1, time.Millisecond},
		{2000, 2 * time.Second},
		{30000, maxWait},
		{30001, maxWait},
		{math.MaxInt64 / 1000, maxWait},
		{math.MaxUint64, maxWait},
	}
	for _, tt := range tests {
		if got := waitDuration(tt.waitMs); got != tt.want {
			t.Errorf("waitDuration(%d) = %v, want %v", tt.waitMs, got, tt.want)
		}
	}
}
