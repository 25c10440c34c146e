package service

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBursts(t *testing.T) {
	var runs int64
	d := NewDebouncer(20*time.Millisecond, 100*time.Millisecond, func() {
		atomic.AddInt64(&runs, 1)
	})
	defer d.Stop()

	for i := 0; i < 50; i++ {
		d.Trigger()
	}

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 1 {
		t.Fatalf("expected one coalesced run, got %d", got)
	}
}

func TestDebouncerEnforcesMinInterval(t *testing.T) {
	var runs int64
	d := NewDebouncer(5*time.Millisecond, 150*time.Millisecond, func() {
		atomic.AddInt64(&runs, 1)
	})
	defer d.Stop()

	d.Trigger()
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 1 {
		t.Fatalf("expected first run, got %d", got)
	}

	// 第二次触发被最小间隔推迟
	d.Trigger()
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 1 {
		t.Fatalf("expected second run to wait for min interval, got %d", got)
	}

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 2 {
		t.Fatalf("expected second run after min interval, got %d", got)
	}
}

func TestDebouncerStopPreventsPendingRun(t *testing.T) {
	var runs int64
	d := NewDebouncer(20*time.Millisecond, time.Second, func() {
		atomic.AddInt64(&runs, 1)
	})

	d.Trigger()
	d.Stop()

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&runs); got != 0 {
		t.Fatalf("expected no run after stop, got %d", got)
	}
}
