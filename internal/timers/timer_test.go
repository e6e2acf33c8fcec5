package timers

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestArmFires(t *testing.T) {
	var fired atomic.Int32
	d := New()
	d.Arm(10*time.Millisecond, func() { fired.Add(1) })

	deadline := time.After(2 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timer never fired")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if d.Pending() {
		t.Fatalf("expected no pending schedule after fire")
	}
}

func TestRearmReplacesSchedule(t *testing.T) {
	var first, second atomic.Int32
	d := New()
	d.Arm(20*time.Millisecond, func() { first.Add(1) })
	d.Arm(20*time.Millisecond, func() { second.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatalf("replaced schedule fired")
	}
	if second.Load() != 1 {
		t.Fatalf("expected one fire, got %d", second.Load())
	}
}

func TestCancelPreventsFire(t *testing.T) {
	var fired atomic.Int32
	d := New()
	d.Arm(10*time.Millisecond, func() { fired.Add(1) })
	d.Cancel()

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled timer fired")
	}
	if d.Pending() {
		t.Fatalf("expected no pending schedule after cancel")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	d := New()
	d.Cancel()
	d.Arm(10*time.Millisecond, func() {})
	d.Cancel()
	d.Cancel()
}
