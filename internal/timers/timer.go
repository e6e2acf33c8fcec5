package timers

import (
	"sync"
	"time"
)

// Timer is a cancellable, re-armable delay. Arm replaces any pending
// schedule; Cancel guarantees the callback of a cancelled schedule never
// runs, even if the underlying time.Timer already fired.
type Timer struct {
	mu  sync.Mutex
	gen uint64
	t   *time.Timer
}

func New() *Timer {
	return &Timer{}
}

// Arm schedules fn after delay, replacing any pending schedule.
func (d *Timer) Arm(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	gen := d.gen
	if d.t != nil {
		d.t.Stop()
	}
	d.t = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.t = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel discards any pending schedule. Safe to call repeatedly.
func (d *Timer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.t != nil {
		d.t.Stop()
		d.t = nil
	}
}

// Pending reports whether a schedule is currently armed.
func (d *Timer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t != nil
}
