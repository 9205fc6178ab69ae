package receipt

import (
	"sync"
	"time"
)

// Debouncer delays a call until no new call has been triggered for delay.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer creates a Debouncer with the given quiet period
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn, cancelling whatever was scheduled before
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.delay > 0 {
		d.timer = time.AfterFunc(d.delay, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn()
}

// Stop cancels the pending call, if any
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
