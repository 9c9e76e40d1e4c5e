package syncclient

import (
	"sync"
	"time"
)

// Debouncer runs at most one pending call per key. Arming a key that is
// already pending replaces its call and restarts the window, so a burst of
// arms collapses into the last one.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
	gen     uint64
	stopped bool
}

type pendingCall struct {
	timer *time.Timer
	gen   uint64
}

func NewDebouncer() *Debouncer {
	return &Debouncer{pending: make(map[string]*pendingCall)}
}

// Arm schedules fn to run once window has passed without another Arm for key.
func (d *Debouncer) Arm(key string, window time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if call, ok := d.pending[key]; ok {
		call.timer.Stop()
	}
	d.gen++
	gen := d.gen
	call := &pendingCall{gen: gen}
	call.timer = time.AfterFunc(window, func() { d.fire(key, gen, fn) })
	d.pending[key] = call
}

// fire drops timers that were replaced or cancelled after they had already
// started running.
func (d *Debouncer) fire(key string, gen uint64, fn func()) {
	d.mu.Lock()
	call, ok := d.pending[key]
	if !ok || call.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()
	fn()
}

// Cancel drops the pending call for key and reports whether there was one.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	call, ok := d.pending[key]
	if !ok {
		return false
	}
	call.timer.Stop()
	delete(d.pending, key)
	return true
}

func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending call. Later Arms are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, call := range d.pending {
		call.timer.Stop()
		delete(d.pending, key)
	}
}
