package orderclient

import (
	"sync"
	"time"
)

// Debouncer runs only the last function scheduled under a key once the key has been
// quiet for the wait period.
type Debouncer struct {
	wait time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]func()
}

func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait, timers: map[string]*time.Timer{}, pending: map[string]func(){}}
}

func (d *Debouncer) Do(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[key] = fn
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.wait, func() { d.fire(key, t) })
	d.timers[key] = t
}

func (d *Debouncer) fire(key string, t *time.Timer) {
	d.mu.Lock()
	if d.timers[key] != t {
		// superseded by a later Do
		d.mu.Unlock()
		return
	}
	fn, ok := d.pending[key]
	delete(d.pending, key)
	delete(d.timers, key)
	d.mu.Unlock()
	if ok {
		fn()
	}
}

// Flush runs every pending function now, in no particular order.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.pending))
	for key, fn := range d.pending {
		if t := d.timers[key]; t != nil {
			t.Stop()
		}
		fns = append(fns, fn)
	}
	d.pending = map[string]func(){}
	d.timers = map[string]*time.Timer{}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Stop drops pending functions without running them.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.timers {
		t.Stop()
	}
	d.pending = map[string]func(){}
	d.timers = map[string]*time.Timer{}
}

func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
