package client

import (
	"sync"
	"time"
)

// Debouncer schedules the auto-submit of a staged utterance. Each new
// final transcript restarts the countdown; only the most recent schedule
// can fire. Cancellation is a token bump, never a timer search.
type Debouncer struct {
	delay time.Duration
	fire  func()

	mu    sync.Mutex
	token uint64
	timer *time.Timer
}

// NewDebouncer creates a debouncer that calls fire once the delay passes
// without another Poke.
func NewDebouncer(delay time.Duration, fire func()) *Debouncer {
	return &Debouncer{delay: delay, fire: fire}
}

// Poke restarts the countdown and returns the pending token. A later
// Poke or Cancel invalidates it.
func (d *Debouncer) Poke() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.token++
	token := d.token

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		live := d.token == token
		d.mu.Unlock()
		if live {
			d.fire()
		}
	})
	return token
}

// Cancel invalidates any pending submit.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.token++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Token returns the current token value.
func (d *Debouncer) Token() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}
