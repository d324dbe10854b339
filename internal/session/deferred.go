package session

import (
	"sync"
	"time"
)

// Deferred is a cancellable one-shot task bound to a session id. Arming it
// again replaces the pending task.
type Deferred struct {
	mu    sync.Mutex
	timer *time.Timer
	id    uint64
	armed bool
}

// Arm schedules fn(id) to run after d. A previously armed task is cancelled
// first. fn does not run if Cancel or Arm is called before it fires.
func (t *Deferred) Arm(d time.Duration, id uint64, fn func(id uint64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.id = id
	t.armed = true
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		fire := t.armed && t.timer == timer
		if fire {
			t.armed = false
			t.timer = nil
		}
		t.mu.Unlock()
		if fire {
			fn(id)
		}
	})
	t.timer = timer
}

// Cancel drops the pending task, if any. It reports whether one was pending.
func (t *Deferred) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.armed
	t.stopLocked()
	return was
}

// Pending reports whether a task is armed and returns its session id.
func (t *Deferred) Pending() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id, t.armed
}

func (t *Deferred) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
}
