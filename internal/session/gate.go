// Package session tracks playback session identity. A Gate decides whether a
// trigger still belongs to the live session; a Deferred is the one-shot task
// that ends a session's Playing state.
package session

import "sync"

// Gate holds the current session id and an optional stop timestamp.
// A trigger at time T is honored iff no stop timestamp is set or T < stop.
type Gate struct {
	mu      sync.Mutex
	id      uint64
	stop    float64
	stopped bool
}

// Begin starts a new session and clears the stop timestamp. It returns the
// new session id.
func (g *Gate) Begin() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id++
	g.stopped = false
	g.stop = 0
	return g.id
}

// Supersede invalidates the current session without starting a new one, so
// a scheduling walk in progress notices it is stale.
func (g *Gate) Supersede() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id++
	return g.id
}

// MarkStopped records now as the stop timestamp. A later stop never moves
// the timestamp backwards.
func (g *Gate) MarkStopped(now float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped && now < g.stop {
		return
	}
	g.stop = now
	g.stopped = true
}

// Allows reports whether a trigger scheduled for when may sound.
func (g *Gate) Allows(when float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.stopped || when < g.stop
}

// StopTime returns the active stop timestamp, if any.
func (g *Gate) StopTime() (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop, g.stopped
}

func (g *Gate) Current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

// IsCurrent reports whether id is still the live session.
func (g *Gate) IsCurrent(id uint64) bool {
	return g.Current() == id
}
