package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestGateStopTimestamp(t *testing.T) {
	var g Gate
	if !g.Allows(100) {
		t.Fatal("fresh gate should allow everything")
	}
	g.MarkStopped(5)
	if g.Allows(5) || g.Allows(6) {
		t.Fatal("triggers at or after stop must be suppressed")
	}
	if !g.Allows(4.999) {
		t.Fatal("triggers before stop must be allowed")
	}
	g.MarkStopped(3)
	if at, ok := g.StopTime(); !ok || at != 5 {
		t.Fatalf("stop moved backwards: %v %v", at, ok)
	}
	g.Begin()
	if !g.Allows(6) {
		t.Fatal("Begin must clear the stop timestamp")
	}
}

func TestGateSessionIdentity(t *testing.T) {
	var g Gate
	a := g.Begin()
	if !g.IsCurrent(a) {
		t.Fatal("new session not current")
	}
	b := g.Supersede()
	if b <= a || g.IsCurrent(a) {
		t.Fatalf("supersede: a=%d b=%d", a, b)
	}
	c := g.Begin()
	if c <= b || !g.IsCurrent(c) {
		t.Fatalf("ids must increase: b=%d c=%d", b, c)
	}
}

func TestDeferredFires(t *testing.T) {
	var d Deferred
	got := make(chan uint64, 1)
	d.Arm(5*time.Millisecond, 7, func(id uint64) { got <- id })
	select {
	case id := <-got:
		if id != 7 {
			t.Fatalf("id = %d", id)
		}
	case <-time.After(time.Second):
		t.Fatal("deferred task did not fire")
	}
	if _, ok := d.Pending(); ok {
		t.Fatal("fired task still pending")
	}
}

func TestDeferredCancelAndRearm(t *testing.T) {
	var d Deferred
	var first atomic.Int32
	d.Arm(20*time.Millisecond, 1, func(uint64) { first.Add(1) })
	if !d.Cancel() {
		t.Fatal("cancel should report a pending task")
	}
	got := make(chan uint64, 2)
	d.Arm(20*time.Millisecond, 2, func(id uint64) { got <- id })
	d.Arm(5*time.Millisecond, 3, func(id uint64) { got <- id })
	select {
	case id := <-got:
		if id != 3 {
			t.Fatalf("replaced task fired: %d", id)
		}
	case <-time.After(time.Second):
		t.Fatal("deferred task did not fire")
	}
	time.Sleep(40 * time.Millisecond)
	if first.Load() != 0 || len(got) != 0 {
		t.Fatal("cancelled task fired")
	}
	if d.Cancel() {
		t.Fatal("nothing should be pending")
	}
}
