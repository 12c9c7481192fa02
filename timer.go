package pairtopology

import (
	"time"
)

type timerKind uint8

const (
	timerStop timerKind = iota + 1
	timerHandoverWindow
	timerHandoverRetry
	timerLeaveRetry
	timerStaticHandover
	timerIdleReset
)

func (k timerKind) String() string {
	switch k {
	case timerStop:
		return "stop"
	case timerHandoverWindow:
		return "handover_window"
	case timerHandoverRetry:
		return "handover_retry"
	case timerLeaveRetry:
		return "leave_retry"
	case timerStaticHandover:
		return "static_handover"
	case timerIdleReset:
		return "idle_reset"
	}
	return "unknown timer"
}

// AfterFunc schedules f after d and returns a function that stops it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func DefaultAfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}

// timers turns delays into queued events. Each arm bumps a generation so an
// expiry that raced with cancel is recognised as stale.
type timers struct {
	after AfterFunc
	fire  func(kind timerKind, gen uint64)
	gen   map[timerKind]uint64
	stops map[timerKind]func() bool
}

func (t *timers) arm(kind timerKind, d time.Duration) {
	t.cancel(kind)

	gen := t.gen[kind]
	t.stops[kind] = t.after(d, func() {
		t.fire(kind, gen)
	})
}

func (t *timers) cancel(kind timerKind) bool {
	stop, ok := t.stops[kind]
	if ok != true {
		return false
	}
	stop()
	delete(t.stops, kind)
	t.gen[kind] += 1
	return true
}

func (t *timers) pending(kind timerKind) bool {
	_, ok := t.stops[kind]
	return ok
}

// expire consumes a fired timer, false when it was cancelled or re-armed.
func (t *timers) expire(kind timerKind, gen uint64) bool {
	if t.pending(kind) != true || t.gen[kind] != gen {
		return false
	}
	delete(t.stops, kind)
	t.gen[kind] += 1
	return true
}

func (t *timers) cancelAll() {
	for kind := range t.stops {
		t.cancel(kind)
	}
}

func newTimers(after AfterFunc, fire func(timerKind, uint64)) *timers {
	return &timers{
		after: after,
		fire:  fire,
		gen:   make(map[timerKind]uint64),
		stops: make(map[timerKind]func() bool),
	}
}
