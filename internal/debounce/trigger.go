package debounce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWindow is the quiet period used when none is configured.
const DefaultWindow = 500 * time.Millisecond

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("debounce: trigger closed")

// State of a Trigger.
type State int

const (
	Idle State = iota
	Pending
	Rebuilding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Rebuilding:
		return "rebuilding"
	}
	return "unknown"
}

// Reason tells a build why it runs.
type Reason int

const (
	// ReasonInitial is the first build, started by the first read.
	ReasonInitial Reason = iota
	// ReasonInvalidate is a build started after the quiet window.
	ReasonInvalidate
)

func (r Reason) String() string {
	if r == ReasonInitial {
		return "initial"
	}
	return "invalidate"
}

// BuildFunc computes a fresh value. It is never called concurrently with
// itself.
type BuildFunc[T any] func(ctx context.Context, reason Reason) (T, error)

// cycle spans one stretch of non-idle time. Readers that arrive while the
// trigger is pending or rebuilding wait for the cycle to end.
type cycle struct {
	done chan struct{}
	err  error
}

// Trigger holds a value recomputed at most once per quiet window. The
// first Get builds it; Invalidate schedules a rebuild once no further
// invalidations arrive for the window. Invalidations during a rebuild queue
// one follow-up rebuild. A failed rebuild keeps the previous value.
type Trigger[T any] struct {
	build  BuildFunc[T]
	window time.Duration

	mu      sync.Mutex
	state   State
	value   T
	has     bool
	dirty   bool
	current *cycle
	timer   *time.Timer
	due     time.Time // end of the current quiet window
	closed  bool

	builds atomic.Int64
}

// NewTrigger creates an idle Trigger with no value.
func NewTrigger[T any](window time.Duration, build BuildFunc[T]) *Trigger[T] {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Trigger[T]{build: build, window: window}
}

// Get returns the current value. It blocks while a rebuild is pending or
// running, and starts the initial build if there is no value yet.
func (t *Trigger[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return zero, ErrClosed
		}
		if t.state == Idle {
			if t.has {
				v := t.value
				t.mu.Unlock()
				return v, nil
			}
			t.startLocked(ReasonInitial)
		}
		c := t.current
		t.mu.Unlock()

		select {
		case <-c.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}

		t.mu.Lock()
		if c.err != nil && !t.has {
			t.mu.Unlock()
			return zero, c.err
		}
		t.mu.Unlock()
	}
}

// Peek returns the current value without waiting.
func (t *Trigger[T]) Peek() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.has
}

// Invalidate marks the value stale and (re)starts the quiet window.
func (t *Trigger[T]) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invalidateLocked()
}

func (t *Trigger[T]) invalidateLocked() {
	if t.closed {
		return
	}
	switch t.state {
	case Idle:
		t.state = Pending
		t.current = &cycle{done: make(chan struct{})}
		t.armLocked()
	case Pending:
		t.armLocked()
	case Rebuilding:
		t.dirty = true
	}
}

// State returns the current state.
func (t *Trigger[T]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Builds returns the number of completed builds, failed ones included.
func (t *Trigger[T]) Builds() int64 { return t.builds.Load() }

// Close stops any pending rebuild and releases waiters. A running build
// finishes but its result is discarded.
func (t *Trigger[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.state == Pending {
		t.finishLocked(ErrClosed)
	}
}

func (t *Trigger[T]) armLocked() {
	t.due = time.Now().Add(t.window)
	if t.timer == nil {
		t.timer = time.AfterFunc(t.window, t.fire)
		return
	}
	t.timer.Reset(t.window)
}

func (t *Trigger[T]) fire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.state != Pending {
		return
	}
	// A tick that was waiting on the lock while the window was extended is
	// stale; the timer has already been rearmed for the new window.
	if time.Now().Before(t.due) {
		return
	}
	t.startLocked(ReasonInvalidate)
}

// startLocked moves to Rebuilding and runs the build in the background.
// Rebuilds are never cancelled once started.
func (t *Trigger[T]) startLocked(reason Reason) {
	if t.current == nil {
		t.current = &cycle{done: make(chan struct{})}
	}
	t.state = Rebuilding
	go t.run(reason)
}

func (t *Trigger[T]) run(reason Reason) {
	v, err := t.build(context.Background(), reason)
	t.builds.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		t.finishLocked(ErrClosed)
		return
	}
	if err == nil {
		t.value, t.has = v, true
	}
	t.current.err = err
	if t.dirty {
		t.dirty = false
		t.state = Pending
		t.armLocked()
		return
	}
	t.finishLocked(err)
}

func (t *Trigger[T]) finishLocked(err error) {
	t.state = Idle
	if t.current != nil {
		t.current.err = err
		close(t.current.done)
		t.current = nil
	}
}
