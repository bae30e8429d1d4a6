package debounce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 30 * time.Millisecond

func TestChangeSet(t *testing.T) {
	t.Parallel()

	s := NewChangeSet()
	s.Add("b.cs")
	s.Add("a.cs")
	s.Add("b.cs")
	assert.Equal(t, 2, s.Len())

	assert.Equal(t, []string{"a.cs", "b.cs"}, s.Drain())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Drain())
}

func TestChangeSet_ConcurrentAddsNeverLost(t *testing.T) {
	t.Parallel()

	s := NewChangeSet()
	var wg sync.WaitGroup
	seen := make(map[string]int)
	var mu sync.Mutex

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Add(string(rune('a'+i)) + string(rune('a'+j%26)) + string(rune('0'+j/26)))
			}
		}(i)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	drain := func() {
		for _, p := range s.Drain() {
			mu.Lock()
			seen[p]++
			mu.Unlock()
		}
	}
loop:
	for {
		select {
		case <-done:
			break loop
		default:
			drain()
		}
	}
	drain()

	assert.Len(t, seen, 8*50)
	for p, n := range seen {
		assert.Equal(t, 1, n, p)
	}
}

// counter builds increasing integers and records reasons.
type counter struct {
	mu      sync.Mutex
	n       int
	reasons []Reason
	gate    chan struct{}
	fail    atomic.Bool
}

func (c *counter) build(_ context.Context, reason Reason) (int, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
	if c.fail.Load() {
		return 0, errors.New("build failed")
	}
	c.n++
	return c.n, nil
}

func newTestTrigger(t *testing.T, c *counter) *Trigger[int] {
	t.Helper()
	tr := NewTrigger(testWindow, c.build)
	t.Cleanup(tr.Close)
	return tr
}

func TestTrigger_FirstGetBuilds(t *testing.T) {
	t.Parallel()

	c := &counter{}
	tr := newTestTrigger(t, c)
	assert.Equal(t, Idle, tr.State())
	_, ok := tr.Peek()
	assert.False(t, ok)

	v, err := tr.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = tr.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v, "idle reads reuse the value")
	assert.Equal(t, int64(1), tr.Builds())
	assert.Equal(t, []Reason{ReasonInitial}, c.reasons)
}

func TestTrigger_CoalescesInvalidations(t *testing.T) {
	t.Parallel()

	c := &counter{}
	tr := newTestTrigger(t, c)
	_, err := tr.Get(context.Background())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		tr.Invalidate()
	}
	assert.Equal(t, Pending, tr.State())

	v, err := tr.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int64(2), tr.Builds())
	assert.Equal(t, []Reason{ReasonInitial, ReasonInvalidate}, c.reasons)
	assert.Equal(t, Idle, tr.State())
}

func TestTrigger_InvalidateExtendsWindow(t *testing.T) {
	t.Parallel()

	c := &counter{}
	tr := newTestTrigger(t, c)
	_, err := tr.Get(context.Background())
	require.NoError(t, err)

	// Keep invalidating inside the window for several windows' worth of time.
	deadline := time.Now().Add(4 * testWindow)
	for time.Now().Before(deadline) {
		tr.Invalidate()
		time.Sleep(testWindow / 4)
	}
	assert.Equal(t, int64(1), tr.Builds(), "no rebuild while invalidations keep arriving")

	_, err = tr.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), tr.Builds())
}

func TestTrigger_StaleTickIgnored(t *testing.T) {
	t.Parallel()

	c := &counter{}
	tr := newTestTrigger(t, c)
	_, err := tr.Get(context.Background())
	require.NoError(t, err)

	tr.Invalidate()

	// Let the timer fire while the lock is held, then extend the window
	// before the blocked tick gets the lock.
	tr.mu.Lock()
	time.Sleep(2 * testWindow)
	tr.invalidateLocked()
	tr.mu.Unlock()

	time.Sleep(testWindow / 3)
	assert.Equal(t, Pending, tr.State(), "the extended window has not elapsed")
	assert.Equal(t, int64(1), tr.Builds())

	_, err = tr.Get(context.Background())
	require.NoError(t, err)
	time.Sleep(2 * testWindow)
	assert.Equal(t, int64(2), tr.Builds(), "one rebuild per window")
	assert.Equal(t, Idle, tr.State())
}

func TestTrigger_RebuildsWithoutReader(t *testing.T) {
	t.Parallel()

	c := &counter{}
	tr := newTestTrigger(t, c)
	_, err := tr.Get(context.Background())
	require.NoError(t, err)

	tr.Invalidate()
	require.Eventually(t, func() bool { return tr.Builds() == 2 && tr.State() == Idle },
		time.Second, 5*time.Millisecond)
	v, ok := tr.Peek()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTrigger_InvalidateDuringRebuildQueuesFollowUp(t *testing.T) {
	t.Parallel()

	c := &counter{}
	tr := newTestTrigger(t, c)
	_, err := tr.Get(context.Background())
	require.NoError(t, err)

	c.gate = make(chan struct{})
	tr.Invalidate()
	require.Eventually(t, func() bool { return tr.State() == Rebuilding }, time.Second, time.Millisecond)

	tr.Invalidate()
	tr.Invalidate()
	close(c.gate)

	v, err := tr.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v, "one follow-up rebuild for invalidations during a rebuild")
	assert.Equal(t, int64(3), tr.Builds())
}

func TestTrigger_ReadersBlockWhileRebuilding(t *testing.T) {
	t.Parallel()

	c := &counter{}
	tr := newTestTrigger(t, c)
	_, err := tr.Get(context.Background())
	require.NoError(t, err)

	c.gate = make(chan struct{})
	tr.Invalidate()
	require.Eventually(t, func() bool { return tr.State() == Rebuilding }, time.Second, time.Millisecond)

	got := make(chan int, 1)
	go func() {
		v, _ := tr.Get(context.Background())
		got <- v
	}()
	select {
	case <-got:
		t.Fatal("reader returned before rebuild finished")
	case <-time.After(testWindow):
	}
	close(c.gate)
	assert.Equal(t, 2, <-got)
}

func TestTrigger_GetHonoursContext(t *testing.T) {
	t.Parallel()

	c := &counter{gate: make(chan struct{})}
	tr := newTestTrigger(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), testWindow)
	defer cancel()
	_, err := tr.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The build was not cancelled.
	close(c.gate)
	v, err := tr.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int64(1), tr.Builds())
}

func TestTrigger_FailedRebuildKeepsPreviousValue(t *testing.T) {
	t.Parallel()

	c := &counter{}
	tr := newTestTrigger(t, c)
	_, err := tr.Get(context.Background())
	require.NoError(t, err)

	c.fail.Store(true)
	tr.Invalidate()
	v, err := tr.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int64(2), tr.Builds())
}

func TestTrigger_FailedInitialBuildRetries(t *testing.T) {
	t.Parallel()

	c := &counter{}
	c.fail.Store(true)
	tr := newTestTrigger(t, c)

	_, err := tr.Get(context.Background())
	require.Error(t, err)

	c.fail.Store(false)
	v, err := tr.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int64(2), tr.Builds())
}

func TestTrigger_ConcurrentFirstReadersShareBuild(t *testing.T) {
	t.Parallel()

	c := &counter{gate: make(chan struct{})}
	tr := newTestTrigger(t, c)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := tr.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 1, v)
		}()
	}
	time.Sleep(testWindow / 2)
	close(c.gate)
	wg.Wait()
	assert.Equal(t, int64(1), tr.Builds())
}

func TestTrigger_Close(t *testing.T) {
	t.Parallel()

	c := &counter{}
	tr := NewTrigger(time.Hour, c.build)
	_, err := tr.Get(context.Background())
	require.NoError(t, err)

	tr.Invalidate()
	errc := make(chan error, 1)
	go func() {
		_, err := tr.Get(context.Background())
		errc <- err
	}()
	time.Sleep(testWindow)
	tr.Close()
	require.ErrorIs(t, <-errc, ErrClosed)

	_, err = tr.Get(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	tr.Invalidate()
	assert.Equal(t, int64(1), tr.Builds())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "rebuilding", Rebuilding.String())
	assert.Equal(t, "initial", ReasonInitial.String())
	assert.Equal(t, "invalidate", ReasonInvalidate.String())
}
