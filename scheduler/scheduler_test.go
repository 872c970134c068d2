package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	when  time.Time
	seq   int
	fn    func()
	done  bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, when: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves time forward by d, running due timers in order. Callbacks run
// synchronously and may arm new timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var due *fakeTimer
		sort.SliceStable(c.timers, func(i, j int) bool {
			if !c.timers[i].when.Equal(c.timers[j].when) {
				return c.timers[i].when.Before(c.timers[j].when)
			}
			return c.timers[i].seq < c.timers[j].seq
		})
		for _, t := range c.timers {
			if !t.done && !t.when.After(target) {
				due = t
				break
			}
		}
		if due == nil {
			break
		}
		due.done = true
		c.now = due.when
		c.mu.Unlock()
		due.fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

type call struct {
	kind string
	now  time.Time
}

type fakeJobs struct {
	mu        sync.Mutex
	calls     []call
	recalcErr error
}

func (j *fakeJobs) Recalculate(_ context.Context, now time.Time) (leave.RunResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call{"recalculate", now})
	return leave.RunResult{Processed: 1}, j.recalcErr
}

func (j *fakeJobs) ResetCycle(_ context.Context, now time.Time) (leave.ResetResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call{"reset", now})
	return leave.ResetResult{Processed: 1, Updated: 1}, nil
}

func (j *fakeJobs) kinds() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.calls))
	for i, c := range j.calls {
		out[i] = c.kind
	}
	return out
}

func (j *fakeJobs) count(kind string) int {
	n := 0
	for _, k := range j.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *fakeClock, *fakeJobs) {
	t.Helper()
	clock := newFakeClock(now)
	jobs := &fakeJobs{}
	s := New(jobs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Clock = clock
	s.Location = time.UTC
	s.RecalcInterval = time.Hour
	s.Debounce = 5 * time.Second
	return s, clock, jobs
}

// =============================================================================
// SCHEDULER TESTS
// =============================================================================

func TestScheduler_RecalculatesImmediatelyAndOnInterval(t *testing.T) {
	// GIVEN: a scheduler started mid-cycle
	s, clock, jobs := newTestScheduler(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s.Start(context.Background())
	defer s.Stop()

	// WHEN: time advances by zero, then by three intervals
	clock.Advance(0)
	require.Equal(t, 1, jobs.count("recalculate"), "first recompute fires on start")

	clock.Advance(3 * time.Hour)

	// THEN: one run per interval, no reset
	assert.Equal(t, 4, jobs.count("recalculate"))
	assert.Equal(t, 0, jobs.count("reset"))
}

func TestScheduler_ResetsAtCycleStart(t *testing.T) {
	// GIVEN: a scheduler started one hour before July 1
	s, clock, jobs := newTestScheduler(t, time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC))
	s.RecalcInterval = 24 * time.Hour
	s.Start(context.Background())
	defer s.Stop()
	clock.Advance(0)

	// WHEN: the boundary passes
	clock.Advance(90 * time.Minute)

	// THEN: reset then recompute, both at July 1 00:00
	jobs.mu.Lock()
	calls := append([]call(nil), jobs.calls...)
	jobs.mu.Unlock()

	require.Len(t, calls, 3)
	boundary := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "reset", calls[1].kind)
	assert.True(t, calls[1].now.Equal(boundary))
	assert.Equal(t, "recalculate", calls[2].kind)
	assert.True(t, calls[2].now.Equal(boundary))
}

func TestScheduler_RearmsResetForNextYear(t *testing.T) {
	// GIVEN: a scheduler started just before a boundary
	s, clock, jobs := newTestScheduler(t, time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC))
	s.RecalcInterval = 1000 * 24 * time.Hour
	s.Start(context.Background())
	defer s.Stop()

	// WHEN: more than a year passes
	clock.Advance(380 * 24 * time.Hour)

	// THEN: two resets fired (2025-07-01 and 2026-07-01)
	assert.Equal(t, 2, jobs.count("reset"))
}

func TestScheduler_ContinuesAfterJobError(t *testing.T) {
	// GIVEN: jobs that always fail
	s, clock, jobs := newTestScheduler(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	jobs.recalcErr = errors.New("db down")
	s.Start(context.Background())
	defer s.Stop()

	// WHEN
	clock.Advance(2 * time.Hour)

	// THEN: the schedule keeps going
	assert.Equal(t, 3, jobs.count("recalculate"))
}

func TestScheduler_StopDisarmsTimers(t *testing.T) {
	// GIVEN: a running scheduler
	s, clock, jobs := newTestScheduler(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s.Start(context.Background())
	clock.Advance(0)

	// WHEN: stopped, then time passes
	s.Stop()
	clock.Advance(10 * time.Hour)
	s.RequestRecalculation()
	clock.Advance(time.Minute)

	// THEN: nothing more ran
	assert.Equal(t, 1, jobs.count("recalculate"))
}

func TestScheduler_RequestRecalculationIsDebounced(t *testing.T) {
	// GIVEN: a running scheduler past its first run
	s, clock, jobs := newTestScheduler(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s.Start(context.Background())
	defer s.Stop()
	clock.Advance(0)
	require.Equal(t, 1, jobs.count("recalculate"))

	// WHEN: a burst of requests arrives within the debounce window
	s.RequestRecalculation()
	clock.Advance(2 * time.Second)
	s.RequestRecalculation()
	clock.Advance(2 * time.Second)
	s.RequestRecalculation()
	clock.Advance(4 * time.Second)
	assert.Equal(t, 1, jobs.count("recalculate"), "window still open")

	clock.Advance(time.Second)

	// THEN: exactly one extra run
	assert.Equal(t, 2, jobs.count("recalculate"))
}

func TestScheduler_RunNow(t *testing.T) {
	// GIVEN
	s, _, jobs := newTestScheduler(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	// WHEN
	res, err := s.RunNow(context.Background())

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []string{"recalculate"}, jobs.kinds())
}

// =============================================================================
// DEBOUNCER TESTS
// =============================================================================

func TestDebouncer_FiresOnceAfterQuietPeriod(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	calls := 0
	d := NewDebouncer(clock, time.Second, func() { calls++ })

	d.Trigger()
	clock.Advance(500 * time.Millisecond)
	d.Trigger()
	assert.True(t, d.Pending())

	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, 0, calls)

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.False(t, d.Pending())
}

func TestDebouncer_StopDropsPendingCall(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	calls := 0
	d := NewDebouncer(clock, time.Second, func() { calls++ })

	d.Trigger()
	d.Stop()
	d.Trigger()
	clock.Advance(time.Minute)

	assert.Equal(t, 0, calls)
}

// lateClock hands out timers whose Stop never wins, like a real timer whose
// callback has already started.
type lateClock struct {
	callbacks []func()
}

type lateTimer struct{}

func (lateTimer) Stop() bool { return false }

func (c *lateClock) Now() time.Time { return time.Time{} }

func (c *lateClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.callbacks = append(c.callbacks, f)
	return lateTimer{}
}

func TestDebouncer_ReplacedTimerDoesNotFire(t *testing.T) {
	// GIVEN: a trigger re-armed while the first timer is already firing
	clock := &lateClock{}
	calls := 0
	d := NewDebouncer(clock, time.Second, func() { calls++ })
	d.Trigger()
	d.Trigger()
	require.Len(t, clock.callbacks, 2)

	// WHEN: the replaced timer's callback runs
	clock.callbacks[0]()

	// THEN: nothing is called and the new timer is still tracked
	assert.Equal(t, 0, calls)
	assert.True(t, d.Pending())

	// AND: the current timer fires once
	clock.callbacks[1]()
	assert.Equal(t, 1, calls)
	assert.False(t, d.Pending())
}
