/*
scheduler.go - Recurring leave recomputation

PURPOSE:
  Drives the batch runner from inside a long-running process: a periodic
  recompute, the yearly cycle reset at July 1 00:00, and debounced
  on-demand recomputes (e.g. after a leave application is approved).

DESIGN:
  - Every schedule is an AfterFunc on the injected Clock, re-armed after
    each run. Tests drive it with a fake clock.
  - The first recompute fires right after Start.
  - At the cycle boundary the reset runs first, then a recompute, both with
    the boundary instant as "now".
  - Job errors are logged; the schedule continues.

CONFIGURATION:
  - RecalcInterval: how often to recompute (default: 1 hour)
  - Debounce: quiet period for RequestRecalculation (default: 5 seconds)

USAGE:
  s := scheduler.New(runner, logger)
  s.Start(ctx)
  // ... later
  s.Stop()

SEE ALSO:
  - leave/runner.go: the jobs being scheduled
  - leave/cycle.go: NextCycleStart
*/
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// Jobs is the work the scheduler triggers. *leave.Runner implements it.
type Jobs interface {
	Recalculate(ctx context.Context, now time.Time) (leave.RunResult, error)
	ResetCycle(ctx context.Context, now time.Time) (leave.ResetResult, error)
}

// Scheduler runs Jobs on a timetable.
type Scheduler struct {
	Jobs           Jobs
	Clock          Clock
	RecalcInterval time.Duration
	Debounce       time.Duration
	Logger         *slog.Logger

	// Location is where the cycle boundary is evaluated. Nil means time.Local.
	Location *time.Location

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	running     bool
	wg          sync.WaitGroup
	recalcTimer Timer
	resetTimer  Timer
	debouncer   *Debouncer
}

// New creates a scheduler with the default intervals and the wall clock.
func New(jobs Jobs, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Jobs:           jobs,
		Clock:          RealClock{},
		RecalcInterval: time.Hour,
		Debounce:       5 * time.Second,
		Logger:         logger.With("component", "leave-scheduler"),
	}
}

// Start arms all schedules. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	if s.Clock == nil {
		s.Clock = RealClock{}
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.debouncer = NewDebouncer(s.Clock, s.Debounce, func() {
		s.track(func() { s.recalculate("on-demand") })
	})

	s.recalcTimer = s.Clock.AfterFunc(0, s.recalcTick)
	s.armResetLocked()

	s.Logger.Info("scheduler started",
		"recalcInterval", s.RecalcInterval,
		"nextCycleStart", leave.NextCycleStart(s.Clock.Now().In(s.location())).Format(time.RFC3339))
}

// Stop disarms every timer and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.recalcTimer != nil {
		s.recalcTimer.Stop()
	}
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.debouncer.Stop()
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("scheduler stopped")
}

// RequestRecalculation queues a recompute after the debounce window. Bursts
// of requests result in a single run.
func (s *Scheduler) RequestRecalculation() {
	s.mu.Lock()
	d := s.debouncer
	running := s.running
	s.mu.Unlock()

	if !running {
		return
	}
	d.Trigger()
}

// RunNow runs a recompute synchronously.
func (s *Scheduler) RunNow(ctx context.Context) (leave.RunResult, error) {
	return s.Jobs.Recalculate(ctx, s.now())
}

// =============================================================================
// TICKS
// =============================================================================

func (s *Scheduler) recalcTick() {
	s.track(func() { s.recalculate("interval") })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.recalcTimer = s.Clock.AfterFunc(s.interval(), s.recalcTick)
	}
}

func (s *Scheduler) armResetLocked() {
	now := s.Clock.Now().In(s.location())
	at := leave.NextCycleStart(now)
	s.resetTimer = s.Clock.AfterFunc(at.Sub(now), func() { s.resetTick(at) })
}

func (s *Scheduler) resetTick(at time.Time) {
	s.track(func() {
		ctx := s.context()
		start := s.Clock.Now()
		res, err := s.Jobs.ResetCycle(ctx, at)
		if err != nil {
			s.Logger.Error("cycle reset failed", "cycleStart", at.Format(time.RFC3339), "error", err)
		} else {
			s.Logger.Info("cycle reset completed",
				"cycleStart", at.Format(time.RFC3339),
				"processed", res.Processed,
				"updated", res.Updated,
				"duration", s.Clock.Now().Sub(start))
		}
		s.recalculateAt(at, "cycle-start")
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.armResetLocked()
	}
}

// track runs fn unless the scheduler was stopped, and makes Stop wait for it.
func (s *Scheduler) track(fn func()) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	fn()
}

func (s *Scheduler) recalculate(trigger string) {
	s.recalculateAt(s.now(), trigger)
}

func (s *Scheduler) recalculateAt(now time.Time, trigger string) {
	start := s.Clock.Now()
	res, err := s.Jobs.Recalculate(s.context(), now)
	if err != nil {
		s.Logger.Error("recalculation failed", "trigger", trigger, "error", err)
		return
	}
	s.Logger.Debug("recalculation completed",
		"trigger", trigger,
		"processed", res.Processed,
		"updated", res.Updated,
		"duration", s.Clock.Now().Sub(start))
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Scheduler) interval() time.Duration {
	if s.RecalcInterval <= 0 {
		return time.Hour
	}
	return s.RecalcInterval
}

func (s *Scheduler) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}
