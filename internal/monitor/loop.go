package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hydrobot/internal/eventbus"
	"hydrobot/internal/runtime/supervisor"
	"hydrobot/internal/schedule"
	"hydrobot/pkg/logx"
)

// ErrPrerequisite is returned by Monitor.Prepare when the monitor cannot
// run at all (for example a missing credential). The loop exits cleanly.
var ErrPrerequisite = errors.New("monitor prerequisite missing")

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseDiffing   Phase = "diffing"
	PhaseNotifying Phase = "notifying"
	PhaseSleeping  Phase = "sleeping"
	PhaseStopped   Phase = "stopped"
)

// PhaseFunc lets a monitor report progress through a cycle.
type PhaseFunc func(Phase)

// CycleReport summarises one cycle.
type CycleReport struct {
	Sources  int  // sources attempted
	Failed   int  // sources whose fetch failed
	Notified int  // notifications handed to the fanout
	Seeded   int  // new identities recorded without notifying
	Skipped  bool // nothing to poll
}

// Monitor is one kind of polled source.
type Monitor interface {
	Name() string
	// Prepare runs once before the first cycle. Returning an error wrapping
	// ErrPrerequisite makes the loop exit without error.
	Prepare(ctx context.Context) error
	// Cycle fetches all sources, diffs against tracked state and notifies.
	// Per-source errors are handled inside.
	Cycle(ctx context.Context, phase PhaseFunc) CycleReport
	// Cadence is consulted after every cycle, so config changes apply on
	// the next sleep.
	Cadence() schedule.Parsed
}

// Status is a point-in-time view of a loop, for the status command.
type Status struct {
	Name      string
	Phase     Phase
	Cycles    uint64
	LastCycle time.Time
	Last      CycleReport
	NextAt    time.Time
	Exit      string
}

// CycleEvent is the Data of eventbus.TypeCycleDone.
type CycleEvent struct {
	ID      string
	Monitor string
	Report  CycleReport
	Took    time.Duration
}

type Loop struct {
	m   Monitor
	log logx.Logger
	bus eventbus.Bus

	running atomic.Bool

	mu     sync.Mutex
	status Status
}

func NewLoop(m Monitor, log logx.Logger, bus eventbus.Bus) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		m:      m,
		log:    log.With(logx.String("monitor", m.Name())),
		bus:    bus,
		status: Status{Name: m.Name(), Phase: PhaseIdle},
	}
}

func (l *Loop) Name() string { return l.m.Name() }

// Running reports whether Run is active.
func (l *Loop) Running() bool { return l.running.Load() }

func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Loop) setPhase(p Phase) {
	l.mu.Lock()
	l.status.Phase = p
	l.mu.Unlock()
}

// Run drives the monitor until ctx is cancelled. It returns nil on
// cancellation and when Prepare reports ErrPrerequisite. A Run call made
// while another is active returns nil immediately, so a stopped loop can
// be started again safely.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return nil
	}
	defer l.running.Store(false)

	if err := l.m.Prepare(ctx); err != nil {
		l.exit(err.Error())
		if errors.Is(err, ErrPrerequisite) {
			l.log.Warn("monitor not started", logx.Category("SYSTEM"), logx.Err(err))
			return nil
		}
		return fmt.Errorf("prepare %s: %w", l.m.Name(), err)
	}
	l.mu.Lock()
	l.status.Exit = ""
	l.mu.Unlock()
	l.log.Info("monitor started", logx.Category("SYSTEM"))

	for {
		l.setPhase(PhaseIdle)
		if ctx.Err() != nil {
			l.exit("cancelled")
			return nil
		}

		l.cycle(ctx)

		wait := l.m.Cadence().Next(time.Now())
		if wait <= 0 {
			wait = l.fallbackWait()
			l.log.Warn("cadence has no next tick; using fallback interval", logx.Category("SYSTEM"), logx.Duration("wait", wait))
		}
		l.mu.Lock()
		l.status.Phase = PhaseSleeping
		l.status.NextAt = time.Now().Add(wait)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.exit("cancelled")
			return nil
		case <-timer.C:
		}
	}
}

// FallbackWait is the sleep used when a monitor's cadence yields no future
// tick and the monitor has no DefaultInterval of its own.
const FallbackWait = time.Minute

func (l *Loop) fallbackWait() time.Duration {
	if d, ok := l.m.(interface{ DefaultInterval() time.Duration }); ok && d.DefaultInterval() > 0 {
		return d.DefaultInterval()
	}
	return FallbackWait
}

// cycle runs one monitor cycle, recovering a panic so the loop continues.
func (l *Loop) cycle(ctx context.Context) {
	id := uuid.NewString()
	start := time.Now()
	var report CycleReport

	func() {
		defer func() {
			if r := recover(); r != nil {
				l.log.Error("cycle panicked", logx.Category("SYSTEM"), logx.String("cycle", id), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		report = l.m.Cycle(ctx, l.setPhase)
	}()

	took := time.Since(start)
	l.mu.Lock()
	l.status.Cycles++
	l.status.LastCycle = start
	l.status.Last = report
	l.mu.Unlock()

	l.log.Debug("cycle done",
		logx.String("cycle", id),
		logx.Int("sources", report.Sources),
		logx.Int("failed", report.Failed),
		logx.Int("notified", report.Notified),
		logx.Duration("took", took),
	)
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleDone, Data: CycleEvent{ID: id, Monitor: l.m.Name(), Report: report, Took: took}})
	}
}

func (l *Loop) exit(reason string) {
	l.mu.Lock()
	l.status.Phase = PhaseStopped
	l.status.Exit = reason
	l.mu.Unlock()
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeMonitorExited, Data: l.Status()})
	}
}

// Start runs every loop as a named goroutine on sup. A loop that exits (for
// a missing prerequisite, or with an error) does not affect the others.
func Start(sup *supervisor.Supervisor, loops ...*Loop) {
	for _, l := range loops {
		sup.Go("monitor."+l.Name(), l.Run)
	}
}
