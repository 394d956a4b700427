package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"hydrobot/internal/config"
	"hydrobot/internal/fetch"
	"hydrobot/internal/schedule"
	"hydrobot/pkg/logx"
)

// PresenceSource fetches player summaries for a batch of SteamID64s.
type PresenceSource interface {
	Fetch(ctx context.Context, apiKey string, ids []uint64) ([]fetch.PlayerSummary, error)
}

// PresenceMonitor notifies about Steam status and game changes.
type PresenceMonitor struct {
	cfg *config.Manager
	src PresenceSource
	out Notifier
	log logx.Logger

	tracker  *PresenceTracker
	subjects atomic.Int64
}

func NewPresenceMonitor(cfg *config.Manager, src PresenceSource, out Notifier, log logx.Logger) *PresenceMonitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &PresenceMonitor{cfg: cfg, src: src, out: out, log: log, tracker: NewPresenceTracker()}
}

func (m *PresenceMonitor) Name() string { return "presence" }

// Prepare refuses to run without an API key.
func (m *PresenceMonitor) Prepare(context.Context) error {
	if m.cfg.Get().Presence.APIKey == "" {
		return fmt.Errorf("%w: presence.api_key is not set", ErrPrerequisite)
	}
	return nil
}

// Cadence uses the idle interval while there is nobody to watch.
func (m *PresenceMonitor) Cadence() schedule.Parsed {
	p := m.cfg.Get().Presence
	path, raw, def := "presence.interval", p.Interval, config.DefaultPresenceInterval
	if len(p.SubjectIDs) == 0 {
		path, raw, def = "presence.idle_interval", p.IdleInterval, config.DefaultPresenceIdleInterval
	}
	parsed, err := config.CadenceOr(path, raw, def)
	if err != nil {
		return schedule.Every(def)
	}
	return parsed
}

func (m *PresenceMonitor) DefaultInterval() time.Duration { return config.DefaultPresenceInterval }

// Subjects is the number of tracked subjects as of the last completed cycle.
func (m *PresenceMonitor) Subjects() int { return int(m.subjects.Load()) }

func (m *PresenceMonitor) Cycle(ctx context.Context, phase PhaseFunc) CycleReport {
	p := m.cfg.Get().Presence
	if len(p.SubjectIDs) == 0 {
		return CycleReport{Skipped: true}
	}
	report := CycleReport{Sources: len(p.SubjectIDs)}

	phase(PhaseFetching)
	players, err := m.src.Fetch(ctx, p.APIKey, p.SubjectIDs)
	if err != nil {
		report.Failed = len(p.SubjectIDs)
		m.log.Warn("presence fetch failed", logx.Category("STEAM-ERROR"), logx.Err(err))
		return report
	}

	phase(PhaseDiffing)
	var changes []Transition
	for _, pl := range players {
		changes = append(changes, m.tracker.Diff(pl.SteamID, pl.Name, PresenceState{Status: pl.Status(), Activity: pl.Game})...)
	}
	m.subjects.Store(int64(m.tracker.Len()))
	if len(changes) == 0 {
		return report
	}

	phase(PhaseNotifying)
	for _, t := range changes {
		m.log.Info(t.Name+" "+t.Kind.String(), logx.Category("STEAM-EVT"), logx.String("steamid", t.Subject), logx.String("old", t.Old), logx.String("new", t.New))
		m.out.Send(ctx, RenderTransition(t))
		report.Notified++
	}
	return report
}
