package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"hydrobot/internal/config"
	"hydrobot/internal/fanout"
	"hydrobot/internal/fetch"
	"hydrobot/internal/schedule"
	"hydrobot/pkg/logx"
)

// FeedSource fetches one feed.
type FeedSource interface {
	Fetch(ctx context.Context, url string) (fetch.Feed, error)
}

// Notifier hands a rendered notification to every destination.
type Notifier interface {
	Send(ctx context.Context, text string) fanout.Result
}

// FeedMonitor notifies about feed entries it has not seen before.
//
// The first cycle in which any feed is fetched successfully only seeds the
// seen-set, so a restart does not replay a feed's backlog. Feeds added
// later are not seeded: their current entries are announced.
type FeedMonitor struct {
	cfg *config.Manager
	src FeedSource
	out Notifier
	log logx.Logger

	seen      *SeenSet
	seenCount atomic.Int64
	coldStart bool
}

func NewFeedMonitor(cfg *config.Manager, src FeedSource, out Notifier, log logx.Logger) *FeedMonitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FeedMonitor{cfg: cfg, src: src, out: out, log: log, seen: NewSeenSet(), coldStart: true}
}

func (m *FeedMonitor) Name() string { return "feed" }

func (m *FeedMonitor) Prepare(context.Context) error { return nil }

func (m *FeedMonitor) Cadence() schedule.Parsed {
	p, err := config.CadenceOr("feed.interval", m.cfg.Get().Feed.Interval, config.DefaultFeedInterval)
	if err != nil {
		return schedule.Every(config.DefaultFeedInterval)
	}
	return p
}

// DefaultInterval is the loop's fallback when the cadence has no next tick.
func (m *FeedMonitor) DefaultInterval() time.Duration { return config.DefaultFeedInterval }

// SeenCount is the seen-set size as of the last completed cycle.
func (m *FeedMonitor) SeenCount() int { return int(m.seenCount.Load()) }

func (m *FeedMonitor) Cycle(ctx context.Context, phase PhaseFunc) CycleReport {
	urls := m.cfg.Get().Feed.URLs
	report := CycleReport{Skipped: len(urls) == 0}
	fetched := false

	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		report.Sources++

		phase(PhaseFetching)
		feed, err := m.src.Fetch(ctx, url)
		if err != nil {
			report.Failed++
			m.log.Warn("feed fetch failed", logx.Category("RSS-ERROR"), logx.String("url", url), logx.Err(err))
			continue
		}
		fetched = true

		phase(PhaseDiffing)
		var fresh []fetch.Entry
		for _, e := range feed.Entries {
			if m.seen.IsNew(e.Identity) {
				fresh = append(fresh, e)
			}
		}
		if m.coldStart {
			report.Seeded += len(fresh)
			continue
		}

		title := feed.Title
		if title == "" {
			title = url
		}
		phase(PhaseNotifying)
		for _, e := range fresh {
			m.log.Info(logSummary(title, e), logx.Category("RSS-NEW"))
			res := m.out.Send(ctx, RenderFeedEntry(title, e))
			report.Notified++
			if res.Failed > 0 {
				m.log.Debug("feed notification partially failed", logx.String("link", e.Identity), logx.Int("failed", res.Failed), logx.Int("total", res.Total))
			}
		}
	}

	m.seenCount.Store(int64(m.seen.Len()))
	if m.coldStart && fetched {
		m.coldStart = false
		m.log.Info("feed monitor seeded", logx.Category("RSS"), logx.Int("entries", report.Seeded), logx.Int("feeds", report.Sources-report.Failed))
	}
	return report
}
