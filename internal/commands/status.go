package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"hydrobot/internal/monitor"
)

const recentDeliveries = 20

func (r *Router) status(ctx context.Context, _ *Request) string {
	var st Status
	if r.deps.Status != nil {
		st = r.deps.Status()
	}
	cfg := r.deps.Config.Get()

	var b strings.Builder
	b.WriteString("📊 Status\n")
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Up since %s\n", humanize.Time(st.StartedAt))
	}
	for _, m := range st.Monitors {
		fmt.Fprintf(&b, "• %s: %s, %s cycles", m.Name, m.Phase, humanize.Comma(int64(m.Cycles)))
		if !m.LastCycle.IsZero() {
			fmt.Fprintf(&b, ", last %s", humanize.Time(m.LastCycle))
		}
		if m.Phase == monitor.PhaseSleeping && !m.NextAt.IsZero() {
			fmt.Fprintf(&b, ", next in %s", time.Until(m.NextAt).Round(time.Second))
		}
		if m.Exit != "" && m.Phase == monitor.PhaseStopped {
			fmt.Fprintf(&b, " (%s)", m.Exit)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Feeds: %d, seen items: %s\n", len(cfg.Feed.URLs), humanize.Comma(int64(st.SeenItems)))
	fmt.Fprintf(&b, "Players: %d, tracked: %d\n", len(cfg.Presence.SubjectIDs), st.Subjects)
	fmt.Fprintf(&b, "Destinations: %d", len(cfg.Destinations))

	if r.deps.Store != nil {
		if recent, err := r.deps.Store.RecentDeliveries(ctx, recentDeliveries); err == nil && len(recent) > 0 {
			failed := 0
			for _, d := range recent {
				if !d.OK {
					failed++
				}
			}
			fmt.Fprintf(&b, "\nLast %d deliveries: %d failed, newest %s", len(recent), failed, humanize.Time(recent[0].At))
		}
	}

	running := 0
	for _, g := range st.Goroutines {
		if g.Running {
			running++
		}
	}
	if len(st.Goroutines) > 0 {
		fmt.Fprintf(&b, "\nWorkers: %d/%d running", running, len(st.Goroutines))
	}
	return b.String()
}
