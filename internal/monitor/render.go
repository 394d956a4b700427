package monitor

import (
	"fmt"
	"strings"

	"hydrobot/internal/fetch"
)

// RenderFeedEntry formats a new feed entry notification.
func RenderFeedEntry(feedTitle string, e fetch.Entry) string {
	return fmt.Sprintf("📢 Feed update\nSource: %s\nTitle: %s\nLink: %s", feedTitle, e.Title, e.Identity)
}

// RenderTransition formats a presence change notification.
func RenderTransition(t Transition) string {
	switch t.Kind {
	case StatusChanged:
		return fmt.Sprintf("[Steam] %s is now %s", t.Name, t.New)
	case ActivityStarted:
		return fmt.Sprintf("[Steam] %s started playing %s", t.Name, t.New)
	case ActivityChanged:
		return fmt.Sprintf("[Steam] %s is now playing %s", t.Name, t.New)
	case ActivityStopped:
		return fmt.Sprintf("[Steam] %s stopped playing %s", t.Name, t.Old)
	default:
		return ""
	}
}

// logSummary is the entry preview used in RSS-NEW log lines.
func logSummary(feedTitle string, e fetch.Entry) string {
	summary := e.Summary
	if r := []rune(summary); len(r) > 50 {
		summary = string(r[:50])
	}
	return fmt.Sprintf("[%s] %s | %s...", feedTitle, e.Title, strings.TrimSpace(summary))
}
