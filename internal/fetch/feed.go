package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// Feed is the parsed result of one feed fetch.
type Feed struct {
	Title   string
	Entries []Entry
}

// Entry is one feed item reduced to what the monitor needs.
type Entry struct {
	// Identity is the entry's first link, or its GUID when it has none.
	Identity  string
	Title     string
	Summary   string // plain text
	Published time.Time
}

// FeedFetcher downloads and parses RSS, Atom and JSON feeds.
type FeedFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewFeedFetcher(hc *http.Client, timeout time.Duration) *FeedFetcher {
	return &FeedFetcher{Client: hc, Timeout: timeout}
}

const feedAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8"

// Fetch performs one GET of url and parses it. Entries come back sorted by
// publish time, oldest first; entries without any identity are dropped.
func (f *FeedFetcher) Fetch(ctx context.Context, url string) (Feed, error) {
	body, err := get(ctx, f.Client, url, f.Timeout, feedAccept)
	if err != nil {
		return Feed{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return Feed{}, fmt.Errorf("parse %s: %w", url, err)
	}

	out := Feed{Title: strings.TrimSpace(parsed.Title)}
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		id := entryIdentity(it)
		if id == "" {
			continue
		}
		summary := it.Description
		if summary == "" {
			summary = it.Content
		}
		out.Entries = append(out.Entries, Entry{
			Identity:  id,
			Title:     strings.TrimSpace(it.Title),
			Summary:   StripHTML(summary),
			Published: entryTime(it),
		})
	}
	sort.SliceStable(out.Entries, func(i, j int) bool {
		return out.Entries[i].Published.Before(out.Entries[j].Published)
	})
	return out, nil
}

func entryIdentity(it *gofeed.Item) string {
	if l := strings.TrimSpace(it.Link); l != "" {
		return l
	}
	for _, l := range it.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return strings.TrimSpace(it.GUID)
}

func entryTime(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return *it.PublishedParsed
	case it.UpdatedParsed != nil:
		return *it.UpdatedParsed
	default:
		return time.Time{}
	}
}

// StripHTML returns the text content of an HTML fragment with whitespace
// runs (newlines included) collapsed to single spaces.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	text := fragment
	if strings.ContainsAny(fragment, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}
