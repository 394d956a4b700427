package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example News</title>
<item><title>Second</title><link>https://example.com/2</link>
<description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;
&lt;p&gt;again&lt;/p&gt;</description>
<pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate></item>
<item><title>First</title><link>https://example.com/1</link>
<pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate></item>
<item><title>Guid only</title><guid isPermaLink="false">urn:item:3</guid>
<pubDate>Wed, 03 Jan 2024 10:00:00 GMT</pubDate></item>
</channel></rss>`

func compress(t *testing.T, enc string, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch enc {
	case "gzip":
		w := gzip.NewWriter(&buf)
		_, _ = w.Write([]byte(data))
		_ = w.Close()
	case "deflate":
		w := zlib.NewWriter(&buf)
		_, _ = w.Write([]byte(data))
		_ = w.Close()
	default:
		buf.WriteString(data)
	}
	return buf.Bytes()
}

func TestFeedFetchDecodesAndParses(t *testing.T) {
	for _, enc := range []string{"", "gzip", "deflate"} {
		t.Run("encoding="+enc, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
					t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
				}
				if enc != "" {
					w.Header().Set("Content-Encoding", enc)
				}
				w.Header().Set("Content-Type", "application/rss+xml")
				_, _ = w.Write(compress(t, enc, rssBody))
			}))
			defer srv.Close()

			feed, err := NewFeedFetcher(NewHTTPClient(), time.Second).Fetch(context.Background(), srv.URL)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if feed.Title != "Example News" {
				t.Fatalf("title = %q", feed.Title)
			}
			var ids []string
			for _, e := range feed.Entries {
				ids = append(ids, e.Identity)
			}
			if got := strings.Join(ids, " "); got != "https://example.com/1 https://example.com/2 urn:item:3" {
				t.Fatalf("identities in order = %q", got)
			}
			if s := feed.Entries[1].Summary; s != "Hello world again" {
				t.Fatalf("summary = %q", s)
			}
		})
	}
}

func TestFeedFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := NewFeedFetcher(nil, time.Second).Fetch(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusGone {
		t.Fatalf("err = %v, want StatusError 410", err)
	}
	if !strings.Contains(err.Error(), srv.URL) {
		t.Fatalf("error does not name the source: %v", err)
	}
}

func TestFeedFetchHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if _, err := NewFeedFetcher(NewHTTPClient(), time.Minute).Fetch(ctx, srv.URL); err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("fetch did not abort on cancellation")
	}
}

func TestStripHTML(t *testing.T) {
	cases := map[string]string{
		"":                             "",
		"plain text":                   "plain text",
		"<p>a</p>\n\n<p>b &amp; c</p>": "a b & c",
		"line1\r\nline2":               "line1 line2",
	}
	for in, want := range cases {
		if got := StripHTML(in); got != want {
			t.Errorf("StripHTML(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSteamFetchBatchesAndMapsStates(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ISteamUser/GetPlayerSummaries/v0002/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		ids := strings.Split(r.URL.Query().Get("steamids"), ",")
		mu.Lock()
		batches = append(batches, len(ids))
		mu.Unlock()

		var resp playerSummariesResponse
		for _, id := range ids {
			resp.Response.Players = append(resp.Response.Players, PlayerSummary{SteamID: id, Name: "p" + id, State: 1, Game: "GameX"})
		}
		w.Header().Set("Content-Encoding", "gzip")
		b, _ := json.Marshal(resp)
		_, _ = w.Write(compress(t, "gzip", string(b)))
	}))
	defer srv.Close()

	ids := make([]uint64, 150)
	for i := range ids {
		ids[i] = uint64(76561197960265728 + i)
	}
	players, err := NewSteamFetcher(NewHTTPClient(), srv.URL, time.Second).Fetch(context.Background(), "k", ids)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(players) != 150 {
		t.Fatalf("players = %d", len(players))
	}
	if len(batches) != 2 || batches[0] != 100 || batches[1] != 50 {
		t.Fatalf("batches = %v", batches)
	}
	if players[0].Status() != "Online" || players[0].Game != "GameX" {
		t.Fatalf("player = %+v", players[0])
	}
}

func TestSteamFetchErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewSteamFetcher(nil, srv.URL, time.Second).Fetch(context.Background(), "supersecret", []uint64{1})
	if err == nil || strings.Contains(err.Error(), "supersecret") {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewSteamFetcher(nil, srv.URL, time.Second).Fetch(context.Background(), "", []uint64{1}); err == nil {
		t.Fatal("expected empty key error")
	}
}

func TestPersonaStateLabel(t *testing.T) {
	want := []string{"Offline", "Online", "Busy", "Away", "Snooze", "LookingToTrade", "LookingToPlay"}
	for i, w := range want {
		if got := PersonaStateLabel(i); got != w {
			t.Errorf("PersonaStateLabel(%d) = %q, want %q", i, got, w)
		}
	}
	if got := PersonaStateLabel(9); got != "Unknown(9)" {
		t.Errorf("PersonaStateLabel(9) = %q", got)
	}
}
