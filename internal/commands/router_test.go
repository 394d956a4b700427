package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hydrobot/internal/config"
	"hydrobot/internal/monitor"
	"hydrobot/internal/storage"
	"hydrobot/internal/transport"
	"hydrobot/pkg/logx"
)

type fakeSender struct {
	mu      sync.Mutex
	replies []string
	groups  []string
}

func (f *fakeSender) SendGroupMessage(_ context.Context, groupID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, groupID)
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func newRouter(t *testing.T) (*Router, *config.Manager, *fakeSender) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	m := config.NewManager(cfgPath)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	s := &fakeSender{}
	return New(Deps{Config: m, Sender: s, Log: logx.Nop()}), m, s
}

func say(r *Router, text string) bool {
	return r.Handle(context.Background(), &transport.Message{GroupID: "-100", SenderID: "7", Text: text})
}

func TestIgnoresNonCommands(t *testing.T) {
	r, _, s := newRouter(t)
	for _, text := range []string{"", "   ", "good morning", "rssfeed add x"} {
		if say(r, text) {
			t.Fatalf("%q handled as command", text)
		}
	}
	if s.last() != "" {
		t.Fatalf("unexpected reply %q", s.last())
	}
}

func TestHelpVariants(t *testing.T) {
	r, _, s := newRouter(t)
	cases := map[string]string{
		"help":           "Bot commands",
		"帮助":             "Bot commands",
		"/help@hydrobot": "Bot commands",
		"rss":            "Feed commands",
		"rss help":       "Feed commands",
		"rss bogus":      "Feed commands",
		"steam":          "Steam commands",
		"hello":          "hi",
	}
	for text, want := range cases {
		if !say(r, text) || !strings.Contains(s.last(), want) {
			t.Fatalf("%q -> %q, want it to contain %q", text, s.last(), want)
		}
	}
}

func TestRSSCommands(t *testing.T) {
	r, m, s := newRouter(t)

	say(r, "rss add")
	if !strings.HasPrefix(s.last(), "❌ Usage") {
		t.Fatalf("reply = %q", s.last())
	}
	say(r, "rss add https://example.com/feed.xml")
	if !strings.HasPrefix(s.last(), "✅") {
		t.Fatalf("reply = %q", s.last())
	}
	say(r, "rss add https://example.com/feed.xml")
	if !strings.HasPrefix(s.last(), "ℹ️") {
		t.Fatalf("duplicate reply = %q", s.last())
	}
	say(r, "rss add not-a-url")
	if !strings.HasPrefix(s.last(), "❌") {
		t.Fatalf("invalid url reply = %q", s.last())
	}
	say(r, "RSS LIST")
	if !strings.Contains(s.last(), "1. https://example.com/feed.xml") {
		t.Fatalf("list reply = %q", s.last())
	}

	say(r, "rss add-group this")
	say(r, "rss add-group -200")
	if got := m.Get().Destinations; len(got) != 2 || got[0] != "-100" || got[1] != "-200" {
		t.Fatalf("destinations = %v", got)
	}

	reloaded, err := config.NewManager(m.Path()).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Feed.URLs) != 1 || len(reloaded.Destinations) != 2 {
		t.Fatalf("not persisted: %+v", reloaded)
	}
}

func TestSteamAndRegCommands(t *testing.T) {
	r, m, s := newRouter(t)

	say(r, "steam add abc")
	if s.last() != "❌ Invalid SteamID64" {
		t.Fatalf("reply = %q", s.last())
	}
	say(r, "steam add 76561197960287930")
	say(r, "steam set-key SECRET")
	if !strings.Contains(s.last(), "key updated") {
		t.Fatalf("reply = %q", s.last())
	}
	say(r, "steam list")
	if !strings.Contains(s.last(), "76561197960287930") {
		t.Fatalf("list reply = %q", s.last())
	}
	say(r, "reg this")
	say(r, "reg this")
	if !strings.HasPrefix(s.last(), "ℹ️") {
		t.Fatalf("duplicate reg reply = %q", s.last())
	}

	cfg := m.Get()
	if cfg.Presence.APIKey != "SECRET" || len(cfg.Presence.SubjectIDs) != 1 || len(cfg.TargetGroups) != 1 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestMutationsAreAudited(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	m := config.NewMemoryManager(&config.Config{})
	s := &fakeSender{}
	r := New(Deps{Config: m, Sender: s, Store: st})
	say(r, "reg -300")
	say(r, "reg -300")
	say(r, "steam set-key topsecret")

	b, err := os.ReadFile(filepath.Join(dir, "bot.audit.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("audit lines = %q", lines)
	}
	if !strings.Contains(lines[0], `"command":"reg"`) || !strings.Contains(lines[1], "already present") {
		t.Fatalf("audit = %q", lines)
	}
	if strings.Contains(string(b), "topsecret") {
		t.Fatal("api key leaked into the audit log")
	}
}

func TestStatusCommand(t *testing.T) {
	m := config.NewMemoryManager(&config.Config{
		Feed:         config.FeedConfig{URLs: []string{"https://example.com/a"}},
		Destinations: []string{"-1", "-2"},
	})
	s := &fakeSender{}
	r := New(Deps{Config: m, Sender: s, Status: func() Status {
		return Status{
			StartedAt: time.Now().Add(-time.Hour),
			Monitors: []monitor.Status{
				{Name: "feed", Phase: monitor.PhaseSleeping, Cycles: 1234, LastCycle: time.Now(), NextAt: time.Now().Add(time.Minute)},
				{Name: "presence", Phase: monitor.PhaseStopped, Exit: "presence.api_key is not set"},
			},
			SeenItems: 4200,
		}
	}})
	say(r, "status")
	out := s.last()
	for _, want := range []string{"feed: sleeping, 1,234 cycles", "presence: stopped", "api_key", "seen items: 4,200", "Destinations: 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status missing %q:\n%s", want, out)
		}
	}
}

func TestDispatchLoopHandlesUpdates(t *testing.T) {
	r, _, s := newRouter(t)
	updates := make(chan transport.Update, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()

	updates <- transport.Update{Kind: transport.UpdateGroupMessage, Message: &transport.Message{GroupID: "-9", Text: "hello"}}
	deadline := time.Now().Add(2 * time.Second)
	for s.last() != "hi" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if s.last() != "hi" {
		t.Fatalf("reply = %q", s.last())
	}
}
