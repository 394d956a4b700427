package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"hydrobot/internal/config"
	"hydrobot/internal/transport"
)

type sent struct {
	group string
	text  string
}

// fakeAdapter records outgoing messages and lets the test inject updates.
type fakeAdapter struct {
	mu    sync.Mutex
	sent  []sent
	out   chan<- transport.Update
	ready chan struct{}
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{ready: make(chan struct{})} }

func (f *fakeAdapter) SendGroupMessage(_ context.Context, groupID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{group: groupID, text: text})
	return nil
}

func (f *fakeAdapter) Start(_ context.Context, out chan<- transport.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	close(f.ready)
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error { return nil }
func (f *fakeAdapter) SelfID() string             { return "hydrobot" }

func (f *fakeAdapter) deliver(groupID, text string) {
	<-f.ready
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	out <- transport.Update{Kind: transport.UpdateGroupMessage, Message: &transport.Message{
		ID: 1, GroupID: groupID, SenderID: "7", SenderNickname: "tester", Text: text,
	}}
}

func (f *fakeAdapter) messages(groupID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.group == groupID {
			out = append(out, s.text)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func containsText(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func startApp(t *testing.T, cfg *config.Config) (*App, *fakeAdapter, *config.Manager) {
	t.Helper()
	cfgm := config.NewMemoryManager(cfg)
	ad := newFakeAdapter()
	a, err := NewWithAdapter(cfgm, ad)
	if err != nil {
		t.Fatalf("NewWithAdapter: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, "test cleanup")
	})
	return a, ad, cfgm
}

func TestStartAndStopAnnounceToAdminGroup(t *testing.T) {
	a, ad, _ := startApp(t, &config.Config{Telegram: config.TelegramConfig{AdminGroup: "-100"}})

	if !containsText(ad.messages("-100"), "started") {
		t.Fatalf("no startup announcement: %v", ad.messages("-100"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, "test"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !containsText(ad.messages("-100"), "shutting down") {
		t.Fatalf("no shutdown announcement: %v", ad.messages("-100"))
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("app context still alive after Stop")
	}

	// A second Stop is a no-op.
	before := len(ad.messages("-100"))
	_ = a.Stop(ctx, "again")
	if got := len(ad.messages("-100")); got != before {
		t.Fatalf("second Stop sent %d more messages", got-before)
	}
}

func TestCommandsAreDispatched(t *testing.T) {
	_, ad, cfgm := startApp(t, &config.Config{})

	ad.deliver("-200", "/rss add https://example.com/feed.xml")
	waitFor(t, "rss add reply", func() bool { return len(ad.messages("-200")) > 0 })

	if urls := cfgm.Get().Feed.URLs; len(urls) != 1 || urls[0] != "https://example.com/feed.xml" {
		t.Fatalf("feed urls = %v", urls)
	}
}

func TestPresenceMonitorStartsWhenKeyIsSet(t *testing.T) {
	a, ad, _ := startApp(t, &config.Config{})

	// Without a key the presence loop exits right away and the feed loop keeps running.
	waitFor(t, "presence loop to exit", func() bool {
		st := a.presenceLoop.Status()
		return st.Exit != "" && !a.presenceLoop.Running()
	})
	if !a.feedLoop.Running() {
		t.Fatal("feed loop stopped with the presence loop")
	}

	ad.deliver("-300", "/steam set-key secret")
	waitFor(t, "presence loop restart", a.presenceLoop.Running)
	waitFor(t, "presence exit reason cleared", func() bool { return a.presenceLoop.Status().Exit == "" })

	st := a.status()
	if len(st.Monitors) != 2 || len(st.Goroutines) == 0 {
		t.Fatalf("status = %+v", st)
	}
}

func TestNotifierChangeIsApplied(t *testing.T) {
	a, _, cfgm := startApp(t, &config.Config{})

	if _, err := cfgm.Update(func(cfg *config.Config) error {
		cfg.Notifier.RatePerSec = 1
		cfg.Notifier.SendTimeout = "2s"
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	waitFor(t, "send timeout applied", func() bool { return a.fanout.SendTimeout() == 2*time.Second })
}
