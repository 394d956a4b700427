package fanout

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hydrobot/internal/config"
	"hydrobot/internal/eventbus"
	"hydrobot/internal/storage"
	"hydrobot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	fail map[string]error
	sent map[string][]string
}

func newFakeSender() *fakeSender {
	return &fakeSender{fail: map[string]error{}, sent: map[string][]string{}}
}

func (f *fakeSender) SendGroupMessage(_ context.Context, groupID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[groupID]; err != nil {
		return err
	}
	f.sent[groupID] = append(f.sent[groupID], text)
	return nil
}

func (f *fakeSender) count(groupID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[groupID])
}

func TestSendIsolatesFailures(t *testing.T) {
	sender := newFakeSender()
	sender.fail["bad"] = errors.New("kicked from group")
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	f := New(Options{
		Destinations: func() []string { return []string{"a", "bad", "b"} },
		Sender:       sender,
		RatePerSec:   1000,
		Bus:          bus,
	}).WithSource("feed")

	res := f.Send(context.Background(), "hello")
	if res != (Result{Total: 3, Sent: 2, Failed: 1}) {
		t.Fatalf("result = %+v", res)
	}
	if sender.count("a") != 1 || sender.count("b") != 1 {
		t.Fatalf("healthy destinations missed the message: %v", sender.sent)
	}

	var failed int
	for i := 0; i < 3; i++ {
		ev := <-events
		if ev.Type == eventbus.TypeDeliveryFailed {
			failed++
			d := ev.Data.(DeliveryEvent)
			if d.GroupID != "bad" || d.Source != "feed" || d.ID == "" {
				t.Fatalf("failure event = %+v", d)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("failed events = %d", failed)
	}
}

func TestSendReadsDestinationsFresh(t *testing.T) {
	sender := newFakeSender()
	store := config.NewMemoryManager(&config.Config{Destinations: []string{"g1"}})
	f := New(Options{Destinations: store.Destinations, Sender: sender, RatePerSec: 1000})

	f.Send(context.Background(), "one")
	if err := store.AddDestination("g2"); err != nil {
		t.Fatal(err)
	}
	res := f.Send(context.Background(), "two")
	if res.Total != 2 || sender.count("g2") != 1 || sender.count("g1") != 2 {
		t.Fatalf("res = %+v sent = %v", res, sender.sent)
	}
}

func TestSendTimeoutBoundsSlowDestination(t *testing.T) {
	slow := senderFunc(func(ctx context.Context, groupID, _ string) error {
		if groupID == "slow" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	f := New(Options{
		Destinations: func() []string { return []string{"slow", "fast"} },
		Sender:       slow,
		RatePerSec:   1000,
		SendTimeout:  20 * time.Millisecond,
	})
	start := time.Now()
	res := f.Send(context.Background(), "x")
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("res = %+v", res)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("slow destination was not bounded")
	}
}

func TestSendRecordsDeliveries(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	sender := newFakeSender()
	sender.fail["x"] = errors.New("nope")

	f := New(Options{
		Destinations: func() []string { return []string{"x", "y"} },
		Sender:       sender,
		RatePerSec:   1000,
		Store:        st,
	}).WithSource("presence")
	f.Send(context.Background(), "msg")

	got, err := st.RecentDeliveries(context.Background(), 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("recent = %+v, %v", got, err)
	}
	if got[0].GroupID != "y" || !got[0].OK || got[1].OK || got[1].Error != "nope" || got[1].Source != "presence" {
		t.Fatalf("records = %+v", got)
	}
}

func TestSendWithoutDestinations(t *testing.T) {
	f := New(Options{Sender: newFakeSender()})
	if res := f.Send(context.Background(), "x"); res != (Result{}) {
		t.Fatalf("res = %+v", res)
	}
}

type senderFunc func(ctx context.Context, groupID, text string) error

func (f senderFunc) SendGroupMessage(ctx context.Context, groupID, text string) error {
	return f(ctx, groupID, text)
}
