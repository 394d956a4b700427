package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPanicIsRecoveredAndRecorded(t *testing.T) {
	s := New(context.Background())
	s.Go0("boom", func(context.Context) { panic("bad") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil {
		t.Fatal("expected panic to surface as supervisor error")
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Panics != 1 || snap[0].Running {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestErrorDoesNotCancelSiblings(t *testing.T) {
	s := New(context.Background())
	s.Go("fails", func(context.Context) error { return errors.New("nope") })

	var ticks atomic.Int32
	s.Go0("healthy", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
				ticks.Add(1)
			}
		}
	})

	time.Sleep(60 * time.Millisecond)
	if s.Context().Err() != nil {
		t.Fatal("sibling error cancelled the supervisor")
	}
	if ticks.Load() < 3 {
		t.Fatalf("healthy goroutine ticked %d times", ticks.Load())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err == nil || err.Error() != "fails: nope" {
		t.Fatalf("Stop err = %v", err)
	}
}

func TestGoRestartRestartsUntilCancelled(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("poll", func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Millisecond, 2*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("runs = %d, want >= 3", runs.Load())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
