package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hydrobot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, nopLogger())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
}

func TestOpenRejectsUnknownDriverAndMissingPath(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, nopLogger()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, nopLogger()); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestDriversRoundTrip(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data", "hydrobot.db")
			st, err := Open(Config{Driver: driver, Path: path}, nopLogger())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			ctx := context.Background()
			if err := st.AppendAudit(ctx, AuditEntry{GroupID: "-1", SenderID: "7", Command: "rss add", Target: "https://example.com/feed"}); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
			base := time.Now().Add(-time.Minute)
			for i, id := range []string{"a", "b", "c"} {
				d := Delivery{ID: id, At: base.Add(time.Duration(i) * time.Second), Source: "feed", GroupID: "-1", OK: id != "b"}
				if id == "b" {
					d.Error = "blocked"
				}
				if err := st.AppendDelivery(ctx, d); err != nil {
					t.Fatalf("AppendDelivery: %v", err)
				}
			}

			got, err := st.RecentDeliveries(ctx, 2)
			if err != nil {
				t.Fatalf("RecentDeliveries: %v", err)
			}
			if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
				t.Fatalf("recent = %+v", got)
			}
			if got[1].OK || got[1].Error != "blocked" {
				t.Fatalf("failed delivery not preserved: %+v", got[1])
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}
}

func TestFileStoreReplaysHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hydrobot.json")
	st, err := Open(Config{Driver: "file", Path: path}, nopLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = st.AppendDelivery(ctx, Delivery{ID: "one", Source: "presence", GroupID: "g", OK: true})
	_ = st.Close()

	if err := st.AppendDelivery(ctx, Delivery{ID: "late"}); err != ErrClosed {
		t.Fatalf("append after close err = %v", err)
	}

	st, err = Open(Config{Driver: "file", Path: path}, nopLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, _ := st.RecentDeliveries(ctx, 0)
	if len(got) != 1 || got[0].ID != "one" {
		t.Fatalf("replayed = %+v", got)
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(path), "hydrobot.deliveries.jsonl"))
	if err != nil || !strings.Contains(string(b), `"id":"one"`) {
		t.Fatalf("deliveries file = %q, %v", b, err)
	}
}

func nopLogger() logx.Logger { return logx.Nop() }
