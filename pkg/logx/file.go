package logx

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// dailyFile is an append-only log file. In daily mode it reopens
// <dir>/<date>.log whenever the local date changes.
type dailyFile struct {
	mu    sync.Mutex
	cfg   FileConfig
	day   string
	f     *os.File
	nowFn func() time.Time
}

func openDailyFile(cfg FileConfig) (*dailyFile, error) {
	d := &dailyFile{cfg: cfg, nowFn: time.Now}
	if err := d.rotate(d.nowFn()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *dailyFile) path(now time.Time) string {
	p := strings.TrimSpace(d.cfg.Path)
	if d.cfg.Daily {
		if p == "" {
			p = "logs"
		}
		return filepath.Join(p, now.Format("2006-01-02")+".log")
	}
	if p == "" {
		p = "./hydrobot.log"
	}
	return p
}

func (d *dailyFile) rotate(now time.Time) error {
	path := d.path(now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if d.f != nil {
		_ = d.f.Close()
	}
	d.f = f
	d.day = now.Format("2006-01-02")
	return nil
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.Daily {
		now := d.nowFn()
		if now.Format("2006-01-02") != d.day {
			if err := d.rotate(now); err != nil {
				return 0, err
			}
		}
	}
	if d.f == nil {
		return len(p), nil
	}
	return d.f.Write(p)
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
