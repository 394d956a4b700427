package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hydrobot/pkg/logx"
)

// recentCap bounds the in-memory delivery history served by RecentDeliveries.
const recentCap = 256

// fileStore appends JSON Lines.
//
// Files:
//   - <prefix>.audit.jsonl      (append-only)
//   - <prefix>.deliveries.jsonl (append-only, tail replayed on open)
type fileStore struct {
	log logx.Logger

	mu           sync.Mutex
	auditFile    *os.File
	deliveryFile *os.File
	recent       []Delivery // ring, oldest first
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	deliveryPath := prefix + ".deliveries.jsonl"
	recent, err := replayDeliveries(deliveryPath)
	if err != nil && !os.IsNotExist(err) {
		log.Warn("delivery history replay failed", logx.Err(err))
	}
	df, err := os.OpenFile(deliveryPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	return &fileStore{log: log, auditFile: af, deliveryFile: df, recent: recent}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.deliveryFile != nil {
		err2 = s.deliveryFile.Close()
		s.deliveryFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) AppendDelivery(_ context.Context, d Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveryFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.deliveryFile).Encode(d); err != nil {
		return err
	}
	s.recent = pushRecent(s.recent, d)
	return nil
}

func (s *fileStore) RecentDeliveries(_ context.Context, limit int) ([]Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]Delivery, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

func pushRecent(ring []Delivery, d Delivery) []Delivery {
	ring = append(ring, d)
	if len(ring) > recentCap {
		ring = append(ring[:0], ring[len(ring)-recentCap:]...)
	}
	return ring
}

func replayDeliveries(path string) ([]Delivery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Delivery
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var d Delivery
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			continue
		}
		out = pushRecent(out, d)
	}
	return out, sc.Err()
}
