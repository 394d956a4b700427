package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config selects the driver.
//
// Driver values:
//   - "file": JSON Lines files derived from Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records a command that mutated configuration.
type AuditEntry struct {
	At       time.Time `json:"at"`
	GroupID  string    `json:"group_id"`
	SenderID string    `json:"sender_id"`
	Command  string    `json:"command"`
	Target   string    `json:"target,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Delivery records one notification attempt to one destination.
type Delivery struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Source  string    `json:"source"` // monitor name
	GroupID string    `json:"group_id"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}

// Store is the persistence API used by the commands and the fanout.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	AppendDelivery(ctx context.Context, d Delivery) error
	// RecentDeliveries returns up to limit records, newest first.
	RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	Close() error
}
