package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the delivery-history store.
//
// Driver values:
//   - "file": dependency-free append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and Open returns
// (nil, nil); callers treat a nil Store as "don't record".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryEntry records one outbound notification attempt.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At           time.Time `json:"at"`
	SubscriberID string    `json:"subscriber_id"`
	ChatID       int64     `json:"chat_id"`
	Kind         string    `json:"kind"` // "shift", "fallback", "broadcast"
	OK           bool      `json:"ok"`
	Error        string    `json:"error,omitempty"`
	TookMS       int64     `json:"took_ms"`
}
