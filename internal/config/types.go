package config

import (
	"errors"
	"strings"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Registry  RegistryConfig  `json:"registry"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Ops       OpsConfig       `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// OwnerUserIDs may use hidden commands like /pingall.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type RegistryConfig struct {
	// Path of the subscriber JSON document.
	Path string `json:"path"`
}

// SchedulerConfig controls trigger expansion and firing behavior.
//
// All durations are Go duration strings (e.g. "30s", "5m").
type SchedulerConfig struct {
	// Timezone is the IANA zone all triggers fire in, e.g.
	// "America/Costa_Rica". Empty means the host's local zone.
	Timezone  string `json:"timezone,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`

	// OffsetMinutes is how long before the top of the hour reminders
	// fire. Default 5 (i.e. HH:55).
	OffsetMinutes int `json:"offset_minutes,omitempty"`

	// FallbackHour is when the daily nudge for unconfigured subscribers
	// fires. Pointer so an explicit 0 (midnight) differs from omitted.
	FallbackHour *int `json:"fallback_hour,omitempty"`

	// MisfireGrace bounds how late a firing may still be delivered.
	MisfireGrace string `json:"misfire_grace,omitempty"`

	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
}

type NotifierConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional delivery-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./hermes.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// OpsConfig controls the operational HTTP server (/healthz, /metrics,
// /debug/pprof). Prefer binding to localhost.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:6060"
}

// Validate checks the fields the process cannot start without.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is empty")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Registry.Path) == "" {
		return errors.New("registry.path is required")
	}
	if cfg.Storage != nil {
		d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
		if d != "" && d != "none" && strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required when storage is enabled")
		}
	}
	return nil
}
