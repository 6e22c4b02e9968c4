package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 keeps the driver default
}

// Outcome of one dispatch.
const (
	OutcomePlayed    = "played"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

// Play records one dispatch. Keep it compact and schema-stable.
type Play struct {
	At      time.Time `json:"at"`
	FireAt  time.Time `json:"fire_at"`
	EntryID int       `json:"entry_id,omitempty"`
	Title   string    `json:"title"`
	Path    string    `json:"path"`
	User    string    `json:"user"`
	Outcome string    `json:"outcome"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}
