package storage

import (
	"context"
	"fmt"
	"strings"

	"castbot/pkg/logx"
)

// Store is the play history.
type Store interface {
	AppendPlay(ctx context.Context, p Play) error
	// RecentPlays returns up to limit records, newest first.
	RecentPlays(ctx context.Context, limit int) ([]Play, error)
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
