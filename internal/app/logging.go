package app

import (
	"castbot/internal/config"
	kit "castbot/internal/transport"
	"castbot/pkg/logx"
)

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// newLogging builds the log service. Telegram output starts disabled and is
// enabled only after the chat target is set, so Apply does not warn about a
// missing target.
func newLogging(cfg *config.Config, set config.Settings, sender kit.Sender) (*logx.Service, logx.Logger) {
	base := logConfig(cfg)
	base.Telegram.Enabled = false
	svc, log := logx.New(base, sender)
	applyLogging(svc, cfg, set, sender != nil)
	return svc, log
}

// applyLogging updates the chat target first, then outputs and levels.
func applyLogging(svc *logx.Service, cfg *config.Config, set config.Settings, canSend bool) {
	svc.SetTelegramTarget(set.GroupLog, cfg.Logging.Telegram.ThreadID)
	lc := logConfig(cfg)
	if !canSend || set.GroupLog == 0 {
		lc.Telegram.Enabled = false
	}
	svc.Apply(lc)
}
