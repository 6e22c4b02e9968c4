package config

import (
	"reflect"
	"strings"

	"castbot/pkg/logx"
)

// hotSections can be applied without a restart.
var hotSections = map[string]bool{"logging": true, "picker": true, "telegram.allowed_user_ids": true}

// SummarizeConfigChange returns the changed sections, safe log attrs (no tokens
// or passwords) and the subset of changed sections that need a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	mark := func(name string, fields ...logx.Field) {
		changed = append(changed, name)
		attrs = append(attrs, fields...)
		if !hotSections[name] {
			restart = append(restart, name)
		}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) {
		mark("telegram",
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}
	if !reflect.DeepEqual(ot.AllowedUserIDs, nt.AllowedUserIDs) {
		mark("telegram.allowed_user_ids", logx.Int("telegram.allowed_count", len(nt.AllowedUserIDs)))
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		mark("schedule", logx.String("schedule.path", newCfg.Schedule.Path))
	}
	if !reflect.DeepEqual(oldCfg.Probe, newCfg.Probe) {
		mark("probe")
	}
	if !reflect.DeepEqual(oldCfg.Picker, newCfg.Picker) {
		mark("picker", logx.Int("picker.folders", len(newCfg.Picker.Folders)))
	}
	if !reflect.DeepEqual(oldCfg.Orchestrator, newCfg.Orchestrator) {
		mark("orchestrator")
	}
	op, np := oldCfg.Player, newCfg.Player
	op.Password, np.Password = "", ""
	if !reflect.DeepEqual(op, np) || oldCfg.Player.Password != newCfg.Player.Password {
		mark("player", logx.String("player.driver", newCfg.Player.Driver))
	}
	if !reflect.DeepEqual(oldCfg.Status, newCfg.Status) {
		mark("status", logx.Bool("status.enabled", newCfg.Status.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage")
	}
	return changed, attrs, restart
}
