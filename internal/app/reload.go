package app

import (
	"context"
	"strings"

	"castbot/internal/config"
	"castbot/pkg/logx"
)

// reloadLoop feeds committed configs to apply until ctx is done. Bursts are
// coalesced to the latest config.
func reloadLoop(ctx context.Context, cfgm *config.Manager, log logx.Logger, apply func(ctx context.Context, cfg *config.Config)) {
	sub := cfgm.Subscribe(8)
	defer cfgm.Unsubscribe(sub)

	lastApplied := cfgm.Get()
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			newCfg = c
		}
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					newCfg = newer
				}
			default:
				break drain
			}
		}

		sections, attrs, restart := config.SummarizeConfigChange(lastApplied, newCfg)
		lastApplied = newCfg
		if len(sections) == 0 {
			log.Debug("config reload received, but no effective changes detected")
			continue
		}
		if len(restart) > 0 {
			log.Warn("config sections changed; restart required for them to take effect",
				logx.String("sections", strings.Join(restart, ",")))
		}

		apply(ctx, newCfg)

		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		log.Info("config reloaded", fields...)
	}
}
