package app

import (
	"context"
	"time"

	"castbot/internal/eventbus"
	"castbot/internal/orchestrator"
	kit "castbot/internal/transport"
	"castbot/pkg/logx"
	"castbot/pkg/tgui"
)

const announceTimeout = 10 * time.Second

// announce posts a chat message for every playback start until ctx is done.
func announce(ctx context.Context, events <-chan eventbus.Event, sender kit.Sender, chat int64, loc *time.Location, log logx.Logger) {
	to := kit.ChatTarget{ChatID: chat}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != eventbus.TypePlaybackStarted {
				continue
			}
			np, ok := e.Data.(orchestrator.NowPlaying)
			if !ok {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, announceTimeout)
			if _, err := announcement(np, loc).Send(sctx, sender, to); err != nil {
				log.Warn("announcement failed", logx.String("title", np.Title), logx.Err(err))
			}
			cancel()
		}
	}
}

func announcement(np orchestrator.NowPlaying, loc *time.Location) tgui.Message {
	b := tgui.New().
		Title("▶️", "Now playing").
		RawLine("🎬 " + tgui.B(np.Title).String())
	if np.User != "" {
		b.RawLine("👤 " + tgui.I(np.User).String())
	}
	return b.Line("🕒 " + np.StartedAt.In(loc).Format("03:04:05 PM")).Build()
}
