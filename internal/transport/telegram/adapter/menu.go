package adapter

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "castbot/internal/transport"
	"castbot/pkg/logx"
)

// Bot API limits for setMyCommands.
const (
	maxMenuCommands = 100
	maxMenuDesc     = 256
)

// UpdateMenuCommands publishes the command menu. Repeating the current menu is a no-op.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	list := menuCommands(cmds)
	key := menuKey(list)

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if key == a.menuKey {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(list); err != nil {
		return fmt.Errorf("telegram: set commands: %w", err)
	}
	a.menuKey = key
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

func menuCommands(cmds []kit.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			desc = c.Command
		}
		if r := []rune(desc); len(r) > maxMenuDesc {
			desc = string(r[:maxMenuDesc])
		}
		out = append(out, tele.Command{Text: c.Command, Description: desc})
		if len(out) == maxMenuCommands {
			break
		}
	}
	return out
}

func menuKey(list []tele.Command) string {
	var b strings.Builder
	for _, c := range list {
		b.WriteString(c.Text)
		b.WriteByte(0)
		b.WriteString(c.Description)
		b.WriteByte('\n')
	}
	return b.String()
}
