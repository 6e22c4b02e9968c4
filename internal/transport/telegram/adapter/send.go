package adapter

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "castbot/internal/transport"
)

// textLimit stays under Telegram's 4096 so entity expansion never pushes a chunk over.
const textLimit = 4000

// SendText sends text, split into several messages when long. Markup rides on the first one.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	return a.sendChunks(ctx, to, splitTelegramText(text, textLimit, opt.ParseMode), opt, true)
}

// EditText replaces the message text; overflow is sent as follow-up messages.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	chunks := splitTelegramText(text, textLimit, opt.ParseMode)
	msg := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if _, err := a.bot.Edit(msg, chunks[0], sendOptions(opt, 0, true)); err != nil {
		return err
	}
	if len(chunks) == 1 {
		return nil
	}
	_, err := a.sendChunks(ctx, kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, chunks[1:], opt, false)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func (a *Adapter) sendChunks(ctx context.Context, to kit.ChatTarget, chunks []string, opt *kit.SendOptions, markup bool) (kit.MessageRef, error) {
	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOptions(opt, to.ThreadID, markup && i == 0))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func sendOptions(opt *kit.SendOptions, threadID int, markup bool) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
	}
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok && markup {
		so.ReplyMarkup = rm
	}
	return so
}

// splitTelegramText cuts s into chunks of at most limit runes. A cut prefers the last
// newline in the window when that keeps the chunk at least a third full, and in HTML
// mode it backs off to before an unclosed tag. Never returns an empty slice.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, tele.ModeHTML)

	var out []string
	for len(rs) > 0 {
		if len(rs) <= limit {
			out = append(out, string(rs))
			break
		}
		cut := limit
		if nl := lastIndex(rs[:limit], '\n'); nl >= limit/3 {
			cut = nl + 1
		}
		if html {
			if lt := lastIndex(rs[:cut], '<'); lt > 0 && lt > lastIndex(rs[:cut], '>') {
				cut = lt
			}
		}
		out = append(out, strings.TrimRight(string(rs[:cut]), "\n"))
		rs = rs[cut:]
		for len(rs) > 0 && rs[0] == '\n' {
			rs = rs[1:]
		}
	}
	return out
}

func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
