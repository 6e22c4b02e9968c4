package adapter

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "castbot/internal/transport"
)

func messageUpdate(m *tele.Message) (kit.Update, bool) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return kit.Update{}, false
	}
	return kit.Update{
		Kind: kit.UpdateMessage,
		Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ThreadID:     m.ThreadID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			FromName:     fullName(m.Sender),
			Text:         m.Text,
			IsGroup:      m.Chat.Type != tele.ChatPrivate,
		},
	}, true
}

// callbackUpdate needs the originating message; inline-mode callbacks have none and are ignored.
func callbackUpdate(cb *tele.Callback) (kit.Update, bool) {
	if cb == nil || cb.Sender == nil || cb.Message == nil || cb.Message.Chat == nil {
		return kit.Update{}, false
	}
	m := cb.Message
	return kit.Update{
		Kind: kit.UpdateCallback,
		Callback: &kit.Callback{
			ID:        cb.ID,
			ChatID:    m.Chat.ID,
			ThreadID:  m.ThreadID,
			FromID:    cb.Sender.ID,
			FromName:  fullName(cb.Sender),
			MessageID: m.ID,
			Data:      cb.Data,
		},
	}, true
}

// fullName is "First Last", else the username, else the numeric id.
func fullName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if name := strings.Join(strings.Fields(u.FirstName+" "+u.LastName), " "); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	if u.ID != 0 {
		return strconv.FormatInt(u.ID, 10)
	}
	return ""
}
