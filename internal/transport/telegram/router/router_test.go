package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	kit "castbot/internal/transport"
	"castbot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	texts    []string
	answers  []string
	menu     []kit.BotCommand
	menuDone chan struct{}
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{menuDone: make(chan struct{}, 1)} }

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	f.answers = append(f.answers, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	f.menuDone <- struct{}{}
	return nil
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		name string
		args []string
		ok   bool
	}{
		{"/start", "start", nil, true},
		{"  /Search@castbot holiday special ", "search", []string{"holiday", "special"}, true},
		{"hello", "", nil, false},
		{"/", "", nil, false},
		{"/@bot", "", nil, false},
	}
	for _, tt := range tests {
		name, args, ok := parseCommand(tt.in)
		if ok != tt.ok || name != tt.name || strings.Join(args, "|") != strings.Join(tt.args, "|") {
			t.Fatalf("parseCommand(%q)=%q %v %v", tt.in, name, args, ok)
		}
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"/Start", "start"},
		{"play-now", "play_now"},
		{"  two  words ", "two_words"},
		{"__x__", "x"},
		{"émoji😀", "moji"},
		{strings.Repeat("a", 40), strings.Repeat("a", 32)},
	}
	for _, tt := range tests {
		if got := sanitizeTelegramCommand(tt.in); got != tt.want {
			t.Fatalf("sanitize(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetRegistryAddsHelpAndMenu(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	r := New(logx.Nop(), ad)
	noop := func(context.Context, *Request) error { return nil }
	r.SetRegistry([]Command{
		{Name: "start", Description: "browse", Handle: noop},
		{Name: "search", Description: "find", Usage: "/search <name>", Handle: noop},
		{Name: "", Handle: noop},
		{Name: "nohandler"},
	}, nil)

	select {
	case <-ad.menuDone:
	case <-time.After(time.Second):
		t.Fatalf("menu was not updated")
	}
	ad.mu.Lock()
	menu := ad.menu
	ad.mu.Unlock()
	var names []string
	for _, c := range menu {
		names = append(names, c.Command)
	}
	if got := strings.Join(names, ","); got != "help,search,start" {
		t.Fatalf("menu=%s", got)
	}

	want := "Commands:\n/help - show available commands\n/search <name> - find\n/start - browse"
	if got := r.helpText(); got != want {
		t.Fatalf("help=%q", got)
	}
}

func TestDispatchRoutesCommandsAndCallbacks(t *testing.T) {
	defer goleak.VerifyNone(t)

	ad := newFakeAdapter()
	r := New(logx.Nop(), ad)

	var mu sync.Mutex
	var got []string
	note := func(s string) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}
	r.SetRegistry(
		[]Command{{Name: "search", Handle: func(_ context.Context, req *Request) error {
			note("search:" + strings.Join(req.Args, " ") + ":" + req.FromName)
			return nil
		}}},
		[]CallbackRoute{{Prefix: "pk", Action: "file", Handle: func(_ context.Context, req *Request, payload string) error {
			note("file:" + payload + ":" + req.CallbackID)
			return nil
		}}},
	)
	<-ad.menuDone
	r.SetAllowed([]int64{7})

	updates := make(chan kit.Update, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.DispatchLoop(ctx, updates) }()

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: 7, FromName: "Alice", Text: "/search news at 8"}}
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", ChatID: 1, FromID: 7, Data: "pk:file:~abc:def"}}
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: 9, Text: "/search x"}}
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: 7, Text: "/nope"}}
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb2", ChatID: 1, FromID: 9, Data: "pk:file:x"}}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		texts := ad.sentTexts()
		ad.mu.Lock()
		answered := len(ad.answers) == 2
		ad.mu.Unlock()
		if n == 2 && len(texts) == 2 && answered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("handled=%v texts=%v", got, texts)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(got, "\n")
	if !strings.Contains(joined, "search:news at 8:Alice") || !strings.Contains(joined, "file:~abc:def:cb1") {
		t.Fatalf("handled=%v", got)
	}
	texts := strings.Join(ad.sentTexts(), "\n")
	if !strings.Contains(texts, "unauthorized") || !strings.Contains(texts, "unknown command, try /help") {
		t.Fatalf("texts=%q", texts)
	}
	ad.mu.Lock()
	answers := strings.Join(ad.answers, ",")
	ad.mu.Unlock()
	if !strings.Contains(answers, "forbidden") {
		t.Fatalf("answers=%q", answers)
	}
}
