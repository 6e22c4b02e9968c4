package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "castbot/internal/runtime/supervisor"
	kit "castbot/internal/transport"
	"castbot/pkg/logx"
)

type Command struct {
	Name        string // without the leading slash
	Description string
	Usage       string
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline-button data of the form "prefix:action[:payload]".
type CallbackRoute struct {
	Prefix  string
	Action  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	FromName string
	Command  string
	Args     []string
	Payload  string
	ReqID    string

	// Set for callbacks: the message that carried the button.
	CallbackID string
	MessageRef kit.MessageRef

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the request's chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// Router parses updates into commands and callbacks and runs them on a bounded worker pool.
type Router struct {
	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]map[string]CallbackRoute
	allowed   map[int64]struct{} // empty allows everyone

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		commands:  map[string]Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		allowed:   map[int64]struct{}{},
		log:       log,
		adapter:   adapter,
		jobs:      make(chan func(), 256),
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (m *Router) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

// SetAllowed restricts every command and callback to ids. Safe during hot-reload.
func (m *Router) SetAllowed(ids []int64) {
	allowed := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	m.mu.Lock()
	m.allowed = allowed
	m.mu.Unlock()
}

func (m *Router) isAllowed(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.allowed) == 0 {
		return true
	}
	_, ok := m.allowed[id]
	return ok
}

// SetRegistry replaces the routes. A /help command is always added.
func (m *Router) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	byName := map[string]Command{}
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
	}
	if _, ok := byName["help"]; !ok {
		byName["help"] = Command{
			Name:        "help",
			Description: "show available commands",
			Handle: func(ctx context.Context, req *Request) error {
				_, err := req.Reply(ctx, m.helpText(), &kit.SendOptions{DisablePreview: true})
				return err
			},
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		p := strings.TrimSpace(r.Prefix)
		a := strings.TrimSpace(r.Action)
		if p == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[p] == nil {
			cb[p] = map[string]CallbackRoute{}
		}
		cb[p][a] = r
	}

	m.mu.Lock()
	m.commands = byName
	m.callbacks = cb
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenu(byName)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Debug("menu update failed", logx.Err(err))
			}
		}()
	}
}

func (m *Router) helpText() string {
	m.mu.RLock()
	cmds := make([]Command, 0, len(m.commands))
	for _, c := range m.commands {
		cmds = append(cmds, c)
	}
	m.mu.RUnlock()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range cmds {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString(usage)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (m *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)

	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Router) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (m *Router) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue reports false when the queue is full or already closed.
func (m *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd, found := m.commands[name]
	m.mu.RUnlock()
	if !found {
		_, _ = m.adapter.SendText(ctx, chat, "unknown command, try /help", nil)
		return
	}
	if !m.isAllowed(msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, "unauthorized", nil)
		return
	}

	req := m.newRequest(up, chat, msg.FromID, msg.FromName, cmd.Name)
	req.Args = args

	final := Chain(cmd.Handle, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(cmd.Timeout))
	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "busy, try again", nil)
	}
}

func (m *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		return
	}
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	m.mu.RLock()
	route, ok := m.callbacks[parts[0]][parts[1]]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if !m.isAllowed(cb.FromID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := m.newRequest(up, chat, cb.FromID, cb.FromName, "cb:"+parts[0]+":"+parts[1])
	req.Payload = payload
	req.CallbackID = cb.ID
	req.MessageRef = kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}

	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(h, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(route.Timeout))

	if !m.tryEnqueue(func() {
		_ = final(ctx, req)
		// stops the client's loading spinner
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (m *Router) newRequest(up kit.Update, chat kit.ChatTarget, fromID int64, fromName, cmd string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:   up,
		Chat:     chat,
		FromID:   fromID,
		FromName: fromName,
		Command:  cmd,
		ReqID:    rid,
		Adapter:  m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", cmd),
		),
	}
}

// parseCommand splits "/name@bot arg1 arg2" into its name and arguments.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}
