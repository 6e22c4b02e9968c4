// Package picker is the chat front end that lets users browse the media
// folders and append picks to the schedule document.
package picker

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/schedule"
	"castbot/internal/transport/telegram/router"
	"castbot/pkg/logx"
	"castbot/pkg/tgui"
)

const (
	cbPrefix = "pk"

	// Telegram caps an inline keyboard at 100 buttons; two control rows are added.
	maxPageSize     = 90
	defaultPageSize = 50
	sessionTTL      = time.Hour
	nameRunes       = 60
)

// Scheduler is the write side of the schedule document.
type Scheduler interface {
	Append(ctx context.Context, req schedule.AppendRequest) (schedule.Entry, error)
	Read(ctx context.Context) ([]schedule.Entry, error)
}

type Estimator interface {
	Estimate(ctx context.Context, path string) time.Duration
}

type Options struct {
	Library   *Library
	Schedule  Scheduler
	Estimator Estimator
	Location  *time.Location
	PageSize  int
	RateLimit time.Duration
	Log       logx.Logger
	Now       func() time.Time
}

type Bot struct {
	lib   *Library
	sched Scheduler
	est   Estimator
	loc   *time.Location
	log   logx.Logger
	now   func() time.Time

	mu       sync.RWMutex
	pageSize int

	limiter  *startLimiter
	sessions *sessions
	tokens   *tgui.TokenStore
}

func New(opts Options) *Bot {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	b := &Bot{
		lib:      opts.Library,
		sched:    opts.Schedule,
		est:      opts.Estimator,
		loc:      opts.Location,
		log:      opts.Log,
		now:      opts.Now,
		limiter:  newStartLimiter(opts.RateLimit),
		sessions: newSessions(sessionTTL),
		tokens:   tgui.NewTokenStore(sessionTTL, 5000),
	}
	b.setPageSize(opts.PageSize)
	return b
}

// Reconfigure applies hot-reloadable settings.
func (b *Bot) Reconfigure(folders, exts []string, pageSize int, rateLimit time.Duration) {
	b.lib.Reconfigure(folders, exts)
	b.setPageSize(pageSize)
	b.limiter.SetInterval(rateLimit)
	b.log.Info("picker reconfigured", logx.Int("folders", len(folders)), logx.Int("page_size", b.size()), logx.Duration("rate_limit", rateLimit))
}

func (b *Bot) setPageSize(n int) {
	if n <= 0 {
		n = defaultPageSize
	}
	b.mu.Lock()
	b.pageSize = min(n, maxPageSize)
	b.mu.Unlock()
}

func (b *Bot) size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pageSize
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "browse media folders", Handle: b.handleStart},
		{Name: "search", Description: "find a file in every folder", Usage: "/search <name>", Handle: b.handleSearch},
		{Name: "queue", Description: "show the rest of today's schedule", Handle: b.handleQueue},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: cbPrefix, Action: "folder", Handle: b.onFolder},
		{Prefix: cbPrefix, Action: "page", Handle: b.onPage},
		{Prefix: cbPrefix, Action: "sort", Handle: b.onSort},
		{Prefix: cbPrefix, Action: "back", Handle: b.onBack},
		{Prefix: cbPrefix, Action: "noop", Handle: func(context.Context, *router.Request, string) error { return nil }},
		// probing a long file can take a while
		{Prefix: cbPrefix, Action: "file", Timeout: 30 * time.Second, Handle: b.onFile},
	}
}

func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	if wait := b.limiter.Wait(req.FromID, b.now()); wait > 0 {
		_, err := req.Reply(ctx, waitText(wait), nil)
		return err
	}
	_, err := b.folderMenu().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) handleSearch(ctx context.Context, req *router.Request) error {
	query := strings.TrimSpace(strings.Join(req.Args, " "))
	if query == "" {
		_, err := req.Reply(ctx, "Use: /search name", nil)
		return err
	}
	files, errs := b.lib.Search(query)
	for _, e := range errs {
		req.Logger.Warn("folder unreadable", logx.Err(e))
	}
	if len(files) == 0 {
		_, err := req.Reply(ctx, "❌ No matching files", nil)
		return err
	}
	sess := session{files: files, newestFirst: true}
	b.sessions.put(req.FromID, sess, b.now())
	_, err := b.filePage(sess).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) handleQueue(ctx context.Context, req *router.Request) error {
	entries, err := b.sched.Read(ctx)
	if errors.Is(err, schedule.ErrEmptyDocument) {
		entries, err = nil, nil
	}
	if err != nil {
		req.Logger.Warn("schedule read failed", logx.Err(err))
		_, err = req.Reply(ctx, "⚠️ Schedule unavailable, try again later", nil)
		return err
	}
	_, err = b.queueMessage(entries).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) onFolder(ctx context.Context, req *router.Request, payload string) error {
	idx, err := strconv.Atoi(payload)
	if err != nil {
		return err
	}
	folder, ok := b.lib.Folder(idx)
	if !ok {
		return b.folderMenu().Edit(ctx, req.Adapter, req.MessageRef)
	}
	files, err := b.lib.List(folder, true)
	if err != nil {
		req.Logger.Warn("folder unreadable", logx.String("folder", folder), logx.Err(err))
		return b.notice(ctx, req, "⚠️ Folder unavailable: "+filepath.Base(folder))
	}
	sess := session{folder: folder, files: files, newestFirst: true}
	b.sessions.put(req.FromID, sess, b.now())
	return b.filePage(sess).Edit(ctx, req.Adapter, req.MessageRef)
}

func (b *Bot) onPage(ctx context.Context, req *router.Request, payload string) error {
	page, err := strconv.Atoi(payload)
	if err != nil {
		return err
	}
	sess, ok := b.sessions.get(req.FromID, b.now())
	if !ok {
		return b.expired(ctx, req)
	}
	sess.page = tgui.Paginate(len(sess.files), page, b.size()).Index
	b.sessions.put(req.FromID, sess, b.now())
	return b.filePage(sess).Edit(ctx, req.Adapter, req.MessageRef)
}

func (b *Bot) onSort(ctx context.Context, req *router.Request, payload string) error {
	sess, ok := b.sessions.get(req.FromID, b.now())
	if !ok {
		return b.expired(ctx, req)
	}
	newest := payload != "old"
	if sess.folder != "" {
		files, err := b.lib.List(sess.folder, newest)
		if err != nil {
			req.Logger.Warn("folder unreadable", logx.String("folder", sess.folder), logx.Err(err))
			return b.notice(ctx, req, "⚠️ Folder unavailable: "+filepath.Base(sess.folder))
		}
		sess.files = files
	} else {
		files := append([]File(nil), sess.files...)
		SortByModTime(files, newest)
		sess.files = files
	}
	sess.newestFirst = newest
	sess.page = 0
	b.sessions.put(req.FromID, sess, b.now())
	return b.filePage(sess).Edit(ctx, req.Adapter, req.MessageRef)
}

func (b *Bot) onBack(ctx context.Context, req *router.Request, _ string) error {
	return b.folderMenu().Edit(ctx, req.Adapter, req.MessageRef)
}

func (b *Bot) onFile(ctx context.Context, req *router.Request, payload string) error {
	path, ok := b.tokens.Get(payload)
	if !ok {
		return b.expired(ctx, req)
	}
	user := req.FromName
	if user == "" {
		user = strconv.FormatInt(req.FromID, 10)
	}

	dur := b.est.Estimate(ctx, path)
	e, err := b.sched.Append(ctx, schedule.AppendRequest{Path: path, User: user, Duration: dur})
	if err != nil {
		req.Logger.Error("schedule append failed", logx.String("path", path), logx.Err(err))
		return b.notice(ctx, req, "❌ Could not schedule "+filepath.Base(path)+", try again later")
	}
	req.Logger.Info("entry scheduled",
		logx.Int("id", e.ID), logx.String("title", e.Title), logx.String("user", e.User),
		logx.String("start", e.Start.Format(schedule.Layout)), logx.Duration("duration", e.Duration))
	return b.confirmation(e).Edit(ctx, req.Adapter, req.MessageRef)
}

func (b *Bot) expired(ctx context.Context, req *router.Request) error {
	req.Logger.Debug("picker selection expired")
	return b.notice(ctx, req, "⌛ This list has expired, send /start again")
}

// notice replaces the keyboard message with plain text.
func (b *Bot) notice(ctx context.Context, req *router.Request, text string) error {
	return tgui.New().Line(text).Build().Edit(ctx, req.Adapter, req.MessageRef)
}

func (b *Bot) folderMenu() tgui.Message {
	kb := tgui.NewInline()
	for i, f := range b.lib.Folders() {
		kb.Row(tgui.Btn("📁 "+filepath.Base(f), tgui.Data(cbPrefix, "folder", strconv.Itoa(i))))
	}
	return tgui.New().Line("📂 Select Folder:").Inline(kb).Build()
}

func (b *Bot) filePage(sess session) tgui.Message {
	p := tgui.Paginate(len(sess.files), sess.page, b.size())
	kb := tgui.NewInline()
	for _, f := range sess.files[p.From:p.To] {
		kb.Row(tgui.Btn(tgui.TruncRunes(f.Name, nameRunes), tgui.Data(cbPrefix, "file", b.tokens.Put(f.Path))))
	}

	var nav []tele.Btn
	if p.HasPrev {
		nav = append(nav, tgui.Btn("⬅ Prev", tgui.Data(cbPrefix, "page", strconv.Itoa(p.Index-1))))
	}
	nav = append(nav, tgui.Btn(p.Label(), tgui.Data(cbPrefix, "noop", "")))
	if p.HasNext {
		nav = append(nav, tgui.Btn("Next ➡", tgui.Data(cbPrefix, "page", strconv.Itoa(p.Index+1))))
	}
	kb.Row(nav...)
	kb.Row(
		tgui.Btn("⬅ Back to Folder", tgui.Data(cbPrefix, "back", "")),
		tgui.Btn("🔄 New", tgui.Data(cbPrefix, "sort", "new")),
		tgui.Btn("⏳ Old", tgui.Data(cbPrefix, "sort", "old")),
	)
	return tgui.New().Line("📂 Select File").Inline(kb).Build()
}

func (b *Bot) confirmation(e schedule.Entry) tgui.Message {
	return tgui.New().
		Line("✅ Scheduled").
		RawLine("🎬 " + tgui.B(e.Title).String()).
		Line("⏳Start Time " + e.Start.In(b.loc).Format(schedule.Layout) + " → " + e.End.In(b.loc).Format(schedule.Layout)).
		Build()
}

func (b *Bot) queueMessage(entries []schedule.Entry) tgui.Message {
	now := b.now().In(b.loc)
	y, m, d := now.Date()
	mb := tgui.New().Title("🗓", "Today's queue")
	n := 0
	for _, e := range entries {
		st := e.Start.In(b.loc)
		if !st.After(now) {
			continue
		}
		if sy, sm, sd := st.Date(); sy != y || sm != m || sd != d {
			continue
		}
		mb.RawLine(tgui.Code(st.Format("03:04 PM")).String() + " " + tgui.Esc(e.Title).String() + " · " + tgui.I(e.User).String())
		n++
	}
	if n == 0 {
		mb.Line("Nothing else is scheduled today.")
	}
	return mb.Build()
}
