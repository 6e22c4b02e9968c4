package schedule

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"castbot/pkg/logx"
)

var (
	ErrEmptyDocument = errors.New("schedule document is empty")
	ErrCorrupt       = errors.New("schedule document is corrupt")
)

// Options configures a Store. Zero values take the documented defaults.
type Options struct {
	Path     string
	Location *time.Location // default time.Local
	Grace    time.Duration  // default 30s

	ReadRetries int           // default 5
	ReadBackoff time.Duration // default 200ms

	Log logx.Logger
	Now func() time.Time
}

// Store is the schedule document on disk. Writes replace the whole file atomically;
// readers in other processes only ever see a complete document.
type Store struct {
	path    string
	loc     *time.Location
	grace   time.Duration
	retries int
	backoff time.Duration
	log     logx.Logger
	now     func() time.Time

	mu sync.Mutex // serializes Append within this process
}

func NewStore(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("schedule: path is empty")
	}
	s := &Store{
		path:    opts.Path,
		loc:     opts.Location,
		grace:   opts.Grace,
		retries: opts.ReadRetries,
		backoff: opts.ReadBackoff,
		log:     opts.Log,
		now:     opts.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.grace <= 0 {
		s.grace = 30 * time.Second
	}
	if s.retries <= 0 {
		s.retries = 5
	}
	if s.backoff <= 0 {
		s.backoff = 200 * time.Millisecond
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Store) Path() string             { return s.path }
func (s *Store) Location() *time.Location { return s.loc }

// Read returns the current entries; an absent document is an empty schedule.
// Bad entries are skipped with a warning.
func (s *Store) Read(ctx context.Context) ([]Entry, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	entries, skipped, err := Decode(b, s.loc)
	if err != nil {
		return nil, err
	}
	for _, e := range skipped {
		s.log.Warn("skipping malformed schedule entry", logx.String("path", s.path), logx.Err(e))
	}
	return entries, nil
}

// Load is Read with bounded retries, for readers racing an external writer.
// ok=false means the document could not be read this time; callers retry later.
func (s *Store) Load(ctx context.Context) ([]Entry, bool) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(s.backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, false
			case <-t.C:
			}
		}
		entries, err := s.Read(ctx)
		if err == nil {
			return entries, true
		}
		lastErr = err
	}
	s.log.Warn("schedule read failed; will retry next poll",
		logx.String("path", s.path), logx.Int("attempts", s.retries), logx.Err(lastErr))
	return nil, false
}

// AppendRequest is one pick from the media library.
type AppendRequest struct {
	Title    string // default TitleFromPath(Path)
	Path     string
	User     string
	Duration time.Duration
}

// Append places req after the last entry, never earlier than now+grace, and
// persists the whole document.
func (s *Store) Append(ctx context.Context, req AppendRequest) (Entry, error) {
	if strings.TrimSpace(req.Path) == "" {
		return Entry{}, errors.New("schedule: append without path")
	}
	if req.Title == "" {
		req.Title = TitleFromPath(req.Path)
	}
	if req.Duration < 0 {
		req.Duration = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readForAppend(ctx)
	if err != nil {
		return Entry{}, err
	}

	now := s.now().In(s.loc)
	e := Entry{
		ID:       nextID(entries),
		Title:    req.Title,
		Path:     req.Path,
		Start:    nextStart(entries, now, s.grace),
		Duration: req.Duration.Truncate(time.Second),
		User:     req.User,
	}
	e.End = e.Start.Add(e.Duration)

	entries = append(entries, e)
	if err := s.write(entries); err != nil {
		return Entry{}, err
	}
	s.log.Info("schedule entry appended",
		logx.Int("id", e.ID), logx.String("title", e.Title), logx.String("user", e.User),
		logx.String("start", e.Start.Format(Layout)), logx.String("end", e.End.Format(Layout)))
	return e, nil
}

// readForAppend fails soft on a missing or corrupt document. A corrupt document is
// moved aside first so the append never silently destroys it.
func (s *Store) readForAppend(ctx context.Context) ([]Entry, error) {
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		var entries []Entry
		entries, err = s.Read(ctx)
		if err == nil {
			return entries, nil
		}
		if !errors.Is(err, ErrCorrupt) && !errors.Is(err, ErrEmptyDocument) {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		time.Sleep(s.backoff)
	}
	switch {
	case errors.Is(err, ErrEmptyDocument):
		return nil, nil
	case errors.Is(err, ErrCorrupt):
		aside := s.path + ".corrupt"
		if rerr := os.Rename(s.path, aside); rerr != nil {
			return nil, fmt.Errorf("move corrupt schedule aside: %w", rerr)
		}
		s.log.Warn("schedule document corrupt; moved aside and starting empty",
			logx.String("path", s.path), logx.String("moved_to", aside), logx.Err(err))
		return nil, nil
	default:
		return nil, err
	}
}

func (s *Store) write(entries []Entry) error {
	b, err := Encode(entries, s.loc)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create schedule dir: %w", err)
		}
	}
	if err := renameio.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	return nil
}

// Fingerprint identifies the document's current version without reading it.
func (s *Store) Fingerprint() (Fingerprint, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{ModTime: fi.ModTime(), Size: fi.Size()}, nil
}

// Fingerprint changes whenever the document is rewritten.
type Fingerprint struct {
	ModTime time.Time
	Size    int64
}

func (f Fingerprint) IsZero() bool { return f.ModTime.IsZero() && f.Size == 0 }

func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.ModTime.Equal(o.ModTime) && f.Size == o.Size
}

func nextID(entries []Entry) int {
	id := 0
	for _, e := range entries {
		id = max(id, e.ID)
	}
	return id + 1
}

// nextStart is max(latest end, now+grace), at second precision.
func nextStart(entries []Entry, now time.Time, grace time.Duration) time.Time {
	start := now.Add(grace)
	// the document has second precision; round up so start never precedes now+grace
	if r := start.Truncate(time.Second); r.Before(start) {
		start = r.Add(time.Second)
	}
	for _, e := range entries {
		if e.End.After(start) {
			start = e.End
		}
	}
	return start
}
