package schedule

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Layout is the document's timestamp format, e.g. "19 Oct 2026 08:15:00 PM".
const Layout = "02 Jan 2006 03:04:05 PM"

// Entry is one scheduled playback.
type Entry struct {
	ID       int
	Title    string
	Path     string
	Start    time.Time
	End      time.Time
	Duration time.Duration
	User     string
}

// wireEntry is the on-disk shape. Field order matches what the picker has always written.
type wireEntry struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Path     string `json:"path"`
	Start    string `json:"start"`
	Duration string `json:"duration"`
	End      string `json:"end"`
	User     string `json:"user"`
}

// TitleFromPath derives the display title: the file name without extension.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FormatDuration renders d as H:MM:SS, whole seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

// ParseDuration accepts H:MM:SS (hours may exceed 23).
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("duration %q: want H:MM:SS", s)
	}
	var total int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("duration %q: bad field %q", s, p)
		}
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("duration %q: field %q out of range", s, p)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}

func (e Entry) wire(loc *time.Location) wireEntry {
	return wireEntry{
		ID:       e.ID,
		Title:    e.Title,
		Path:     e.Path,
		Start:    e.Start.In(loc).Format(Layout),
		Duration: FormatDuration(e.Duration),
		End:      e.End.In(loc).Format(Layout),
		User:     e.User,
	}
}

// UnknownUser stands in for entries written without a user.
const UnknownUser = "Unknown"

func (w wireEntry) entry(loc *time.Location) (Entry, error) {
	start, err := time.ParseInLocation(Layout, strings.TrimSpace(w.Start), loc)
	if err != nil {
		return Entry{}, fmt.Errorf("start: %w", err)
	}
	end, err := time.ParseInLocation(Layout, strings.TrimSpace(w.End), loc)
	if err != nil {
		return Entry{}, fmt.Errorf("end: %w", err)
	}
	d, err := ParseDuration(w.Duration)
	if err != nil {
		// duration is informational; end-start is authoritative
		d = end.Sub(start)
	}
	user := strings.TrimSpace(w.User)
	if user == "" {
		user = UnknownUser
	}
	return Entry{
		ID:       w.ID,
		Title:    w.Title,
		Path:     w.Path,
		Start:    start,
		End:      end,
		Duration: d,
		User:     user,
	}, nil
}

// EntryError reports one undecodable entry. The rest of the document is still usable.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string { return fmt.Sprintf("entry %d: %v", e.Index, e.Err) }
func (e *EntryError) Unwrap() error { return e.Err }

// Decode parses a schedule document. A document that is not a JSON array fails
// as a whole; individual bad entries are returned as EntryErrors and skipped.
func Decode(data []byte, loc *time.Location) ([]Entry, []error, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil, ErrEmptyDocument
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	out := make([]Entry, 0, len(raws))
	var skipped []error
	for i, raw := range raws {
		var w wireEntry
		if err := json.Unmarshal(raw, &w); err != nil {
			skipped = append(skipped, &EntryError{Index: i, Err: err})
			continue
		}
		e, err := w.entry(loc)
		if err != nil {
			skipped = append(skipped, &EntryError{Index: i, Err: err})
			continue
		}
		out = append(out, e)
	}
	return out, skipped, nil
}

// Encode renders entries as an indented JSON array.
func Encode(entries []Entry, loc *time.Location) ([]byte, error) {
	ws := make([]wireEntry, 0, len(entries))
	for _, e := range entries {
		ws = append(ws, e.wire(loc))
	}
	b, err := json.MarshalIndent(ws, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
