package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testLoc = time.FixedZone("WIB", 7*3600)

func newTestStore(t *testing.T, now *time.Time) *Store {
	t.Helper()
	s, err := NewStore(Options{
		Path:        filepath.Join(t.TempDir(), "schedule.json"),
		Location:    testLoc,
		ReadRetries: 2,
		ReadBackoff: time.Millisecond,
		Now:         func() time.Time { return *now },
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestAppendToEmptyStoreStartsAfterGrace(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 20, 0, 0, 0, testLoc)
	s := newTestStore(t, &now)

	e, err := s.Append(context.Background(), AppendRequest{Path: "/media/Intro.mp4", User: "A", Duration: 5 * time.Minute})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.ID != 1 || e.Title != "Intro" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if !e.Start.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("start=%v want %v", e.Start, now.Add(30*time.Second))
	}
	if !e.End.Equal(now.Add(5*time.Minute + 30*time.Second)) {
		t.Fatalf("end=%v", e.End)
	}
}

func TestAppendMidSecondRoundsStartUp(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 20, 0, 0, 700*int(time.Millisecond), testLoc)
	s := newTestStore(t, &now)

	e, err := s.Append(context.Background(), AppendRequest{Path: "/media/Intro.mp4", User: "A", Duration: time.Minute})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	want := time.Date(2026, 10, 19, 20, 0, 31, 0, testLoc)
	if !e.Start.Equal(want) {
		t.Fatalf("start=%v want %v", e.Start, want)
	}
	if e.Start.Before(now.Add(30 * time.Second)) {
		t.Fatalf("start %v precedes append time + grace", e.Start)
	}
}

func TestAppendChainsAfterPreviousEnd(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 20, 0, 0, 0, testLoc)
	s := newTestStore(t, &now)
	ctx := context.Background()

	first, err := s.Append(ctx, AppendRequest{Path: "/m/a.mp4", User: "A", Duration: 10 * time.Minute})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	now = now.Add(time.Minute)
	second, err := s.Append(ctx, AppendRequest{Path: "/m/b.mp4", User: "B", Duration: 90 * time.Second})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.ID != 2 || !second.Start.Equal(first.End) {
		t.Fatalf("second=%+v first.End=%v", second, first.End)
	}

	// Once the previous end has passed, grace applies again.
	now = second.End.Add(time.Hour)
	third, err := s.Append(ctx, AppendRequest{Path: "/m/c.mp4", User: "C", Duration: time.Minute})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !third.Start.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("third start=%v", third.Start)
	}

	entries, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len=%d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].End.After(entries[i].Start) {
			t.Fatalf("entries %d and %d overlap", i-1, i)
		}
	}
}

func TestAppendEndingInsideGraceUsesGrace(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 20, 0, 0, 0, testLoc)
	s := newTestStore(t, &now)
	ctx := context.Background()

	if _, err := s.Append(ctx, AppendRequest{Path: "/m/a.mp4", Duration: time.Minute}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// previous end is 20:01:30; at 20:01:20 grace pushes the start to 20:01:50
	now = time.Date(2026, 10, 19, 20, 1, 20, 0, testLoc)
	e, err := s.Append(ctx, AppendRequest{Path: "/m/b.mp4", Duration: time.Minute})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if want := time.Date(2026, 10, 19, 20, 1, 50, 0, testLoc); !e.Start.Equal(want) {
		t.Fatalf("start=%v want %v", e.Start, want)
	}
}

func TestDocumentFormat(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 13, 4, 5, 0, testLoc)
	s := newTestStore(t, &now)
	if _, err := s.Append(context.Background(), AppendRequest{Path: "/m/Show.mkv", User: "Ann Lee", Duration: 65*time.Minute + 7*time.Second}); err != nil {
		t.Fatalf("append: %v", err)
	}
	b, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	doc := string(b)
	for _, want := range []string{
		`"id": 1`,
		`"title": "Show"`,
		`"path": "/m/Show.mkv"`,
		`"start": "19 Oct 2026 01:04:35 PM"`,
		`"duration": "1:05:07"`,
		`"end": "19 Oct 2026 02:09:42 PM"`,
		`"user": "Ann Lee"`,
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %s:\n%s", want, doc)
		}
	}
}

func TestReadAbsentIsEmpty(t *testing.T) {
	t.Parallel()
	now := time.Now()
	s := newTestStore(t, &now)
	entries, err := s.Read(context.Background())
	if err != nil || len(entries) != 0 {
		t.Fatalf("entries=%v err=%v", entries, err)
	}
	if _, err := s.Fingerprint(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("fingerprint err=%v", err)
	}
}

func TestReadSkipsMalformedEntries(t *testing.T) {
	t.Parallel()
	now := time.Now()
	s := newTestStore(t, &now)
	doc := `[
	{"id":1,"title":"ok","path":"/m/ok.mp4","start":"19 Oct 2026 08:00:00 PM","duration":"0:05:00","end":"19 Oct 2026 08:05:00 PM","user":"A"},
	{"id":2,"title":"bad","path":"/m/bad.mp4","start":"tomorrow","duration":"0:05:00","end":"19 Oct 2026 08:10:00 PM","user":"A"},
	"not an object"
]`
	if err := os.WriteFile(s.Path(), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "ok" || entries[0].Duration != 5*time.Minute {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestDecodeDefaultsMissingUser(t *testing.T) {
	t.Parallel()
	doc := `[
	{"id":1,"title":"a","path":"/m/a.mp4","start":"19 Oct 2026 08:00:00 PM","duration":"0:01:00","end":"19 Oct 2026 08:01:00 PM"},
	{"id":2,"title":"b","path":"/m/b.mp4","start":"19 Oct 2026 08:01:00 PM","duration":"0:01:00","end":"19 Oct 2026 08:02:00 PM","user":"  "}
]`
	entries, bad, err := Decode([]byte(doc), testLoc)
	if err != nil || len(bad) != 0 {
		t.Fatalf("err=%v bad=%v", err, bad)
	}
	for _, e := range entries {
		if e.User != UnknownUser {
			t.Fatalf("entry %d user=%q", e.ID, e.User)
		}
	}
}

func TestLoadGivesUpOnCorruptDocument(t *testing.T) {
	t.Parallel()
	now := time.Now()
	s := newTestStore(t, &now)
	if err := os.WriteFile(s.Path(), []byte(`[{"id":1,`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := s.Load(context.Background()); ok {
		t.Fatalf("expected ok=false for a half-written document")
	}
}

func TestAppendMovesCorruptDocumentAside(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 20, 0, 0, 0, testLoc)
	s := newTestStore(t, &now)
	if err := os.WriteFile(s.Path(), []byte("{garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	e, err := s.Append(context.Background(), AppendRequest{Path: "/m/a.mp4", Duration: time.Minute})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.ID != 1 {
		t.Fatalf("id=%d", e.ID)
	}
	if b, err := os.ReadFile(s.Path() + ".corrupt"); err != nil || string(b) != "{garbage" {
		t.Fatalf("corrupt copy: %q err=%v", b, err)
	}
}

func TestFingerprintChangesOnAppend(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 20, 0, 0, 0, testLoc)
	s := newTestStore(t, &now)
	ctx := context.Background()
	if _, err := s.Append(ctx, AppendRequest{Path: "/m/a.mp4", Duration: time.Minute}); err != nil {
		t.Fatalf("append: %v", err)
	}
	fp1, err := s.Fingerprint()
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if _, err := s.Append(ctx, AppendRequest{Path: "/m/b.mp4", Duration: time.Minute}); err != nil {
		t.Fatalf("append: %v", err)
	}
	fp2, err := s.Fingerprint()
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if fp1.Equal(fp2) {
		t.Fatalf("fingerprint did not change: %+v", fp1)
	}
}

func TestDurationFormatting(t *testing.T) {
	t.Parallel()
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{5 * time.Minute, "0:05:00"},
		{time.Hour + 2*time.Second + 900*time.Millisecond, "1:00:02"},
		{27 * time.Hour, "27:00:00"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Fatalf("FormatDuration(%v)=%q want %q", tc.d, got, tc.want)
		}
		back, err := ParseDuration(tc.want)
		if err != nil || back != tc.d.Truncate(time.Second) {
			t.Fatalf("ParseDuration(%q)=%v,%v", tc.want, back, err)
		}
	}
	if _, err := ParseDuration("5m"); err == nil {
		t.Fatalf("expected error for Go-style duration")
	}
}
