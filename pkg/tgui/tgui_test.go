package tgui

import (
	"strings"
	"testing"
	"time"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"héllo wörld", 3, "hé…"},
		{"abc", 0, ""},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d)=%q want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		total, page, size int
		want              Page
	}{
		{0, 0, 50, Page{Index: 0, Pages: 1, From: 0, To: 0}},
		{120, 0, 50, Page{Index: 0, Pages: 3, From: 0, To: 50, HasNext: true}},
		{120, 2, 50, Page{Index: 2, Pages: 3, From: 100, To: 120, HasPrev: true}},
		{120, 9, 50, Page{Index: 2, Pages: 3, From: 100, To: 120, HasPrev: true}},
		{100, -1, 50, Page{Index: 0, Pages: 2, From: 0, To: 50, HasNext: true}},
	}
	for _, tt := range tests {
		if got := Paginate(tt.total, tt.page, tt.size); got != tt.want {
			t.Fatalf("Paginate(%d,%d,%d)=%+v want %+v", tt.total, tt.page, tt.size, got, tt.want)
		}
	}
	if l := Paginate(120, 1, 50).Label(); l != "📄 2/3" {
		t.Fatalf("label=%q", l)
	}
}

func TestData(t *testing.T) {
	t.Parallel()
	if got := Data("pk", "page", "3"); got != "pk:page:3" {
		t.Fatalf("got %q", got)
	}
	if got := Data("pk", "noop", ""); got != "pk:noop" {
		t.Fatalf("got %q", got)
	}
	if err := CheckData(strings.Repeat("x", 65)); err != ErrCallbackDataTooLong {
		t.Fatalf("err=%v", err)
	}
}

func TestBuilderEscapesHTML(t *testing.T) {
	t.Parallel()
	m := New().Title("✅", "Scheduled").Line("a <b> & c").KV("Start", "08:00 PM").Build()
	want := "✅ <b>Scheduled</b>\na &lt;b&gt; &amp; c\n• <b>Start</b>: 08:00 PM"
	if m.Text != want {
		t.Fatalf("text=%q", m.Text)
	}
	if m.Opt.ParseMode != "HTML" || m.Markup() != nil {
		t.Fatalf("opt=%+v", m.Opt)
	}

	kb := NewInline().Row(Btn("a", "x:a")).Row()
	if len(kb.Rows()) != 1 {
		t.Fatalf("rows=%d", len(kb.Rows()))
	}
	if New().Inline(kb).Build().Markup() == nil {
		t.Fatalf("markup missing")
	}
}

func TestTokenStore(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)
	s := NewTokenStore(time.Minute, 2)
	s.now = func() time.Time { return now }

	a := s.Put("/media/a.mp4")
	if !strings.HasPrefix(a, "~") || strings.Contains(a, ":") || len(a) != 9 {
		t.Fatalf("token=%q", a)
	}
	if v, ok := s.Get(a); !ok || v != "/media/a.mp4" {
		t.Fatalf("get=%q,%v", v, ok)
	}

	now = now.Add(time.Second)
	b := s.Put("b")
	now = now.Add(time.Second)
	c := s.Put("c")
	if s.Len() != 2 {
		t.Fatalf("len=%d", s.Len())
	}
	if _, ok := s.Get(a); ok {
		t.Fatalf("oldest token should be evicted over max")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := s.Get(b); ok {
		t.Fatalf("expired token returned")
	}
	if _, ok := s.Get(c); ok {
		t.Fatalf("expired token returned")
	}
}
