package statushttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"castbot/internal/orchestrator"
	"castbot/internal/storage"
	"castbot/pkg/logx"
)

type fixedProvider struct{ st orchestrator.Status }

func (p fixedProvider) Status() orchestrator.Status { return p.st }

type fakeHistory struct {
	plays []storage.Play
	limit int
}

func (h *fakeHistory) AppendPlay(context.Context, storage.Play) error { return nil }
func (h *fakeHistory) RecentPlays(_ context.Context, limit int) ([]storage.Play, error) {
	h.limit = limit
	return h.plays, nil
}
func (h *fakeHistory) Close() error { return nil }

func provider() fixedProvider {
	return fixedProvider{st: orchestrator.Status{
		NowPlaying: &orchestrator.NowPlaying{Title: "Show", User: "Alice"},
		Upcoming:   []orchestrator.Trigger{{Title: "Next", User: "Bob", State: orchestrator.Pending}},
		Triggers:   map[string]int{"pending": 1, "fired": 1},
	}}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	h := NewHandler(provider(), nil, "", logx.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var got struct {
		NowPlaying struct{ Title string } `json:"now_playing"`
		Upcoming   []struct {
			Title string
			State string
		} `json:"upcoming"`
		Triggers map[string]int `json:"triggers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.NowPlaying.Title != "Show" || len(got.Upcoming) != 1 || got.Upcoming[0].State != "pending" || got.Triggers["fired"] != 1 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()
	hist := &fakeHistory{plays: []storage.Play{{Title: "Show", Outcome: storage.OutcomePlayed}}}
	h := NewHandler(provider(), hist, "", logx.Nop())

	tests := []struct {
		name      string
		url       string
		code      int
		wantLimit int
	}{
		{"default limit", "/api/history", http.StatusOK, defaultHistoryLimit},
		{"explicit limit", "/api/history?limit=5", http.StatusOK, 5},
		{"capped", "/api/history?limit=100000", http.StatusOK, maxHistoryLimit},
		{"bad limit", "/api/history?limit=x", http.StatusBadRequest, 0},
		{"trailing slash", "/api/history/", http.StatusOK, defaultHistoryLimit},
	}
	for _, tt := range tests {
		hist.limit = 0
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
		if rec.Code != tt.code {
			t.Fatalf("%s: status=%d", tt.name, rec.Code)
		}
		if hist.limit != tt.wantLimit {
			t.Fatalf("%s: limit=%d want %d", tt.name, hist.limit, tt.wantLimit)
		}
	}
}

func TestHistoryDisabled(t *testing.T) {
	t.Parallel()
	h := NewHandler(provider(), nil, "", logx.Nop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestServesStatusDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pending.txt"), []byte("All Time HITS\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := NewHandler(provider(), nil, dir, logx.Nop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pending.txt", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "All Time HITS\n" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("cache-control=%q", cc)
	}
}

func TestServiceLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"), goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	svc := New(Config{Addr: "127.0.0.1:0"}, NewHandler(provider(), nil, "", logx.Nop()), logx.Nop())
	svc.Start(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for svc.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	addr := svc.Addr()
	if addr == "" {
		t.Fatalf("server did not start")
	}

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body=%q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Stop(ctx)
	if svc.Addr() != "" {
		t.Fatalf("listener still registered after stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:8000": true,
		"localhost:80":   true,
		"[::1]:1":        true,
		"0.0.0.0:8000":   false,
		":8000":          false,
	}
	for in, want := range cases {
		if got := isLoopbackAddr(in); got != want {
			t.Fatalf("%s: got %v", in, got)
		}
	}
}
