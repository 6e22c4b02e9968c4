package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatusRenderOrdersUpcoming(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 13, 0, 0, 0, testLoc)
	reg := NewRegistry(15 * time.Second)
	reg.Register(trig(time.Date(2026, 10, 19, 15, 30, 0, 0, testLoc), "Late Show", "Bob", 2))
	reg.Register(trig(time.Date(2026, 10, 19, 14, 5, 0, 0, testLoc), "Matinee", "Alice", 1))
	reg.Register(trig(now.Add(5*time.Second), "Imminent", "C", 3))

	p := NewStatusPublisher(reg, "", "", testLog())
	want := "02:05 PM | Matinee | Alice\n03:30 PM | Late Show | Bob\n"
	if got := p.Render(now); got != want {
		t.Fatalf("render=%q want %q", got, want)
	}
}

func TestStatusPublishIdleText(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pending.txt")
	reg := NewRegistry(15 * time.Second)
	now := time.Date(2026, 10, 19, 23, 0, 0, 0, testLoc)

	p := NewStatusPublisher(reg, path, "", testLog())
	if err := p.Publish(now); err != nil {
		t.Fatalf("publish: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != DefaultIdleText+"\n" {
		t.Fatalf("pending=%q", b)
	}

	custom := NewStatusPublisher(reg, path, "Off air", testLog())
	if got := custom.Render(now); got != "Off air\n" {
		t.Fatalf("render=%q", got)
	}
}
