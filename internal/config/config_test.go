package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestParseYAMLAndResolveDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", `
schedule:
  path: ./schedule.json
picker:
  folders: ["/media/a", " ", "/media/b"]
  extensions: ["MP4", ".mkv"]
orchestrator:
  now_file: ./info/now.txt
  pending_file: ./info/pending.txt
player:
  driver: dryrun
`)
	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Grace != 30*time.Second || s.ReadRetries != 5 || s.ReadBackoff != 200*time.Millisecond {
		t.Fatalf("schedule defaults: %+v", s)
	}
	if s.ProbeFallback != 5*time.Minute || s.FFprobe != "ffprobe" {
		t.Fatalf("probe defaults: fallback=%v bin=%q", s.ProbeFallback, s.FFprobe)
	}
	if s.SafetyBuffer != 15*time.Second || s.IdleText != "All Time HITS" || s.MaxLateness != 0 {
		t.Fatalf("orchestrator defaults: %+v", s)
	}
	if len(s.Folders) != 2 || s.FilesPerPage != 50 {
		t.Fatalf("picker: folders=%v per_page=%d", s.Folders, s.FilesPerPage)
	}
	if strings.Join(s.Extensions, ",") != ".mp4,.mkv" {
		t.Fatalf("extensions: %v", s.Extensions)
	}
	if s.PlayerScene != "Schedule" || s.PlayerInput != "schedulesource" {
		t.Fatalf("player: %+v", s)
	}
	if err := ValidateOrchestrator(s); err != nil {
		t.Fatalf("validate orchestrator: %v", err)
	}
	if err := ValidatePicker(cfg, s); err == nil {
		t.Fatalf("picker validation should require a token")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"schedule":{"path":"x","bogus":1}}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"schedule":{"path":"x"}}{}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestResolveCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Schedule: ScheduleConfig{Grace: "soon", Timezone: "Nowhere/City"},
		Player:   PlayerConfig{Driver: "vlc"},
	}
	_, err := Resolve(cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"schedule.path", "schedule.grace", "schedule.timezone", "player.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}, Player: PlayerConfig{Driver: "obs", Password: "a"}}
	newCfg := &Config{Logging: LoggingConfig{Level: "debug"}, Player: PlayerConfig{Driver: "obs", Password: "b"}}

	changed, _, restart := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "logging,player" {
		t.Fatalf("changed=%v", changed)
	}
	if strings.Join(restart, ",") != "player" {
		t.Fatalf("restart=%v", restart)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"schedule":{"path":"a.json"}}`)
	m := NewManager(p)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		_, err := Resolve(cfg)
		return err
	})
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid content is rejected and never published.
	writeFile(t, dir, "config.json", `{"schedule":{"path":""}}`)
	time.Sleep(150 * time.Millisecond)
	writeFile(t, dir, "config.json", `{"schedule":{"path":"b.json"}}`)

	select {
	case cfg := <-sub:
		if cfg.Schedule.Path != "b.json" {
			t.Fatalf("published %q", cfg.Schedule.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no config published")
	}
	if m.Get().Schedule.Path != "b.json" {
		t.Fatalf("not committed")
	}
}
