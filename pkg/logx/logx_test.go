package logx

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFormatChatLine(t *testing.T) {
	line := []byte(`{"level":"warn","time":"x","message":"dispatch failed","title":"Intro","err":"boom"}` + "\n")
	got := formatChatLine(line)
	want := "[WARN] dispatch failed\n- err=boom\n- title=Intro"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormatChatLineNotJSON(t *testing.T) {
	if got := formatChatLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestWriterLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "test"))

	log.Debug("hidden")
	log.Warn("visible", Err(errors.New("bad")), Int("n", 3))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	for _, want := range []string{"visible", "comp=test", "n=3", "bad"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	if log.Enabled(LevelDebug) {
		t.Fatalf("debug should be disabled")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Info("nothing happens")
	if Nop().IsZero() {
		t.Fatalf("Nop logger is not the zero value")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghijklmno", 12); got != "abcdefghi..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("got %q", got)
	}
}
