package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fakeRun(out string, err error) RunFunc {
	return func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		out  string
		err  error
		want time.Duration
	}{
		{"fractional seconds truncate", "312.987000\n", nil, 312 * time.Second},
		{"whole", "60", nil, time.Minute},
		{"first line wins", "12.5\n99\n", nil, 12 * time.Second},
		{"tool missing", "", errors.New("exec: \"ffprobe\": executable file not found in $PATH"), 5 * time.Minute},
		{"not applicable", "N/A\n", nil, 5 * time.Minute},
		{"garbage", "duration=abc", nil, 5 * time.Minute},
		{"negative", "-3", nil, 5 * time.Minute},
		{"empty", "", nil, 5 * time.Minute},
		{"two days", "172800", nil, 48 * time.Hour},
		{"beyond two days", "172801", nil, 5 * time.Minute},
		{"overflow", "1e300", nil, 5 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := New(Options{Run: fakeRun(tc.out, tc.err)})
			if got := e.Estimate(context.Background(), "/m/x.mp4"); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestProbeArguments(t *testing.T) {
	t.Parallel()
	var gotBin string
	var gotArgs []string
	e := New(Options{Binary: "/opt/ffprobe", Run: func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		gotBin, gotArgs = bin, args
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("probe should run with a deadline")
		}
		return []byte("1.0"), nil
	}})
	if _, err := e.Probe(context.Background(), "/m/a b.mkv"); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if gotBin != "/opt/ffprobe" {
		t.Fatalf("bin=%q", gotBin)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-show_entries format=duration") || gotArgs[len(gotArgs)-1] != "/m/a b.mkv" {
		t.Fatalf("args=%q", gotArgs)
	}
}

func TestCustomFallback(t *testing.T) {
	t.Parallel()
	e := New(Options{Fallback: 90 * time.Second, Run: fakeRun("", errors.New("boom"))})
	if got := e.Estimate(context.Background(), "x"); got != 90*time.Second {
		t.Fatalf("got %v", got)
	}
}
