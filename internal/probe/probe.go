// Package probe estimates media durations with ffprobe.
package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"castbot/pkg/logx"
)

const (
	DefaultFallback = 5 * time.Minute
	DefaultTimeout  = 10 * time.Second
)

// RunFunc executes the probe binary and returns its stdout.
type RunFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

type Options struct {
	Binary   string        // default "ffprobe"
	Timeout  time.Duration // per probe
	Fallback time.Duration // returned on any failure
	Log      logx.Logger
	Run      RunFunc // tests
}

// Estimator never fails: an unknown duration becomes the fallback.
type Estimator struct {
	bin      string
	timeout  time.Duration
	fallback time.Duration
	log      logx.Logger
	run      RunFunc
}

func New(opts Options) *Estimator {
	e := &Estimator{
		bin:      strings.TrimSpace(opts.Binary),
		timeout:  opts.Timeout,
		fallback: opts.Fallback,
		log:      opts.Log,
		run:      opts.Run,
	}
	if e.bin == "" {
		e.bin = "ffprobe"
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.fallback <= 0 {
		e.fallback = DefaultFallback
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	if e.run == nil {
		e.run = execRun
	}
	return e
}

func (e *Estimator) Fallback() time.Duration { return e.fallback }

// Estimate returns the duration of path in whole seconds, or the fallback.
func (e *Estimator) Estimate(ctx context.Context, path string) time.Duration {
	d, err := e.Probe(ctx, path)
	if err != nil {
		e.log.Warn("duration probe failed; using fallback",
			logx.String("path", path), logx.Duration("fallback", e.fallback), logx.Err(err))
		return e.fallback
	}
	return d
}

// Probe is Estimate without the fallback.
func (e *Estimator) Probe(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.run(ctx, e.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", e.bin, err)
	}
	return parseSeconds(string(out))
}

// maxDuration bounds reported durations; anything longer is a broken container.
const maxDuration = 48 * time.Hour

func parseSeconds(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	// some containers report one line per stream; the first is the format duration
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" || s == "N/A" {
		return 0, errors.New("no duration reported")
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if secs > maxDuration.Seconds() {
		return 0, fmt.Errorf("duration %q exceeds %v", s, maxDuration)
	}
	return time.Duration(math.Trunc(secs)) * time.Second, nil
}

func execRun(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
