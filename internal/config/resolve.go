package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultGrace           = 30 * time.Second
	DefaultReadRetries     = 5
	DefaultReadBackoff     = 200 * time.Millisecond
	DefaultProbeTimeout    = 10 * time.Second
	DefaultProbeFallback   = 5 * time.Minute
	DefaultFilesPerPage    = 50
	DefaultRateLimit       = 5 * time.Minute
	DefaultPollInterval    = time.Second
	DefaultStatusInterval  = time.Second
	DefaultSafetyBuffer    = 15 * time.Second
	DefaultDispatchTimeout = 10 * time.Second
	DefaultIdleText        = "All Time HITS"
	DefaultPlayerAddr      = "ws://127.0.0.1:4455"
	DefaultPlayerScene     = "Schedule"
	DefaultPlayerInput     = "schedulesource"
	DefaultStatusAddr      = "127.0.0.1:8000"
)

// DefaultExtensions are the media types the picker search accepts.
var DefaultExtensions = []string{".mp4", ".mkv", ".ts", ".mov", ".avi", ".mp3", ".wav", ".xml", ".txt"}

// Settings is a Config with defaults applied and every duration parsed.
type Settings struct {
	Location *time.Location

	SchedulePath string
	Grace        time.Duration
	ReadRetries  int
	ReadBackoff  time.Duration

	FFprobe       string
	ProbeTimeout  time.Duration
	ProbeFallback time.Duration

	Folders      []string
	FilesPerPage int
	RateLimit    time.Duration
	Extensions   []string

	PollInterval    time.Duration
	StatusInterval  time.Duration
	SafetyBuffer    time.Duration
	DispatchTimeout time.Duration
	MaxLateness     time.Duration
	NowFile         string
	PendingFile     string
	IdleText        string
	AnnounceChat    int64

	PlayerDriver   string
	PlayerAddr     string
	PlayerPassword string
	PlayerScene    string
	PlayerInput    string
	PlayerTimeout  time.Duration

	PollTimeout time.Duration
	GroupLog    int64

	Status StatusSettings
}

type StatusSettings struct {
	Enabled      bool
	Addr         string
	Dir          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Resolve validates cfg and applies defaults. Every problem is reported, not only the first.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, errors.New("config is nil")
	}
	var (
		s    Settings
		errs []error
	)
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	// zero is meaningful for these, so no default substitution.
	durZero := func(path, raw string) time.Duration {
		d, err := ParseDurationField(path, raw)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	s.Location = time.Local
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
		} else {
			s.Location = loc
		}
	}

	s.SchedulePath = strings.TrimSpace(cfg.Schedule.Path)
	if s.SchedulePath == "" {
		errs = append(errs, errors.New("schedule.path is required"))
	}
	s.Grace = dur("schedule.grace", cfg.Schedule.Grace, DefaultGrace)
	s.ReadRetries = cfg.Schedule.ReadRetries
	if s.ReadRetries <= 0 {
		s.ReadRetries = DefaultReadRetries
	}
	s.ReadBackoff = dur("schedule.read_backoff", cfg.Schedule.ReadBackoff, DefaultReadBackoff)

	s.FFprobe = strings.TrimSpace(cfg.Probe.FFprobe)
	if s.FFprobe == "" {
		s.FFprobe = "ffprobe"
	}
	s.ProbeTimeout = dur("probe.timeout", cfg.Probe.Timeout, DefaultProbeTimeout)
	s.ProbeFallback = dur("probe.fallback", cfg.Probe.Fallback, DefaultProbeFallback)

	for _, f := range cfg.Picker.Folders {
		if f = strings.TrimSpace(f); f != "" {
			s.Folders = append(s.Folders, f)
		}
	}
	s.FilesPerPage = cfg.Picker.FilesPerPage
	if s.FilesPerPage <= 0 {
		s.FilesPerPage = DefaultFilesPerPage
	}
	s.RateLimit = dur("picker.rate_limit", cfg.Picker.RateLimit, DefaultRateLimit)
	s.Extensions = normalizeExtensions(cfg.Picker.Extensions)

	o := cfg.Orchestrator
	s.PollInterval = dur("orchestrator.poll_interval", o.PollInterval, DefaultPollInterval)
	s.StatusInterval = dur("orchestrator.status_interval", o.StatusInterval, DefaultStatusInterval)
	s.SafetyBuffer = dur("orchestrator.safety_buffer", o.SafetyBuffer, DefaultSafetyBuffer)
	s.DispatchTimeout = dur("orchestrator.dispatch_timeout", o.DispatchTimeout, DefaultDispatchTimeout)
	s.MaxLateness = durZero("orchestrator.max_lateness", o.MaxLateness)
	s.NowFile = strings.TrimSpace(o.NowFile)
	s.PendingFile = strings.TrimSpace(o.PendingFile)
	s.IdleText = o.IdleText
	if strings.TrimSpace(s.IdleText) == "" {
		s.IdleText = DefaultIdleText
	}
	if raw := strings.TrimSpace(o.AnnounceChat); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("orchestrator.announce_chat: invalid chat id %q", raw))
		}
		s.AnnounceChat = id
	}

	p := cfg.Player
	s.PlayerDriver = strings.ToLower(strings.TrimSpace(p.Driver))
	switch s.PlayerDriver {
	case "":
		s.PlayerDriver = "obs"
	case "obs", "dryrun":
	default:
		errs = append(errs, fmt.Errorf("player.driver: unknown driver %q (want obs|dryrun)", p.Driver))
	}
	s.PlayerAddr = orDefault(p.Addr, DefaultPlayerAddr)
	s.PlayerPassword = p.Password
	s.PlayerScene = orDefault(p.Scene, DefaultPlayerScene)
	s.PlayerInput = orDefault(p.Input, DefaultPlayerInput)
	s.PlayerTimeout = dur("player.timeout", p.Timeout, 3*time.Second)

	s.PollTimeout = dur("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if raw := strings.TrimSpace(cfg.Telegram.GroupLog); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: invalid chat id %q", raw))
		}
		s.GroupLog = id
	}

	st := cfg.Status
	s.Status = StatusSettings{
		Enabled:      st.Enabled,
		Addr:         orDefault(st.Addr, DefaultStatusAddr),
		Dir:          strings.TrimSpace(st.Dir),
		ReadTimeout:  dur("status.read_timeout", st.ReadTimeout, 5*time.Second),
		WriteTimeout: dur("status.write_timeout", st.WriteTimeout, 10*time.Second),
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "file", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q (want file|sqlite)", cfg.Storage.Driver))
		}
		durZero("storage.busy_timeout", cfg.Storage.BusyTimeout)
	}

	return s, errors.Join(errs...)
}

// ValidateOrchestrator adds the checks only the daemon needs.
func ValidateOrchestrator(s Settings) error {
	var errs []error
	if s.NowFile == "" {
		errs = append(errs, errors.New("orchestrator.now_file is required"))
	}
	if s.PendingFile == "" {
		errs = append(errs, errors.New("orchestrator.pending_file is required"))
	}
	return errors.Join(errs...)
}

// ValidatePicker adds the checks only the picker bot needs.
func ValidatePicker(cfg *Config, s Settings) error {
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if len(s.Folders) == 0 {
		errs = append(errs, errors.New("picker.folders must list at least one folder"))
	}
	return errors.Join(errs...)
}

func normalizeExtensions(in []string) []string {
	if len(in) == 0 {
		return append([]string(nil), DefaultExtensions...)
	}
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
