package config

// Config is shared by the orchestrator daemon and the picker bot.
//
// All durations are Go duration strings ("200ms", "30s", "5m").
// Omitted fields take the defaults applied by Resolve.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Schedule     ScheduleConfig     `json:"schedule"`
	Probe        ProbeConfig        `json:"probe"`
	Picker       PickerConfig       `json:"picker"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Player       PlayerConfig       `json:"player"`
	Status       StatusConfig       `json:"status"`
	Storage      *StorageConfig     `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AllowedUserIDs restricts the picker. Empty allows everyone.
	AllowedUserIDs []int64 `json:"allowed_user_ids,omitempty"`
	GroupLog       string  `json:"group_log,omitempty"`
	PollTimeout    string  `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ScheduleConfig locates the shared schedule document.
//
// Example:
//
//	"schedule": { "path": "./schedule.json", "timezone": "Asia/Jakarta", "grace": "30s" }
type ScheduleConfig struct {
	Path     string `json:"path"`
	Timezone string `json:"timezone,omitempty"`
	// Grace is the minimum lead time between an append and the entry's start.
	Grace       string `json:"grace,omitempty"`
	ReadRetries int    `json:"read_retries,omitempty"`
	ReadBackoff string `json:"read_backoff,omitempty"`
}

type ProbeConfig struct {
	FFprobe  string `json:"ffprobe,omitempty"` // binary name or path, default "ffprobe"
	Timeout  string `json:"timeout,omitempty"`
	Fallback string `json:"fallback,omitempty"`
}

type PickerConfig struct {
	Folders      []string `json:"folders"`
	FilesPerPage int      `json:"files_per_page,omitempty"`
	// RateLimit is the minimum interval between two /start commands of one user.
	RateLimit  string   `json:"rate_limit,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
}

type OrchestratorConfig struct {
	PollInterval    string `json:"poll_interval,omitempty"`
	StatusInterval  string `json:"status_interval,omitempty"`
	SafetyBuffer    string `json:"safety_buffer,omitempty"`
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
	// MaxLateness discards triggers fired later than this. "0s" fires regardless.
	MaxLateness string `json:"max_lateness,omitempty"`
	NowFile     string `json:"now_file"`
	PendingFile string `json:"pending_file"`
	IdleText    string `json:"idle_text,omitempty"`
	// AnnounceChat receives a message per started item. Empty disables announcements.
	AnnounceChat string `json:"announce_chat,omitempty"`
}

// PlayerConfig selects the playback sink. Driver is "obs" or "dryrun".
type PlayerConfig struct {
	Driver   string `json:"driver"`
	Addr     string `json:"addr,omitempty"`     // default "ws://127.0.0.1:4455"
	Password string `json:"password,omitempty"` // never logged
	Scene    string `json:"scene,omitempty"`
	Input    string `json:"input,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// StatusConfig controls the optional status HTTP server.
//
// Security note: prefer binding to localhost and putting a proxy in front.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8000"
	// Dir is served as static files (ticker page, now/pending text files).
	Dir          string `json:"dir,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// StorageConfig controls the optional play history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./castbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
