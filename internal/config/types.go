package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Relay     RelayConfig     `json:"relay"`
	Predictor PredictorConfig `json:"predictor"`
	Storage   StorageConfig   `json:"storage"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// SourceChatID is the chat carrying the monitored slot feed.
	// Only messages from this chat enter the relay pipeline.
	SourceChatID int64 `json:"source_chat_id"`

	// ChannelID is the public channel announcements are relayed to.
	ChannelID int64 `json:"channel_id"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// RatePerSec caps outbound channel sends (default 3).
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// SignupURL is attached to slot announcements as an inline button.
	SignupURL string `json:"signup_url,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RelayConfig controls the dedup/correlation core.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "30m").
type RelayConfig struct {
	// DedupWindow suppresses identical-fingerprint announcements seen
	// within this trailing window (default "30m").
	DedupWindow string `json:"dedup_window,omitempty"`

	// OnExhaustion picks the close-out policy: "edit" replaces the original
	// post in place, "notify" sends a separate silent notice. Default "edit".
	OnExhaustion string `json:"on_exhaustion,omitempty"`

	// DefaultTimezone is the IANA zone used for venues without an explicit
	// entry in Timezones (default "America/Toronto").
	DefaultTimezone string `json:"default_timezone,omitempty"`

	// Timezones maps a venue name (bare city, as extracted) to its IANA zone.
	Timezones map[string]string `json:"timezones,omitempty"`
}

// PredictorConfig controls the predictive notice scheduler.
type PredictorConfig struct {
	Enabled bool `json:"enabled"`

	// WindowDays is the trailing history window mined per tick (default 30).
	WindowDays int `json:"window_days,omitempty"`

	// TopK bounds the top-hours and top-locations lists (default 3).
	TopK int `json:"top_k,omitempty"`

	// Timezone is the IANA zone the pre-window check runs in.
	// Defaults to relay.default_timezone.
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the sqlite persistence layer.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// DebugConfig controls the optional pprof+metrics HTTP server.
//
// Prefer binding to localhost (default "127.0.0.1:6060").
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}
