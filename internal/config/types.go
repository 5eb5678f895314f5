package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// TargetChatID is the one fixed destination every broadcast goes to.
	TargetChatID int64 `json:"target_chat_id"`

	// OwnerUserIDs may author broadcasts; empty means anyone.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	// PollTimeout is a Go duration string for the long-poll (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the broadcast trigger loop.
//
// PollInterval is the generic tick that evaluates interval and monthly tasks
// (default "10s"). Daily and weekly tasks fire off calendar triggers and are
// not affected by it.
type SchedulerConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
	Timezone     string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Moscow"
}

// StorageConfig selects the task store backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./broadcasts.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type BroadcastConfig struct {
	// RatePerSec caps outbound sends; 0 keeps the default (1/s).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}
