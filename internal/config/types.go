package config

// Config is the bot's whole on-disk configuration.
//
// A *Config obtained from Manager.Get is a snapshot: it is never mutated
// after being committed, so readers may iterate its slices without locks.
// Mutations go through Manager.Update, which works on a deep copy.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	Feed     FeedConfig     `json:"feed"`
	Presence PresenceConfig `json:"presence"`

	// Destinations receive monitor notifications (feed and presence).
	Destinations []string `json:"destinations"`
	// TargetGroups is the list registered with the "reg" command.
	TargetGroups []string `json:"target_groups,omitempty"`

	Notifier NotifierConfig `json:"notifier"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// AdminGroup receives startup/shutdown announcements.
	AdminGroup string `json:"admin_group,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	// Daily writes one file per day under Path (a directory).
	Daily bool `json:"daily,omitempty"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	GroupID    string `json:"group_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// FeedConfig controls the feed monitor.
//
// Interval accepts a Go duration, HH:MM, "@every 5m" or a cron expression.
type FeedConfig struct {
	URLs     []string `json:"urls"`
	Interval string   `json:"interval,omitempty"` // default "5m"
	Timeout  string   `json:"timeout,omitempty"`  // default "20s"
}

// PresenceConfig controls the Steam presence monitor. The monitor refuses
// to start without APIKey.
type PresenceConfig struct {
	APIKey     string   `json:"api_key"`
	SubjectIDs []uint64 `json:"subject_ids"`

	Interval     string `json:"interval,omitempty"`      // default "45s"
	IdleInterval string `json:"idle_interval,omitempty"` // default "30s", used while SubjectIDs is empty
	Timeout      string `json:"timeout,omitempty"`       // default "15s"
	// Endpoint overrides the Steam Web API base URL.
	Endpoint string `json:"endpoint,omitempty"`
}

// NotifierConfig controls notification fanout.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"` // default 5
	SendTimeout string `json:"send_timeout,omitempty"` // default "10s"
}

// StorageConfig controls the optional audit/delivery store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/hydrobot.db" }
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	cp := *c
	cp.Feed.URLs = append([]string(nil), c.Feed.URLs...)
	cp.Presence.SubjectIDs = append([]uint64(nil), c.Presence.SubjectIDs...)
	cp.Destinations = append([]string(nil), c.Destinations...)
	cp.TargetGroups = append([]string(nil), c.TargetGroups...)
	if c.Storage != nil {
		st := *c.Storage
		cp.Storage = &st
	}
	return &cp
}
