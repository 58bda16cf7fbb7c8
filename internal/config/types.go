package config

// Config is the daemon configuration. YAML and JSON are both accepted;
// YAML is coerced to JSON first so one strict decoder covers both.
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Player       PlayerConfig       `json:"player"`
	Housekeeping HousekeepingConfig `json:"housekeeping,omitempty"`
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

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the trigger loop.
type SchedulerConfig struct {
	// Tick is the poll interval, a Go duration string. Default "500ms".
	// Must stay under one minute or due bells would be skipped.
	Tick string `json:"tick,omitempty"`
	// Timezone is an IANA name (e.g. "Asia/Jakarta"). Empty means the
	// host's local timezone.
	Timezone string `json:"timezone,omitempty"`
}

// PlayerConfig controls audio playback.
type PlayerConfig struct {
	// Grace bounds how long stop/pre-empt waits for the current clip to
	// exit, a Go duration string. Default "10s".
	Grace string `json:"grace,omitempty"`
	// MediaDir is where uploaded clips are stored.
	MediaDir string `json:"media_dir,omitempty"`
	// SetupOutput routes audio to the 3.5mm jack at startup (Raspberry Pi).
	SetupOutput bool `json:"setup_output,omitempty"`
}

// HousekeepingConfig controls the nightly maintenance job.
type HousekeepingConfig struct {
	Enabled bool `json:"enabled"`
	// Spec is a cron expression; default "0 0 * * *" (midnight).
	Spec string `json:"spec,omitempty"`
	// RetentionDays keeps past exceptions this many days before pruning.
	// Default 90.
	RetentionDays int `json:"retention_days,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Path: "./cobrell.db"},
		Player:  PlayerConfig{MediaDir: "./media", SetupOutput: true},
		Housekeeping: HousekeepingConfig{
			Enabled:       true,
			Spec:          "0 0 * * *",
			RetentionDays: 90,
		},
	}
}
