package config

import (
	"bytes"
	"encoding/json"
)

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Telegram     TelegramConfig             `json:"telegram"`
	Logging      LoggingConfig              `json:"logging"`
	Reminders    RemindersConfig            `json:"reminders"`
	Housekeeping HousekeepingConfig         `json:"housekeeping"`
	Storage      StorageConfig              `json:"storage"`
	Health       HealthConfig               `json:"health"`
	Plugins      map[string]PluginConfigRaw `json:"plugins,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id receiving log lines, e.g. "-1001234567890".
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
	// SendRatePerSec caps outbound messages (Telegram allows ~30/s per bot).
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
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
	// AnnounceStartup posts a line to the log chat once the bot is ready.
	AnnounceStartup bool `json:"announce_startup,omitempty"`
}

// RemindersConfig controls the reminder scheduler and the /remindme command.
//
// Defaults:
//   - timezone: "UTC"
//   - min_lookahead: "10s"
//   - missed_policy: "notify" ("notify" or "fire")
//   - delivery_timeout: "0s" (no timeout)
//   - restore_timeout: "10s" (per reminder channel lookup)
//   - default_message: "No message provided"
//   - list_limit: 25
type RemindersConfig struct {
	Timezone        string `json:"timezone,omitempty"`
	MinLookahead    string `json:"min_lookahead,omitempty"`
	MissedPolicy    string `json:"missed_policy,omitempty"`
	DeliveryTimeout string `json:"delivery_timeout,omitempty"`
	RestoreTimeout  string `json:"restore_timeout,omitempty"`
	DefaultMessage  string `json:"default_message,omitempty"`
	ListLimit       int    `json:"list_limit,omitempty"`
}

// HousekeepingConfig controls the cron-driven maintenance jobs.
//
// Schedules are standard 5-field cron specs or descriptors ("@every 5m").
type HousekeepingConfig struct {
	Enabled      bool   `json:"enabled"`
	SweepSpec    string `json:"sweep_spec,omitempty"`   // default "@every 5m"
	SweepGrace   string `json:"sweep_grace,omitempty"`  // default "1m"
	CompactSpec  string `json:"compact_spec,omitempty"` // default "@daily"
	JobTimeout   string `json:"job_timeout,omitempty"`  // default "30s"
	CompactEvery int    `json:"compact_every,omitempty"`
}

// StorageConfig selects the reminder store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/remindbot.db" }
//
// Drivers: "memory", "file", "sqlite", "redis", "firestore".
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite

	RedisURL  string `json:"redis_url,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"` // redis keys / firestore collections

	FirestoreProject     string `json:"firestore_project,omitempty"`
	FirestoreCredentials string `json:"firestore_credentials,omitempty"` // service account json path
}

// HealthConfig controls the HTTP keepalive endpoint used by hosting platforms.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":3000"
}

type PluginConfigRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON rejects unknown keys so typos surface on reload.
func (p *PluginConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PluginConfigRaw{Enabled: t.Enabled, Config: t.Config}
	return nil
}

// PluginEnabled reports whether a plugin should run. Plugins missing from
// the map are enabled.
func (c *Config) PluginEnabled(name string) bool {
	if c == nil || c.Plugins == nil {
		return true
	}
	raw, ok := c.Plugins[name]
	if !ok {
		return true
	}
	return raw.Enabled
}
