package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	// timezone names must resolve on hosts without a zoneinfo database
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

// CronParser accepts 5-field and 6-field (with seconds) specs and
// descriptors such as "@every 5m".
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

const (
	DefaultPollTimeout     = 10 * time.Second
	DefaultMinLookahead    = 10 * time.Second
	DefaultRestoreTimeout  = 10 * time.Second
	DefaultSweepGrace      = time.Minute
	DefaultJobTimeout      = 30 * time.Second
	DefaultListLimit       = 25
	DefaultDefaultMessage  = "No message provided"
	DefaultHealthAddr      = ":3000"
	DefaultSweepSpec       = "@every 5m"
	DefaultCompactSpec     = "@daily"
	DefaultStoragePath     = "./data/reminders.db"
	DefaultSendRatePerSec  = 25
	MissedPolicyNotify     = "notify"
	MissedPolicyFire       = "fire"
	maxTelegramRatePerSec  = 30
	defaultLogRatePerSec   = 1
	defaultLogMinLevel     = "warn"
	defaultStorageDriver   = "file"
	defaultRedisKeyPrefix  = "remindbot:"
	defaultCompactEveryOps = 500
)

// SetDefaults fills unset optional fields in place.
func (c *Config) SetDefaults() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Telegram.PollTimeout) == "" {
		c.Telegram.PollTimeout = DefaultPollTimeout.String()
	}
	if c.Telegram.SendRatePerSec <= 0 {
		c.Telegram.SendRatePerSec = DefaultSendRatePerSec
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Telegram.MinLevel == "" {
		c.Logging.Telegram.MinLevel = defaultLogMinLevel
	}
	if c.Logging.Telegram.RatePerSec <= 0 {
		c.Logging.Telegram.RatePerSec = defaultLogRatePerSec
	}

	r := &c.Reminders
	if r.Timezone == "" {
		r.Timezone = "UTC"
	}
	if r.MinLookahead == "" {
		r.MinLookahead = DefaultMinLookahead.String()
	}
	if r.MissedPolicy == "" {
		r.MissedPolicy = MissedPolicyNotify
	}
	r.MissedPolicy = strings.ToLower(strings.TrimSpace(r.MissedPolicy))
	if r.RestoreTimeout == "" {
		r.RestoreTimeout = DefaultRestoreTimeout.String()
	}
	if r.DefaultMessage == "" {
		r.DefaultMessage = DefaultDefaultMessage
	}
	if r.ListLimit <= 0 {
		r.ListLimit = DefaultListLimit
	}

	h := &c.Housekeeping
	if h.SweepSpec == "" {
		h.SweepSpec = DefaultSweepSpec
	}
	if h.CompactSpec == "" {
		h.CompactSpec = DefaultCompactSpec
	}
	if h.SweepGrace == "" {
		h.SweepGrace = DefaultSweepGrace.String()
	}
	if h.JobTimeout == "" {
		h.JobTimeout = DefaultJobTimeout.String()
	}
	if h.CompactEvery <= 0 {
		h.CompactEvery = defaultCompactEveryOps
	}

	s := &c.Storage
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = defaultStorageDriver
	}
	if (s.Driver == "file" || s.Driver == "sqlite" || s.Driver == "sqlite3") && s.Path == "" {
		s.Path = DefaultStoragePath
	}
	if s.KeyPrefix == "" && s.Driver == "redis" {
		s.KeyPrefix = defaultRedisKeyPrefix
	}

	if c.Health.Addr == "" {
		c.Health.Addr = DefaultHealthAddr
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		bad("telegram.token: required (or set TELEGRAM_TOKEN)")
	}
	dur("telegram.poll_timeout", c.Telegram.PollTimeout)
	if c.Telegram.SendRatePerSec > maxTelegramRatePerSec {
		bad("telegram.send_rate_per_sec: %d exceeds %d", c.Telegram.SendRatePerSec, maxTelegramRatePerSec)
	}
	if g := strings.TrimSpace(c.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			bad("telegram.group_log: not a chat id: %q", g)
		}
	}
	if c.Logging.Telegram.Enabled && strings.TrimSpace(c.Telegram.GroupLog) == "" {
		bad("logging.telegram.enabled requires telegram.group_log")
	}

	r := c.Reminders
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		bad("reminders.timezone: %v", err)
	}
	dur("reminders.min_lookahead", r.MinLookahead)
	dur("reminders.delivery_timeout", r.DeliveryTimeout)
	dur("reminders.restore_timeout", r.RestoreTimeout)
	switch r.MissedPolicy {
	case MissedPolicyNotify, MissedPolicyFire:
	default:
		bad("reminders.missed_policy: want %q or %q, got %q", MissedPolicyNotify, MissedPolicyFire, r.MissedPolicy)
	}

	h := c.Housekeeping
	dur("housekeeping.sweep_grace", h.SweepGrace)
	dur("housekeeping.job_timeout", h.JobTimeout)
	if h.Enabled {
		if _, err := CronParser.Parse(h.SweepSpec); err != nil {
			bad("housekeeping.sweep_spec: %v", err)
		}
		if _, err := CronParser.Parse(h.CompactSpec); err != nil {
			bad("housekeeping.compact_spec: %v", err)
		}
	}

	s := c.Storage
	switch s.Driver {
	case "memory", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(s.Path) == "" {
			bad("storage.path: required for driver %q", s.Driver)
		}
		dur("storage.busy_timeout", s.BusyTimeout)
	case "redis":
		if strings.TrimSpace(s.RedisURL) == "" {
			bad("storage.redis_url: required for driver redis (or set REDIS_URL)")
		}
	case "firestore":
		if strings.TrimSpace(s.FirestoreProject) == "" && strings.TrimSpace(s.FirestoreCredentials) == "" {
			bad("storage: firestore needs firestore_project or firestore_credentials")
		}
	default:
		bad("storage.driver: unknown %q", s.Driver)
	}

	return errors.Join(errs...)
}

// Location returns the default reminder timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reminders.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (r RemindersConfig) MinLookaheadDuration() time.Duration {
	return mustDuration(r.MinLookahead, DefaultMinLookahead)
}

func (r RemindersConfig) DeliveryTimeoutDuration() time.Duration {
	return mustDuration(r.DeliveryTimeout, 0)
}

func (r RemindersConfig) RestoreTimeoutDuration() time.Duration {
	return mustDuration(r.RestoreTimeout, DefaultRestoreTimeout)
}

func (h HousekeepingConfig) SweepGraceDuration() time.Duration {
	return mustDuration(h.SweepGrace, DefaultSweepGrace)
}

func (h HousekeepingConfig) JobTimeoutDuration() time.Duration {
	return mustDuration(h.JobTimeout, DefaultJobTimeout)
}

func (t TelegramConfig) PollTimeoutDuration() time.Duration {
	return mustDuration(t.PollTimeout, DefaultPollTimeout)
}

// GroupLogID parses telegram.group_log. ok is false when unset or invalid.
func (t TelegramConfig) GroupLogID() (id int64, ok bool) {
	g := strings.TrimSpace(t.GroupLog)
	if g == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(g, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsOwner reports whether userID is listed in telegram.owner_user_ids.
func (t TelegramConfig) IsOwner(userID int64) bool {
	for _, id := range t.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
