package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvToken       = "TELEGRAM_TOKEN"
	EnvPort        = "PORT"
	EnvRedisURL    = "REDIS_URL"
	EnvCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvProject     = "GOOGLE_CLOUD_PROJECT"
	EnvLogLevel    = "REMINDBOT_LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// applyEnv overlays environment values. Empty variables are ignored.
func applyEnv(c *Config, getenv func(string) string) {
	if c == nil || getenv == nil {
		return
	}
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get(EnvToken); v != "" {
		c.Telegram.Token = v
	}
	if v := get(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := get(EnvPort); v != "" {
		c.Health.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := get(EnvRedisURL); v != "" && strings.EqualFold(c.Storage.Driver, "redis") {
		c.Storage.RedisURL = v
	}
	if strings.EqualFold(c.Storage.Driver, "firestore") {
		if v := get(EnvCredentials); v != "" && c.Storage.FirestoreCredentials == "" {
			c.Storage.FirestoreCredentials = v
		}
		if v := get(EnvProject); v != "" && c.Storage.FirestoreProject == "" {
			c.Storage.FirestoreProject = v
		}
	}
}
