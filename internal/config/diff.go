package config

import (
	"bytes"
	"encoding/json"
	"hash/fnv"
	"slices"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections, log fields
// describing the new values (never secrets) and the names of plugins whose
// enable flag or config changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)
	ot, nt := oldCfg.Telegram, newCfg.Telegram

	// the token itself is never logged, only whether it rotated
	if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || ot.GroupLog != nt.GroupLog ||
		ot.SendRatePerSec != nt.SendRatePerSec || !slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.String("telegram.poll_timeout", nt.PollTimeout),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Reminders != newCfg.Reminders {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.timezone", newCfg.Reminders.Timezone),
			logx.String("reminders.missed_policy", newCfg.Reminders.MissedPolicy),
			logx.String("reminders.min_lookahead", newCfg.Reminders.MinLookahead),
		)
	}

	if oldCfg.Housekeeping != newCfg.Housekeeping {
		changed = append(changed, "housekeeping")
		attrs = append(attrs,
			logx.Bool("housekeeping.enabled", newCfg.Housekeeping.Enabled),
			logx.String("housekeeping.sweep_spec", newCfg.Housekeeping.SweepSpec),
		)
	}

	if ns := newCfg.Storage; oldCfg.Storage != ns {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", ns.Driver),
			logx.Bool("storage.path_set", ns.Path != ""),
			logx.Bool("storage.redis_url_set", ns.RedisURL != ""),
		)
	}

	if oldCfg.Health != newCfg.Health {
		changed = append(changed, "health")
		attrs = append(attrs,
			logx.Bool("health.enabled", newCfg.Health.Enabled),
			logx.String("health.addr", newCfg.Health.Addr),
		)
	}

	pluginChanged := diffPlugins(oldCfg.Plugins, newCfg.Plugins)
	if len(pluginChanged) > 0 {
		changed = append(changed, "plugins")
		attrs = append(attrs, logx.Int("plugins.changed_count", len(pluginChanged)))
	}

	sort.Strings(changed)
	return changed, attrs, pluginChanged
}

// RestartRequired lists changed sections that only take effect on restart
// (the bot token, storage backend and health listener).
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.Health != newCfg.Health {
		out = append(out, "health")
	}
	if oldCfg.Reminders != newCfg.Reminders {
		out = append(out, "reminders")
	}
	return out
}

func diffPlugins(oldM, newM map[string]PluginConfigRaw) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	// a plugin missing from the map runs with its defaults
	enabled := func(m map[string]PluginConfigRaw, name string) bool {
		raw, ok := m[name]
		return !ok || raw.Enabled
	}
	out := make([]string, 0, len(set))
	for name := range set {
		if enabled(oldM, name) != enabled(newM, name) || oldM[name].Hash() != newM[name].Hash() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Hash fingerprints the plugin's config blob. Key order and whitespace do
// not count as changes; an absent blob and JSON null hash to zero.
func (p PluginConfigRaw) Hash() uint64 { return canonicalHashJSON(p.Config) }

func canonicalHashJSON(raw json.RawMessage) uint64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	var v any
	b := []byte(raw)
	if err := json.Unmarshal(raw, &v); err == nil {
		if cb, err := json.Marshal(v); err == nil {
			b = cb
		}
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
