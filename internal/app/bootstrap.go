package app

import (
	"remindbot/internal/config"
	"remindbot/internal/housekeeping"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

func adapterConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    cfg.Telegram.PollTimeoutDuration(),
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
	}
}

func logConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// applyLogging points the Telegram sink at the log chat before applying the
// rest, so Apply never sees the sink enabled without a target.
func applyLogging(svc *logx.Service, cfg *config.Config) {
	if id, ok := cfg.Telegram.GroupLogID(); ok {
		svc.SetTelegramTarget(id, cfg.Logging.Telegram.ThreadID)
	} else {
		svc.SetTelegramTarget(0, 0)
	}
	svc.Apply(logConfig(cfg))
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	s := cfg.Storage
	busy, err := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:               s.Driver,
		Path:                 s.Path,
		BusyTimeout:          busy,
		CompactEvery:         cfg.Housekeeping.CompactEvery,
		RedisURL:             s.RedisURL,
		KeyPrefix:            s.KeyPrefix,
		FirestoreProject:     s.FirestoreProject,
		FirestoreCredentials: s.FirestoreCredentials,
	}, nil
}

func schedulerConfig(cfg *config.Config) reminder.Config {
	r := cfg.Reminders
	return reminder.Config{
		MissedPolicy:    reminder.MissedPolicy(r.MissedPolicy),
		DeliveryTimeout: r.DeliveryTimeoutDuration(),
		RestoreTimeout:  r.RestoreTimeoutDuration(),
	}
}

func housekeepingConfig(cfg *config.Config) housekeeping.Config {
	h := cfg.Housekeeping
	return housekeeping.Config{
		Location:    cfg.Location(),
		SweepSpec:   h.SweepSpec,
		SweepGrace:  h.SweepGraceDuration(),
		CompactSpec: h.CompactSpec,
		JobTimeout:  h.JobTimeoutDuration(),
	}
}
