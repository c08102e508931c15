package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "remindbot/pkg/logx"
)

// redisStore keeps reminders in one hash (id -> JSON) and timezones in
// another (user id -> IANA name). Writes are acknowledged by the server;
// durability beyond that follows the server's AOF/RDB settings.
type redisStore struct {
	rdb          *redis.Client
	log          logx.Logger
	remindersKey string
	timezonesKey string
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	url := strings.TrimSpace(cfg.RedisURL)
	if url == "" {
		return nil, errors.New("storage.redis_url is required for redis driver")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = time.Second
	if opts.TLSConfig == nil && strings.HasPrefix(url, "rediss://") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisStore(rdb, cfg.KeyPrefix, log), nil
}

func newRedisStore(rdb *redis.Client, prefix string, log logx.Logger) *redisStore {
	return &redisStore{
		rdb:          rdb,
		log:          log,
		remindersKey: prefix + "reminders",
		timezonesKey: prefix + "user_timezones",
	}
}

func (s *redisStore) PutReminder(ctx context.Context, r Reminder) error {
	if err := prepareWrite(&r); err != nil {
		return err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.remindersKey, r.ID, b).Err()
}

func (s *redisStore) GetReminder(ctx context.Context, id string) (Reminder, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.remindersKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Reminder{}, false, nil
	}
	if err != nil {
		return Reminder{}, false, err
	}
	return s.decode(id, raw), true, nil
}

// decode never fails: an undecodable value comes back as a record holding
// only its id, which Validate rejects and the scheduler deletes.
func (s *redisStore) decode(id string, raw []byte) Reminder {
	var r Reminder
	if err := json.Unmarshal(raw, &r); err != nil {
		s.log.Warn("undecodable reminder in redis", logx.ReminderID(id), logx.Err(err))
		return Reminder{ID: id}
	}
	if r.ID == "" {
		r.ID = id
	}
	return r
}

func (s *redisStore) DeleteReminder(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.HDel(ctx, s.remindersKey, id).Result()
	return n > 0, err
}

func (s *redisStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	all, err := s.rdb.HGetAll(ctx, s.remindersKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Reminder, 0, len(all))
	for id, raw := range all {
		out = append(out, s.decode(id, []byte(raw)))
	}
	sortReminders(out)
	return out, nil
}

func (s *redisStore) PutTimezone(ctx context.Context, userID int64, tz string) error {
	return s.rdb.HSet(ctx, s.timezonesKey, strconv.FormatInt(userID, 10), tz).Err()
}

func (s *redisStore) GetTimezone(ctx context.Context, userID int64) (string, bool, error) {
	tz, err := s.rdb.HGet(ctx, s.timezonesKey, strconv.FormatInt(userID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tz, true, nil
}

func (s *redisStore) DeleteTimezone(ctx context.Context, userID int64) (bool, error) {
	n, err := s.rdb.HDel(ctx, s.timezonesKey, strconv.FormatInt(userID, 10)).Result()
	return n > 0, err
}

func (s *redisStore) Close() error { return s.rdb.Close() }
