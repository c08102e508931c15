package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "remindbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; modernc serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		// FULL: a committed reminder must survive power loss
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}

	if _, err := db.ExecContext(ctx, migrationsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) PutReminder(ctx context.Context, r Reminder) error {
	if err := prepareWrite(&r); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, v, user_id, user_name, chat_id, thread_id, remind_at, message, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   v=excluded.v, user_id=excluded.user_id, user_name=excluded.user_name,
		   chat_id=excluded.chat_id, thread_id=excluded.thread_id, remind_at=excluded.remind_at,
		   message=excluded.message, created_at=excluded.created_at`,
		r.ID, r.Version, r.UserID, nullStr(r.UserName), r.ChatID, r.ThreadID, r.RemindAt, nullStr(r.Message), r.CreatedAt,
	)
	return err
}

const reminderColumns = `id, v, user_id, user_name, chat_id, thread_id, remind_at, message, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (Reminder, error) {
	var (
		r       Reminder
		name    sql.NullString
		message sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Version, &r.UserID, &name, &r.ChatID, &r.ThreadID, &r.RemindAt, &message, &r.CreatedAt); err != nil {
		return Reminder{}, err
	}
	r.UserName = name.String
	r.Message = message.String
	return r, nil
}

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (Reminder, bool, error) {
	r, err := scanReminder(s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Reminder{}, false, nil
	}
	if err != nil {
		return Reminder{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderColumns+` FROM reminders ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutTimezone(ctx context.Context, userID int64, tz string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_timezones(user_id, timezone) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET timezone=excluded.timezone`,
		userID, tz,
	)
	return err
}

func (s *sqliteStore) GetTimezone(ctx context.Context, userID int64) (string, bool, error) {
	var tz string
	err := s.db.QueryRowContext(ctx, `SELECT timezone FROM user_timezones WHERE user_id = ?`, userID).Scan(&tz)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tz, true, nil
}

func (s *sqliteStore) DeleteTimezone(ctx context.Context, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_timezones WHERE user_id = ?`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Compact checkpoints the WAL into the main database file.
func (s *sqliteStore) Compact(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
