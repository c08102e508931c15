package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")

	// ErrInvalidRecord wraps every Reminder.Validate failure.
	ErrInvalidRecord = errors.New("invalid reminder record")
)

// SchemaVersion is written into every record. Records without a version
// predate it and are upgraded on read.
const SchemaVersion = 1

// Reminder is the persisted form of a scheduled reminder.
//
// RemindAt and CreatedAt are epoch milliseconds.
type Reminder struct {
	Version   int    `json:"v" firestore:"v"`
	ID        string `json:"id" firestore:"id"`
	UserID    int64  `json:"user_id" firestore:"user_id"`
	UserName  string `json:"user_name,omitempty" firestore:"user_name,omitempty"`
	ChatID    int64  `json:"chat_id" firestore:"chat_id"`
	ThreadID  int    `json:"thread_id,omitempty" firestore:"thread_id,omitempty"`
	RemindAt  int64  `json:"remind_at" firestore:"remind_at"`
	Message   string `json:"message,omitempty" firestore:"message,omitempty"`
	CreatedAt int64  `json:"created_at" firestore:"created_at"`
}

// At returns RemindAt as a time.
func (r Reminder) At() time.Time { return time.UnixMilli(r.RemindAt) }

// Normalize upgrades older schema versions in place. The ID is the store
// key and is left as stored.
func (r *Reminder) Normalize() {
	if r.Version == 0 {
		r.Version = SchemaVersion
	}
}

func (r Reminder) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ID) == "" {
		missing = append(missing, "id")
	}
	if r.UserID == 0 {
		missing = append(missing, "user_id")
	}
	if r.ChatID == 0 {
		missing = append(missing, "chat_id")
	}
	if r.RemindAt <= 0 {
		missing = append(missing, "remind_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRecord, strings.Join(missing, ", "))
	}
	if r.Version > SchemaVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidRecord, r.Version)
	}
	return nil
}

// Store is the persistence API. Reads return records as stored, including
// ones that fail Validate, so callers can clean them up.
type Store interface {
	// PutReminder upserts r. It returns once the write is durable.
	PutReminder(ctx context.Context, r Reminder) error
	GetReminder(ctx context.Context, id string) (Reminder, bool, error)
	// DeleteReminder is idempotent and reports whether a record existed.
	DeleteReminder(ctx context.Context, id string) (bool, error)
	ListReminders(ctx context.Context) ([]Reminder, error)

	PutTimezone(ctx context.Context, userID int64, tz string) error
	GetTimezone(ctx context.Context, userID int64) (string, bool, error)
	DeleteTimezone(ctx context.Context, userID int64) (bool, error)

	Close() error
}

// Compactor is implemented by drivers with periodic maintenance.
type Compactor interface {
	Compact(ctx context.Context) error
}

// Config configures storage.
//
// If Driver is "none", Open returns ErrDisabled. Empty means "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite; 0 means 5s

	// CompactEvery is the number of journal writes between automatic
	// compactions (file driver). 0 means 500.
	CompactEvery int

	RedisURL  string
	KeyPrefix string

	FirestoreProject     string
	FirestoreCredentials string
}

func prepareWrite(r *Reminder) error {
	r.Normalize()
	return r.Validate()
}

func sortReminders(rs []Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt != rs[j].CreatedAt {
			return rs[i].CreatedAt < rs[j].CreatedAt
		}
		return rs[i].ID < rs[j].ID
	})
}
