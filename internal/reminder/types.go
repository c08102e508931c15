package reminder

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/storage"
)

type Reminder = storage.Reminder

var (
	ErrNotRestored     = errors.New("reminder: scheduler not restored yet")
	ErrAlreadyRestored = errors.New("reminder: restore already ran")
	ErrNotOwner        = errors.New("reminder: not the owner")
	ErrStopped         = errors.New("reminder: scheduler stopped")
	ErrInvalidReminder = storage.ErrInvalidRecord

	// ErrChannelUnavailable is wrapped by Messenger.ResolveChannel when the
	// chat is definitively gone. Other lookup errors count as transient.
	ErrChannelUnavailable = errors.New("reminder: channel unavailable")
)

// Draft is what a caller supplies to Create. The scheduler assigns the id
// and creation time.
type Draft struct {
	UserID   int64
	UserName string
	ChatID   int64
	ThreadID int
	RemindAt time.Time
	Message  string
}

// Store is the persistence the scheduler needs. storage.Store satisfies it.
type Store interface {
	PutReminder(ctx context.Context, r Reminder) error
	GetReminder(ctx context.Context, id string) (Reminder, bool, error)
	DeleteReminder(ctx context.Context, id string) (bool, error)
	ListReminders(ctx context.Context) ([]Reminder, error)
}

// Channel is a resolved delivery destination.
type Channel struct {
	ChatID   int64
	ThreadID int
	Title    string
}

type Payload struct {
	Text      string
	ParseMode string
}

// Messenger delivers reminders and out-of-band notices.
type Messenger interface {
	ResolveChannel(ctx context.Context, chatID int64, threadID int) (Channel, error)
	SendMessage(ctx context.Context, ch Channel, p Payload) error
	NotifyUserDirectly(ctx context.Context, userID int64, p Payload) error
}

// Clock schedules callbacks. AfterFunc must run f on its own goroutine
// (or later), never before it returns.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is the wall clock.
func RealClock() Clock { return realClock{} }

// MissedPolicy decides what happens to reminders that came due while the
// bot was offline.
type MissedPolicy string

const (
	// MissedNotify tells the user directly that the reminder was missed.
	MissedNotify MissedPolicy = "notify"
	// MissedFire delivers the reminder to its channel late.
	MissedFire MissedPolicy = "fire"
)

// RestoreReport counts what Restore did with each stored record.
type RestoreReport struct {
	Total        int
	Armed        int
	Missed       int // past due, user notified directly
	FiredLate    int // past due, delivered to the channel
	Unrestorable int // channel no longer resolves
	Invalid      int // failed validation
	NotifyFailed int
}
