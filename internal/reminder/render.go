package reminder

import (
	"fmt"
	"strings"
	"time"
)

// Renderer turns records into user-facing messages.
type Renderer interface {
	Reminder(r Reminder) Payload
	Unrestorable(r Reminder, reason string) Payload
	Missed(r Reminder) Payload
}

// PlainRenderer renders plain text without markup.
type PlainRenderer struct {
	Location       *time.Location
	DefaultMessage string
}

func (p PlainRenderer) message(r Reminder) string {
	if m := strings.TrimSpace(r.Message); m != "" {
		return m
	}
	if p.DefaultMessage != "" {
		return p.DefaultMessage
	}
	return "No message provided"
}

func (p PlainRenderer) when(r Reminder) string {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return r.At().In(loc).Format("2006-01-02 15:04 MST")
}

func (p PlainRenderer) who(r Reminder) string {
	if r.UserName != "" {
		return r.UserName
	}
	return fmt.Sprintf("user %d", r.UserID)
}

func (p PlainRenderer) Reminder(r Reminder) Payload {
	return Payload{Text: fmt.Sprintf("⏰ Reminder!\n%s: %s", p.who(r), p.message(r))}
}

func (p PlainRenderer) Unrestorable(r Reminder, reason string) Payload {
	return Payload{Text: fmt.Sprintf(
		"⚠️ Reminder Could Not Be Restored\nOne of your reminders could not be reloaded.\nReason: %s\nReminder: %s\nOriginally scheduled for: %s",
		reason, p.message(r), p.when(r))}
}

func (p PlainRenderer) Missed(r Reminder) Payload {
	return Payload{Text: fmt.Sprintf(
		"⏰ Missed Reminder\nThis reminder came due while the bot was offline.\nReminder: %s\nOriginally scheduled for: %s",
		p.message(r), p.when(r))}
}
