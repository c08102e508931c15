package eventbus

// Reminder lifecycle event types. Data is a ReminderEvent.
const (
	ReminderCreated        = "reminder.created"
	ReminderDelivered      = "reminder.delivered"
	ReminderDeliveryFailed = "reminder.delivery_failed"
	ReminderCancelled      = "reminder.cancelled"
	ReminderUnrestorable   = "reminder.unrestorable"
	ReminderMissed         = "reminder.missed"
	RemindersRestored      = "reminders.restored"
)

type ReminderEvent struct {
	ID     string `json:"id"`
	UserID int64  `json:"user_id"`
	ChatID int64  `json:"chat_id"`
	Reason string `json:"reason,omitempty"`
}

// Timezone preference event types. Data is a TimezoneEvent.
const (
	TimezoneSet     = "timezone.set"
	TimezoneCleared = "timezone.cleared"
)

type TimezoneEvent struct {
	UserID int64  `json:"user_id"`
	Zone   string `json:"zone,omitempty"`
}
