package delivery

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"remindbot/internal/reminder"
	"remindbot/pkg/tgui"
)

const footer = "Reminder"

// Formatter renders reminders as Telegram HTML cards.
type Formatter struct {
	Location       *time.Location
	DefaultMessage string
	// Now is used for relative times; nil means time.Now.
	Now func() time.Time
}

var _ reminder.Renderer = Formatter{}

func (f Formatter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// When formats t as "Mon, 02 Jan 2006 15:04 MST (in 2 hours)".
func (f Formatter) When(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Mon, 02 Jan 2006 15:04 MST") + " (" + humanize.RelTime(t, f.now(), "ago", "from now") + ")"
}

func (f Formatter) message(r reminder.Reminder) tgui.H {
	if m := strings.TrimSpace(r.Message); m != "" {
		return tgui.Esc(m)
	}
	def := f.DefaultMessage
	if def == "" {
		def = "No message provided"
	}
	return tgui.I(def)
}

func payload(c *tgui.Card) reminder.Payload {
	return reminder.Payload{Text: c.String(), ParseMode: "HTML"}
}

func (f Formatter) Reminder(r reminder.Reminder) reminder.Payload {
	return payload(tgui.NewCard("⏰", "Reminder!").
		HTML(tgui.Mention(r.UserName, r.UserID) + " " + f.message(r)).
		Footer(footer))
}

func (f Formatter) Unrestorable(r reminder.Reminder, reason string) reminder.Payload {
	return payload(tgui.NewCard("⚠️", "Reminder Could Not Be Restored").
		Line("One of your reminders could not be reloaded.").
		Blank().
		KV("Reason", reason).
		HTML(tgui.B("Reminder:")+" "+f.message(r)).
		KV("Originally scheduled for", f.When(r.At())).
		Footer(footer))
}

func (f Formatter) Missed(r reminder.Reminder) reminder.Payload {
	return payload(tgui.NewCard("⏰", "Missed Reminder").
		Line("This reminder came due while the bot was offline.").
		Blank().
		HTML(tgui.B("Reminder:")+" "+f.message(r)).
		KV("Originally scheduled for", f.When(r.At())).
		Footer(footer))
}
