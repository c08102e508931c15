package remindme

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/plugin"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

const footer = "Reminder"

func card(emoji, title, desc string) tgui.Message {
	return tgui.NewCard(emoji, title).Line(desc).Footer(footer).Build()
}

func errCard(title, desc string) tgui.Message { return card("❌", title, desc) }

func (p *Plugin) cmdIn(ctx context.Context, req *plugin.Request) error {
	rc := p.remindersConfig(req)
	d, used, ok := takeDuration(req.RawArgs)
	if !ok || d < rc.MinLookaheadDuration() {
		return req.Reply(ctx, errCard("Invalid Duration", "Minimum is "+humanDuration(rc.MinLookaheadDuration())+"."))
	}
	spec := strings.Join(req.RawArgs[:used], " ")
	return p.create(ctx, req, p.now().Add(d), req.Tail(used), "⏰", "in", spec)
}

func (p *Plugin) cmdOn(ctx context.Context, req *plugin.Request) error {
	args := req.RawArgs
	if len(args) == 0 {
		return req.Reply(ctx, errCard("Invalid Date/Time", "Use /remindme on 2026-03-01 01:30 PM [message]."))
	}
	y, mo, d, ok := parseDate(args[0])
	if !ok {
		return req.Reply(ctx, errCard("Invalid Date/Time", "Use a YYYY-MM-DD date."))
	}
	h, mi, used, ok := takeClock(args[1:])
	if !ok {
		return req.Reply(ctx, errCard("Invalid Time Format", "Use `01:30 PM` format."))
	}
	loc := p.location(ctx, req)
	at := time.Date(y, mo, d, h, mi, 0, 0, loc)
	if !at.After(p.now()) {
		return req.Reply(ctx, errCard("Invalid Date/Time", "The time is in the past."))
	}
	spec := strings.Join(args[:1+used], " ")
	return p.create(ctx, req, at, req.Tail(1+used), "📅", "on", spec)
}

func (p *Plugin) cmdAt(ctx context.Context, req *plugin.Request) error {
	h, mi, used, ok := takeClock(req.RawArgs)
	if !ok {
		return req.Reply(ctx, errCard("Invalid Time Format", "Use `07:00 AM` format."))
	}
	loc := p.location(ctx, req)
	now := p.now().In(loc)
	at := time.Date(now.Year(), now.Month(), now.Day(), h, mi, 0, 0, loc)
	if !at.After(now) {
		return req.Reply(ctx, errCard("Time Passed", "That time has already passed today."))
	}
	spec := strings.Join(req.RawArgs[:used], " ")
	return p.create(ctx, req, at, req.Tail(used), "⏱️", "at", spec)
}

func (p *Plugin) create(ctx context.Context, req *plugin.Request, at time.Time, message, label, prep, spec string) error {
	sched := p.Deps.Reminders
	if sched == nil {
		return errors.New("reminder scheduler not available")
	}
	if limit := p.options().MaxPerUser; limit > 0 {
		mine, err := sched.List(ctx, req.FromID)
		if err != nil {
			return err
		}
		if len(mine) >= limit {
			return req.Reply(ctx, errCard("Too Many Reminders", fmt.Sprintf("You can have at most %d active reminders.", limit)))
		}
	}

	r, err := sched.Create(ctx, reminder.Draft{
		UserID:   req.FromID,
		UserName: req.FromName,
		ChatID:   req.Chat.ChatID,
		ThreadID: req.Chat.ThreadID,
		RemindAt: at,
		Message:  strings.TrimSpace(message),
	})
	switch {
	case errors.Is(err, reminder.ErrNotRestored):
		return req.Reply(ctx, card("⏳", "Starting Up", "Reminders are still being restored. Try again in a moment."))
	case errors.Is(err, reminder.ErrStopped):
		return req.Reply(ctx, errCard("Failed", "The bot is shutting down."))
	case err != nil:
		req.Logger.Error("create reminder failed", logx.Err(err))
		return req.Reply(ctx, errCard("Failed", "Could not save that reminder."))
	}
	req.Note(logx.ReminderID(r.ID))
	req.Logger.Info("reminder set", logx.String("spec", prep+" "+spec))

	f := p.formatter(at.Location(), p.remindersConfig(req))
	c := tgui.NewCard(label, "Reminder Set!").
		HTML(tgui.Raw("I'll remind you "+prep+" ") + tgui.B(spec) + tgui.Raw(".")).
		KV("When", f.When(r.At()))
	if r.Message != "" {
		c.KV("Message", r.Message)
	}
	return req.Reply(ctx, c.Footer(footer).Build())
}

func (p *Plugin) cmdView(ctx context.Context, req *plugin.Request) error {
	rs, err := p.list(ctx, req)
	if err != nil {
		return err
	}
	if len(rs) == 0 {
		return req.Reply(ctx, card("📭", "No Reminders", "You have no active reminders."))
	}
	rc := p.remindersConfig(req)
	f := p.formatter(p.location(ctx, req), rc)
	limit := rc.ListLimit
	if limit <= 0 {
		limit = config.DefaultListLimit
	}

	c := tgui.NewCard("📌", "Your Reminders")
	for i, r := range rs {
		if i == limit {
			c.Line(fmt.Sprintf("… and %d more", len(rs)-limit))
			break
		}
		c.HTML(tgui.Code(strconv.Itoa(i+1)+".") + " " + tgui.Esc(f.When(r.At())) + " – " + messageHTML(r, rc))
	}
	c.Blank().Line("Cancel one with /remindme cancel #n")
	return req.Reply(ctx, c.Footer(footer).Build())
}

func messageHTML(r reminder.Reminder, rc config.RemindersConfig) tgui.H {
	if m := strings.TrimSpace(r.Message); m != "" {
		return tgui.Esc(m)
	}
	return tgui.I(rc.DefaultMessage)
}

func (p *Plugin) list(ctx context.Context, req *plugin.Request) ([]reminder.Reminder, error) {
	if p.Deps.Reminders == nil {
		return nil, errors.New("reminder scheduler not available")
	}
	return p.Deps.Reminders.List(ctx, req.FromID)
}

func (p *Plugin) cmdCancel(ctx context.Context, req *plugin.Request) error {
	rs, err := p.list(ctx, req)
	if err != nil {
		return err
	}
	if len(req.RawArgs) == 0 {
		return p.sendPicker(ctx, req, rs)
	}

	sel := strings.TrimSpace(req.RawArgs[0])
	id := sel
	if n, err := strconv.Atoi(strings.TrimPrefix(sel, "#")); err == nil {
		if n < 1 || n > len(rs) {
			return req.Reply(ctx, errCard("Invalid Selection", "That reminder doesn't exist anymore."))
		}
		id = rs[n-1].ID
	}
	msg := p.cancel(ctx, req, id, rs)
	return req.Reply(ctx, msg)
}

func (p *Plugin) sendPicker(ctx context.Context, req *plugin.Request, rs []reminder.Reminder) error {
	if len(rs) == 0 {
		return req.Reply(ctx, card("📭", "No Reminders", "You have no active reminders."))
	}
	rc := p.remindersConfig(req)
	loc := p.location(ctx, req)
	kb := tgui.NewInline()
	for i, r := range rs {
		if i == maxCancelButtons {
			break
		}
		data, err := tgui.Data(name, "cancel", r.ID)
		if err != nil {
			req.Logger.Warn("reminder id too long for a button", logx.ReminderID(r.ID))
			continue
		}
		msg := strings.TrimSpace(r.Message)
		if msg == "" {
			msg = rc.DefaultMessage
		}
		label := tgui.TruncRunes(msg, 32) + " – " + r.At().In(loc).Format("Jan 2 15:04")
		kb.Row(tgui.Btn(label, data))
	}
	m := tgui.NewCard("🗑️", "Cancel a Reminder").
		Line("Choose a reminder to cancel.").
		Inline(kb).
		Footer(footer).
		Build()
	return req.Reply(ctx, m)
}

// cancel removes one of the requester's reminders and renders the outcome.
func (p *Plugin) cancel(ctx context.Context, req *plugin.Request, id string, mine []reminder.Reminder) tgui.Message {
	var target *reminder.Reminder
	for i := range mine {
		if mine[i].ID == id {
			target = &mine[i]
			break
		}
	}
	if target == nil {
		return errCard("Invalid Selection", "That reminder doesn't exist anymore.")
	}

	ok, err := p.Deps.Reminders.Cancel(ctx, id, req.FromID)
	switch {
	case errors.Is(err, reminder.ErrNotOwner), err == nil && !ok:
		return errCard("Invalid Selection", "That reminder doesn't exist anymore.")
	case err != nil:
		req.Logger.Error("cancel reminder failed", logx.ReminderID(id), logx.Err(err))
		return errCard("Failed", "Could not cancel that reminder.")
	}
	req.Note(logx.ReminderID(id))

	rc := p.remindersConfig(req)
	return tgui.NewCard("✅", "Reminder Cancelled").
		HTML(tgui.Raw("Reminder for ") + wrapB(messageHTML(*target, rc)) + tgui.Raw(" was cancelled.")).
		Footer(footer).
		Build()
}

func wrapB(h tgui.H) tgui.H { return tgui.Raw("<b>") + h + tgui.Raw("</b>") }

func (p *Plugin) cbCancel(ctx context.Context, req *plugin.Request, payload string) error {
	rs, err := p.list(ctx, req)
	if err != nil {
		return err
	}
	msg := p.cancel(ctx, req, payload, rs)
	// the picker message turns into the result
	if cb := req.Update.Callback; cb != nil && cb.MessageID != 0 {
		return msg.Edit(ctx, req.Adapter, kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID})
	}
	return req.Reply(ctx, msg)
}

// humanDuration renders whole units: "10 seconds", "1 minute".
func humanDuration(d time.Duration) string {
	unit, n := "second", int64(d/time.Second)
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		unit, n = "hour", int64(d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		unit, n = "minute", int64(d/time.Minute)
	}
	if n != 1 {
		unit += "s"
	}
	return strconv.FormatInt(n, 10) + " " + unit
}
