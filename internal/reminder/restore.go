package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// Restore re-arms persisted reminders after a restart. It runs once, and
// Create refuses work until it has finished.
//
// Per record:
//   - invalid: the user (if known) is told the reminder was unreadable and
//     the record is deleted
//   - channel unresolvable, for any reason: the user is told directly and
//     the record is deleted
//   - future: timer armed, nothing rewritten
//   - past due: handled by the missed policy
//
// One record failing never stops the rest. Only a failure to read the
// store is returned, and Restore may then be retried.
func (s *Scheduler) Restore(ctx context.Context) (RestoreReport, error) {
	if s.restored.Load() || !s.restoring.CompareAndSwap(false, true) {
		return RestoreReport{}, ErrAlreadyRestored
	}

	records, err := s.store.ListReminders(ctx)
	if err != nil {
		s.restoring.Store(false)
		return RestoreReport{}, fmt.Errorf("list reminders: %w", err)
	}

	var rep RestoreReport
	rep.Total = len(records)
	for _, r := range records {
		s.restoreOne(ctx, r, &rep)
	}

	s.restored.Store(true)
	s.log.Info("reminders restored",
		logx.Int("total", rep.Total), logx.Int("armed", rep.Armed), logx.Int("missed", rep.Missed),
		logx.Int("fired_late", rep.FiredLate), logx.Int("unrestorable", rep.Unrestorable),
		logx.Int("invalid", rep.Invalid), logx.Int("notify_failed", rep.NotifyFailed))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.RemindersRestored, Time: s.clock.Now(), Data: rep})
	}
	return rep, nil
}

func (s *Scheduler) restoreOne(ctx context.Context, r Reminder, rep *RestoreReport) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("restoring reminder panicked", logx.ReminderID(r.ID), logx.Any("panic", p))
		}
	}()
	log := s.log.With(logx.ReminderID(r.ID), logx.UserID(r.UserID), logx.ChatID(r.ChatID))

	r.Normalize()
	if err := r.Validate(); err != nil {
		rep.Invalid++
		log.Warn("invalid reminder record", logx.Err(err))
		if r.UserID != 0 && !s.notify(ctx, r.UserID, s.render.Unrestorable(r, "The stored reminder is incomplete.")) {
			rep.NotifyFailed++
		}
		s.forget(ctx, r.ID, log)
		return
	}

	if _, err := s.resolve(ctx, r); err != nil {
		rep.Unrestorable++
		reason := "The chat could not be reached while the bot was restarting."
		if errors.Is(err, ErrChannelUnavailable) {
			reason = "The chat is no longer reachable."
		}
		log.Warn("reminder channel unresolvable", logx.Err(err))
		if !s.notify(ctx, r.UserID, s.render.Unrestorable(r, reason)) {
			rep.NotifyFailed++
		}
		s.forget(ctx, r.ID, log)
		s.publish(eventbus.ReminderUnrestorable, r, err.Error())
		return
	}

	s.mu.Lock()
	armed := s.armLocked(r, s.clock.Now())
	s.mu.Unlock()
	if armed {
		rep.Armed++
		return
	}

	switch s.handleMissed(ctx, r, log) {
	case MissedFire:
		rep.FiredLate++
	default:
		rep.Missed++
	}
}

func (s *Scheduler) resolve(ctx context.Context, r Reminder) (Channel, error) {
	if s.cfg.RestoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RestoreTimeout)
		defer cancel()
	}
	return s.msg.ResolveChannel(ctx, r.ChatID, r.ThreadID)
}

// handleMissed applies the missed policy to a past-due record that has no
// timer. The record is deleted before anything is sent.
func (s *Scheduler) handleMissed(ctx context.Context, r Reminder, log logx.Logger) MissedPolicy {
	s.forget(ctx, r.ID, log)
	if s.cfg.MissedPolicy == MissedFire {
		s.inflight.Add(1)
		defer s.inflight.Done()
		s.deliver(ctx, r)
		return MissedFire
	}
	log.Info("reminder missed while offline", logx.Time("remind_at", r.At()))
	if !s.notify(ctx, r.UserID, s.render.Missed(r)) {
		log.Warn("missed-reminder notice not delivered")
	}
	s.publish(eventbus.ReminderMissed, r, "")
	return MissedNotify
}

func (s *Scheduler) forget(ctx context.Context, id string, log logx.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.Cancel(id)
	if _, err := s.store.DeleteReminder(ctx, id); err != nil {
		log.Error("delete reminder failed", logx.Err(err))
	}
}

func (s *Scheduler) notify(ctx context.Context, userID int64, p Payload) bool {
	if err := s.msg.NotifyUserDirectly(ctx, userID, p); err != nil {
		s.log.Warn("direct notification failed", logx.UserID(userID), logx.Err(err))
		return false
	}
	return true
}

// SweepStale applies the missed policy to persisted reminders that are due
// by more than grace and have no timer. These come from a Create whose
// time had already passed or from a store edited while running.
func (s *Scheduler) SweepStale(ctx context.Context, grace time.Duration) (int, error) {
	if !s.restored.Load() {
		return 0, ErrNotRestored
	}
	records, err := s.store.ListReminders(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.clock.Now().Add(-grace).UnixMilli()
	n := 0
	for _, r := range records {
		if r.RemindAt > cutoff {
			continue
		}
		stale, ok := s.takeStale(ctx, r.ID)
		if !ok {
			continue
		}
		n++
		log := s.log.With(logx.ReminderID(stale.ID), logx.UserID(stale.UserID))
		log.Info("sweeping stale reminder", logx.Time("remind_at", stale.At()))
		s.handleMissed(ctx, stale, log)
	}
	return n, nil
}

// takeStale re-reads the record under the lock so a concurrent fire or
// cancel is not swept twice.
func (s *Scheduler) takeStale(ctx context.Context, id string) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.reg.Has(id) {
		return Reminder{}, false
	}
	r, ok, err := s.store.GetReminder(ctx, id)
	if err != nil || !ok {
		return Reminder{}, false
	}
	r.Normalize()
	if r.Validate() != nil {
		if _, err := s.store.DeleteReminder(ctx, id); err != nil {
			s.log.Error("delete invalid reminder failed", logx.ReminderID(id), logx.Err(err))
		}
		return Reminder{}, false
	}
	return r, true
}
