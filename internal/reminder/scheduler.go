package reminder

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

type Config struct {
	MissedPolicy MissedPolicy
	// DeliveryTimeout bounds one channel send. 0 means no timeout.
	DeliveryTimeout time.Duration
	// RestoreTimeout bounds one channel lookup during Restore.
	RestoreTimeout time.Duration
}

type Option func(*Scheduler)

func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

func WithLogger(log logx.Logger) Option { return func(s *Scheduler) { s.log = log } }

func WithBus(b eventbus.Bus) Option { return func(s *Scheduler) { s.bus = b } }

func WithRenderer(r Renderer) Option { return func(s *Scheduler) { s.render = r } }

// WithIDGenerator replaces the UUID generator (tests).
func WithIDGenerator(fn func() string) Option { return func(s *Scheduler) { s.newID = fn } }

// Scheduler creates, restores, fires and cancels reminders.
type Scheduler struct {
	cfg    Config
	store  Store
	msg    Messenger
	clock  Clock
	bus    eventbus.Bus
	log    logx.Logger
	render Renderer
	newID  func() string

	// mu serializes lifecycle transitions. Delivery I/O happens outside it.
	mu      sync.Mutex
	reg     *Registry
	stopped bool

	restoring atomic.Bool
	restored  atomic.Bool

	runCtx   context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func NewScheduler(cfg Config, store Store, msg Messenger, opts ...Option) *Scheduler {
	s := &Scheduler{cfg: cfg, store: store, msg: msg, newID: uuid.NewString}
	for _, o := range opts {
		o(s)
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.render == nil {
		s.render = PlainRenderer{}
	}
	if s.cfg.MissedPolicy == "" {
		s.cfg.MissedPolicy = MissedNotify
	}
	s.reg = NewRegistry(s.clock)
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Restored reports whether Restore has completed.
func (s *Scheduler) Restored() bool { return s.restored.Load() }

// Pending is the number of armed timers.
func (s *Scheduler) Pending() int { return s.reg.Len() }

// Create persists a new reminder and arms its timer. The record is durable
// and the timer registered before Create returns. A RemindAt that is
// already past arms nothing; the record stays for the stale sweep.
func (s *Scheduler) Create(ctx context.Context, d Draft) (Reminder, error) {
	if !s.restored.Load() {
		return Reminder{}, ErrNotRestored
	}
	now := s.clock.Now()
	r := Reminder{
		ID:        s.newID(),
		UserID:    d.UserID,
		UserName:  d.UserName,
		ChatID:    d.ChatID,
		ThreadID:  d.ThreadID,
		RemindAt:  d.RemindAt.UnixMilli(),
		Message:   d.Message,
		CreatedAt: now.UnixMilli(),
	}
	r.Normalize()
	if err := r.Validate(); err != nil {
		return Reminder{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Reminder{}, ErrStopped
	}
	if err := s.store.PutReminder(ctx, r); err != nil {
		return Reminder{}, fmt.Errorf("persist reminder: %w", err)
	}
	s.armLocked(r, now)

	s.log.Info("reminder created",
		logx.ReminderID(r.ID), logx.UserID(r.UserID), logx.ChatID(r.ChatID),
		logx.Time("remind_at", r.At()))
	s.publish(eventbus.ReminderCreated, r, "")
	return r, nil
}

func (s *Scheduler) armLocked(r Reminder, now time.Time) bool {
	delay := r.At().Sub(now)
	if delay <= 0 {
		s.log.Warn("reminder already due; not arming", logx.ReminderID(r.ID), logx.Duration("late_by", -delay))
		return false
	}
	s.reg.Arm(r, delay, s.fire)
	return true
}

// fire runs on the timer goroutine.
func (s *Scheduler) fire(id string, gen uint64) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("reminder callback panicked", logx.ReminderID(id), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
		}
	}()

	r, ok := s.claim(id, gen)
	if !ok {
		return
	}
	defer s.inflight.Done()
	s.deliver(s.runCtx, r)
}

// claim wins the race against Cancel and Stop: the registry entry and the
// record leave together, before any delivery I/O.
func (s *Scheduler) claim(id string, gen uint64) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Reminder{}, false
	}
	r, ok := s.reg.Claim(id, gen)
	if !ok {
		return Reminder{}, false
	}
	if _, err := s.store.DeleteReminder(s.runCtx, id); err != nil {
		s.log.Error("delete fired reminder failed", logx.ReminderID(id), logx.Err(err))
	}
	s.inflight.Add(1)
	return r, true
}

// deliver resolves the channel and sends once. Failures are logged, never
// retried.
func (s *Scheduler) deliver(ctx context.Context, r Reminder) {
	if s.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
		defer cancel()
	}
	log := s.log.With(logx.ReminderID(r.ID), logx.ChatID(r.ChatID), logx.UserID(r.UserID))

	ch, err := s.msg.ResolveChannel(ctx, r.ChatID, r.ThreadID)
	if err == nil {
		err = s.msg.SendMessage(ctx, ch, s.render.Reminder(r))
	}
	if err != nil {
		log.Warn("reminder delivery failed", logx.Err(err))
		s.publish(eventbus.ReminderDeliveryFailed, r, err.Error())
		return
	}
	log.Info("reminder delivered", logx.Duration("late_by", s.clock.Now().Sub(r.At())))
	s.publish(eventbus.ReminderDelivered, r, "")
}

// Remove stops the timer and deletes the record, reporting whether a
// record existed. It is idempotent.
func (s *Scheduler) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, id)
}

func (s *Scheduler) removeLocked(ctx context.Context, id string) (bool, error) {
	s.reg.Cancel(id)
	existed, err := s.store.DeleteReminder(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete reminder: %w", err)
	}
	return existed, nil
}

// Cancel is Remove for a user request. It returns ErrNotOwner when the
// reminder belongs to someone else and false when it no longer exists.
func (s *Scheduler) Cancel(ctx context.Context, id string, requester int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load reminder: %w", err)
	}
	if !ok {
		// a leftover timer without a record still goes away
		s.reg.Cancel(id)
		return false, nil
	}
	if r.UserID != requester {
		return false, ErrNotOwner
	}
	existed, err := s.removeLocked(ctx, id)
	if err != nil {
		return false, err
	}
	if existed {
		s.log.Info("reminder cancelled", logx.ReminderID(id), logx.UserID(requester))
		s.publish(eventbus.ReminderCancelled, r, "")
	}
	return existed, nil
}

// List returns the persisted reminders of a user ordered by creation.
func (s *Scheduler) List(ctx context.Context, userID int64) ([]Reminder, error) {
	all, err := s.store.ListReminders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Reminder, 0, 4)
	for _, r := range all {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Stop disarms every timer and waits (bounded by ctx) for deliveries in
// progress. Records stay persisted for the next Restore.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	n := s.reg.StopAll()
	s.mu.Unlock()
	s.log.Debug("scheduler stopping", logx.Int("disarmed", n))

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	defer s.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for deliveries: %w", ctx.Err())
	}
}

func (s *Scheduler) publish(typ string, r Reminder, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: typ,
		Time: s.clock.Now(),
		Data: eventbus.ReminderEvent{ID: r.ID, UserID: r.UserID, ChatID: r.ChatID, Reason: reason},
	})
}
