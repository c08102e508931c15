package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// manualClock fires timers only from Advance, on the caller's goroutine.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	c       *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// Advance moves time forward and runs every timer that came due, in order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// fakeStore is an in-memory Store with failure injection.
type fakeStore struct {
	mu      sync.Mutex
	recs    map[string]Reminder
	listErr error
	deletes map[string]int
}

func newFakeStore(rs ...Reminder) *fakeStore {
	s := &fakeStore{recs: map[string]Reminder{}, deletes: map[string]int{}}
	for _, r := range rs {
		s.recs[r.ID] = r
	}
	return s
}

func (s *fakeStore) PutReminder(_ context.Context, r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[r.ID] = r
	return nil
}

func (s *fakeStore) GetReminder(_ context.Context, id string) (Reminder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	return r, ok, nil
}

func (s *fakeStore) DeleteReminder(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes[id]++
	_, ok := s.recs[id]
	delete(s.recs, id)
	return ok, nil
}

func (s *fakeStore) ListReminders(context.Context) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]Reminder, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recs[id]
	return ok
}

type sent struct {
	ch Channel
	p  Payload
}

type direct struct {
	userID int64
	p      Payload
}

// fakeMessenger records sends. Chats in gone do not resolve.
type fakeMessenger struct {
	mu      sync.Mutex
	gone    map[int64]bool
	flaky   map[int64]bool
	sendErr error
	sends   []sent
	directs []direct
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{gone: map[int64]bool{}, flaky: map[int64]bool{}}
}

func (m *fakeMessenger) ResolveChannel(_ context.Context, chatID int64, threadID int) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gone[chatID] {
		return Channel{}, fmt.Errorf("chat %d: %w", chatID, ErrChannelUnavailable)
	}
	if m.flaky[chatID] {
		return Channel{}, fmt.Errorf("chat %d: connection reset", chatID)
	}
	return Channel{ChatID: chatID, ThreadID: threadID}, nil
}

func (m *fakeMessenger) SendMessage(_ context.Context, ch Channel, p Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sent{ch, p})
	return m.sendErr
}

func (m *fakeMessenger) NotifyUserDirectly(_ context.Context, userID int64, p Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directs = append(m.directs, direct{userID, p})
	return nil
}

func (m *fakeMessenger) snapshot() ([]sent, []direct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.sends...), append([]direct(nil), m.directs...)
}

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("r%03d", n)
	}
}
