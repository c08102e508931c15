package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu        sync.Mutex
	reminders map[string]Reminder
	timezones map[int64]string
}

// NewMemory returns an empty process-local store.
func NewMemory() Store {
	return &memoryStore{reminders: map[string]Reminder{}, timezones: map[int64]string{}}
}

func (s *memoryStore) PutReminder(_ context.Context, r Reminder) error {
	if err := prepareWrite(&r); err != nil {
		return err
	}
	s.mu.Lock()
	s.reminders[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) GetReminder(_ context.Context, id string) (Reminder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	return r, ok, nil
}

func (s *memoryStore) DeleteReminder(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reminders[id]
	delete(s.reminders, id)
	return ok, nil
}

func (s *memoryStore) ListReminders(context.Context) ([]Reminder, error) {
	s.mu.Lock()
	out := make([]Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	s.mu.Unlock()
	sortReminders(out)
	return out, nil
}

func (s *memoryStore) PutTimezone(_ context.Context, userID int64, tz string) error {
	s.mu.Lock()
	s.timezones[userID] = tz
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) GetTimezone(_ context.Context, userID int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tz, ok := s.timezones[userID]
	return tz, ok, nil
}

func (s *memoryStore) DeleteTimezone(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timezones[userID]
	delete(s.timezones, userID)
	return ok, nil
}

func (s *memoryStore) Close() error { return nil }
