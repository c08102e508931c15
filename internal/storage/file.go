package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	logx "remindbot/pkg/logx"
)

// fileStore keeps everything in memory and persists it as:
//   - <prefix>.snapshot.json (full state, rewritten on compaction)
//   - <prefix>.journal.jsonl (appended and fsynced per write)
//
// Opening loads the snapshot and replays the journal over it.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	reminders map[string]Reminder
	timezones map[int64]string

	writes       int
	compactEvery int
}

type fileSnapshot struct {
	Reminders map[string]Reminder `json:"reminders"`
	Timezones map[string]string   `json:"timezones"`
}

const (
	opPut = "put"
	opDel = "del"

	kindReminder = "reminder"
	kindTimezone = "tz"
)

type journalRecord struct {
	Op       string    `json:"op"`
	Kind     string    `json:"kind"`
	Key      string    `json:"key"`
	Reminder *Reminder `json:"reminder,omitempty"`
	TZ       string    `json:"tz,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	prefix := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base)))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		reminders:    map[string]Reminder{},
		timezones:    map[int64]string{},
		compactEvery: cfg.CompactEvery,
	}
	if s.compactEvery <= 0 {
		s.compactEvery = 500
	}

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	journalPath := prefix + ".journal.jsonl"
	skipped, err := s.replayJournal(journalPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("skipped corrupt journal lines", logx.Int("lines", skipped), logx.String("path", journalPath))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	if skipped > 0 {
		// rewrite so later appends do not land after a partial line
		if err := s.compactLocked(); err != nil {
			_ = jf.Close()
			return nil, err
		}
	}
	log.Debug("file store opened", logx.String("path", prefix), logx.Int("reminders", len(s.reminders)))
	return s, nil
}

func (s *fileStore) loadSnapshot() error {
	b, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		return err
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for id, r := range snap.Reminders {
		s.reminders[id] = r
	}
	for k, tz := range snap.Timezones {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			s.timezones[id] = tz
		}
	}
	return nil
}

// replayJournal applies journal records in order. A torn last line from a
// crash mid-write is skipped.
func (s *fileStore) replayJournal(path string) (skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var rec journalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil || rec.Key == "" {
			skipped++
			continue
		}
		s.apply(rec)
	}
	return skipped, sc.Err()
}

func (s *fileStore) apply(rec journalRecord) {
	switch rec.Kind {
	case kindReminder:
		if rec.Op == opPut && rec.Reminder != nil {
			s.reminders[rec.Key] = *rec.Reminder
		} else if rec.Op == opDel {
			delete(s.reminders, rec.Key)
		}
	case kindTimezone:
		id, err := strconv.ParseInt(rec.Key, 10, 64)
		if err != nil {
			return
		}
		if rec.Op == opPut {
			s.timezones[id] = rec.TZ
		} else if rec.Op == opDel {
			delete(s.timezones, id)
		}
	}
}

// appendLocked writes rec to the journal and fsyncs before applying it.
func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journal == nil {
		return errors.New("file store closed")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := s.journal.Write(b); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	s.apply(rec)

	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) PutReminder(_ context.Context, r Reminder) error {
	if err := prepareWrite(&r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(journalRecord{Op: opPut, Kind: kindReminder, Key: r.ID, Reminder: &r})
}

func (s *fileStore) GetReminder(_ context.Context, id string) (Reminder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	return r, ok, nil
}

func (s *fileStore) DeleteReminder(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[id]; !ok {
		return false, nil
	}
	if err := s.appendLocked(journalRecord{Op: opDel, Kind: kindReminder, Key: id}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) ListReminders(context.Context) ([]Reminder, error) {
	s.mu.Lock()
	out := make([]Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	s.mu.Unlock()
	sortReminders(out)
	return out, nil
}

func (s *fileStore) PutTimezone(_ context.Context, userID int64, tz string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(journalRecord{Op: opPut, Kind: kindTimezone, Key: strconv.FormatInt(userID, 10), TZ: tz})
}

func (s *fileStore) GetTimezone(_ context.Context, userID int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tz, ok := s.timezones[userID]
	return tz, ok, nil
}

func (s *fileStore) DeleteTimezone(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timezones[userID]; !ok {
		return false, nil
	}
	if err := s.appendLocked(journalRecord{Op: opDel, Kind: kindTimezone, Key: strconv.FormatInt(userID, 10)}); err != nil {
		return false, err
	}
	return true, nil
}

// Compact folds the journal into a fresh snapshot.
func (s *fileStore) Compact(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("file store closed")
	}
	return s.compactLocked()
}

func (s *fileStore) compactLocked() error {
	snap := fileSnapshot{
		Reminders: s.reminders,
		Timezones: make(map[string]string, len(s.timezones)),
	}
	for id, tz := range s.timezones {
		snap.Timezones[strconv.FormatInt(id, 10)] = tz
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// the snapshot now covers every journal entry
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}
