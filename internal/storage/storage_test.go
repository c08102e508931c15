package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func sample(id string, createdAt int64) Reminder {
	return Reminder{
		ID:        id,
		UserID:    100,
		UserName:  "ana",
		ChatID:    -200,
		ThreadID:  3,
		RemindAt:  time.Now().Add(time.Hour).UnixMilli(),
		Message:   "stretch",
		CreatedAt: createdAt,
	}
}

// exerciseStore runs the behaviour every driver must share.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if err := st.PutReminder(ctx, Reminder{ID: "bad"}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("invalid put: want ErrInvalidRecord, got %v", err)
	}

	b, a := sample("b", 2), sample("a", 1)
	for _, r := range []Reminder{b, a} {
		if err := st.PutReminder(ctx, r); err != nil {
			t.Fatalf("put %s: %v", r.ID, err)
		}
	}

	got, ok, err := st.GetReminder(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get a: ok=%v err=%v", ok, err)
	}
	if got.Version != SchemaVersion || got.Message != "stretch" || got.ThreadID != 3 || got.UserName != "ana" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	list, err := st.ListReminders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("list order: %+v", list)
	}

	// upsert keeps one record
	a.Message = "water"
	if err := st.PutReminder(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got, _, _ := st.GetReminder(ctx, "a"); got.Message != "water" {
		t.Fatalf("upsert lost: %+v", got)
	}

	existed, err := st.DeleteReminder(ctx, "a")
	if err != nil || !existed {
		t.Fatalf("delete a: existed=%v err=%v", existed, err)
	}
	existed, err = st.DeleteReminder(ctx, "a")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
	if _, ok, _ := st.GetReminder(ctx, "a"); ok {
		t.Fatalf("a still present")
	}

	if err := st.PutTimezone(ctx, 100, "Asia/Jakarta"); err != nil {
		t.Fatal(err)
	}
	if tz, ok, err := st.GetTimezone(ctx, 100); err != nil || !ok || tz != "Asia/Jakarta" {
		t.Fatalf("tz=%q ok=%v err=%v", tz, ok, err)
	}
	if existed, err := st.DeleteTimezone(ctx, 100); err != nil || !existed {
		t.Fatalf("delete tz: existed=%v err=%v", existed, err)
	}
	if _, ok, _ := st.GetTimezone(ctx, 100); ok {
		t.Fatalf("tz still present")
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemory())
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reminders.db")
	cfg := Config{Driver: "file", Path: path, CompactEvery: 3}

	st, err := Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, st)
	if err := st.PutReminder(ctx, sample("c", 3)); err != nil {
		t.Fatal(err)
	}
	if err := st.PutTimezone(ctx, 7, "UTC"); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	// simulate a torn write
	jf, err := os.OpenFile(filepath.Join(filepath.Dir(path), "reminders.journal.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = jf.WriteString(`{"op":"put","kind":"rem`)
	_ = jf.Close()

	st, err = Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	list, _ := st.ListReminders(ctx)
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "c" {
		t.Fatalf("after reopen: %+v", list)
	}
	if tz, ok, _ := st.GetTimezone(ctx, 7); !ok || tz != "UTC" {
		t.Fatalf("tz after reopen: %q %v", tz, ok)
	}

	c, ok := st.(Compactor)
	if !ok {
		t.Fatalf("file store should implement Compactor")
	}
	if err := c.Compact(ctx); err != nil {
		t.Fatalf("compact: %v", err)
	}
	if fi, err := os.Stat(filepath.Join(filepath.Dir(path), "reminders.journal.jsonl")); err != nil || fi.Size() != 0 {
		t.Fatalf("journal not truncated: %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reminders.sqlite")
	st, err := Open(ctx, Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, st)
	if err := st.PutReminder(ctx, sample("z", 9)); err != nil {
		t.Fatal(err)
	}
	if err := st.(Compactor).Compact(ctx); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	_ = st.Close()

	st, err = Open(ctx, Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, ok, _ := st.GetReminder(ctx, "z"); !ok {
		t.Fatalf("z lost across reopen")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REMINDBOT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("REMINDBOT_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	prefix := "remindbot-test:" + time.Now().Format("150405.000") + ":"
	st, err := Open(ctx, Config{Driver: "redis", RedisURL: url, KeyPrefix: prefix}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	exerciseStore(t, st)
	_, _ = st.DeleteReminder(ctx, "b")
}

func TestFirestoreStore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	st, err := Open(ctx, Config{Driver: "firestore", FirestoreProject: "remindbot-test", KeyPrefix: "t" + time.Now().Format("150405") + "_"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	exerciseStore(t, st)
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none: %v", err)
	}
	if _, err := Open(context.Background(), Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
	if _, err := Open(context.Background(), Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("file without path accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		r    Reminder
		ok   bool
	}{
		{"complete", sample("x", 1), true},
		{"no id", Reminder{UserID: 1, ChatID: 1, RemindAt: 1}, false},
		{"no user", Reminder{ID: "x", ChatID: 1, RemindAt: 1}, false},
		{"no chat", Reminder{ID: "x", UserID: 1, RemindAt: 1}, false},
		{"no time", Reminder{ID: "x", UserID: 1, ChatID: 1}, false},
		{"future version", Reminder{Version: 9, ID: "x", UserID: 1, ChatID: 1, RemindAt: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate()=%v want ok=%v", err, tc.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("error not wrapped: %v", err)
			}
		})
	}
}
