package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "remindbot/internal/transport"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in, zerolog.InfoLevel); got != tc.want {
			t.Fatalf("parseLevel(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()

	line := []byte(`{"level":"warn","time":"x","message":"reminder delivery failed","id":"abc","chat_id":7}` + "\n")
	got := formatTelegramJSON(line)
	want := "[WARN] reminder delivery failed\n- chat_id=7\n- id=abc"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	line = []byte(`{"level":"error","message":"reminder delivery failed","attempt":2,"user_id":42,"reminder_id":"r9","chat_id":-100}`)
	want = "[ERROR] reminder delivery failed\n- reminder_id=r9\n- user_id=42\n- chat_id=-100\n- attempt=2"
	if got := formatTelegramJSON(line); got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	if got := formatTelegramJSON([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("non-json line: got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := truncate(strings.Repeat("a", 20), 12); got != "aaaaaaaaa..." {
		t.Fatalf("got %q", got)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Info("ignored", String("k", "v"))
	if Nop().IsZero() {
		t.Fatalf("Nop logger should not be zero")
	}
}

func TestWithKeepsParentFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := Logger{src: fixed(zerolog.New(&buf))}.With(ReminderID("r1"))
	a := base.With(ChatID(-100), Thread(0))
	b := base.With(UserID(42), Thread(7))
	a.Info("a", Err(nil))
	b.Warn("b")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("lines=%q", lines)
	}
	var first, second map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatal(err)
	}
	if first["reminder_id"] != "r1" || first["chat_id"] != float64(-100) {
		t.Fatalf("first=%v", first)
	}
	if _, ok := first["thread_id"]; ok {
		t.Fatalf("zero thread logged: %v", first)
	}
	if _, ok := first["user_id"]; ok {
		t.Fatalf("sibling field leaked: %v", first)
	}
	if second["user_id"] != float64(42) || second["thread_id"] != float64(7) {
		t.Fatalf("second=%v", second)
	}
	if c, _ := first["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller=%q", c)
	}
}

type captureSender struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (c *captureSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	c.to = append(c.to, to)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureSender) snapshot() ([]string, []kit.ChatTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...), append([]kit.ChatTarget(nil), c.to...)
}

func TestServiceTelegramSinkRespectsMinLevel(t *testing.T) {
	t.Parallel()

	snd := &captureSender{}
	svc, log := New(Config{Level: "debug", Telegram: TelegramConfig{Enabled: false, MinLevel: "warn", RatePerSec: 50}}, snd)
	defer svc.Close()
	svc.SetTelegramTarget(-100123, 9)
	svc.Apply(Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 50}})

	log.Info("not forwarded")
	log.Warn("forwarded", String("id", "r1"))
	svc.Announce("remindbot started")

	deadline := time.Now().Add(2 * time.Second)
	for {
		sent, to := snd.snapshot()
		if len(sent) >= 2 {
			for _, s := range sent {
				if strings.Contains(s, "not forwarded") {
					t.Fatalf("info line must not reach the log chat: %q", s)
				}
			}
			if to[0].ChatID != -100123 || to[0].ThreadID != 9 {
				t.Fatalf("unexpected target %+v", to[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 telegram lines, got %d: %q", len(sent), sent)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
