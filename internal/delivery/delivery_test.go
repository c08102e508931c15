package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []kit.ChatTarget
	texts []string
	modes []string
	err   error
}

func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                     { return nil }
func (a *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (a *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (a *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return kit.MessageRef{}, a.err
	}
	a.sent = append(a.sent, to)
	a.texts = append(a.texts, text)
	a.modes = append(a.modes, opt.ParseMode)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(a.sent)}, nil
}

type resolvingAdapter struct {
	fakeAdapter
	known map[int64]string
}

func (a *resolvingAdapter) ResolveChat(_ context.Context, chatID int64) (kit.ChatInfo, error) {
	title, ok := a.known[chatID]
	if !ok {
		return kit.ChatInfo{}, kit.ErrChatUnavailable
	}
	return kit.ChatInfo{ID: chatID, Title: title, Type: "supergroup"}, nil
}

func TestNotifierWithoutResolverAssumesReachable(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	n := New(ad, logx.Nop())
	ch, err := n.ResolveChannel(context.Background(), -100, 5)
	if err != nil || ch.ChatID != -100 || ch.ThreadID != 5 {
		t.Fatalf("ch=%+v err=%v", ch, err)
	}
	if err := n.SendMessage(context.Background(), ch, reminder.Payload{Text: "hi", ParseMode: "HTML"}); err != nil {
		t.Fatal(err)
	}
	if ad.sent[0] != (kit.ChatTarget{ChatID: -100, ThreadID: 5}) || ad.modes[0] != "HTML" {
		t.Fatalf("sent=%+v modes=%v", ad.sent, ad.modes)
	}
}

func TestNotifierResolvesThroughAdapter(t *testing.T) {
	t.Parallel()

	ad := &resolvingAdapter{known: map[int64]string{-100: "Kitchen"}}
	n := New(ad, logx.Nop())

	ch, err := n.ResolveChannel(context.Background(), -100, 0)
	if err != nil || ch.Title != "Kitchen" {
		t.Fatalf("ch=%+v err=%v", ch, err)
	}
	_, err = n.ResolveChannel(context.Background(), -200, 0)
	if !errors.Is(err, kit.ErrChatUnavailable) || !errors.Is(err, reminder.ErrChannelUnavailable) {
		t.Fatalf("want both unavailable sentinels, got %v", err)
	}
}

func TestNotifyUserDirectlyTargetsPrivateChat(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	n := New(ad, logx.Nop())
	if err := n.NotifyUserDirectly(context.Background(), 42, reminder.Payload{Text: "x"}); err != nil {
		t.Fatal(err)
	}
	if ad.sent[0] != (kit.ChatTarget{ChatID: 42}) {
		t.Fatalf("target=%+v", ad.sent[0])
	}

	ad.err = errors.New("forbidden: bot can't initiate conversation")
	if err := n.NotifyUserDirectly(context.Background(), 42, reminder.Payload{Text: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFormatter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := Formatter{Location: time.UTC, Now: func() time.Time { return now }}

	r := reminder.Reminder{ID: "x", UserID: 42, UserName: "Ana <3", Message: "check oven", RemindAt: now.UnixMilli()}
	p := f.Reminder(r)
	for _, want := range []string{"⏰ <b>Reminder!</b>", `<a href="tg://user?id=42">Ana &lt;3</a> check oven`, "<i>Reminder</i>"} {
		if !strings.Contains(p.Text, want) {
			t.Errorf("reminder text %q missing %q", p.Text, want)
		}
	}
	if p.ParseMode != "HTML" {
		t.Fatalf("parse mode %q", p.ParseMode)
	}

	r.Message = ""
	if p := f.Reminder(r); !strings.Contains(p.Text, "<i>No message provided</i>") {
		t.Fatalf("default message missing: %q", p.Text)
	}

	r.RemindAt = now.Add(-5 * time.Minute).UnixMilli()
	u := f.Unrestorable(r, "The chat is no longer reachable.")
	for _, want := range []string{"Could Not Be Restored", "The chat is no longer reachable.", "Sun, 01 Mar 2026 11:55 UTC", "5 minutes ago"} {
		if !strings.Contains(u.Text, want) {
			t.Errorf("unrestorable text %q missing %q", u.Text, want)
		}
	}
	if m := f.Missed(r); !strings.Contains(m.Text, "offline") {
		t.Fatalf("missed text %q", m.Text)
	}
}
