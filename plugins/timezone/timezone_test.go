package timezone

import (
	"context"
	"strings"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/plugin"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type fakeAdapter struct{ out chan string }

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.out <- text
	return kit.MessageRef{ChatID: to.ChatID}, nil
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func setup(t *testing.T) (func(text string) string, storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Reminders.Timezone = "Asia/Jakarta"
	cfgm := config.NewConfigManager(t.TempDir() + "/config.yaml")
	cfgm.Commit(cfg)

	p := New()
	p.now = func() time.Time { return time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC) }
	if err := p.Init(context.Background(), plugin.Deps{Logger: logx.Nop(), Store: store, Config: cfgm}); err != nil {
		t.Fatal(err)
	}

	ad := &fakeAdapter{out: make(chan string, 4)}
	cmdm := router.NewCommandManager(logx.Nop(), ad, cfgm, nil, nil)
	cmdm.SetRegistry(p.Commands(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 4)
	done := make(chan struct{})
	go func() {
		_ = cmdm.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	send := func(text string) string {
		t.Helper()
		updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 9, FromID: 9, Text: text}}
		select {
		case s := <-ad.out:
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("no reply")
			return ""
		}
	}
	return send, store
}

func TestTimezoneLifecycle(t *testing.T) {
	t.Parallel()
	send, store := setup(t)

	if out := send("/timezone show"); !strings.Contains(out, "No Timezone Set") || !strings.Contains(out, "Asia/Jakarta") || !strings.Contains(out, "19:00 WIB") {
		t.Fatalf("show default:\n%s", out)
	}

	if out := send("/timezone set Mars/Olympus"); !strings.Contains(out, "Invalid Timezone") {
		t.Fatalf("invalid zone accepted:\n%s", out)
	}
	if out := send("/timezone set Local"); !strings.Contains(out, "Invalid Timezone") {
		t.Fatalf("Local accepted:\n%s", out)
	}

	out := send("/tz Europe/Berlin")
	if !strings.Contains(out, "Timezone Saved") || !strings.Contains(out, "13:00 CET") {
		t.Fatalf("set:\n%s", out)
	}
	if tz, ok, _ := store.GetTimezone(context.Background(), 9); !ok || tz != "Europe/Berlin" {
		t.Fatalf("stored %q %v", tz, ok)
	}
	if out := send("/timezone show"); !strings.Contains(out, "Europe/Berlin") {
		t.Fatalf("show:\n%s", out)
	}

	if out := send("/timezone clear"); !strings.Contains(out, "Timezone Cleared") {
		t.Fatalf("clear:\n%s", out)
	}
	if out := send("/timezone clear"); !strings.Contains(out, "No Timezone Set") {
		t.Fatalf("second clear:\n%s", out)
	}
}
