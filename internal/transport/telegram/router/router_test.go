package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []sent
	answered []string
	menus    [][]kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to, text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id+"="+text)
	return nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.text
	}
	return out
}

func startManager(t *testing.T, ad kit.Adapter, cmds []Command, cbs []CallbackRoute) chan<- kit.Update {
	t.Helper()
	m := NewCommandManager(logx.Nop(), ad, nil, nil, []int64{1})
	m.SetRegistry(cmds, cbs)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func message(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 100, FromID: from, FromName: "Ann", Text: text}}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func TestRouteSubcommandKeepsTail(t *testing.T) {
	t.Parallel()

	got := make(chan *Request, 1)
	updates := startManager(t, &fakeAdapter{}, []Command{
		{Route: "remindme in", Handle: func(_ context.Context, r *Request) error { got <- r; return nil }},
	}, nil)

	updates <- message(5, `/remindme in 10m  don't forget "the" oven`)
	r := waitFor(t, got)
	if strings.Join(r.Path, " ") != "remindme in" {
		t.Fatalf("path=%q", r.Path)
	}
	if r.FromName != "Ann" || r.FromID != 5 {
		t.Fatalf("from=%d %q", r.FromID, r.FromName)
	}
	if r.Tail(1) != `don't forget "the" oven` {
		t.Fatalf("tail(1)=%q", r.Tail(1))
	}
	if r.Tail(0) != `10m  don't forget "the" oven` {
		t.Fatalf("tail(0)=%q", r.Tail(0))
	}
	if r.Tail(9) != "" {
		t.Fatalf("tail past end=%q", r.Tail(9))
	}
}

func TestRouteMenuAlias(t *testing.T) {
	t.Parallel()

	got := make(chan *Request, 1)
	updates := startManager(t, &fakeAdapter{}, []Command{
		{Route: "remindme view", Handle: func(_ context.Context, r *Request) error { got <- r; return nil }},
	}, nil)

	updates <- message(5, "/remindme_view@remindbot")
	if r := waitFor(t, got); r.Command != "remindme view" {
		t.Fatalf("command=%q", r.Command)
	}
}

func TestOwnerOnlyCommandRejected(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	ran := make(chan struct{}, 1)
	updates := startManager(t, ad, []Command{
		{Route: "admin", Access: AccessOwnerOnly, Handle: func(context.Context, *Request) error { ran <- struct{}{}; return nil }},
	}, nil)

	updates <- message(5, "/admin")
	updates <- message(1, "/admin")
	waitFor(t, ran)
	if texts := ad.texts(); len(texts) != 1 || texts[0] != "unauthorized" {
		t.Fatalf("sent=%q", texts)
	}
}

func TestCallbackRouting(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	got := make(chan string, 1)
	updates := startManager(t, ad, nil, []CallbackRoute{
		{Plugin: "remindme", Action: "cancel", Access: CallbackAccessEveryone, Handle: func(_ context.Context, r *Request, payload string) error {
			got <- payload
			return nil
		}},
	})

	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "q1", FromID: 5, ChatID: 100, Data: "remindme:cancel:abc:def"}}
	if p := waitFor(t, got); p != "abc:def" {
		t.Fatalf("payload=%q", p)
	}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()

	m := NewCommandManager(logx.Nop(), &fakeAdapter{}, nil, nil, nil)
	noop := func(context.Context, *Request) error { return nil }
	m.SetRegistry([]Command{
		{Route: "remindme in", Description: "remind after a duration", Handle: noop},
		{Route: "remindme at", Description: "remind at a time", Handle: noop},
		{Route: "admin", Access: AccessOwnerOnly, Description: "owner tools", Handle: noop},
	}, nil)

	top := m.helpText(nil)
	for _, want := range []string{"/remindme", "/help", "🔒 <code>/admin</code>"} {
		if !strings.Contains(top, want) {
			t.Fatalf("help missing %q:\n%s", want, top)
		}
	}
	node := m.helpText([]string{"remindme"})
	if !strings.Contains(node, "/remindme in") || !strings.Contains(node, "remind at a time") {
		t.Fatalf("group help:\n%s", node)
	}
}

func TestParseFlagsAndTokenize(t *testing.T) {
	t.Parallel()

	toks := tokenizeCommandLine(`/cmd a "b c" --k=v -x`)
	if len(toks) != 5 || toks[2] != "b c" {
		t.Fatalf("tokens=%q", toks)
	}
	pos, flags, bools := parseFlags(toks[1:])
	if len(pos) != 2 || flags["k"] != "v" || !bools["x"] {
		t.Fatalf("pos=%q flags=%v bools=%v", pos, flags, bools)
	}

	toks = tokenizeCommandLine(`/remindme in 10m don't forget 'the oven' a\ b`)
	want := []string{"/remindme", "in", "10m", "don't", "forget", "the oven", "a b"}
	if strings.Join(toks, "|") != strings.Join(want, "|") {
		t.Fatalf("tokens=%q", toks)
	}

	pos, flags, bools = parseFlags([]string{"--tz", "Europe/Berlin", "-abc", "-", "--", "10m"})
	if flags["tz"] != "Europe/Berlin" || !bools["a"] || !bools["c"] || strings.Join(pos, " ") != "- -- 10m" {
		t.Fatalf("pos=%q flags=%v bools=%v", pos, flags, bools)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"remindme in": "remindme_in",
		"Time-Zone":   "time_zone",
		"9lives":      "cmd_9lives",
		"!!!":         "",
		"a__b--c":     "a_b_c",
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Errorf("sanitize(%q)=%q want %q", in, got, want)
		}
	}
}

func TestHelpSummarizesLargeGroups(t *testing.T) {
	t.Parallel()

	m := NewCommandManager(logx.Nop(), &fakeAdapter{}, nil, nil, nil)
	noop := func(context.Context, *Request) error { return nil }
	m.SetRegistry([]Command{
		{Route: "remindme in", Handle: noop, Examples: []string{"/remindme in 10m stretch"}},
		{Route: "remindme on", Handle: noop},
		{Route: "remindme at", Handle: noop},
		{Route: "remindme view", Handle: noop},
		{Route: "timezone set", Handle: noop},
	}, nil)

	top := m.helpText(nil)
	for _, want := range []string{
		"<code>/remindme</code>: at, in, on, …",
		"<code>/timezone</code>: set",
		"<b>Try</b>\n<code>/remindme in 10m stretch</code>",
	} {
		if !strings.Contains(top, want) {
			t.Fatalf("help missing %q:\n%s", want, top)
		}
	}
	if strings.Contains(top, "view") {
		t.Fatalf("summary should name three subcommands:\n%s", top)
	}
}

func TestHelpShowsUsageExamplesAndShortcuts(t *testing.T) {
	t.Parallel()

	m := NewCommandManager(logx.Nop(), &fakeAdapter{}, nil, nil, nil)
	m.SetRegistry([]Command{{
		Route:       "remindme in",
		Aliases:     []string{"remind"},
		Description: "remind you after a duration",
		Usage:       "/remindme in <10m> [message]",
		Examples:    []string{"/remindme in 10m stretch"},
		Handle:      func(context.Context, *Request) error { return nil },
	}}, nil)

	for _, path := range [][]string{{"remindme", "in"}, {"remind"}} {
		got := m.helpText(path)
		for _, want := range []string{
			"<b>/remindme in</b>",
			"<code>/remindme in &lt;10m&gt; [message]</code>",
			"<b>Examples</b>\n• <code>/remindme in 10m stretch</code>",
			"• <code>/remind</code>",
			"• <code>/remindme_in</code>",
		} {
			if !strings.Contains(got, want) {
				t.Fatalf("help %v missing %q:\n%s", path, want, got)
			}
		}
	}
	if got := m.helpText([]string{"nope"}); !strings.Contains(got, "Unknown command") {
		t.Fatalf("unknown path:\n%s", got)
	}
}

func TestBuildTelegramMenuCommands(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *Request) error { return nil }
	cmds := []Command{
		{Route: "timezone set", Description: "set your\ntimezone", Handle: noop},
		{Route: "remindme in", Description: "remind you after a duration", Handle: noop},
		{Route: "admin", Access: AccessOwnerOnly, Handle: noop},
	}
	root := newRoot()
	for _, c := range cmds {
		root.add(splitRoute(c.Route), c)
	}
	got := buildTelegramMenuCommands(root, cmds)
	want := []kit.BotCommand{
		{Command: "admin", Description: "🔒 admin"},
		{Command: "remindme", Description: "in"},
		{Command: "timezone", Description: "set"},
		{Command: "remindme_in", Description: "remind you after a duration"},
		{Command: "timezone_set", Description: "set your timezone"},
	}
	if len(got) != len(want) {
		t.Fatalf("menu=%+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("menu[%d]=%+v want %+v", i, got[i], want[i])
		}
	}

	long := strings.Repeat("é", 200)
	if d := menuDescription("x", long, false); len(d) > maxMenuDescBytes || !strings.HasPrefix(long, d) {
		t.Fatalf("truncated to %d bytes, prefix=%v", len(d), strings.HasPrefix(long, d))
	}
}

func TestRequestNoteReachesLogger(t *testing.T) {
	t.Parallel()

	got := make(chan *Request, 1)
	updates := startManager(t, &fakeAdapter{}, []Command{
		{Route: "remindme in", Handle: func(_ context.Context, r *Request) error {
			r.Note(logx.ReminderID("r1"))
			got <- r
			return nil
		}},
	}, nil)

	updates <- message(5, "/remindme in 10m tea")
	r := waitFor(t, got)
	if len(r.notes) != 1 || r.Logger.IsZero() {
		t.Fatalf("notes=%d", len(r.notes))
	}
}
