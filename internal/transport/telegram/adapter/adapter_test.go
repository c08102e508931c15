package adapter

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split: %q", got)
	}

	long := strings.Repeat("line of text\n", 50)
	chunks := splitTelegramText(long, 100, "")
	if len(chunks) < 6 {
		t.Fatalf("chunks=%d", len(chunks))
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 100 {
			t.Fatalf("chunk too long: %d", utf8.RuneCountInString(c))
		}
		if strings.HasSuffix(c, "\n") || !strings.HasSuffix(c, "text") {
			t.Fatalf("chunk not cut on a line boundary: %q", c)
		}
	}
}

func TestSplitTelegramTextAvoidsBreakingTags(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", 18) + "<b>bold</b>"
	chunks := splitTelegramText(s, 20, "HTML")
	if chunks[0] != strings.Repeat("a", 18) {
		t.Fatalf("first chunk %q", chunks[0])
	}
	if strings.Join(chunks, "") != s {
		t.Fatalf("content lost: %q", chunks)
	}
}

func TestClassifyChatError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		gone bool
	}{
		{"not found", tele.ErrChatNotFound, true},
		{"kicked", &tele.Error{Code: 403, Description: "Forbidden: bot was kicked from the supergroup chat"}, true},
		{"flood", &tele.Error{Code: 429, Description: "Too Many Requests: retry after 5"}, false},
		{"network", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errors.Is(classifyChatError(tc.err), kit.ErrChatUnavailable); got != tc.gone {
				t.Fatalf("unavailable=%v want %v", got, tc.gone)
			}
		})
	}
}
