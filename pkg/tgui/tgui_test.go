package tgui

import (
	"strings"
	"testing"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()

	d, err := Data("remindme", "cancel", "3f2b1c1e-8d4e-4a51-9a3b-4c1f0e6a2b7d")
	if err != nil {
		t.Fatal(err)
	}
	p, a, payload, ok := ParseData(d)
	if !ok || p != "remindme" || a != "cancel" || payload != "3f2b1c1e-8d4e-4a51-9a3b-4c1f0e6a2b7d" {
		t.Fatalf("parse %q -> %q %q %q %v", d, p, a, payload, ok)
	}
	if _, err := Data("remindme", "cancel", strings.Repeat("x", 60)); err != ErrCallbackDataTooLong {
		t.Fatalf("want too long, got %v", err)
	}
	if _, _, _, ok := ParseData("nocolon"); ok {
		t.Fatalf("bare string parsed")
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"héllo wörld", 3, "hé…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("TruncRunes(%q,%d)=%q want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestCardEscapes(t *testing.T) {
	t.Parallel()

	msg := NewCard("⏰", "Reminder <Set>").
		Line("a < b").
		KV("When", "tomorrow & later").
		HTML(Mention("Ana", 42)).
		Footer("Reminder").
		Build()

	want := "⏰ <b>Reminder &lt;Set&gt;</b>\na &lt; b\n<b>When:</b> tomorrow &amp; later\n" +
		`<a href="tg://user?id=42">Ana</a>` + "\n<i>Reminder</i>"
	if msg.Text != want {
		t.Fatalf("got\n%s\nwant\n%s", msg.Text, want)
	}
	if msg.Opt.ParseMode != "HTML" || msg.Opt.ReplyMarkupAdapter != nil {
		t.Fatalf("opts=%+v", msg.Opt)
	}
}
