package tgui

import (
	"context"
	"strings"

	kit "remindbot/internal/transport"
)

// Message is rendered text plus send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send posts the message to a chat.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	return ad.SendText(ctx, to, m.Text, m.options())
}

// Edit replaces the text of an existing message.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	return ad.EditText(ctx, ref, m.Text, m.options())
}

func (m Message) options() *kit.SendOptions {
	if m.Opt == nil {
		return &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}
	return m.Opt
}

// Card builds a titled HTML reply:
//
//	⏰ <b>Reminder Set!</b>
//	description lines
//	<i>footer</i>
type Card struct {
	title  H
	lines  []string
	footer string
	kb     *Inline
}

func NewCard(emoji, title string) *Card {
	c := &Card{}
	t := B(title)
	if e := strings.TrimSpace(emoji); e != "" {
		t = Esc(e) + " " + t
	}
	c.title = t
	return c
}

// Line adds escaped text.
func (c *Card) Line(s string) *Card {
	c.lines = append(c.lines, string(Esc(s)))
	return c
}

// HTML adds pre-rendered HTML.
func (c *Card) HTML(h H) *Card {
	c.lines = append(c.lines, string(h))
	return c
}

func (c *Card) Blank() *Card {
	c.lines = append(c.lines, "")
	return c
}

// KV adds "<b>key:</b> value".
func (c *Card) KV(key, value string) *Card {
	c.lines = append(c.lines, string(B(key+":"))+" "+string(Esc(value)))
	return c
}

func (c *Card) Footer(s string) *Card {
	c.footer = s
	return c
}

func (c *Card) Inline(kb *Inline) *Card {
	c.kb = kb
	return c
}

func (c *Card) Build() Message {
	parts := make([]string, 0, len(c.lines)+2)
	parts = append(parts, string(c.title))
	parts = append(parts, c.lines...)
	if c.footer != "" {
		parts = append(parts, string(I(c.footer)))
	}
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if c.kb != nil && c.kb.Len() > 0 {
		opt.ReplyMarkupAdapter = c.kb.Markup()
	}
	return Message{Text: strings.TrimRight(strings.Join(parts, "\n"), "\n"), Opt: opt}
}

// String renders the card text only.
func (c *Card) String() string { return c.Build().Text }
