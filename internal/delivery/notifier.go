// Package delivery sends reminders through the chat transport.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Notifier implements reminder.Messenger on top of a transport adapter.
type Notifier struct {
	ad       kit.Adapter
	resolver kit.ChatResolver
	log      logx.Logger
}

var _ reminder.Messenger = (*Notifier)(nil)

// New wraps ad. Channel lookups use ad's ChatResolver when it has one;
// otherwise every chat is assumed reachable.
func New(ad kit.Adapter, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{ad: ad, log: log}
	if r, ok := ad.(kit.ChatResolver); ok {
		n.resolver = r
	}
	return n
}

func (n *Notifier) ResolveChannel(ctx context.Context, chatID int64, threadID int) (reminder.Channel, error) {
	ch := reminder.Channel{ChatID: chatID, ThreadID: threadID}
	if n.resolver == nil {
		return ch, nil
	}
	info, err := n.resolver.ResolveChat(ctx, chatID)
	if errors.Is(err, kit.ErrChatUnavailable) {
		return reminder.Channel{}, fmt.Errorf("resolve chat %d: %w: %w", chatID, reminder.ErrChannelUnavailable, err)
	}
	if err != nil {
		return reminder.Channel{}, fmt.Errorf("resolve chat %d: %w", chatID, err)
	}
	ch.Title = info.Title
	return ch, nil
}

func (n *Notifier) SendMessage(ctx context.Context, ch reminder.Channel, p reminder.Payload) error {
	_, err := n.ad.SendText(ctx, kit.ChatTarget{ChatID: ch.ChatID, ThreadID: ch.ThreadID}, p.Text, sendOptions(p))
	if err != nil {
		return fmt.Errorf("send to chat %d: %w", ch.ChatID, err)
	}
	return nil
}

// NotifyUserDirectly messages the user's private chat. Telegram only
// allows this after the user has started the bot.
func (n *Notifier) NotifyUserDirectly(ctx context.Context, userID int64, p reminder.Payload) error {
	_, err := n.ad.SendText(ctx, kit.ChatTarget{ChatID: userID}, p.Text, sendOptions(p))
	if err != nil {
		return fmt.Errorf("direct message to %d: %w", userID, err)
	}
	n.log.Debug("direct notification sent", logx.UserID(userID))
	return nil
}

func sendOptions(p reminder.Payload) *kit.SendOptions {
	return &kit.SendOptions{ParseMode: p.ParseMode, DisablePreview: true}
}
