package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// ResolveChat asks Telegram for the chat. Errors meaning the chat is gone
// or closed to the bot wrap transport.ErrChatUnavailable.
func (a *Adapter) ResolveChat(ctx context.Context, chatID int64) (kit.ChatInfo, error) {
	if err := ctx.Err(); err != nil {
		return kit.ChatInfo{}, err
	}
	type result struct {
		chat *tele.Chat
		err  error
	}
	// telebot calls take no context; the result channel is buffered so an
	// abandoned lookup does not leak a blocked goroutine
	done := make(chan result, 1)
	go func() {
		c, err := a.bot.ChatByID(chatID)
		done <- result{c, err}
	}()

	select {
	case <-ctx.Done():
		return kit.ChatInfo{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return kit.ChatInfo{}, classifyChatError(r.err)
		}
		info := kit.ChatInfo{ID: r.chat.ID, Type: string(r.chat.Type), Title: r.chat.Title}
		if info.Title == "" {
			info.Title = strings.TrimSpace(r.chat.FirstName + " " + r.chat.LastName)
		}
		return info, nil
	}
}

func classifyChatError(err error) error {
	var te *tele.Error
	if errors.As(err, &te) {
		desc := strings.ToLower(te.Description)
		if te.Code == 403 || strings.Contains(desc, "chat not found") || strings.Contains(desc, "user not found") {
			return fmt.Errorf("%w: %v", kit.ErrChatUnavailable, err)
		}
	}
	if errors.Is(err, tele.ErrChatNotFound) {
		return fmt.Errorf("%w: %v", kit.ErrChatUnavailable, err)
	}
	return err
}
