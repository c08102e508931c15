package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "remindbot/internal/transport"
)

// leadingKeys rank first in a forwarded line, higher first.
var leadingKeys = map[string]int{"reminder_id": 3, "user_id": 2, "chat_id": 1}

const (
	telegramLineMax  = 3500
	telegramValueMax = 600
	telegramStackMax = 900
)

// chatSink forwards log lines at or above minLevel to the Telegram log
// chat. Sends go through a bounded queue; a full queue drops lines.
type chatSink struct {
	sender Sender
	queue  chan telegramItem

	mu       sync.Mutex
	to       kit.ChatTarget
	enabled  bool
	minLevel zerolog.Level
	limiter  *rate.Limiter

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type telegramItem struct {
	to  kit.ChatTarget
	msg string
}

func newChatSink(sender Sender, threadID int) *chatSink {
	return &chatSink{
		sender:   sender,
		queue:    make(chan telegramItem, 256),
		to:       kit.ChatTarget{ThreadID: threadID},
		minLevel: zerolog.WarnLevel,
	}
}

func (c *chatSink) setTarget(chatID int64, threadID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.to.ChatID = chatID
	if threadID != 0 {
		c.to.ThreadID = threadID
	}
}

func (c *chatSink) configure(cfg TelegramConfig) {
	rps := max(1, cfg.RatePerSec)

	c.mu.Lock()
	c.enabled = cfg.Enabled
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.ThreadID != 0 {
		c.to.ThreadID = cfg.ThreadID
	}
	unset := c.to.ChatID == 0
	c.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	if unset {
		fmt.Fprintln(Stderr(), "logx: telegram logging enabled but telegram.group_log is not set")
	}
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.mu.Lock()
		c.cancel = cancel
		c.mu.Unlock()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.run(ctx)
		}()
	})
}

// target returns the destination, or ok=false while the sink is off.
func (c *chatSink) target() (kit.ChatTarget, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.to, c.enabled && c.to.ChatID != 0 && c.sender != nil
}

func (c *chatSink) announce(text string) {
	if to, ok := c.target(); ok {
		c.enqueue(to, text)
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	to, ok := c.target()
	c.mu.Lock()
	lim, minLevel := c.limiter, c.minLevel
	c.mu.Unlock()
	if !ok || level < minLevel || lim == nil || !lim.Allow() {
		return len(p), nil
	}
	if msg := formatTelegramJSON(p); msg != "" {
		c.enqueue(to, msg)
	}
	return len(p), nil
}

// enqueue never blocks; a full queue drops the line.
func (c *chatSink) enqueue(to kit.ChatTarget, msg string) {
	select {
	case c.queue <- telegramItem{to: to, msg: msg}:
	default:
	}
}

func (c *chatSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-c.queue:
			_, _ = c.sender.SendText(ctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
		}
	}
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

// formatTelegramJSON renders one zerolog JSON line as a compact chat
// message: "[LEVEL] message" followed by sorted "- key=value" lines.
func formatTelegramJSON(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(p), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), telegramLineMax)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(lvl))
		b.WriteString("] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := leadingKeys[keys[i]], leadingKeys[keys[j]]
		if pi != pj {
			return pi > pj
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		v := fmt.Sprint(m[k])
		if k == "stack" {
			b.WriteString("\n- stack=\n")
			b.WriteString(truncate(v, telegramStackMax))
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(v, telegramValueMax))
	}
	return truncate(b.String(), telegramLineMax)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
