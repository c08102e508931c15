package router

import (
	"sort"
	"strings"
	"unicode"

	kit "remindbot/internal/transport"
)

// Telegram Bot API limits for setMyCommands.
const (
	maxMenuCommands  = 100
	maxMenuNameLen   = 32
	maxMenuDescBytes = 256
)

// sanitizeTelegramCommand maps a route or alias onto Telegram's command
// alphabet [a-z0-9_]. Spaces, dashes and slashes become underscores and
// anything else is dropped: "remindme in" -> "remindme_in".
func sanitizeTelegramCommand(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '-', r == '/', unicode.IsSpace(r):
			return '_'
		}
		return -1
	}, strings.ToLower(s))

	out := strings.Join(strings.FieldsFunc(mapped, func(r rune) bool { return r == '_' }), "_")
	if out == "" {
		return ""
	}
	// clients only autocomplete names that start with a letter
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > maxMenuNameLen {
		out = strings.TrimRight(out[:maxMenuNameLen], "_")
	}
	return out
}

// telegramCommandNameFromRoute joins a route into one menu name, so
// "remindme cancel" is reachable as /remindme_cancel.
func telegramCommandNameFromRoute(route []string) (string, bool) {
	name := sanitizeTelegramCommand(strings.Join(route, "_"))
	return name, name != ""
}

// buildTelegramMenuCommands lists the top-level commands (/remindme,
// /timezone, /help) followed by one shortcut per multi-word route
// (/remindme_in, /timezone_set). A name is listed once, first entry wins.
func buildTelegramMenuCommands(root *cmdNode, leafCmds []Command) []kit.BotCommand {
	var (
		out  []kit.BotCommand
		seen = map[string]bool{}
	)
	add := func(name, desc string, ownerOnly bool) {
		name = sanitizeTelegramCommand(name)
		if name == "" || seen[name] || len(out) >= maxMenuCommands {
			return
		}
		seen[name] = true
		out = append(out, kit.BotCommand{Command: name, Description: menuDescription(name, desc, ownerOnly)})
	}

	if root != nil {
		for _, name := range root.childNames() {
			if n, _ := root.child(name); n != nil {
				add(name, summarizeNodeDesc(n), nodeIsOwnerOnly(n))
			}
		}
	}

	shortcuts := make([]Command, 0, len(leafCmds))
	for _, c := range leafCmds {
		if len(splitRoute(c.Route)) > 1 {
			shortcuts = append(shortcuts, c)
		}
	}
	sort.SliceStable(shortcuts, func(i, j int) bool { return shortcuts[i].Route < shortcuts[j].Route })
	for _, c := range shortcuts {
		route := splitRoute(c.Route)
		desc := c.Description
		if strings.TrimSpace(desc) == "" {
			desc = strings.Join(route, " ")
		}
		add(strings.Join(route, "_"), desc, c.Access == AccessOwnerOnly)
	}
	return out
}

// menuDescription flattens desc to a single line within Telegram's limit.
// Telegram rejects empty descriptions, so the name stands in.
func menuDescription(name, desc string, ownerOnly bool) string {
	desc = strings.Join(strings.Fields(desc), " ")
	if desc == "" {
		desc = name
	}
	if ownerOnly {
		desc = "🔒 " + desc
	}
	return truncateUTF8(desc, maxMenuDescBytes)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
