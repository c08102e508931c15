package router

import (
	"sort"
	"strings"

	"remindbot/pkg/tgui"
)

// maxSummaryKids caps how many subcommands a group summary names.
const maxSummaryKids = 3

// helpText renders /help (path empty) or /help <path...> in HTML parse mode.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	root, alias := m.root, m.alias
	m.mu.RUnlock()

	if len(path) == 0 {
		return topHelp(root).String()
	}
	node, full, ok := resolveHelpPath(root, alias, path)
	if !ok {
		return tgui.NewCard("❓", "Unknown command").
			HTML(tgui.Raw("Send ") + tgui.Code("/help") + tgui.Raw(" to see what I can do.")).
			String()
	}
	return nodeHelp(node, full).String()
}

// resolveHelpPath walks path from root. A token that is not a child may
// still be an alias ("/help remind" shows /remindme in).
func resolveHelpPath(root *cmdNode, alias map[string]*cmdNode, path []string) (*cmdNode, []string, bool) {
	cur := root
	full := make([]string, 0, len(path))
	for _, tok := range path {
		if next, ok := cur.child(tok); ok {
			cur = next
			full = append(full, tok)
			continue
		}
		if leaf := alias[tok]; leaf != nil && leaf.cmd != nil {
			return leaf, splitRoute(leaf.cmd.Route), true
		}
		return nil, nil, false
	}
	return cur, full, true
}

func topHelp(root *cmdNode) *tgui.Card {
	type row struct {
		name string
		node *cmdNode
		lock bool
	}
	rows := make([]row, 0, len(root.children))
	for _, name := range root.childNames() {
		n, _ := root.child(name)
		rows = append(rows, row{name: name, node: n, lock: nodeIsOwnerOnly(n)})
	}
	// owner tools go last
	sort.SliceStable(rows, func(i, j int) bool { return !rows[i].lock && rows[j].lock })

	c := tgui.NewCard("📚", "Commands")
	for _, r := range rows {
		c.HTML(entryLine("/"+r.name, summarizeNodeDesc(r.node), r.lock))
	}

	var try []string
	for _, r := range rows {
		if ex := firstExample(r.node); ex != "" && !r.lock {
			try = append(try, ex)
		}
	}
	if len(try) > 0 {
		c.Blank().HTML(tgui.B("Try"))
		for _, ex := range try {
			c.HTML(tgui.Code(ex))
		}
	}
	return c.Footer("Send /help <command> for details.")
}

func nodeHelp(n *cmdNode, full []string) *tgui.Card {
	c := tgui.NewCard("📚", "/"+strings.Join(full, " "))

	if n.cmd == nil {
		c.Line("Command group.")
		if nodeIsOwnerOnly(n) {
			c.HTML(tgui.I("🔒 Owner only"))
		}
	} else {
		cmd := n.cmd
		if d := strings.TrimSpace(cmd.Description); d != "" {
			c.Line(d)
		}
		if cmd.Access == AccessOwnerOnly {
			c.HTML(tgui.I("🔒 Owner only"))
		}
		if u := strings.TrimSpace(cmd.Usage); u != "" {
			c.Blank().HTML(tgui.B("Usage")).HTML(tgui.Code(u))
		}
		section(c, "Examples", cmd.Examples)
		section(c, "Shortcuts", prefixAll("/", buildShortcuts(*cmd)))
	}

	if len(n.children) > 0 {
		c.Blank().HTML(tgui.B("Subcommands"))
		for _, name := range n.childNames() {
			kid, _ := n.child(name)
			route := "/" + strings.Join(append(append([]string(nil), full...), name), " ")
			c.HTML(entryLine(route, summarizeNodeDesc(kid), nodeIsOwnerOnly(kid)))
		}
	}
	return c
}

// entryLine renders "• <code>/cmd</code>: desc".
func entryLine(cmd, desc string, lock bool) tgui.H {
	h := tgui.Raw("• ")
	if lock {
		h += tgui.Raw("🔒 ")
	}
	h += tgui.Code(cmd)
	if desc != "" {
		h += tgui.Raw(": ") + tgui.Esc(desc)
	}
	return h
}

func section(c *tgui.Card, title string, items []string) {
	if len(items) == 0 {
		return
	}
	c.Blank().HTML(tgui.B(title))
	for _, it := range items {
		c.HTML(tgui.Raw("• ") + tgui.Code(it))
	}
}

func prefixAll(p string, in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = p + s
	}
	return out
}

// firstExample returns the first example under n, depth first in name
// order.
func firstExample(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		for _, ex := range n.cmd.Examples {
			if ex = strings.TrimSpace(ex); ex != "" {
				return ex
			}
		}
	}
	for _, name := range n.childNames() {
		if ex := firstExample(n.children[name]); ex != "" {
			return ex
		}
	}
	return ""
}

// summarizeNodeDesc is the command description, or for a group the first
// few subcommand names: "at, cancel, in, …".
func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	k := min(len(kids), maxSummaryKids)
	s := strings.Join(kids[:k], ", ")
	if len(kids) > k {
		s += ", …"
	}
	return s
}

// nodeIsOwnerOnly reports whether n is an owner-only command, or a group
// with no command open to everyone.
func nodeIsOwnerOnly(n *cmdNode) bool {
	if n == nil {
		return false
	}
	if n.cmd != nil {
		return n.cmd.Access == AccessOwnerOnly
	}
	for _, kid := range n.children {
		if !nodeIsOwnerOnly(kid) {
			return false
		}
	}
	return true
}

// buildShortcuts lists the single-word names that reach c: its menu name
// (/remindme_in) and its aliases.
func buildShortcuts(c Command) []string {
	set := map[string]struct{}{}
	if name, ok := telegramCommandNameFromRoute(splitRoute(c.Route)); ok {
		set[name] = struct{}{}
	}
	for _, a := range c.Aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.ContainsRune(a, ' ') {
			continue
		}
		set[a] = struct{}{}
		if sa := sanitizeTelegramCommand(a); sa != "" {
			set[sa] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
