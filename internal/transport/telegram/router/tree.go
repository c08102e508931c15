package router

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode {
	return &cmdNode{children: map[string]*cmdNode{}}
}

func splitRoute(route string) []string {
	route = strings.TrimSpace(route)
	if route == "" {
		return nil
	}
	return strings.Fields(route)
}

func (r *cmdNode) add(route []string, c Command) {
	cur := r
	for _, tok := range route {
		if cur.children == nil {
			cur.children = map[string]*cmdNode{}
		}
		n, ok := cur.children[tok]
		if !ok {
			n = &cmdNode{name: tok, children: map[string]*cmdNode{}}
			cur.children[tok] = n
		}
		cur = n
	}
	cur.cmd = &c
}

func (r *cmdNode) find(path []string) *cmdNode {
	cur := r
	for _, tok := range path {
		n, ok := cur.children[tok]
		if !ok {
			return nil
		}
		cur = n
	}
	return cur
}

func (r *cmdNode) child(name string) (*cmdNode, bool) {
	n, ok := r.children[name]
	return n, ok
}

func (r *cmdNode) childNames() []string {
	out := make([]string, 0, len(r.children))
	for k := range r.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var ridSeq atomic.Uint64

// newReqID returns a short id: base36 milliseconds, sequence and two
// random chars, e.g. "m2k7q1x0-1fz".
func newReqID() string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	n := ridSeq.Add(1)
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + strconv.FormatUint(n, 36) +
		string([]byte{alpha[rand.Intn(len(alpha))], alpha[rand.Intn(len(alpha))]})
}

// tokenizeCommandLine splits command text on whitespace. A quote opens a
// quoted token only at the start of a token, so reminder text such as
// "don't" stays one word. Backslash escapes the next byte.
//
//	/remindme in 10m "water the plants" --k=v
func tokenizeCommandLine(s string) []string {
	var (
		out   []string
		cur   []byte
		quote byte
		open  bool // cur holds a token, possibly empty ("")
	)
	flush := func() {
		if open {
			out = append(out, string(cur))
		}
		cur, open = cur[:0], false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\' && i+1 < len(s):
			i++
			cur, open = append(cur, s[i]), true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				cur = append(cur, ch)
			}
		case !open && (ch == '"' || ch == '\''):
			quote, open = ch, true
		case isSpace(rune(ch)):
			flush()
		default:
			cur, open = append(cur, ch), true
		}
	}
	flush()
	return out
}

// parseFlags splits raw args into positionals and flags:
//
//	--k=v, --k v, --flag (bool)
//	-k=v, -k v, -abc (bool flags a, b and c)
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	takesValue := func(i int) bool { return i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") }

	for i := 0; i < len(args); i++ {
		a := args[i]
		key, long := strings.CutPrefix(a, "--")
		if !long {
			key, _ = strings.CutPrefix(a, "-")
		}
		if key == a || key == "" {
			pos = append(pos, a)
			continue
		}
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = v
			continue
		}
		switch {
		case (long || len(key) == 1) && takesValue(i):
			flags[key] = args[i+1]
			i++
		case long || len(key) == 1:
			bools[key] = true
		default:
			for _, r := range key {
				bools[string(r)] = true
			}
		}
	}
	return pos, flags, bools
}

// skipFields returns s with the leading command word and n more
// whitespace-separated fields removed. Spacing and quotes in the rest are
// preserved.
func skipFields(s string, n int) string {
	s = strings.TrimSpace(s)
	for i := 0; i <= n && s != ""; i++ {
		j := strings.IndexFunc(s, isSpace)
		if j < 0 {
			return ""
		}
		s = strings.TrimLeftFunc(s[j:], isSpace)
	}
	return s
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
