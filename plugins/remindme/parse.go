package remindme

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	durationPart = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z]*)`)
	clockRe      = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s?(AM|PM)$`)
)

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond, "msec": time.Millisecond, "msecs": time.Millisecond,
	"millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
	"y": 8766 * time.Hour, "yr": 8766 * time.Hour, "yrs": 8766 * time.Hour, "year": 8766 * time.Hour, "years": 8766 * time.Hour,
}

// parseDuration accepts "10s", "15m", "2h", "1d", "1w", "1h30m", "1.5h" and
// "10 minutes". A bare number is milliseconds.
func parseDuration(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	var (
		total time.Duration
		ok    bool
	)
	for s != "" {
		m := durationPart.FindStringSubmatch(s)
		if m == nil {
			return 0, false
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		unit := time.Millisecond
		if m[2] != "" {
			u, ok := durationUnits[m[2]]
			if !ok {
				return 0, false
			}
			unit = u
		}
		part := n * float64(unit)
		if part >= math.MaxInt64 {
			return 0, false
		}
		if total, ok = addDuration(total, time.Duration(part)); !ok {
			return 0, false
		}
		s = strings.TrimLeft(s[len(m[0]):], " ")
	}
	return total, total > 0
}

// addDuration adds two non-negative durations, failing on overflow.
func addDuration(a, b time.Duration) (time.Duration, bool) {
	if b > math.MaxInt64-a {
		return 0, false
	}
	return a + b, true
}

// hasUnit reports whether tok is a unit word on its own ("minutes").
func hasUnit(tok string) bool {
	_, ok := durationUnits[strings.ToLower(tok)]
	return ok
}

// takeDuration reads a duration from the leading args and reports how many
// tokens it used: "10m", "10 minutes" and "1h 30m" are all accepted.
func takeDuration(args []string) (time.Duration, int, bool) {
	var (
		total time.Duration
		used  int
	)
	for used < len(args) {
		tok := args[used]
		n := 1
		if used+1 < len(args) && isNumber(tok) && hasUnit(args[used+1]) {
			tok += " " + args[used+1]
			n = 2
		} else if used > 0 && (isNumber(tok) || !startsWithDigit(tok)) {
			// after the first part only explicit "<n><unit>" tokens continue
			break
		}
		d, ok := parseDuration(tok)
		if !ok {
			break
		}
		if total, ok = addDuration(total, d); !ok {
			return 0, 0, false
		}
		used += n
	}
	return total, used, used > 0
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func startsWithDigit(s string) bool { return s != "" && s[0] >= '0' && s[0] <= '9' }

// parseClock parses "01:30 PM" or "1:30pm" into a 24h hour and minute.
func parseClock(s string) (hour, minute int, ok bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, 0, false
	}
	pm := strings.EqualFold(m[3], "PM")
	switch {
	case pm && hour != 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}
	return hour, minute, true
}

// takeClock reads "01:30 PM" (two tokens) or "01:30PM" (one token).
func takeClock(args []string) (hour, minute, used int, ok bool) {
	if len(args) == 0 {
		return 0, 0, 0, false
	}
	if len(args) > 1 {
		if h, m, ok := parseClock(args[0] + " " + args[1]); ok {
			return h, m, 2, true
		}
	}
	h, m, ok := parseClock(args[0])
	if !ok {
		return 0, 0, 0, false
	}
	return h, m, 1, true
}

// parseDate parses YYYY-MM-DD.
func parseDate(s string) (y int, mo time.Month, d int, ok bool) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, 0, false
	}
	return t.Year(), t.Month(), t.Day(), true
}
