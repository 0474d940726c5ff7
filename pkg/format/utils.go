package format

import (
	"fmt"
	"strings"
	"time"
)

// FormatRelativeTime describes how long ago t was, falling back to the
// date for anything older than a week.
func FormatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return ago(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return ago(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return ago(int(diff.Hours()/24), "day")
	default:
		return t.Format(time.DateOnly)
	}
}

func ago(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// IndentText prefixes every line of text
func IndentText(text, prefix string) string {
	if text == "" {
		return text
	}
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}
