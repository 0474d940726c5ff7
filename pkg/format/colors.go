package format

// ANSI escape sequences used by the console
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Green     = "\033[32m"
	Yellow    = "\033[33m"
	Blue      = "\033[34m"
	Cyan      = "\033[36m"
	BrightRed = "\033[91m"
)

// ColorizeIf wraps text in color when useColors is set. Empty text stays
// empty so callers can colorize optional parts unconditionally.
func ColorizeIf(text, color string, useColors bool) string {
	if !useColors || text == "" {
		return text
	}
	return color + text + Reset
}

func BoldIf(text string, useColors bool) string {
	return ColorizeIf(text, Bold, useColors)
}

func DimIf(text string, useColors bool) string {
	return ColorizeIf(text, Dim, useColors)
}
