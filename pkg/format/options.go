package format

// Options controls formatting behavior
type Options struct {
	UseColors bool
	Indent    string // prefix for nested lines
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		UseColors: true,
		Indent:    "  ",
	}
}

// PlainOptions returns options without ANSI escapes, for logs and tests
func PlainOptions() Options {
	opts := DefaultOptions()
	opts.UseColors = false
	return opts
}
