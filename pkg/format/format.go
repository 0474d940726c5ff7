package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/berrythewa/bandman/internal/types"
)

// Formatter renders collection data as operator-facing text
type Formatter struct {
	options Options
}

// New creates a new formatter with the given options
func New(opts Options) *Formatter {
	return &Formatter{
		options: opts,
	}
}

// NewDefault creates a new formatter with default options
func NewDefault() *Formatter {
	return New(DefaultOptions())
}

func (f *Formatter) Options() Options {
	return f.options
}

// Band formats a single band as a headed block of fields
func (f *Formatter) Band(b *types.Band) string {
	if b == nil {
		return DimIf("No band", f.options.UseColors)
	}

	participants := "unknown"
	if b.NumberOfParticipants != nil {
		participants = fmt.Sprint(*b.NumberOfParticipants)
	}
	genre := "unknown"
	if b.Genre != nil {
		genre = string(*b.Genre)
	}

	header := ColorizeIf(fmt.Sprintf("#%d %s", b.ID, b.Name), Cyan, f.options.UseColors)
	body := f.Table([][2]string{
		{"Coordinates", fmt.Sprintf("(%g; %g)", b.Coordinates.X, b.Coordinates.Y)},
		{"Created", b.CreationDate.Format(time.DateTime)},
		{"Participants", participants},
		{"Established", b.EstablishmentDate.Format(time.DateOnly)},
		{"Genre", genre},
		{"Studio", b.Studio.Address},
	})
	return header + "\n" + IndentText(body, f.options.Indent)
}

// Bands formats a list of bands separated by blank lines
func (f *Formatter) Bands(bands []types.Band) string {
	parts := make([]string, len(bands))
	for i := range bands {
		parts[i] = f.Band(&bands[i])
	}
	return strings.Join(parts, "\n\n")
}

// Table aligns label/value pairs in two columns
func (f *Formatter) Table(rows [][2]string) string {
	width := 0
	for _, row := range rows {
		if n := len([]rune(row[0])); n > width {
			width = n
		}
	}

	lines := make([]string, len(rows))
	for i, row := range rows {
		label := row[0] + ":" + strings.Repeat(" ", width-len([]rune(row[0])))
		lines[i] = BoldIf(label, f.options.UseColors) + " " + row[1]
	}
	return strings.Join(lines, "\n")
}

// Success highlights a confirmation message
func (f *Formatter) Success(text string) string {
	return ColorizeIf(text, Green, f.options.UseColors)
}

// Error highlights an error message
func (f *Formatter) Error(text string) string {
	return ColorizeIf(text, BrightRed, f.options.UseColors)
}

// Notice highlights informational output such as prompts and script progress
func (f *Formatter) Notice(text string) string {
	return ColorizeIf(text, Blue, f.options.UseColors)
}

// Warning highlights a non-fatal problem
func (f *Formatter) Warning(text string) string {
	return ColorizeIf(text, Yellow, f.options.UseColors)
}
