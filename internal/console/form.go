package console

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/berrythewa/bandman/internal/types"
	"github.com/berrythewa/bandman/pkg/format"
)

// DateLayouts are the accepted establishment date formats.
var DateLayouts = []string{"2006-01-02", "2006.01.02", "2006/01/02", "2006 01 02"}

// errInvalidField aborts a form read from a script.
var errInvalidField = errors.New("invalid field value")

// fieldSource reads one answer of a form.
type fieldSource func(prompt string) (string, error)

// formBuilder prompts for the fields of a band. In script mode any invalid
// answer fails the whole form, interactively the question is repeated.
type formBuilder struct {
	read   fieldSource
	out    *format.Printer
	script bool
}

// ask repeats question until parse accepts the answer. parse returns the
// problem to report, or "" to accept.
func (b *formBuilder) ask(question string, parse func(string) string) error {
	for {
		b.out.Println(question)
		answer, err := b.read(fieldPrompt)
		if err != nil {
			return err
		}
		answer = strings.TrimSpace(answer)
		if b.script {
			b.out.Println(answer)
		}
		problem := parse(answer)
		if problem == "" {
			return nil
		}
		b.out.Errorln(problem)
		if b.script {
			return fmt.Errorf("%w: %s", errInvalidField, problem)
		}
	}
}

func (b *formBuilder) name(f *types.BandForm) error {
	return b.ask("Enter name:", func(s string) string {
		if s == "" {
			return "Name must not be empty."
		}
		f.Name = s
		return ""
	})
}

func (b *formBuilder) coordinates(f *types.BandForm) error {
	var c types.Coordinates
	err := b.ask("Enter coordinate X:", func(s string) string {
		x, err := strconv.ParseFloat(s, 32)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			return "Coordinate X must be a number."
		}
		if x <= types.MinCoordinateX {
			return fmt.Sprintf("Coordinate X must be greater than %d.", types.MinCoordinateX)
		}
		c.X = float32(x)
		return ""
	})
	if err != nil {
		return err
	}
	err = b.ask("Enter coordinate Y:", func(s string) string {
		y, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(y) || math.IsInf(y, 0) {
			return "Coordinate Y must be a number."
		}
		c.Y = y
		return ""
	})
	if err != nil {
		return err
	}
	f.Coordinates = &c
	return nil
}

func (b *formBuilder) participants(f *types.BandForm, clearable bool) error {
	return b.ask("Enter the number of participants (leave blank if unknown):", func(s string) string {
		if s == "" {
			f.NumberOfParticipants = nil
			f.ClearParticipants = clearable
			return ""
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return "Number of participants must be an integer."
		}
		if n <= 0 {
			return "Number of participants must be positive."
		}
		f.NumberOfParticipants = &n
		return ""
	})
}

func (b *formBuilder) establishmentDate(f *types.BandForm) error {
	question := "Enter establishment date in one of the formats: yyyy-MM-dd, yyyy.MM.dd, yyyy/MM/dd, yyyy MM dd:"
	return b.ask(question, func(s string) string {
		date, err := ParseDate(s)
		if err != nil {
			return "Your input cannot be parsed as a date."
		}
		f.EstablishmentDate = &date
		return ""
	})
}

func (b *formBuilder) genre(f *types.BandForm, clearable bool) error {
	b.out.Noticeln("List of music genres:\n" + types.GenreNames())
	return b.ask("Enter music genre (leave blank if unknown):", func(s string) string {
		if s == "" {
			f.Genre = nil
			f.ClearGenre = clearable
			return ""
		}
		g, err := types.ParseGenre(s)
		if err != nil {
			return "There is no such genre."
		}
		f.Genre = &g
		return ""
	})
}

func (b *formBuilder) studio(f *types.BandForm) error {
	return b.ask("Enter studio address:", func(s string) string {
		if s == "" {
			return "Studio address must not be empty."
		}
		f.Studio = &types.Studio{Address: s}
		return ""
	})
}

func (b *formBuilder) confirm(question string) (bool, error) {
	var yes bool
	err := b.ask(question+" (+/-)", func(s string) string {
		switch s {
		case "+":
			yes = true
		case "-":
			yes = false
		default:
			return "Answer must be either '+' or '-'."
		}
		return ""
	})
	return yes, err
}

// New asks for every field of a new band.
func (b *formBuilder) New() (*types.BandForm, error) {
	f := &types.BandForm{}
	steps := []func(*types.BandForm) error{
		b.name,
		b.coordinates,
		func(f *types.BandForm) error { return b.participants(f, false) },
		b.establishmentDate,
		func(f *types.BandForm) error { return b.genre(f, false) },
		b.studio,
	}
	for _, step := range steps {
		if err := step(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Update asks which fields to change and reads only those.
func (b *formBuilder) Update() (*types.BandForm, error) {
	f := &types.BandForm{}
	steps := []struct {
		question string
		read     func(*types.BandForm) error
	}{
		{"Do you want to change the name?", b.name},
		{"Do you want to change the coordinates?", b.coordinates},
		{"Do you want to change the number of participants?", func(f *types.BandForm) error { return b.participants(f, true) }},
		{"Do you want to change the establishment date?", b.establishmentDate},
		{"Do you want to change the genre?", func(f *types.BandForm) error { return b.genre(f, true) }},
		{"Do you want to change the studio?", b.studio},
	}
	for _, step := range steps {
		change, err := b.confirm(step.question)
		if err != nil {
			return nil, err
		}
		if !change {
			continue
		}
		if err := step.read(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ParseDate parses an establishment date in any of DateLayouts as a UTC day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
