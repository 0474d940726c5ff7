package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinCoordinateX is the exclusive lower bound for Coordinates.X.
const MinCoordinateX = -584

// Genre represents the music genre of a band
type Genre string

const (
	GenreProgressiveRock     Genre = "PROGRESSIVE_ROCK"
	GenreHipHop              Genre = "HIP_HOP"
	GenrePsychedelicCloudRap Genre = "PSYCHEDELIC_CLOUD_RAP"
	GenreSoul                Genre = "SOUL"
	GenrePostPunk            Genre = "POST_PUNK"
)

// Genres lists every known genre in declaration order
var Genres = []Genre{
	GenreProgressiveRock,
	GenreHipHop,
	GenrePsychedelicCloudRap,
	GenreSoul,
	GenrePostPunk,
}

// ParseGenre returns the genre matching s, ignoring case and surrounding space.
func ParseGenre(s string) (Genre, error) {
	want := Genre(strings.ToUpper(strings.TrimSpace(s)))
	for _, g := range Genres {
		if g == want {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown genre %q", s)
}

// GenreNames returns the genre names joined with ", "
func GenreNames() string {
	names := make([]string, len(Genres))
	for i, g := range Genres {
		names[i] = string(g)
	}
	return strings.Join(names, ", ")
}

// Coordinates of a band on the map
type Coordinates struct {
	X float32 `json:"x"`
	Y float64 `json:"y"`
}

// Studio where a band records
type Studio struct {
	Address string `json:"address"`
}

// Band is a record of the managed collection
type Band struct {
	ID                   int64       `json:"id"`
	Name                 string      `json:"name"`
	Coordinates          Coordinates `json:"coordinates"`
	CreationDate         time.Time   `json:"creation_date"`
	NumberOfParticipants *int64      `json:"number_of_participants,omitempty"`
	EstablishmentDate    time.Time   `json:"establishment_date"`
	Genre                *Genre      `json:"genre,omitempty"`
	Studio               Studio      `json:"studio"`
}

// Validate checks the invariants of a stored record
func (b *Band) Validate() error {
	if b.ID <= 0 {
		return fmt.Errorf("id must be positive, got %d", b.ID)
	}
	if b.CreationDate.IsZero() {
		return errors.New("creation date is missing")
	}
	if b.EstablishmentDate.IsZero() {
		return errors.New("establishment date is missing")
	}
	return b.Form().ValidateNew()
}

// Form returns the record's fields as a complete form
func (b *Band) Form() *BandForm {
	coords := b.Coordinates
	studio := b.Studio
	established := b.EstablishmentDate
	return &BandForm{
		Name:                 b.Name,
		Coordinates:          &coords,
		NumberOfParticipants: b.NumberOfParticipants,
		EstablishmentDate:    &established,
		Genre:                b.Genre,
		Studio:               &studio,
	}
}

// Apply merges every field set in the form into the record.
func (b *Band) Apply(f *BandForm) {
	if f.Name != "" {
		b.Name = f.Name
	}
	if f.Coordinates != nil {
		b.Coordinates = *f.Coordinates
	}
	if f.ClearParticipants {
		b.NumberOfParticipants = nil
	} else if f.NumberOfParticipants != nil {
		n := *f.NumberOfParticipants
		b.NumberOfParticipants = &n
	}
	if f.EstablishmentDate != nil {
		b.EstablishmentDate = *f.EstablishmentDate
	}
	if f.ClearGenre {
		b.Genre = nil
	} else if f.Genre != nil {
		g := *f.Genre
		b.Genre = &g
	}
	if f.Studio != nil {
		b.Studio = *f.Studio
	}
}

func (b *Band) String() string {
	return fmt.Sprintf("#%d %s", b.ID, b.Name)
}

// BandForm carries the operator-supplied fields of a record.
// Nil fields are unset; for updates they leave the record unchanged.
type BandForm struct {
	Name                 string       `json:"name,omitempty"`
	Coordinates          *Coordinates `json:"coordinates,omitempty"`
	NumberOfParticipants *int64       `json:"number_of_participants,omitempty"`
	EstablishmentDate    *time.Time   `json:"establishment_date,omitempty"`
	Genre                *Genre       `json:"genre,omitempty"`
	Studio               *Studio      `json:"studio,omitempty"`

	// Optional fields an update explicitly resets
	ClearParticipants bool `json:"clear_participants,omitempty"`
	ClearGenre        bool `json:"clear_genre,omitempty"`
}

// ValidateNew checks that the form describes a complete record.
func (f *BandForm) ValidateNew() error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("name must not be empty")
	}
	if f.Coordinates == nil {
		return errors.New("coordinates are missing")
	}
	if f.EstablishmentDate == nil {
		return errors.New("establishment date is missing")
	}
	if f.Studio == nil {
		return errors.New("studio is missing")
	}
	return f.validateFields()
}

// ValidateUpdate checks only the fields the form sets.
func (f *BandForm) ValidateUpdate() error {
	if f.Name != "" && strings.TrimSpace(f.Name) == "" {
		return errors.New("name must not be blank")
	}
	return f.validateFields()
}

func (f *BandForm) validateFields() error {
	if f.Coordinates != nil && f.Coordinates.X <= MinCoordinateX {
		return fmt.Errorf("coordinate x must be greater than %d", MinCoordinateX)
	}
	if f.NumberOfParticipants != nil && *f.NumberOfParticipants <= 0 {
		return errors.New("number of participants must be positive")
	}
	if f.Genre != nil {
		if _, err := ParseGenre(string(*f.Genre)); err != nil {
			return err
		}
	}
	if f.Studio != nil && strings.TrimSpace(f.Studio.Address) == "" {
		return errors.New("studio address must not be empty")
	}
	return nil
}
