package collection

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/berrythewa/bandman/internal/storage"
	"github.com/berrythewa/bandman/internal/types"
	"go.uber.org/zap"
)

var (
	ErrEmpty       = errors.New("collection is empty")
	ErrNoSuchBand  = errors.New("no band with such id")
	ErrOutOfBounds = errors.New("index out of bounds")
)

// Info summarizes the collection state
type Info struct {
	Type     string
	Count    int
	InitTime time.Time
	SaveTime time.Time // zero until the first save
	Storage  string
}

// DateCount pairs an establishment date with the number of bands founded on it.
type DateCount struct {
	Date  time.Time
	Count int
}

// Store is the in-memory band collection. Operations never block on I/O
// except Load and Save. It is not safe for concurrent use.
type Store struct {
	bands    []types.Band
	storage  storage.Storage
	logger   *zap.Logger
	rand     *rand.Rand
	now      func() time.Time
	initTime time.Time
	saveTime time.Time
}

// NewStore creates an empty store backed by st. st may be nil for a
// memory-only collection.
func NewStore(st storage.Storage, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		storage: st,
		logger:  logger,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// Load replaces the collection with the stored records. Invalid and
// duplicate records are dropped with a warning. Corrupt storage is reported
// but leaves whatever could be read in place.
func (s *Store) Load() error {
	s.initTime = s.now()
	if s.storage == nil {
		return nil
	}

	loaded, err := s.storage.Load()
	if err != nil && !errors.Is(err, storage.ErrCorrupt) {
		return err
	}

	seen := make(map[int64]bool, len(loaded))
	s.bands = s.bands[:0]
	for i := range loaded {
		b := loaded[i]
		if verr := b.Validate(); verr != nil {
			s.logger.Warn("Dropping invalid band", zap.Int64("id", b.ID), zap.Error(verr))
			continue
		}
		if seen[b.ID] {
			s.logger.Warn("Dropping duplicate band", zap.Int64("id", b.ID))
			continue
		}
		seen[b.ID] = true
		s.bands = append(s.bands, b)
	}

	s.logger.Info("Collection loaded",
		zap.String("path", s.storage.Path()),
		zap.Int("count", len(s.bands)),
		zap.Int("dropped", len(loaded)-len(s.bands)))
	return err
}

// Save writes the collection to storage.
func (s *Store) Save() error {
	if s.storage == nil {
		return errors.New("no storage configured")
	}
	if err := s.storage.Save(s.bands); err != nil {
		return err
	}
	s.saveTime = s.now()
	return nil
}

func (s *Store) Len() int {
	return len(s.bands)
}

// List returns a copy of the collection in order.
func (s *Store) List() []types.Band {
	return append([]types.Band(nil), s.bands...)
}

// Get returns the band with the given id.
func (s *Store) Get(id int64) (types.Band, error) {
	i := s.indexOf(id)
	if i < 0 {
		return types.Band{}, fmt.Errorf("%w: %d", ErrNoSuchBand, id)
	}
	return s.bands[i], nil
}

// Add creates a band from a complete form and appends it.
func (s *Store) Add(form *types.BandForm) (types.Band, error) {
	if form == nil {
		return types.Band{}, errors.New("form is missing")
	}
	if err := form.ValidateNew(); err != nil {
		return types.Band{}, err
	}
	b := types.Band{ID: s.nextID(), CreationDate: s.now()}
	b.Apply(form)
	s.bands = append(s.bands, b)
	return b, nil
}

// Update merges the set fields of form into the band with the given id.
func (s *Store) Update(id int64, form *types.BandForm) (types.Band, error) {
	if form == nil {
		return types.Band{}, errors.New("form is missing")
	}
	i := s.indexOf(id)
	if i < 0 {
		return types.Band{}, fmt.Errorf("%w: %d", ErrNoSuchBand, id)
	}
	if err := form.ValidateUpdate(); err != nil {
		return types.Band{}, err
	}
	s.bands[i].Apply(form)
	return s.bands[i], nil
}

func (s *Store) RemoveByID(id int64) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrNoSuchBand, id)
	}
	s.bands = append(s.bands[:i], s.bands[i+1:]...)
	return nil
}

// RemoveAt removes the band at the zero-based position.
func (s *Store) RemoveAt(index int) error {
	if len(s.bands) == 0 {
		return ErrEmpty
	}
	if index < 0 || index >= len(s.bands) {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrOutOfBounds, index, len(s.bands)-1)
	}
	s.bands = append(s.bands[:index], s.bands[index+1:]...)
	return nil
}

func (s *Store) Clear() error {
	if len(s.bands) == 0 {
		return ErrEmpty
	}
	s.bands = s.bands[:0]
	return nil
}

func (s *Store) Shuffle() error {
	if len(s.bands) == 0 {
		return ErrEmpty
	}
	s.rand.Shuffle(len(s.bands), func(i, j int) {
		s.bands[i], s.bands[j] = s.bands[j], s.bands[i]
	})
	return nil
}

// FilterLessThanParticipants returns bands whose participant count is known
// and below n.
func (s *Store) FilterLessThanParticipants(n int64) []types.Band {
	var out []types.Band
	for _, b := range s.bands {
		if b.NumberOfParticipants != nil && *b.NumberOfParticipants < n {
			out = append(out, b)
		}
	}
	return out
}

// GroupByEstablishmentDate counts bands per establishment day, oldest first.
func (s *Store) GroupByEstablishmentDate() []DateCount {
	counts := make(map[time.Time]int)
	for _, b := range s.bands {
		counts[day(b.EstablishmentDate)]++
	}
	groups := make([]DateCount, 0, len(counts))
	for d, c := range counts {
		groups = append(groups, DateCount{Date: d, Count: c})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Date.Before(groups[j].Date)
	})
	return groups
}

// EstablishmentDatesDescending returns every establishment date, newest first.
func (s *Store) EstablishmentDatesDescending() []time.Time {
	dates := make([]time.Time, len(s.bands))
	for i, b := range s.bands {
		dates[i] = b.EstablishmentDate
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].After(dates[j])
	})
	return dates
}

func (s *Store) Info() Info {
	info := Info{
		Type:     "[]types.Band",
		Count:    len(s.bands),
		InitTime: s.initTime,
		SaveTime: s.saveTime,
	}
	if s.storage != nil {
		info.Storage = s.storage.Path()
	}
	return info
}

func (s *Store) nextID() int64 {
	var highest int64
	for _, b := range s.bands {
		if b.ID > highest {
			highest = b.ID
		}
	}
	return highest + 1
}

func (s *Store) indexOf(id int64) int {
	for i := range s.bands {
		if s.bands[i].ID == id {
			return i
		}
	}
	return -1
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
