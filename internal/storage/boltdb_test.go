package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/berrythewa/bandman/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleBands() []types.Band {
	participants := int64(3)
	genre := types.GenreSoul
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []types.Band{
		{
			ID:                   7,
			Name:                 "Second",
			Coordinates:          types.Coordinates{X: 1, Y: 2},
			CreationDate:         created,
			NumberOfParticipants: &participants,
			EstablishmentDate:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			Genre:                &genre,
			Studio:               types.Studio{Address: "Memphis"},
		},
		{
			ID:                3,
			Name:              "First",
			Coordinates:       types.Coordinates{X: -5, Y: 0},
			CreationDate:      created,
			EstablishmentDate: time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC),
			Studio:            types.Studio{Address: "Detroit"},
		},
	}
}

func TestBoltStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bands.db")

	s, err := Open(Config{Path: path, Logger: zap.NewNop()})
	require.NoError(t, err)
	_, isBolt := s.(*BoltStorage)
	require.True(t, isBolt)

	t.Run("EmptyOnFirstOpen", func(t *testing.T) {
		bands, err := s.Load()
		require.NoError(t, err)
		assert.Empty(t, bands)

		_, saved := s.(*BoltStorage).SavedAt()
		assert.False(t, saved)
	})

	t.Run("SaveKeepsOrder", func(t *testing.T) {
		require.NoError(t, s.Save(sampleBands()))

		bands, err := s.Load()
		require.NoError(t, err)
		require.Len(t, bands, 2)
		assert.Equal(t, int64(7), bands[0].ID)
		assert.Equal(t, int64(3), bands[1].ID)
		assert.Equal(t, types.GenreSoul, *bands[0].Genre)

		_, saved := s.(*BoltStorage).SavedAt()
		assert.True(t, saved)
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		require.NoError(t, s.Save(sampleBands()[1:]))

		bands, err := s.Load()
		require.NoError(t, err)
		require.Len(t, bands, 1)
		assert.Equal(t, "First", bands[0].Name)
	})

	require.NoError(t, s.Close())

	t.Run("Reopen", func(t *testing.T) {
		s, err := NewBoltStorage(Config{Path: path})
		require.NoError(t, err)
		defer s.Close()

		bands, err := s.Load()
		require.NoError(t, err)
		assert.Len(t, bands, 1)
	})
}

func TestJSONStorage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "bands.json")

	s, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))

	require.NoError(t, s.Save(sampleBands()))
	bands, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleBands(), bands)

	leftovers, err := filepath.Glob(filepath.Join(dir, "nested", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestJSONStorageEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bands.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	s, err := NewJSONStorage(Config{Path: path})
	require.NoError(t, err)

	bands, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, bands)
}

func TestJSONStorageCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bands.json")

	t.Run("NotAnArray", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"bands": 1}`), 0644))
		s, err := NewJSONStorage(Config{Path: path})
		require.NoError(t, err)

		_, err = s.Load()
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("SomeRecordsBroken", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`[{"id": 1, "name": "ok"}, {"id": "x"}]`), 0644))
		s, err := NewJSONStorage(Config{Path: path})
		require.NoError(t, err)

		bands, err := s.Load()
		assert.ErrorIs(t, err, ErrCorrupt)
		require.Len(t, bands, 1)
		assert.Equal(t, "ok", bands[0].Name)
	})
}

func TestJSONStorageRejectsDirectory(t *testing.T) {
	_, err := NewJSONStorage(Config{Path: t.TempDir()})
	assert.Error(t, err)
}
