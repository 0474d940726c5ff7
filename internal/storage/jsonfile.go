package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/berrythewa/bandman/internal/types"
	"go.uber.org/zap"
)

// JSONStorage keeps the collection as one JSON array in a file.
type JSONStorage struct {
	path   string
	logger *zap.Logger
}

// NewJSONStorage checks that the file is usable, creating an empty
// collection file when it does not exist yet.
func NewJSONStorage(cfg Config) (*JSONStorage, error) {
	if cfg.Path == "" {
		return nil, errors.New("storage path must not be empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &JSONStorage{path: cfg.Path, logger: cfg.Logger}

	info, err := os.Stat(cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := s.Save(nil); err != nil {
			return nil, fmt.Errorf("failed to create storage file: %w", err)
		}
		s.logger.Info("Created storage file", zap.String("path", cfg.Path))
	case err != nil:
		return nil, fmt.Errorf("failed to stat storage file: %w", err)
	case info.IsDir():
		return nil, fmt.Errorf("storage path %s is a directory", cfg.Path)
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("storage file is not readable: %w", err)
	}
	f.Close()
	return s, nil
}

func (s *JSONStorage) Path() string {
	return s.path
}

// Load reads the collection. An empty file is an empty collection.
func (s *JSONStorage) Load() ([]types.Band, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	bands := make([]types.Band, 0, len(raw))
	var skipped int
	for i, item := range raw {
		var b types.Band
		if err := json.Unmarshal(item, &b); err != nil {
			s.logger.Warn("Skipping undecodable record", zap.Int("index", i), zap.Error(err))
			skipped++
			continue
		}
		bands = append(bands, b)
	}
	if skipped > 0 {
		return bands, fmt.Errorf("%w: %d records skipped", ErrCorrupt, skipped)
	}
	return bands, nil
}

// Save replaces the file atomically through a temp file in the same directory.
func (s *JSONStorage) Save(bands []types.Band) error {
	if bands == nil {
		bands = []types.Band{}
	}
	data, err := json.MarshalIndent(bands, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal collection: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}

	s.logger.Debug("Collection written", zap.String("path", s.path), zap.Int("count", len(bands)))
	return nil
}

func (s *JSONStorage) Close() error {
	return nil
}
