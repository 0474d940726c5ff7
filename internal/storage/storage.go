package storage

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/berrythewa/bandman/internal/types"
	"go.uber.org/zap"
)

// ErrCorrupt is returned by Load when the storage holds unreadable records.
// The records that could be decoded are still returned.
var ErrCorrupt = errors.New("storage content is corrupt")

// Storage persists the band collection as an ordered list.
type Storage interface {
	Load() ([]types.Band, error)
	Save(bands []types.Band) error
	Path() string
	Close() error
}

// Config holds configuration for opening a storage backend
type Config struct {
	Path   string
	Logger *zap.Logger
}

// Open selects the backend from the file extension: ".db" and ".bolt" use
// BoltDB, anything else a JSON document.
func Open(cfg Config) (Storage, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	switch strings.ToLower(filepath.Ext(cfg.Path)) {
	case ".db", ".bolt":
		return NewBoltStorage(cfg)
	default:
		return NewJSONStorage(cfg)
	}
}
