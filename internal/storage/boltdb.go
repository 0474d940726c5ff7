package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/berrythewa/bandman/internal/types"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	bandsBucket = "bands"
	metaBucket  = "meta"
	savedAtKey  = "saved_at"
)

// BoltStorage implements persistent storage for the collection using BoltDB.
// Records are keyed by their position so the collection order survives.
type BoltStorage struct {
	db     *bbolt.DB
	path   string
	logger *zap.Logger
}

// NewBoltStorage creates a new BoltStorage instance
func NewBoltStorage(cfg Config) (*BoltStorage, error) {
	if cfg.Path == "" {
		return nil, errors.New("storage path must not be empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	db, err := bbolt.Open(cfg.Path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bandsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Debug("BoltStorage initialized", zap.String("db_path", cfg.Path))
	return &BoltStorage{db: db, path: cfg.Path, logger: cfg.Logger}, nil
}

func (s *BoltStorage) Path() string {
	return s.path
}

// Load returns the stored records in collection order.
func (s *BoltStorage) Load() ([]types.Band, error) {
	var bands []types.Band
	var skipped int

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bandsBucket))
		return b.ForEach(func(k, v []byte) error {
			var band types.Band
			if err := json.Unmarshal(v, &band); err != nil {
				s.logger.Warn("Failed to unmarshal band", zap.Error(err), zap.Binary("key", k))
				skipped++
				return nil // skip invalid entries
			}
			bands = append(bands, band)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	if skipped > 0 {
		return bands, fmt.Errorf("%w: %d records skipped", ErrCorrupt, skipped)
	}
	return bands, nil
}

// Save replaces the stored collection in a single transaction.
func (s *BoltStorage) Save(bands []types.Band) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bandsBucket)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to drop bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(bandsBucket))
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}

		for i := range bands {
			encoded, err := json.Marshal(&bands[i])
			if err != nil {
				return fmt.Errorf("failed to marshal band %d: %w", bands[i].ID, err)
			}
			if err := b.Put(positionKey(i), encoded); err != nil {
				return err
			}
		}

		stamp, _ := time.Now().MarshalText()
		if err := tx.Bucket([]byte(metaBucket)).Put([]byte(savedAtKey), stamp); err != nil {
			return err
		}

		s.logger.Debug("Collection written", zap.String("db_path", s.path), zap.Int("count", len(bands)))
		return nil
	})
}

// SavedAt returns the time of the last successful Save, if any.
func (s *BoltStorage) SavedAt() (time.Time, bool) {
	var t time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(metaBucket)).Get([]byte(savedAtKey))
		if v == nil {
			return errors.New("never saved")
		}
		return t.UnmarshalText(v)
	})
	return t, err == nil
}

func (s *BoltStorage) Close() error {
	return s.db.Close()
}

func positionKey(i int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(i))
	return key
}
