// Package badger persists settings in an embedded BadgerDB.
//
// Key namespace:
//
//	Data Type      Prefix   Key Format      Value Type
//	=====================================================
//	Bus settings   "bus:"   bus:<profile>   BusSettings (JSON)
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/gpibgate/pkg/store/settings"
)

const prefixBus = "bus:"

func keyBus(profile string) []byte {
	return []byte(prefixBus + profile)
}

// Config configures the BadgerDB settings store.
type Config struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps the database in RAM, for tests.
	InMemory bool `mapstructure:"in_memory"`
}

type Store struct {
	db *badger.DB
}

// New opens (or creates) the database.
func New(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, errors.New("badger settings store: db_path is required")
		}
		opts = badger.DefaultOptions(config.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) (settings.BusSettings, error) {
	var v settings.BusSettings
	if err := ctx.Err(); err != nil {
		return v, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyBus(key))
		if err == badger.ErrKeyNotFound {
			return settings.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
	})
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return settings.BusSettings{}, err
		}
		return settings.BusSettings{}, fmt.Errorf("get settings %q: %w", key, err)
	}

	return v, nil
}

func (s *Store) Put(ctx context.Context, key string, v settings.BusSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyBus(key), data)
	}); err != nil {
		return fmt.Errorf("put settings %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyBus(key))
	}); err != nil {
		return fmt.Errorf("delete settings %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ settings.Store = (*Store)(nil)
