// Package state provides Badger DB-backed storage for the monitor's three
// durable items: the stage hint, the permanently dismissed warning ids, and
// the manual PSU assignment overrides. Each item is replaced whole on write;
// there is a single writer (the polling loop), so last-writer-wins is
// sufficient.
package state

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/fleettune/fleettune/pkg/tune/power"
	"github.com/fleettune/fleettune/pkg/tune/types"
)

// Key prefixes for different data types
const (
	keyStageHint    = "h:stage"
	prefixDismissed = "d:"
	keyOverrides    = "o:psu"
)

// ErrNotFound is returned when a state entry doesn't exist.
var ErrNotFound = errors.New("state entry not found")

// Store is the persisted monitor state backed by Badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// StageHint returns the persisted stage hint. The boolean is false when no
// hint has been written yet or the read fails; callers treat the hint as an
// optional fallback either way.
func (s *Store) StageHint() (types.StageHint, bool) {
	var hint types.StageHint
	err := s.get(keyStageHint, &hint)
	return hint, err == nil
}

// PutStageHint replaces the persisted stage hint.
func (s *Store) PutStageHint(hint types.StageHint) error {
	return s.put(keyStageHint, hint)
}

// Dismissed reports whether the warning id was permanently dismissed.
func (s *Store) Dismissed(id string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixDismissed + id))
		return err
	})
	return err == nil
}

// PutDismissed adds the warning id to the persisted dismissed set.
func (s *Store) PutDismissed(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixDismissed+id), []byte{1})
	})
}

// DismissedIDs returns every permanently dismissed warning id.
func (s *Store) DismissedIDs() ([]string, error) {
	var ids []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixDismissed)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})

	return ids, err
}

// Overrides returns the manual PSU assignment map. A missing entry yields
// an empty, usable map.
func (s *Store) Overrides() (power.Overrides, error) {
	var overrides power.Overrides
	err := s.get(keyOverrides, &overrides)
	if errors.Is(err, ErrNotFound) {
		return power.Overrides{}, nil
	}
	if err != nil {
		return nil, err
	}
	if overrides == nil {
		overrides = power.Overrides{}
	}
	return overrides, nil
}

// PutOverride assigns a device to a PSU id in the manual override map.
// An empty psuID pins the device as standalone. The whole map is replaced
// on write.
func (s *Store) PutOverride(deviceName, psuID string) error {
	overrides, err := s.Overrides()
	if err != nil {
		return err
	}
	overrides[deviceName] = psuID
	return s.put(keyOverrides, overrides)
}

// DeleteOverride removes a device's manual override entirely, restoring
// provider-declared assignment.
func (s *Store) DeleteOverride(deviceName string) error {
	overrides, err := s.Overrides()
	if err != nil {
		return err
	}
	delete(overrides, deviceName)
	return s.put(keyOverrides, overrides)
}

// get reads and unmarshals a JSON value.
func (s *Store) get(key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

// put marshals and replaces a JSON value.
func (s *Store) put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}
