// Package configstore keeps the history of accepted cluster descriptions in
// pebble so a restarted daemon can serve its last good topology before the
// coordinator is reachable.
package configstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"hyperkv/pkg/ordered"
)

var (
	ErrEmpty    = errors.New("configstore: no configuration saved")
	ErrNotFound = errors.New("configstore: version not found")
	ErrClosed   = errors.New("configstore: store is closed")
)

var (
	versionPrefix = []byte("cfg/v/")
	latestKey     = []byte("cfg/latest")
)

// Store is safe for concurrent use. Close waits for in-flight calls; calls
// after Close return ErrClosed.
type Store struct {
	mu sync.RWMutex
	db *pebble.DB
}

// Open opens or creates the store at dir. A nil fs uses the OS filesystem.
func Open(dir string, fs vfs.FS) (*Store, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("configstore: open %s: %w", dir, err)
	}
	slog.Info("config store opened", "path", dir)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func versionKey(v uint64) []byte {
	return ordered.AppendUint64(append([]byte(nil), versionPrefix...), v)
}

// Save records text under version and marks it as the latest, atomically.
func (s *Store) Save(version uint64, text []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Set(versionKey(version), text, nil); err != nil {
		return err
	}
	if err := b.Set(latestKey, ordered.AppendUint64(nil, version), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// Latest returns the most recently saved version and its text.
func (s *Store) Latest() (uint64, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, nil, ErrClosed
	}
	return s.latest()
}

func (s *Store) Get(version uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.get(versionKey(version))
}

// latest and get expect s.mu held and the store open.
func (s *Store) latest() (uint64, []byte, error) {
	raw, err := s.get(latestKey)
	if errors.Is(err, ErrNotFound) {
		return 0, nil, ErrEmpty
	}
	if err != nil {
		return 0, nil, err
	}
	if len(raw) != ordered.Size {
		return 0, nil, fmt.Errorf("configstore: corrupt latest marker of %d bytes", len(raw))
	}
	v := ordered.DecodeUint64(raw)
	text, err := s.get(versionKey(v))
	if err != nil {
		return 0, nil, err
	}
	return v, text, nil
}

func (s *Store) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// Versions lists the saved versions in ascending order.
func (s *Store) Versions() ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	upper := append([]byte(nil), versionPrefix...)
	ordered.Bump(upper)

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: versionPrefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []uint64
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) != len(versionPrefix)+ordered.Size {
			continue
		}
		out = append(out, ordered.DecodeUint64(key[len(versionPrefix):]))
	}
	return out, iter.Error()
}

// Prune drops every version older than latest-keep+1, keeping the last keep
// versions by number.
func (s *Store) Prune(keep uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	latest, _, err := s.latest()
	if err != nil {
		return err
	}
	if keep == 0 || latest < keep {
		return nil
	}
	floor := latest - keep + 1
	if err := s.db.DeleteRange(versionKey(0), versionKey(floor), pebble.Sync); err != nil {
		return fmt.Errorf("configstore: prune below %d: %w", floor, err)
	}
	slog.Debug("config history pruned", "below", floor)
	return nil
}
