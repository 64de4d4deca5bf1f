package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	entriesBucket = []byte("entries")
	metaBucket    = []byte("metadata")
)

// ErrNotFound is returned for missing or expired keys.
var ErrNotFound = errors.New("key not found")

// Store is a persisted key/value store whose values expire after a TTL.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{entriesBucket, metaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// SetClock replaces the time source used for expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key. Expired entries are reported as
// ErrNotFound and left for Purge.
func (s *Store) Get(key string) (string, error) {
	var entry Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(entriesBucket).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return "", err
	}
	if entry.expired(s.now()) {
		return "", ErrNotFound
	}
	return entry.Value, nil
}

// Set stores value under key. A ttl of zero or less never expires.
func (s *Store) Set(key, value string, ttl time.Duration) error {
	now := s.now()
	entry := Entry{Value: value, UpdatedAt: now}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(key), data)
	})
}

// Touch extends the expiry of a live key without changing its value.
func (s *Store) Touch(key string, ttl time.Duration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		data := b.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}

		now := s.now()
		if entry.expired(now) {
			return ErrNotFound
		}
		entry.UpdatedAt = now
		entry.ExpiresAt = time.Time{}
		if ttl > 0 {
			entry.ExpiresAt = now.Add(ttl)
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Delete([]byte(key))
	})
}

// Purge removes all expired entries and returns how many were removed.
func (s *Store) Purge() (int, error) {
	removed := 0
	now := s.now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			if entry.expired(now) {
				if err := c.Delete(); err != nil {
					return err
				}
				removed++
			}
		}
		return tx.Bucket(metaBucket).Put([]byte("last_purge"), []byte(now.UTC().Format(time.RFC3339)))
	})
	return removed, err
}

// LastPurge returns when Purge last ran, or the zero time.
func (s *Store) LastPurge() (time.Time, error) {
	var last time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(metaBucket).Get([]byte("last_purge"))
		if data == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339, string(data))
		if err != nil {
			return err
		}
		last = t
		return nil
	})
	return last, err
}
