package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// Bolt implements Store on a BoltDB file. Cache buckets map directly
// onto bbolt buckets, so stored entries persist across process
// restarts until a version bump deletes their generation.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) a BoltDB-backed store at path.
func OpenBolt(path string) (*Bolt, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache: bolt path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Bucket opens the named bucket, creating it if absent.
func (s *Bolt) Bucket(name string) (Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("cache: bucket name is required")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %q: %w", name, err)
	}
	return &boltBucket{db: s.db, name: []byte(name)}, nil
}

// BucketNames lists all existing bucket names.
func (s *Bolt) BucketNames() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return names, nil
}

// DeleteBucket removes the named bucket and all its entries.
func (s *Bolt) DeleteBucket(name string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.DeleteBucket([]byte(name))
	})
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete bucket %q: %w", name, err)
	}
	return nil
}

// Close closes the underlying BoltDB database.
func (s *Bolt) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type boltBucket struct {
	db   *bbolt.DB
	name []byte
}

// boltEntry is the on-disk record for a stored snapshot.
type boltEntry struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`
}

func (b *boltBucket) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record boltEntry
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.name)
		if bucket == nil {
			return nil
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &record)
	})
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &Entry{
		StatusCode: record.StatusCode,
		Header:     record.Header,
		Body:       record.Body,
		StoredAt:   record.StoredAt,
	}, nil
}

func (b *boltBucket) Put(ctx context.Context, key string, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("cache: entry is required")
	}

	raw, err := json.Marshal(boltEntry{
		StatusCode: entry.StatusCode,
		Header:     entry.Header,
		Body:       entry.Body,
		StoredAt:   entry.StoredAt,
	})
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.name)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}
