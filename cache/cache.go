package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrNotFound indicates a bucket has no entry for the requested key.
var ErrNotFound = errors.New("cache: entry not found")

// Entry holds a stored response snapshot: status, headers and body.
// Entries carry no expiry. They are replaced when a background
// revalidation lands a fresher copy and destroyed when their bucket is
// deleted on a version bump.
type Entry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// Clone returns a deep copy so callers and the store never alias the
// same header map or body slice.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	return &Entry{
		StatusCode: e.StatusCode,
		Header:     e.Header.Clone(),
		Body:       append([]byte(nil), e.Body...),
		StoredAt:   e.StoredAt,
	}
}

// Bucket is a named key/value store of response snapshots. Get and Put
// are independent atomic operations; a lookup followed by a store is
// not atomic as a whole, and concurrent writers for the same key race
// with last write winning.
type Bucket interface {
	// Get returns the entry stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)
	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key string, entry *Entry) error
}

// Store manages named buckets. One bucket per cache generation: the
// bucket name is the version tag, and deleting a bucket drops every
// entry of that generation at once.
type Store interface {
	// Bucket opens the named bucket, creating it if absent.
	Bucket(name string) (Bucket, error)
	// BucketNames lists all existing bucket names.
	BucketNames() ([]string, error)
	// DeleteBucket removes the named bucket and all its entries.
	// Deleting a bucket that does not exist is not an error.
	DeleteBucket(name string) error
	Close() error
}
