package shellcache

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spdeepak/shellcache/cache"
)

// snapshot drains a response body exactly once and repackages it as a
// cache entry. A response body stream can only be consumed once, so
// the entry stands in for both consumers: one copy is replayed to the
// caller, the other lands in the bucket.
//
// cacheable reports whether the body fits under maxBytes; an oversized
// response is still returned in full so it can be relayed, it just
// must not be stored. maxBytes <= 0 disables the cap.
func snapshot(res *http.Response, strip func(http.Header) http.Header, maxBytes int64) (entry *cache.Entry, cacheable bool, err error) {
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read response body: %w", err)
	}

	header := res.Header.Clone()
	if strip != nil {
		header = strip(header)
	}

	entry = &cache.Entry{
		StatusCode: res.StatusCode,
		Header:     header,
		Body:       body,
		StoredAt:   time.Now(),
	}
	cacheable = maxBytes <= 0 || int64(len(body)) <= maxBytes
	return entry, cacheable, nil
}

// writeEntry replays a snapshot to the client. Headers must be set
// before WriteHeader, and the stored header map is never mutated.
func writeEntry(w http.ResponseWriter, entry *cache.Entry) {
	for headerKey, headerValues := range entry.Header {
		for _, headerValue := range headerValues {
			w.Header().Add(headerKey, headerValue)
		}
	}
	w.WriteHeader(entry.StatusCode)
	if len(entry.Body) > 0 {
		_, _ = w.Write(entry.Body)
	}
}
