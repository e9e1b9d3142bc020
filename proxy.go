package shellcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spdeepak/shellcache/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Fetcher issues a single network attempt for a request. *http.Client
// satisfies it. There are no retries: one call, one answer.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Proxy sits between an application shell and the network. It owns one
// named, versioned cache bucket and serves intercepted GET requests
// cache-first, refreshing hit entries in the background
// (stale-while-revalidate). When both the cache and the network fail
// it synthesizes a plain-text 503 so the caller always gets a
// response.
type Proxy struct {
	store   cache.Store
	cfg     *Config
	fetcher Fetcher
	log     *zap.Logger

	// This ensures that when several hits race on the same key, the
	// background refresh for that key runs only once.
	singleFlight singleflight.Group

	// revalidated receives a key after each background refresh settles,
	// success or not. Sends never block; only tests listen.
	revalidated chan string
}

// New constructs a Proxy over the given store. A nil fetcher uses
// http.DefaultClient, a nil cfg uses DefaultConfig and a nil logger
// discards everything.
func New(store cache.Store, fetcher Fetcher, cfg *Config, logger *zap.Logger) *Proxy {
	if cfg == nil {
		cfg = DefaultConfig
	}
	if fetcher == nil {
		fetcher = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		store:       store,
		cfg:         cfg.normalized(),
		fetcher:     fetcher,
		log:         logger,
		revalidated: make(chan string, 64),
	}
}

// Install opens (creating if absent) the bucket for the current
// version and fetches and stores every precache URL. All-or-nothing:
// a single failed asset fails the whole install, because a partial
// shell is useless offline. Contents already stored are left in place;
// a later Activate under a new version wipes them wholesale.
func (p *Proxy) Install(ctx context.Context) error {
	bucket, err := p.store.Bucket(p.cfg.Version)
	if err != nil {
		return fmt.Errorf("open bucket %q: %w", p.cfg.Version, err)
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, rawURL := range p.cfg.Precache {
		rawURL := rawURL
		group.Go(func() error {
			target, err := url.Parse(rawURL)
			if err != nil {
				return fmt.Errorf("precache %s: %w", rawURL, err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.resolve(target).String(), nil)
			if err != nil {
				return fmt.Errorf("precache %s: %w", rawURL, err)
			}

			entry, cacheable, err := p.fetchEntry(req)
			if err != nil {
				return fmt.Errorf("precache %s: %w", rawURL, err)
			}
			if !p.cfg.ShouldCache(entry.StatusCode) {
				return fmt.Errorf("precache %s: unexpected status %d", rawURL, entry.StatusCode)
			}
			if !cacheable {
				return fmt.Errorf("precache %s: body exceeds cache cap", rawURL)
			}
			return bucket.Put(ctx, p.cfg.KeyGenerator(req), entry)
		})
	}
	return group.Wait()
}

// Activate deletes every bucket whose name does not match the current
// version tag. Deletions are independent best-effort operations: a
// failed one is logged at warn and the rest are still attempted, and
// Activate reports success regardless so the proxy takes over either
// way. Running it with no stale buckets is a no-op.
func (p *Proxy) Activate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	names, err := p.store.BucketNames()
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	for _, name := range names {
		if name == p.cfg.Version {
			continue
		}
		if err := p.store.DeleteBucket(name); err != nil {
			p.log.Warn("failed to delete stale cache bucket",
				zap.String("bucket", name), zap.Error(err))
		}
	}

	// Make sure the current bucket exists even if Install never ran.
	if _, err := p.store.Bucket(p.cfg.Version); err != nil {
		return fmt.Errorf("open bucket %q: %w", p.cfg.Version, err)
	}
	return nil
}

// ServeHTTP implements the interception hook.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only GET requests are intercepted; every other method goes
	// straight to the network with no cache side effects.
	if r.Method != http.MethodGet {
		p.passthrough(w, r)
		return
	}

	key := p.cfg.KeyGenerator(r)
	if key == "" {
		// fallback to not caching if key generation fails
		p.passthrough(w, r)
		return
	}

	bucket, err := p.store.Bucket(p.cfg.Version)
	if err != nil {
		p.log.Error("failed to open cache bucket",
			zap.String("bucket", p.cfg.Version), zap.Error(err))
		p.passthrough(w, r)
		return
	}

	entry, err := bucket.Get(r.Context(), key)
	switch {
	case err == nil:
		// Hit: the caller gets the stored copy immediately, possibly
		// stale. The refresh happens behind its back.
		writeEntry(w, entry)
		p.revalidate(bucket, r, key)
	case errors.Is(err, cache.ErrNotFound):
		p.fetchAndStore(w, r, bucket, key)
	default:
		p.log.Error("cache lookup failed", zap.String("key", key), zap.Error(err))
		p.fetchAndStore(w, r, bucket, key)
	}
}

// Revalidated exposes settled background refreshes: each one sends its
// key once finished, whether or not it updated the bucket. The channel
// is buffered and sends are dropped when nobody is listening, so
// production callers can ignore it entirely.
func (p *Proxy) Revalidated() <-chan string {
	return p.revalidated
}

// fetchAndStore handles a cache miss: one network attempt, then either
// relay-and-store or the synthesized offline fallback.
func (p *Proxy) fetchAndStore(w http.ResponseWriter, r *http.Request, bucket cache.Bucket, key string) {
	req, err := p.outbound(r.Context(), r)
	if err != nil {
		p.writeOffline(w)
		return
	}

	entry, cacheable, err := p.fetchEntry(req)
	if err != nil {
		// No network and no cache entry: the contract still requires a
		// response.
		p.writeOffline(w)
		return
	}

	writeEntry(w, entry)

	if cacheable && p.cfg.ShouldCache(entry.StatusCode) {
		if err := bucket.Put(r.Context(), key, entry); err != nil {
			p.log.Error("failed to store response", zap.String("key", key), zap.Error(err))
		}
	}
}

// revalidate refreshes a hit entry without delaying the caller. The
// fetch runs on a background context so a client disconnect cannot
// cancel it, and every failure is discarded after a debug log — the
// caller already has a usable response.
func (p *Proxy) revalidate(bucket cache.Bucket, r *http.Request, key string) {
	// Build the outgoing request before leaving the handler; the server
	// may recycle r once ServeHTTP returns.
	req, err := p.outbound(context.Background(), r)
	if err != nil {
		p.log.Debug("cannot build revalidation request", zap.String("key", key), zap.Error(err))
		return
	}

	go func() {
		defer p.settle(key)
		_, _, _ = p.singleFlight.Do(key, func() (interface{}, error) {
			entry, cacheable, err := p.fetchEntry(req)
			if err != nil {
				p.log.Debug("background revalidation failed",
					zap.String("key", key), zap.Error(err))
				return nil, nil
			}
			if !cacheable || !p.cfg.ShouldCache(entry.StatusCode) {
				return nil, nil
			}
			if err := bucket.Put(context.Background(), key, entry); err != nil {
				p.log.Debug("failed to refresh cached entry",
					zap.String("key", key), zap.Error(err))
			}
			return nil, nil
		})
	}()
}

// passthrough forwards a request verbatim and relays whatever comes
// back. Used for non-GET methods and as the escape hatch when the
// cache layer itself is unavailable.
func (p *Proxy) passthrough(w http.ResponseWriter, r *http.Request) {
	req, err := p.outbound(r.Context(), r)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	res, err := p.fetcher.Do(req)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()

	for headerKey, headerValues := range res.Header {
		for _, headerValue := range headerValues {
			w.Header().Add(headerKey, headerValue)
		}
	}
	w.WriteHeader(res.StatusCode)
	_, _ = io.Copy(w, res.Body)
}

// fetchEntry performs the single network attempt and snapshots the
// result.
func (p *Proxy) fetchEntry(req *http.Request) (*cache.Entry, bool, error) {
	res, err := p.fetcher.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer res.Body.Close()
	return snapshot(res, p.cfg.StripHeaders, p.cfg.MaxBodyBytes)
}

// outbound turns an inbound request into the network request to issue,
// rewriting scheme and host onto the configured upstream.
func (p *Proxy) outbound(ctx context.Context, r *http.Request) (*http.Request, error) {
	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, p.resolve(r.URL).String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	return req, nil
}

// resolve rewrites u onto the upstream origin, leaving path and query
// untouched. Without an upstream the URL passes through as-is.
func (p *Proxy) resolve(u *url.URL) *url.URL {
	if p.cfg.Upstream == nil {
		return u
	}
	resolved := *u
	resolved.Scheme = p.cfg.Upstream.Scheme
	resolved.Host = p.cfg.Upstream.Host
	return &resolved
}

// writeOffline emits the fallback response: exactly 503 with a
// plain-text UTF-8 notice.
func (p *Proxy) writeOffline(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, p.cfg.OfflineBody)
}

// settle notifies any listener that a background refresh finished.
func (p *Proxy) settle(key string) {
	select {
	case p.revalidated <- key:
	default:
	}
}
