package shellcache

import (
	"net/http"
	"net/url"
	"strings"
)

// Config holds the proxy settings.
type Config struct {
	// Version tags the current cache bucket. Bumping it on redeploy is
	// the sole mechanism for invalidating previously cached content:
	// Activate deletes every bucket carrying another tag.
	Version string
	// Precache lists the URLs fetched and stored during Install — the
	// minimum asset set the application shell needs while offline.
	Precache []string
	// Upstream is the origin requests are forwarded to. When nil,
	// requests are re-issued against their own URL, so inbound requests
	// must carry absolute URLs as in a forward proxy.
	Upstream *url.URL
	// KeyGenerator derives the bucket key for a request.
	KeyGenerator func(*http.Request) string
	// ShouldCache decides whether a response with the given status code
	// should be stored.
	ShouldCache func(statusCode int) bool
	// MaxBodyBytes - do not cache bodies larger than this. Zero or
	// negative disables the cap.
	MaxBodyBytes int64
	// StripHeaders removes headers before storing (hop-by-hop etc).
	StripHeaders func(http.Header) http.Header
	// OfflineBody is the plain-text notice sent with the synthesized
	// 503 when both the cache and the network fail.
	OfflineBody string
}

// DefaultConfig provides defaults.
var DefaultConfig = &Config{
	Version:      "shell-v1",
	KeyGenerator: DefaultKeyGenerator,
	ShouldCache: func(statusCode int) bool {
		// Only cache successful responses by default
		return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
	},
	MaxBodyBytes: 8 << 20,
	StripHeaders: stripHopByHop,
	OfflineBody:  "This page is not available offline.\n",
}

// DefaultKeyGenerator creates a simple bucket key (Method:URI). The
// scheme and host are deliberately excluded so a key derived from an
// outgoing precache fetch matches the one derived from the equivalent
// inbound request.
func DefaultKeyGenerator(r *http.Request) string {
	return r.Method + ":" + r.URL.RequestURI()
}

// normalized returns a copy with every unset field filled from
// DefaultConfig, so a caller can set only what it cares about.
func (c *Config) normalized() *Config {
	out := *c
	if out.Version == "" {
		out.Version = DefaultConfig.Version
	}
	if out.KeyGenerator == nil {
		out.KeyGenerator = DefaultConfig.KeyGenerator
	}
	if out.ShouldCache == nil {
		out.ShouldCache = DefaultConfig.ShouldCache
	}
	if out.StripHeaders == nil {
		out.StripHeaders = DefaultConfig.StripHeaders
	}
	if out.OfflineBody == "" {
		out.OfflineBody = DefaultConfig.OfflineBody
	}
	return &out
}

func stripHopByHop(header http.Header) http.Header {
	// Clone so caller can mutate safely.
	headerClone := header.Clone()

	for _, k := range []string{
		"Connection", "Proxy-Connection", "Keep-Alive",
		"Proxy-Authenticate", "Proxy-Authorization", "TE",
		"Trailer", "Transfer-Encoding", "Upgrade",
	} {
		headerClone.Del(k)
	}
	// Also remove hop-by-hop values referenced by Connection header
	if conn := header.Get("Connection"); conn != "" {
		for _, token := range strings.Split(conn, ",") {
			token = strings.TrimSpace(token)
			if token != "" {
				headerClone.Del(token)
			}
		}
	}
	return headerClone
}
