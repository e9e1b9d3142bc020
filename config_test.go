package shellcache

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultKeyGeneratorIgnoresHost(t *testing.T) {
	inbound := httptest.NewRequest(http.MethodGet, "/ui/index.html?v=2", nil)
	outgoing, err := http.NewRequest(http.MethodGet, "http://origin.internal:9000/ui/index.html?v=2", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	if got, want := DefaultKeyGenerator(inbound), DefaultKeyGenerator(outgoing); got != want {
		t.Fatalf("keys diverge: inbound %q, outgoing %q", got, want)
	}
}

func TestStripHopByHop(t *testing.T) {
	header := http.Header{
		"Content-Type":      {"text/html"},
		"Connection":        {"keep-alive, X-Custom-Hop"},
		"Keep-Alive":        {"timeout=5"},
		"Transfer-Encoding": {"chunked"},
		"X-Custom-Hop":      {"drop-me"},
	}

	stripped := stripHopByHop(header)

	for _, key := range []string{"Connection", "Keep-Alive", "Transfer-Encoding", "X-Custom-Hop"} {
		if stripped.Get(key) != "" {
			t.Errorf("%s survived stripping", key)
		}
	}
	if stripped.Get("Content-Type") != "text/html" {
		t.Error("end-to-end header was stripped")
	}
	if header.Get("Connection") == "" {
		t.Error("original header map was mutated")
	}
}

func TestNormalizedFillsDefaults(t *testing.T) {
	cfg := (&Config{Version: "v9"}).normalized()

	if cfg.Version != "v9" {
		t.Fatalf("version overwritten: %q", cfg.Version)
	}
	if cfg.KeyGenerator == nil || cfg.ShouldCache == nil || cfg.StripHeaders == nil {
		t.Fatal("normalized left funcs nil")
	}
	if cfg.OfflineBody == "" {
		t.Fatal("normalized left OfflineBody empty")
	}
	if !cfg.ShouldCache(http.StatusOK) || cfg.ShouldCache(http.StatusNotFound) {
		t.Fatal("default ShouldCache is not the 2xx rule")
	}
}
