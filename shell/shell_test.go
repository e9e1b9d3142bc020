package shell_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spdeepak/shellcache/shell"
)

func serve(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := shell.NewHandler(nil).Routes()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEveryPrecacheAssetIsServed(t *testing.T) {
	for _, path := range shell.PrecacheManifest() {
		rec := serve(t, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: got %d, want 200", path, rec.Code)
		}
		if rec.Body.Len() == 0 {
			t.Errorf("%s: empty body", path)
		}
	}
}

func TestIndexIsHTML(t *testing.T) {
	rec := serve(t, "/ui/")
	if got := rec.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Fatalf("content type: got %q", got)
	}
	if !strings.Contains(rec.Body.String(), `rel="manifest"`) {
		t.Fatal("index does not link the web manifest")
	}
}

func TestManifestDecodes(t *testing.T) {
	rec := serve(t, "/ui/manifest.webmanifest")
	if got := rec.Header().Get("Content-Type"); got != "application/manifest+json" {
		t.Fatalf("content type: got %q", got)
	}

	var manifest struct {
		Name     string `json:"name"`
		StartURL string `json:"start_url"`
		Icons    []struct {
			Src   string `json:"src"`
			Sizes string `json:"sizes"`
		} `json:"icons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if manifest.Name == "" || manifest.StartURL != "/ui/" {
		t.Fatalf("manifest fields: %+v", manifest)
	}
	if len(manifest.Icons) != 2 {
		t.Fatalf("icons: got %d, want 2", len(manifest.Icons))
	}
}

func TestIconsArePNG(t *testing.T) {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	for _, path := range []string{"/ui/icon-192.png", "/ui/icon-512.png"} {
		rec := serve(t, path)
		if got := rec.Header().Get("Content-Type"); got != "image/png" {
			t.Errorf("%s content type: got %q", path, got)
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), pngMagic) {
			t.Errorf("%s: body is not a PNG", path)
		}
	}
}
