// Package shell serves the application shell the proxy fronts: the
// entry page, the web app manifest and the icon assets that make up
// the precache set.
package shell

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const themeColor = "#1e3a5f"

const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="theme-color" content="` + themeColor + `">
<link rel="manifest" href="/ui/manifest.webmanifest">
<link rel="icon" href="/ui/icon-192.png">
<title>Selection Agent</title>
</head>
<body>
<main id="app">
<h1>Selection Agent</h1>
<p>Loading…</p>
</main>
</body>
</html>
`

// Handler is the dependency container for the shell origin.
type Handler struct {
	Log *zap.Logger
}

// NewHandler constructs a new Handler.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Log: logger}
}

// PrecacheManifest returns the minimum asset set the shell needs to
// function offline: the entry point, its HTML document, the web app
// manifest and both icons. The list is fixed at build time.
func PrecacheManifest() []string {
	return []string{
		"/ui/",
		"/ui/index.html",
		"/ui/manifest.webmanifest",
		"/ui/icon-192.png",
		"/ui/icon-512.png",
	}
}

// Routes returns the router for the shell origin.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ui/", h.ServeIndex)
	r.Get("/ui/index.html", h.ServeIndex)
	r.Get("/ui/manifest.webmanifest", h.ServeManifest)
	r.Get("/ui/icon-192.png", h.serveIcon(icon192))
	r.Get("/ui/icon-512.png", h.serveIcon(icon512))
	return r
}

// ServeIndex serves the shell entry page.
func (h *Handler) ServeIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// webManifest is the PWA web app manifest structure.
type webManifest struct {
	Name            string       `json:"name"`
	ShortName       string       `json:"short_name"`
	StartURL        string       `json:"start_url"`
	Display         string       `json:"display"`
	BackgroundColor string       `json:"background_color"`
	ThemeColor      string       `json:"theme_color"`
	Icons           []webAppIcon `json:"icons"`
}

type webAppIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

// ServeManifest serves the web app manifest.
func (h *Handler) ServeManifest(w http.ResponseWriter, r *http.Request) {
	m := webManifest{
		Name:            "Selection Agent",
		ShortName:       "Agent",
		StartURL:        "/ui/",
		Display:         "standalone",
		BackgroundColor: themeColor,
		ThemeColor:      themeColor,
		Icons: []webAppIcon{
			{Src: "/ui/icon-192.png", Sizes: "192x192", Type: "image/png"},
			{Src: "/ui/icon-512.png", Sizes: "512x512", Type: "image/png"},
		},
	}

	w.Header().Set("Content-Type", "application/manifest+json")
	if err := json.NewEncoder(w).Encode(m); err != nil {
		h.Log.Error("failed to encode web manifest", zap.Error(err))
	}
}

// Icons are rendered once and reused; a solid theme-color square is
// enough for an installable shell.
var (
	icon192 = sync.OnceValue(func() []byte { return renderIcon(192) })
	icon512 = sync.OnceValue(func() []byte { return renderIcon(512) })
)

func (h *Handler) serveIcon(icon func() []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(icon())
	}
}

func renderIcon(size int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 0x1e, G: 0x3a, B: 0x5f, A: 0xff}}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
