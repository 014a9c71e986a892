package server

import (
	"net/http"
	"os"
	"strings"
)

// SPAMiddleware wraps an http.Handler to serve the single-page web UI.
// API routes, health and metrics pass through; everything else serves a
// static file or falls back to index.html for client-side routing.
func SPAMiddleware(next http.Handler, staticPath, indexPath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") ||
			r.URL.Path == "/healthz" ||
			r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		path := staticPath + r.URL.Path

		if r.URL.Path == "/" {
			http.ServeFile(w, r, indexPath)
			return
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			// Unknown paths get index.html so the client router can
			// resolve them.
			http.ServeFile(w, r, indexPath)
			return
		}

		http.FileServer(http.Dir(staticPath)).ServeHTTP(w, r)
	})
}
