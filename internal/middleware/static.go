package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" rx="40" fill="#ffd93b"/><circle cx="70" cy="85" r="12" fill="#3b3b3b"/><circle cx="130" cy="85" r="12" fill="#3b3b3b"/><path d="M60 125q40 35 80 0" stroke="#3b3b3b" stroke-width="10" fill="none" stroke-linecap="round"/></svg>`

// StaticFileServer serves generated emoji files; missing files get a
// placeholder so stale gallery entries do not render as broken images.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(placeholderSVG))
	})
}
