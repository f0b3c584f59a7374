package server

import (
	"net/http"
	"path/filepath"
)

// cleanRoutes map extensionless page paths onto their HTML files.
var cleanRoutes = map[string]string{
	"/overlay":  "overlay.html",
	"/game":     "game.html",
	"/marathon": "marathon3d.html",
	"/voice":    "voice.html",
}

func (h *Handlers) mountStatic(mux *http.ServeMux) {
	dir := h.cfg.StaticDir
	if dir == "" {
		return
	}
	for route, file := range cleanRoutes {
		path := filepath.Join(dir, file)
		mux.HandleFunc("GET "+route, func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, path)
		})
	}
	mux.Handle("GET /", http.FileServer(http.Dir(dir)))
}
