package server

import (
	"encoding/json"
	"net/http"
)

// HandleHealthz answers liveness checks. The relay has no hard dependencies.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz checks the optional backing services that are configured.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	type check struct {
		name string
		fn   func() error
	}
	var checks []check
	if h.db != nil {
		checks = append(checks, check{"database", func() error { return h.db.PingContext(r.Context()) }})
	}
	if h.redis != nil {
		checks = append(checks, check{"redis", func() error { return h.redis.Ping(r.Context()) }})
	}

	for _, c := range checks {
		if err := c.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": c.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ready", "sessions": h.reg.Len()})
}
