package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/liveroom/db"
	"github.com/onnwee/liveroom/telemetry"
)

// HandleConfig reports the default live username and whether the resolved
// room (the legacy default when ?room is absent or unknown) is connected.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	connected := false
	if s, ok := h.reg.Resolve(r.URL.Query().Get("room")); ok {
		connected = s.Connected()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":  h.cfg.DefaultUsername,
		"connected": connected,
		"voice":     h.voice.Enabled(),
	})
}

// HandleSessions lists every session.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.List())
}

// HandleSessionEvents returns the journal tail for one room.
func (h *Handlers) HandleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal not configured")
		return
	}
	room := r.PathValue("room")
	entries, err := db.Tail(r.Context(), h.db, room, parseIntQuery(r, "limit", 100))
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("journal tail failed", slog.String("room", room), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
