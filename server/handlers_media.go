package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/onnwee/liveroom/commentary"
	"github.com/onnwee/liveroom/telemetry"
)

const maxImageBytes = 5 << 20

type proxiedImage struct {
	body        []byte
	contentType string
}

// HandleProxyImage fetches a remote avatar so overlays can draw it without
// CORS trouble. Concurrent requests for the same url share one fetch.
func (h *Handlers) HandleProxyImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "Missing url param", http.StatusBadRequest)
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		http.Error(w, "url must be http(s)", http.StatusBadRequest)
		return
	}

	v, err, _ := h.imageFlight.Do(u.String(), func() (any, error) {
		return h.fetchImage(r, u.String())
	})
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("image proxy failed", slog.String("url", u.String()), slog.Any("err", err))
		http.Error(w, "Failed to proxy image", http.StatusBadGateway)
		return
	}
	img := v.(proxiedImage)
	w.Header().Set("Content-Type", img.contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(img.body)
}

func (h *Handlers) fetchImage(r *http.Request, target string) (proxiedImage, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		return proxiedImage{}, err
	}
	resp, err := h.images.Do(req)
	if err != nil {
		return proxiedImage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return proxiedImage{}, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return proxiedImage{}, err
	}
	if len(body) > maxImageBytes {
		return proxiedImage{}, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/webp"
	}
	return proxiedImage{body: body, contentType: ct}, nil
}

// HandleVoiceGenerate turns one stream event into a spoken co-host line. The
// text rides along URI-encoded in X-Commentary-Text.
func (h *Handlers) HandleVoiceGenerate(w http.ResponseWriter, r *http.Request) {
	if !h.voice.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Voice API keys not configured")
		return
	}
	var req commentary.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.voice.Generate(r.Context(), req)
	switch {
	case errors.Is(err, commentary.ErrUpstream):
		writeError(w, http.StatusBadGateway, "commentary provider failed")
		return
	case errors.Is(err, commentary.ErrEmpty):
		writeError(w, http.StatusInternalServerError, "Empty commentary")
		return
	case err != nil:
		telemetry.LoggerWithCorr(r.Context()).Error("voice generate failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Internal voice error")
		return
	}

	if s, ok := h.reg.Resolve(req.Room); ok {
		s.AddUsage(len([]rune(res.Text)), len([]rune(res.Text)))
	}
	ct := res.ContentType
	if ct == "" {
		ct = "audio/mpeg"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Commentary-Text", url.PathEscape(res.Text))
	_, _ = w.Write(res.Audio)
}
