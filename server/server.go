// Package server exposes the subscriber WebSocket and the HTTP API: health,
// metrics, session listing, the avatar proxy, voice commentary and the
// overlay pages. It injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onnwee/liveroom/broadcast"
	"github.com/onnwee/liveroom/commentary"
	"github.com/onnwee/liveroom/config"
	"github.com/onnwee/liveroom/session"
	"github.com/onnwee/liveroom/telemetry"
)

// Deps are the collaborators the HTTP layer needs. DB, Redis, Mirror and
// Voice are optional.
type Deps struct {
	Config   *config.Config
	Registry *session.Registry
	Router   *broadcast.Router
	DB       *sql.DB
	Redis    Pinger
	// Mirror also receives host-command and state-sync frames, which bypass
	// the sessions.
	Mirror session.Publisher
	Voice  *commentary.Client
	// ImageClient fetches proxied avatars; nil uses a 10s-timeout client.
	ImageClient *http.Client
}

// Pinger is a dependency /readyz can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewMux returns the HTTP handler with all routes.
// The provided context bounds the rate limiter cleanup goroutine.
func NewMux(ctx context.Context, d Deps) http.Handler {
	h := NewHandlers(ctx, d)
	limiter := newIPRateLimiter(ctx, defaultRateLimiterConfig())
	limited := func(f http.HandlerFunc) http.Handler { return rateLimitMiddleware(f, limiter) }

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReadyz)

	mux.HandleFunc("GET /ws", h.HandleWS)

	mux.HandleFunc("GET /api/config", h.HandleConfig)
	mux.Handle("GET /api/sessions", adminAuth(http.HandlerFunc(h.HandleSessions), d.Config.AdminToken))
	mux.Handle("GET /api/sessions/{room}/events", adminAuth(http.HandlerFunc(h.HandleSessionEvents), d.Config.AdminToken))
	mux.Handle("GET /api/proxy-image", limited(h.HandleProxyImage))
	mux.Handle("POST /api/voice/generate", limited(h.HandleVoiceGenerate))

	h.mountStatic(mux)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.LoggerWithCorr(ctx).Debug("request",
			slog.String("component", "http"),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.statusCode),
			slog.Duration("took", time.Since(start)))
	})
	traced := otelhttp.NewHandler(handler, "http-server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return r.Method + " " + r.URL.Path }),
	)
	return withCORSConfig(traced, corsConfig{allowedOrigins: d.Config.CORSOrigins})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T cannot hijack", r.ResponseWriter)
	}
	r.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, d Deps, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(ctx, d),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
