// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsBroadcast   *prometheus.CounterVec // by kind
	EventsSuppressed  *prometheus.CounterVec // by reason: grace, gift_streak, stale_handle
	SubscriberDrops   prometheus.Counter
	LiveConnects      *prometheus.CounterVec // by result: ok, error
	AuthFailures      prometheus.Counter
	JournalDropped    prometheus.Counter
	CommentaryFailure *prometheus.CounterVec // by stage: text, speech

	// Histograms (seconds)
	LiveHandshakeDuration prometheus.Observer
	CommentaryDuration    prometheus.Observer

	// Gauges
	SessionsGauge    prometheus.Gauge
	SubscribersGauge prometheus.Gauge
	GeneratorsGauge  *prometheus.GaugeVec // by generator: demo, bots
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{Name: "liveroom_events_broadcast_total", Help: "Events published to room channels"}, []string{"kind"})
		EventsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "liveroom_events_suppressed_total", Help: "Raw live events not broadcast"}, []string{"reason"})
		SubscriberDrops = promauto.NewCounter(prometheus.CounterOpts{Name: "liveroom_subscriber_drops_total", Help: "Frames dropped because a subscriber buffer was full"})
		LiveConnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "liveroom_live_connects_total", Help: "External live connection attempts"}, []string{"result"})
		AuthFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "liveroom_auth_failures_total", Help: "Rejected session creation attempts"})
		JournalDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "liveroom_journal_dropped_total", Help: "Events not journaled because the queue was full"})
		CommentaryFailure = promauto.NewCounterVec(prometheus.CounterOpts{Name: "liveroom_commentary_failures_total", Help: "Commentary pipeline failures"}, []string{"stage"})
		LiveHandshakeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "liveroom_live_handshake_seconds", Help: "External connect handshake duration seconds", Buckets: prometheus.DefBuckets})
		CommentaryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "liveroom_commentary_duration_seconds", Help: "Commentary text+speech duration seconds", Buckets: prometheus.DefBuckets})
		SessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "liveroom_sessions", Help: "Sessions in the registry"})
		SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "liveroom_subscribers", Help: "Connected subscribers"})
		GeneratorsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "liveroom_generators_active", Help: "Running synthetic generators"}, []string{"generator"})
	})
}

// The helpers below are safe to call before Init; they no-op until metrics exist.

func IncBroadcast(kind string) {
	if EventsBroadcast != nil {
		EventsBroadcast.WithLabelValues(kind).Inc()
	}
}

func IncSuppressed(reason string) {
	if EventsSuppressed != nil {
		EventsSuppressed.WithLabelValues(reason).Inc()
	}
}

func IncSubscriberDrop() {
	if SubscriberDrops != nil {
		SubscriberDrops.Inc()
	}
}

func IncLiveConnect(ok bool) {
	if LiveConnects == nil {
		return
	}
	if ok {
		LiveConnects.WithLabelValues("ok").Inc()
	} else {
		LiveConnects.WithLabelValues("error").Inc()
	}
}

func IncAuthFailure() {
	if AuthFailures != nil {
		AuthFailures.Inc()
	}
}

func IncJournalDropped() {
	if JournalDropped != nil {
		JournalDropped.Inc()
	}
}

func IncCommentaryFailure(stage string) {
	if CommentaryFailure != nil {
		CommentaryFailure.WithLabelValues(stage).Inc()
	}
}

func ObserveSeconds(obs prometheus.Observer, seconds float64) {
	if obs != nil {
		obs.Observe(seconds)
	}
}

func SetSessions(n int) {
	if SessionsGauge != nil {
		SessionsGauge.Set(float64(n))
	}
}

func AddSubscribers(delta int) {
	if SubscribersGauge != nil {
		SubscribersGauge.Add(float64(delta))
	}
}

// AddGenerator adjusts the running generator gauge (delta is +1 on start, -1 on stop).
func AddGenerator(name string, delta int) {
	if GeneratorsGauge != nil {
		GeneratorsGauge.WithLabelValues(name).Add(float64(delta))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
