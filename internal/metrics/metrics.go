// Registers:
//
//	#marketfeed_feed_events_total
//	#marketfeed_active_subscriptions
//	#marketfeed_frames_total
//	#marketfeed_provider_requests_total
//	#marketfeed_provider_latency_seconds
//	#marketfeed_synthetic_fallbacks_total
//	#marketfeed_venue_used_weight
//	#marketfeed_rate_limit_events_total
//	#go_* and process_* system metrics
//
// The registry is served by the api package on /metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Feed lifecycle events counted per exchange and channel.
const (
	EventSubscribe    = "subscribe"
	EventConnected    = "connected"
	EventReconnect    = "reconnect"
	EventDemoFallback = "demo_fallback"
	EventDropped      = "dropped_frame"
	EventTeardown     = "teardown"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	feedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketfeed_feed_events_total",
			Help: "Subscription lifecycle events per exchange and channel",
		},
		[]string{"exchange", "channel", "event"},
	)

	activeSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketfeed_active_subscriptions",
			Help: "Live subscription keys per exchange and channel",
		},
		[]string{"exchange", "channel"},
	)

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketfeed_frames_total",
			Help: "Normalized records delivered to subscribers",
		},
		[]string{"exchange", "channel", "source"},
	)

	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketfeed_provider_requests_total",
			Help: "Historical provider requests by outcome",
		},
		[]string{"provider", "outcome"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketfeed_provider_latency_seconds",
			Help:    "Historical provider request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	syntheticFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketfeed_synthetic_fallbacks_total",
			Help: "Historical requests served by the synthetic generator",
		},
		[]string{"asset_type"},
	)

	venueUsedWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketfeed_venue_used_weight",
			Help: "Request weight consumed against each venue's REST limit",
		},
		[]string{"venue"},
	)

	rateLimitEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketfeed_rate_limit_events_total",
			Help: "Rate limit and IP ban responses per venue",
		},
		[]string{"venue", "kind"},
	)
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			feedEvents,
			activeSubscriptions,
			frames,
			providerRequests,
			providerLatency,
			syntheticFallbacks,
			venueUsedWeight,
			rateLimitEvents,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Gatherer exposes the registry for callers that render metrics themselves.
func Gatherer() prometheus.Gatherer {
	Init()
	return registry
}

func RecordFeedEvent(exchange, channel, event string) {
	feedEvents.WithLabelValues(exchange, channel, event).Inc()
}

func SetActiveSubscriptions(exchange, channel string, n int) {
	activeSubscriptions.WithLabelValues(exchange, channel).Set(float64(n))
}

// RecordFrame counts one delivered record. source is "live" or "demo".
func RecordFrame(exchange, channel, source string) {
	frames.WithLabelValues(exchange, channel, source).Inc()
}

// RecordProviderResult counts a provider request and observes its latency.
// outcome is one of "ok", "insufficient" or "error".
func RecordProviderResult(provider, outcome string, elapsed time.Duration) {
	providerRequests.WithLabelValues(provider, outcome).Inc()
	providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func RecordSyntheticFallback(assetType string) {
	syntheticFallbacks.WithLabelValues(assetType).Inc()
}
