package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// httpRequests counts finished HTTP requests.
	// Labels: method, route (ServeMux pattern), status
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nebula",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nebula",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nebula",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Currently connected WebSocket clients",
	})

	// wsMessages counts inbound WebSocket frames by message type.
	wsMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nebula",
		Subsystem: "ws",
		Name:      "messages_total",
		Help:      "Inbound WebSocket messages by type",
	}, []string{"type"})

	wsTerminations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nebula",
		Subsystem: "ws",
		Name:      "terminations_total",
		Help:      "Connections closed for missing a liveness probe",
	})

	timelineEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nebula",
		Subsystem: "timeline",
		Name:      "events_total",
		Help:      "Timeline items appended by entity kind",
	}, []string{"kind"})

	// assistantQueries counts assistant queries by resolved intent.
	assistantQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nebula",
		Subsystem: "assistant",
		Name:      "queries_total",
		Help:      "Assistant queries by intent",
	}, []string{"intent"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nebula",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Requests rejected by the rate limiter",
	}, []string{"route"})
)

// ObserveHTTP records one finished request. Its signature matches
// util.RequestObserver.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func WSConnected()    { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }
func WSTerminated()   { wsTerminations.Inc() }

func WSMessage(msgType string) { wsMessages.WithLabelValues(msgType).Inc() }

func TimelineEvent(kind string) { timelineEvents.WithLabelValues(kind).Inc() }

func AssistantQuery(intent string) { assistantQueries.WithLabelValues(intent).Inc() }

func RateLimited(route string) { rateLimited.WithLabelValues(route).Inc() }

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
