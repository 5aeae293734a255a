package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "verse",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verse",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "verse",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "verse",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Current number of websocket connections.",
		},
	)

	matchups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verse",
			Subsystem: "challenges",
			Name:      "matchups_total",
			Help:      "Total number of matchup entries, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	votes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verse",
			Subsystem: "challenges",
			Name:      "votes_total",
			Help:      "Total number of matchup votes cast.",
		},
		[]string{"kind"},
	)

	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "verse",
			Subsystem: "messaging",
			Name:      "sent_total",
			Help:      "Total number of direct messages sent.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		wsConnections,
		matchups,
		votes,
		messagesSent,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// ConnectionOpened records a new websocket connection.
func ConnectionOpened() { wsConnections.Inc() }

// ConnectionClosed records a dropped websocket connection.
func ConnectionClosed() { wsConnections.Dec() }

// RecordMatchup counts a matchup entry. outcome is "matched" or "pending".
func RecordMatchup(kind string, matched bool) {
	outcome := "pending"
	if matched {
		outcome = "matched"
	}
	matchups.WithLabelValues(kind, outcome).Inc()
}

// RecordVote counts a cast vote.
func RecordVote(kind string) {
	votes.WithLabelValues(kind).Inc()
}

// RecordMessageSent counts a sent direct message.
func RecordMessageSent() { messagesSent.Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses IDs so label cardinality stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/api"
	}
	resource := parts[1]
	if len(parts) == 2 {
		return "/api/" + resource
	}
	// /api/<resource>/<id-or-action>/... keeps the first static segment and
	// folds the rest into a placeholder.
	action := parts[2]
	switch resource {
	case "users":
		switch action {
		case "signup", "login", "logout", "me":
			return "/api/users/" + action
		}
		if len(parts) > 3 {
			return "/api/users/:id/" + parts[3]
		}
		return "/api/users/:id"
	case "posts":
		switch action {
		case "feed":
			return "/api/posts/feed"
		case "like", "reply":
			return "/api/posts/" + action + "/:id"
		}
		return "/api/posts/:id"
	case "messages":
		switch action {
		case "threads":
			return "/api/messages/threads"
		case "conversation":
			if len(parts) > 4 {
				return "/api/messages/conversation/:id/" + parts[4]
			}
			return "/api/messages/conversation/:id"
		}
		return "/api/messages/:id"
	case "challenges", "polls":
		switch action {
		case "cancel":
			return "/api/" + resource + "/cancel"
		}
		if len(parts) > 3 {
			return "/api/" + resource + "/:id/" + parts[3]
		}
		return "/api/" + resource + "/:id"
	}
	return "/api/" + resource
}
