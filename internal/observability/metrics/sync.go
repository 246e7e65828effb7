package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docsync/internal/core/domain"
)

type SyncMetrics struct {
	registry *prometheus.Registry

	artifactRequests *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	pollProbes       *prometheus.CounterVec
	pollTerminal     *prometheus.CounterVec
	pollsInFlight    prometheus.Gauge
	cacheEntries     prometheus.Gauge
}

func NewSyncMetrics(service string) *SyncMetrics {
	registry := prometheus.NewRegistry()

	artifactRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsync",
			Subsystem: "artifact",
			Name:      "requests_total",
			Help:      "Artifact requests by outcome (cache, generated, error).",
		},
		[]string{"service", "source"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsync",
			Subsystem: "artifact",
			Name:      "request_duration_seconds",
			Help:      "Artifact request duration by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "source"},
	)
	pollProbes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsync",
			Subsystem: "poll",
			Name:      "probes_total",
			Help:      "Status probes by outcome (pending, transient, terminal).",
		},
		[]string{"service", "outcome"},
	)
	pollTerminal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsync",
			Subsystem: "poll",
			Name:      "terminal_total",
			Help:      "Polls reaching a terminal state, by state.",
		},
		[]string{"service", "state"},
	)
	pollsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsync",
			Subsystem: "poll",
			Name:      "in_flight",
			Help:      "Number of active polls.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	cacheEntries := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsync",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries in the artifact cache at last stats read.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(artifactRequests, requestDuration, pollProbes, pollTerminal, pollsInFlight, cacheEntries)

	return &SyncMetrics{
		registry:         registry,
		artifactRequests: artifactRequests,
		requestDuration:  requestDuration,
		pollProbes:       pollProbes,
		pollTerminal:     pollTerminal,
		pollsInFlight:    pollsInFlight,
		cacheEntries:     cacheEntries,
	}
}

func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SyncMetrics) ObserveArtifactRequest(service string, source domain.ArtifactSource, duration time.Duration, err error) {
	outcome := string(source)
	if err != nil {
		outcome = "error"
	}
	m.artifactRequests.WithLabelValues(service, outcome).Inc()
	m.requestDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *SyncMetrics) StartPoll() {
	m.pollsInFlight.Inc()
}

// CancelPoll adjusts the in-flight gauge for a poll cancelled before any
// terminal event could fire.
func (m *SyncMetrics) CancelPoll() {
	m.pollsInFlight.Dec()
}

func (m *SyncMetrics) ObservePollEvent(service string, event domain.PollEvent) {
	switch {
	case event.Phase.Terminal():
		m.pollsInFlight.Dec()
		m.pollTerminal.WithLabelValues(service, string(event.Phase)).Inc()
		m.pollProbes.WithLabelValues(service, "terminal").Inc()
	case event.Err != nil:
		m.pollProbes.WithLabelValues(service, "transient").Inc()
	default:
		m.pollProbes.WithLabelValues(service, "pending").Inc()
	}
}

func (m *SyncMetrics) SetCacheEntries(total int) {
	m.cacheEntries.Set(float64(total))
}
